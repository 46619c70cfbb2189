// Package meshgate wires a configuration into a running multi-agent
// assistant: it builds the logger, tracing, conversation memory, model
// catalog and agent tree, hands them to the orchestrator and exposes the
// result over the WhatsApp gateway.
//
// Most applications interact with this package by:
//  1. Loading a config.Config (config.Load)
//  2. Creating a Mesh via New
//  3. Calling Invoke directly or serving traffic through Gateway
//  4. Calling Close on shutdown
package meshgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/meshgate/agent"
	"github.com/hupe1980/meshgate/channel"
	"github.com/hupe1980/meshgate/channel/whatsapp"
	"github.com/hupe1980/meshgate/config"
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/gateway"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/memory"
	"github.com/hupe1980/meshgate/memory/sqlite"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/model/breaker"
	"github.com/hupe1980/meshgate/model/catalog"
	"github.com/hupe1980/meshgate/orchestrator"
	"github.com/hupe1980/meshgate/tool"
	"github.com/hupe1980/meshgate/tracing"
)

// Options overrides components New would otherwise build from the config.
type Options struct {
	// Logger replaces the logger built from config.Logging.
	Logger logging.Logger
	// Memory replaces the store selected by config.Memory.
	Memory core.MemoryStore
	// Resolver replaces the model catalog.
	Resolver model.Resolver
	// Sender replaces the Twilio WhatsApp channel.
	Sender channel.Sender
	// Overrides replace registry entries by agent name.
	Overrides map[string]core.Invoker
	// DisableTracing skips tracing setup regardless of config.
	DisableTracing bool
}

// Mesh is a fully wired assistant.
type Mesh struct {
	cfg    *config.Config
	logger logging.Logger
	memory core.MemoryStore
	orch   *orchestrator.Orchestrator
	agents map[string]*agent.Agent
	sender channel.Sender

	closers []func(context.Context) error
}

// New builds every component named by cfg.
func New(cfg *config.Config, optFns ...func(o *Options)) (_ *Mesh, err error) {
	if cfg == nil {
		return nil, errors.New("meshgate: config is required")
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Mesh{cfg: cfg, sender: opts.Sender}

	defer func() {
		if err != nil {
			_ = m.Close(context.Background())
		}
	}()

	m.logger = opts.Logger
	if m.logger == nil {
		logger, closeLog, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("meshgate: %w", err)
		}

		m.logger = logger
		m.closers = append(m.closers, func(context.Context) error { return closeLog() })
	}

	if !opts.DisableTracing {
		shutdown, err := tracing.Setup(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("meshgate: %w", err)
		}

		m.closers = append(m.closers, shutdown)
	}

	m.memory = opts.Memory
	if m.memory == nil {
		store, closeStore, err := openMemory(cfg.Memory, m.logger)
		if err != nil {
			return nil, fmt.Errorf("meshgate: %w", err)
		}

		m.memory = store
		if closeStore != nil {
			m.closers = append(m.closers, func(context.Context) error { return closeStore() })
		}
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = newResolver(cfg, m.logger)
	}

	main, all, err := buildAgents(cfg, m.memory, resolver, m.logger)
	if err != nil {
		return nil, fmt.Errorf("meshgate: %w", err)
	}

	m.agents = make(map[string]*agent.Agent, len(all))
	for _, a := range all {
		m.agents[a.Name()] = a
	}

	var mocks []string
	for _, ac := range cfg.Agents {
		if ac.Mock {
			mocks = append(mocks, ac.Name)
		}
	}

	m.orch, err = orchestrator.New(main, all, orchestrator.MockAgents(mocks...), func(o *orchestrator.Options) {
		for name, inv := range opts.Overrides {
			orchestrator.WithOverride(name, inv)(o)
		}

		o.Strict = cfg.Runtime.Strict
		o.MaxDepth = cfg.Runtime.MaxDepth
		o.RequestTimeout = cfg.Runtime.RequestTimeout
		o.Logger = m.logger
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("meshgate.ready", "main_agent", cfg.MainAgent, "agents", m.orch.Agents(), "memory", cfg.Memory.Driver)

	return m, nil
}

func openMemory(cfg config.MemoryConfig, logger logging.Logger) (core.MemoryStore, func() error, error) {
	switch cfg.Driver {
	case config.MemorySQLite:
		store, err := sqlite.Open(cfg.Path, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.MemoryInProc:
		return memory.NewInMemoryStore(), nil, nil
	case config.MemoryNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory driver %q", cfg.Driver)
	}
}

func newResolver(cfg *config.Config, logger logging.Logger) model.Resolver {
	p := cfg.Providers

	return catalog.NewResolver(func(o *catalog.Options) {
		o.OpenAIAPIKey = p.OpenAIAPIKey
		o.OpenAIBaseURL = p.OpenAIBaseURL
		o.AnthropicAPIKey = p.AnthropicAPIKey
		o.MaxTokens = p.MaxTokens
		o.Breaker = p.Breaker
		o.BreakerOptions = []func(o *breaker.Options){func(bo *breaker.Options) {
			bo.MaxFailures = p.BreakerFailures
			bo.Timeout = p.BreakerTimeout
		}}
		o.Logger = logger
	})
}

// buildAgents constructs the declared agents, sub-agents first. Sub-agents
// that are referenced but not declared become unregistered placeholders so
// delegating to them yields the mock-agent acknowledgement.
func buildAgents(cfg *config.Config, store core.MemoryStore, resolver model.Resolver, logger logging.Logger) (*agent.Agent, []*agent.Agent, error) {
	decls := make(map[string]config.AgentConfig, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		decls[ac.Name] = ac
	}

	built := make(map[string]*agent.Agent, len(cfg.Agents))
	visiting := make(map[string]bool)

	var build func(name string) (*agent.Agent, error)
	build = func(name string) (*agent.Agent, error) {
		if a, ok := built[name]; ok {
			return a, nil
		}

		ac, declared := decls[name]
		if !declared {
			logger.Warn("meshgate.agent.undeclared", "agent", name)
			return agent.New(name, func(o *agent.Options) { o.Description = name }), nil
		}

		if visiting[name] {
			return nil, fmt.Errorf("sub-agent cycle through %q", name)
		}

		visiting[name] = true
		defer delete(visiting, name)

		subs := make([]*agent.Agent, 0, len(ac.SubAgents))
		for _, sub := range ac.SubAgents {
			s, err := build(sub)
			if err != nil {
				return nil, err
			}

			subs = append(subs, s)
		}

		tools := make([]tool.Tool, 0, len(ac.Tools))
		for _, toolName := range ac.Tools {
			t, ok := tool.Builtin(toolName)
			if !ok {
				return nil, fmt.Errorf("agent %q: unknown tool %q", ac.Name, toolName)
			}

			tools = append(tools, t)
		}

		a := agent.New(ac.Name, func(o *agent.Options) {
			if ac.Description != "" {
				o.Description = ac.Description
			}

			if ac.SystemPrompt != "" {
				o.SystemPrompt = ac.SystemPrompt
			}

			o.ModelIdentifier = cfg.Runtime.DefaultModel
			if ac.Model != "" {
				o.ModelIdentifier = ac.Model
			}

			o.Temperature = ac.Temperature
			o.Tools = tools
			o.SubAgents = subs
			o.Resolver = resolver
			o.MaxTurns = cfg.Runtime.MaxTurns
			if ac.MaxTurns > 0 {
				o.MaxTurns = ac.MaxTurns
			}
			o.MaxHistoryMessages = cfg.Runtime.MaxHistory
			o.Logger = logger

			if ac.MemoryEnabled() {
				o.Memory = store
			}
		})

		built[name] = a

		return a, nil
	}

	all := make([]*agent.Agent, 0, len(cfg.Agents))

	for _, ac := range cfg.Agents {
		a, err := build(ac.Name)
		if err != nil {
			return nil, nil, err
		}

		all = append(all, a)
	}

	main, ok := built[cfg.MainAgent]
	if !ok {
		return nil, nil, fmt.Errorf("main agent %q is not declared", cfg.MainAgent)
	}

	return main, all, nil
}

// Config returns the configuration the mesh was built from.
func (m *Mesh) Config() *config.Config { return m.cfg }

// Logger returns the mesh logger.
func (m *Mesh) Logger() logging.Logger { return m.logger }

// Memory returns the conversation store (nil when memory is disabled).
func (m *Mesh) Memory() core.MemoryStore { return m.memory }

// Orchestrator returns the wired orchestrator.
func (m *Mesh) Orchestrator() *orchestrator.Orchestrator { return m.orch }

// Agent returns the declared agent called name.
func (m *Mesh) Agent(name string) (*agent.Agent, bool) {
	a, ok := m.agents[name]
	return a, ok
}

// Invoke sends message to the main agent on threadID and returns the reply.
func (m *Mesh) Invoke(ctx context.Context, message, threadID string) (string, error) {
	return m.orch.Invoke(ctx, message, core.RunConfig{ThreadID: threadID})
}

// Stream is the streaming variant of Invoke.
func (m *Mesh) Stream(ctx context.Context, message, threadID string) (<-chan core.Event, <-chan error) {
	return m.orch.Stream(ctx, message, core.RunConfig{ThreadID: threadID})
}

// Gateway builds the HTTP gateway answering through the configured sender,
// creating the Twilio WhatsApp channel when no sender was supplied.
func (m *Mesh) Gateway(optFns ...func(o *gateway.Options)) (*gateway.Gateway, error) {
	srv := m.cfg.Server
	sender := m.sender

	var verifier gateway.Verifier

	if sender == nil {
		wa, err := whatsapp.New(m.cfg.Twilio.AccountSID, m.cfg.Twilio.AuthToken, m.cfg.Twilio.FromNumber,
			func(o *whatsapp.Options) { o.Logger = m.logger })
		if err != nil {
			return nil, fmt.Errorf("meshgate: %w", err)
		}

		sender = wa
		verifier = wa
	}

	fns := append([]func(o *gateway.Options){func(o *gateway.Options) {
		o.Addr = srv.Addr
		o.Workers = srv.Workers
		o.QueueSize = srv.QueueSize
		o.Sync = srv.Sync
		o.SenderRatePerMinute = srv.RateLimit
		o.SenderBurst = srv.RateBurst
		o.ClientRatePerMinute = srv.RateLimit
		o.ClientBurst = srv.RateBurst
		o.TestThreadID = srv.TestThreadID
		o.Verifier = verifier
		o.WebhookURL = m.cfg.Twilio.WebhookURL
		o.Logger = m.logger
	}}, optFns...)

	return gateway.New(m.orch, sender, fns...), nil
}

// Close releases the memory store, flushes tracing and closes log outputs,
// in reverse construction order.
func (m *Mesh) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}

	var errs []error

	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	m.closers = nil

	return errors.Join(errs...)
}
