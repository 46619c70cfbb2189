package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/flow"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/model/catalog"
	"github.com/hupe1980/meshgate/tool"
)

// DefaultModelIdentifier is used when no model identifier is configured.
const DefaultModelIdentifier = "openai/gpt-4o-mini"

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	Description     string
	SystemPrompt    string // text/template; see templateData for keys
	ModelIdentifier string // "provider/model", resolved by Resolver
	Temperature     float64
	Tools           []tool.Tool
	SubAgents       []*Agent // not owned; shared with the orchestrator registry
	Memory          core.MemoryStore
	// Model bypasses identifier resolution when set.
	Model model.Model
	// Resolver turns ModelIdentifier and Temperature into a model.
	Resolver           model.Resolver
	MaxTurns           int
	MaxHistoryMessages int
	Logger             logging.Logger
}

// Agent is a named, independently invokable unit. It satisfies core.Invoker
// and core.Streamer.
type Agent struct {
	name      string
	opts      Options
	subAgents []*Agent

	mu     sync.RWMutex
	tools  []tool.Tool
	runner *flow.Runner
}

var (
	_ core.Invoker  = (*Agent)(nil)
	_ core.Streamer = (*Agent)(nil)
)

// New creates an agent with sensible defaults:
//   - model "openai/gpt-4o-mini" resolved through the model catalog
//   - a generic system prompt naming the agent
//   - 10 reasoning turns per invocation, 50 history contents
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Description:        fmt.Sprintf("Agent %s", name),
		SystemPrompt:       DefaultSystemPrompt,
		ModelIdentifier:    DefaultModelIdentifier,
		MaxTurns:           10,
		MaxHistoryMessages: 50,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Resolver == nil {
		opts.Resolver = catalog.NewResolver(func(o *catalog.Options) { o.Logger = opts.Logger })
	}

	return &Agent{
		name:      name,
		opts:      opts,
		subAgents: append([]*Agent(nil), opts.SubAgents...),
		tools:     append([]tool.Tool(nil), opts.Tools...),
	}
}

// Name returns the unique routing key of the agent.
func (a *Agent) Name() string { return a.name }

// Description returns the text advertised to peers.
func (a *Agent) Description() string { return a.opts.Description }

// SystemPrompt returns the unrendered system prompt template.
func (a *Agent) SystemPrompt() string { return a.opts.SystemPrompt }

// ModelIdentifier returns the configured model identifier.
func (a *Agent) ModelIdentifier() string { return a.opts.ModelIdentifier }

// Temperature returns the configured sampling temperature.
func (a *Agent) Temperature() float64 { return a.opts.Temperature }

// Memory returns the memory store or nil.
func (a *Agent) Memory() core.MemoryStore { return a.opts.Memory }

// SubAgents returns the direct sub-agents in declaration order.
func (a *Agent) SubAgents() []*Agent {
	return append([]*Agent(nil), a.subAgents...)
}

// Tools returns a copy of the tool list in order.
func (a *Agent) Tools() []tool.Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]tool.Tool(nil), a.tools...)
}

// Tool returns the tool called name.
func (a *Agent) Tool(name string) (tool.Tool, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, t := range a.tools {
		if t.Name() == name {
			return t, true
		}
	}

	return nil, false
}

// SetTool appends t, or replaces the tool with the same name in place, and
// invalidates the built runner.
func (a *Agent) SetTool(t tool.Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	replaced := false

	for i, existing := range a.tools {
		if existing.Name() == t.Name() {
			a.tools[i] = t
			replaced = true

			break
		}
	}

	if !replaced {
		a.tools = append(a.tools, t)
	}

	a.runner = nil

	a.opts.Logger.Debug("agent.tools.changed", "agent", a.name, "tool", t.Name(), "replaced", replaced)
}

// Built reports whether a runner is cached.
func (a *Agent) Built() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.runner != nil
}

// Build compiles the runner unless one is cached.
func (a *Agent) Build() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runner != nil {
		return nil
	}

	return a.rebuildLocked()
}

// Rebuild compiles a fresh runner from the current configuration.
func (a *Agent) Rebuild() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.rebuildLocked()
}

func (a *Agent) rebuildLocked() error {
	m := a.opts.Model
	if m == nil {
		resolved, err := a.opts.Resolver(a.opts.ModelIdentifier, a.opts.Temperature)
		if err != nil {
			return fmt.Errorf("agent %s: resolve model %q: %w", a.name, a.opts.ModelIdentifier, err)
		}

		m = resolved
	}

	tools := append([]tool.Tool(nil), a.tools...)

	runner, err := flow.NewRunner(a.name, m, func(o *flow.Options) {
		o.Instructions = a.opts.SystemPrompt
		o.InstructionData = a.templateData()
		o.Tools = tools
		o.Memory = a.opts.Memory
		o.MaxTurns = a.opts.MaxTurns
		o.MaxHistoryMessages = a.opts.MaxHistoryMessages
		o.Logger = a.opts.Logger
	})
	if err != nil {
		return err
	}

	a.runner = runner

	a.opts.Logger.Debug("agent.build", "agent", a.name, "model", m.Info().Name, "tools", len(tools))

	return nil
}

func (a *Agent) ensureRunner() (*flow.Runner, error) {
	a.mu.RLock()
	runner := a.runner
	a.mu.RUnlock()

	if runner != nil {
		return runner, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runner == nil {
		if err := a.rebuildLocked(); err != nil {
			return nil, err
		}
	}

	return a.runner, nil
}

// Invoke runs the reasoning loop and returns env extended by the reply.
// Model errors propagate unchanged; the agent never retries.
func (a *Agent) Invoke(ctx context.Context, env core.Envelope, cfg core.RunConfig) (core.Envelope, error) {
	runner, err := a.ensureRunner()
	if err != nil {
		return nil, err
	}

	a.opts.Logger.Debug("agent.invoke.start", "agent", a.name, "thread_id", cfg.Thread(), "depth", cfg.Depth)

	return runner.Run(ctx, env, cfg)
}

// Stream is the incremental variant of Invoke. Each call re-runs the loop.
func (a *Agent) Stream(ctx context.Context, env core.Envelope, cfg core.RunConfig) (<-chan core.Event, <-chan error) {
	runner, err := a.ensureRunner()
	if err != nil {
		events := make(chan core.Event)
		errs := make(chan error, 1)
		close(events)
		errs <- err
		close(errs)

		return events, errs
	}

	a.opts.Logger.Debug("agent.stream.start", "agent", a.name, "thread_id", cfg.Thread(), "depth", cfg.Depth)

	return runner.Stream(ctx, env, cfg)
}
