// Package orchestrator owns the agent registry, wires one delegation tool into
// every agent that declares sub-agents, and exposes the single Invoke/Stream
// entry point that drives a full multi-agent exchange to a final text reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/meshgate/agent"
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/tool"
	"github.com/hupe1980/meshgate/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Options configures an Orchestrator.
type Options struct {
	// Overrides replace registry entries by name.
	Overrides map[string]core.Invoker
	// Mocks names agents replaced by MockInvoker.
	Mocks []string
	// Strict turns sub-agents missing from the agent list into an error.
	Strict bool
	// MaxDepth bounds nested delegation; 0 disables the check.
	MaxDepth int
	// RequestTimeout bounds Invoke and Stream; 0 disables the deadline.
	RequestTimeout time.Duration
	// DefaultThreadID is used when a request carries no thread id.
	DefaultThreadID string
	Logger          logging.Logger
}

// WithOverride replaces the registry entry name with inv.
func WithOverride(name string, inv core.Invoker) func(o *Options) {
	return func(o *Options) {
		if o.Overrides == nil {
			o.Overrides = make(map[string]core.Invoker)
		}
		o.Overrides[name] = inv
	}
}

// MockAgents replaces the named agents with canned MockInvoker stand-ins.
func MockAgents(names ...string) func(o *Options) {
	return func(o *Options) {
		o.Mocks = append(o.Mocks, names...)
	}
}

// Orchestrator drives requests through the main agent. It is safe for
// concurrent use; all wiring happens in New.
type Orchestrator struct {
	main        *agent.Agent
	agents      []*agent.Agent
	registry    *Registry
	delegations map[string]*tool.Delegation
	opts        Options
}

// New builds the registry from agents (main is added when absent), attaches a
// delegation tool to every agent with sub-agents and builds every agent.
func New(main *agent.Agent, agents []*agent.Agent, optFns ...func(o *Options)) (*Orchestrator, error) {
	if main == nil {
		return nil, errors.New("orchestrator: main agent is required")
	}

	opts := Options{
		MaxDepth:        5,
		RequestTimeout:  2 * time.Minute,
		DefaultThreadID: core.DefaultThreadID,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	all, err := flatten(main, agents)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		main:        main,
		agents:      all,
		registry:    newRegistry(),
		delegations: make(map[string]*tool.Delegation),
		opts:        opts,
	}

	for _, a := range all {
		o.registry.set(a.Name(), a)
	}

	for _, name := range opts.Mocks {
		desc := name
		if inv, ok := o.registry.Lookup(name); ok {
			desc = inv.Description()
		}
		o.registry.set(name, NewMockInvoker(name, desc))
		opts.Logger.Info("orchestrator.agent.mocked", "agent", name)
	}

	for name, inv := range opts.Overrides {
		o.registry.set(name, inv)
		opts.Logger.Info("orchestrator.agent.overridden", "agent", name)
	}

	if err := o.wire(); err != nil {
		return nil, err
	}

	return o, nil
}

// flatten returns main followed by agents, rejecting conflicting names.
func flatten(main *agent.Agent, agents []*agent.Agent) ([]*agent.Agent, error) {
	seen := make(map[string]*agent.Agent, len(agents)+1)
	all := make([]*agent.Agent, 0, len(agents)+1)

	for _, a := range append([]*agent.Agent{main}, agents...) {
		if a == nil {
			return nil, errors.New("orchestrator: nil agent")
		}

		if prev, ok := seen[a.Name()]; ok {
			if prev == a {
				continue
			}

			return nil, fmt.Errorf("orchestrator: duplicate agent name %q", a.Name())
		}

		seen[a.Name()] = a
		all = append(all, a)
	}

	return all, nil
}

// wire runs the one-time delegation setup pass.
func (o *Orchestrator) wire() error {
	for _, a := range o.agents {
		subs := a.SubAgents()
		if len(subs) > 0 {
			recipients := make([]tool.Recipient, 0, len(subs))

			for _, s := range subs {
				if _, ok := o.registry.Lookup(s.Name()); !ok {
					if o.opts.Strict {
						return fmt.Errorf("orchestrator: sub-agent %q of %q is not registered: %w", s.Name(), a.Name(), core.ErrAgentNotFound)
					}

					o.opts.Logger.Warn("orchestrator.wire.missing_sub_agent", "agent", a.Name(), "sub_agent", s.Name())
				}

				recipients = append(recipients, tool.Recipient{Name: s.Name(), Description: s.Description()})
			}

			schema, err := tool.NewDelegationSchema(recipients...)
			if err != nil {
				return fmt.Errorf("orchestrator: agent %q: %w", a.Name(), err)
			}

			d := tool.NewDelegation(a.Name(), schema, o.registry, func(do *tool.DelegationOptions) {
				do.MaxDepth = o.opts.MaxDepth
				do.Logger = o.opts.Logger
			})

			a.SetTool(d)
			o.delegations[a.Name()] = d

			o.opts.Logger.Info("orchestrator.wire.delegation", "agent", a.Name(), "recipients", schema.Names())
		}

		if err := a.Rebuild(); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
	}

	return nil
}

// Main returns the entry invoker (the registry entry of the main agent).
func (o *Orchestrator) Main() core.Invoker {
	inv, _ := o.registry.Lookup(o.main.Name())
	return inv
}

// Agent returns the registry entry called name.
func (o *Orchestrator) Agent(name string) (core.Invoker, bool) {
	return o.registry.Lookup(name)
}

// Agents returns registered agent names in registration order.
func (o *Orchestrator) Agents() []string { return o.registry.Names() }

// Registry returns the shared registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Delegation returns the delegation tool attached to owner.
func (o *Orchestrator) Delegation(owner string) (*tool.Delegation, bool) {
	d, ok := o.delegations[owner]
	return d, ok
}

func (o *Orchestrator) prepare(ctx context.Context, cfg core.RunConfig) (context.Context, context.CancelFunc, core.RunConfig) {
	if cfg.ThreadID == "" {
		cfg.ThreadID = o.opts.DefaultThreadID
	}

	if o.opts.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
		return ctx, cancel, cfg
	}

	ctx, cancel := context.WithCancel(ctx)

	return ctx, cancel, cfg
}

// Invoke wraps message as a single human turn, runs the main agent and
// returns the content of the reply. Model errors are returned unchanged.
func (o *Orchestrator) Invoke(ctx context.Context, message string, cfg core.RunConfig) (string, error) {
	ctx, cancel, cfg := o.prepare(ctx, cfg)
	defer cancel()

	main := o.Main()

	ctx, span := tracing.Start(ctx, "orchestrator.invoke",
		attribute.String("agent", main.Name()),
		attribute.String("thread_id", cfg.ThreadID),
	)
	defer span.End()

	start := time.Now()
	o.opts.Logger.Info("orchestrator.invoke.start", "agent", main.Name(), "thread_id", cfg.ThreadID)

	out, err := main.Invoke(ctx, core.NewEnvelope(message), cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out after %s: %w", o.opts.RequestTimeout, err)
		}

		o.opts.Logger.Error("orchestrator.invoke.error", "agent", main.Name(), "thread_id", cfg.ThreadID, "error", err.Error())
		tracing.RecordError(span, err)

		return "", err
	}

	last, ok := out.Last()
	if !ok {
		tracing.RecordError(span, core.ErrNoReply)
		return "", core.ErrNoReply
	}

	o.opts.Logger.Info("orchestrator.invoke.complete",
		"agent", main.Name(),
		"thread_id", cfg.ThreadID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	tracing.SetOK(span)

	return last.Content, nil
}

// Stream is the streaming variant of Invoke. Invokers without streaming
// support yield a single final event.
func (o *Orchestrator) Stream(ctx context.Context, message string, cfg core.RunConfig) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		ctx, cancel, cfg := o.prepare(ctx, cfg)
		defer cancel()

		main := o.Main()

		ctx, span := tracing.Start(ctx, "orchestrator.stream",
			attribute.String("agent", main.Name()),
			attribute.String("thread_id", cfg.ThreadID),
		)
		defer span.End()

		err := o.stream(ctx, main, message, cfg, events)
		if err != nil {
			o.opts.Logger.Error("orchestrator.stream.error", "agent", main.Name(), "thread_id", cfg.ThreadID, "error", err.Error())
			tracing.RecordError(span, err)
			errs <- err

			return
		}

		tracing.SetOK(span)
	}()

	return events, errs
}

func (o *Orchestrator) stream(ctx context.Context, main core.Invoker, message string, cfg core.RunConfig, out chan<- core.Event) error {
	env := core.NewEnvelope(message)

	streamer, ok := main.(core.Streamer)
	if !ok {
		reply, err := main.Invoke(ctx, env, cfg)
		if err != nil {
			return err
		}

		ev := core.NewEvent("", main.Name(), core.NewTextContent(core.RoleAssistant, reply.LastContent()))
		ev.TurnComplete = true

		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	inner, innerErrs := streamer.Stream(ctx, env, cfg)
	for ev := range inner {
		select {
		case out <- ev:
		case <-ctx.Done():
			// Drain so the producer can exit.
			for range inner {
			}
			return ctx.Err()
		}
	}

	return <-innerErrs
}
