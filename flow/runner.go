package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/tool"
)

// Options configures a Runner.
type Options struct {
	// Instructions is the system prompt template.
	Instructions string
	// InstructionData is exposed to the instructions template.
	InstructionData map[string]any
	// Tools are advertised in order; names must be unique.
	Tools []tool.Tool
	// Memory persists contents per (thread, agent); nil disables persistence.
	Memory core.MemoryStore
	// MaxTurns bounds model calls per run; 0 means unlimited.
	MaxTurns int
	// MaxHistoryMessages caps persisted contents sent to the model; 0 keeps all.
	MaxHistoryMessages int
	// Executor runs function calls; defaults to the sequential executor.
	Executor FunctionExecutor
	Logger   logging.Logger
}

// Runner drives the reasoning loop for one agent configuration. A Runner is
// immutable after construction and safe for concurrent runs.
type Runner struct {
	name       string
	model      model.Model
	tools      map[string]tool.Tool
	memory     core.MemoryStore
	maxTurns   int
	processors []RequestProcessor
	executor   FunctionExecutor
	logger     logging.Logger
}

// NewRunner builds a runner for the agent called name.
func NewRunner(name string, m model.Model, optFns ...func(o *Options)) (*Runner, error) {
	if m == nil {
		return nil, fmt.Errorf("agent %s: model is required", name)
	}

	opts := Options{
		MaxTurns: 10,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Executor == nil {
		opts.Executor = NewSequentialFunctionExecutor(FunctionExecutorConfig{})
	}

	idx, err := tool.Index(opts.Tools)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	return &Runner{
		name:     name,
		model:    m,
		tools:    idx,
		memory:   opts.Memory,
		maxTurns: opts.MaxTurns,
		processors: []RequestProcessor{
			NewInstructionsProcessor(opts.Instructions, opts.InstructionData),
			NewContentsProcessor(opts.MaxHistoryMessages),
			NewToolsProcessor(append([]tool.Tool(nil), opts.Tools...)),
		},
		executor: opts.Executor,
		logger:   opts.Logger,
	}, nil
}

// Name returns the agent name the runner was built for.
func (r *Runner) Name() string { return r.name }

// Model returns the model driving the loop.
func (r *Runner) Model() model.Model { return r.model }

// Run executes the loop and returns env extended by the final ai turn.
func (r *Runner) Run(ctx context.Context, env core.Envelope, cfg core.RunConfig) (core.Envelope, error) {
	return r.execute(ctx, env, cfg, false, nil)
}

// Stream executes the loop with streaming enabled. The event channel carries
// partial text deltas, complete model turns and function responses, and is
// closed when the run ends. At most one error is delivered.
func (r *Runner) Stream(ctx context.Context, env core.Envelope, cfg core.RunConfig) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		_, err := r.execute(ctx, env, cfg, true, func(ev core.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return events, errs
}

func (r *Runner) execute(
	ctx context.Context,
	env core.Envelope,
	cfg core.RunConfig,
	stream bool,
	emit func(core.Event) error,
) (core.Envelope, error) {
	if len(env) == 0 {
		return nil, core.ErrEmptyEnvelope
	}

	if emit == nil {
		emit = func(core.Event) error { return nil }
	}

	maxTurns := r.maxTurns
	if cfg.MaxTurns > 0 {
		maxTurns = cfg.MaxTurns
	}

	runCtx := core.NewRunContext(ctx, r.name, cfg, maxTurns, r.logger)
	start := time.Now()

	runCtx.LogInfo("agent.run.start",
		"agent", r.name,
		"run_id", runCtx.RunID,
		"thread_id", runCtx.ThreadID(),
		"depth", cfg.Depth,
	)

	history, err := r.loadHistory(runCtx)
	if err != nil {
		return nil, err
	}

	conv := &Conversation{History: history, Pending: env.Contents()}

	for {
		if err := runCtx.Err(); err != nil {
			return nil, err
		}

		if err := runCtx.Limiter.Increment(); err != nil {
			runCtx.LogWarn("agent.run.max_turns", "agent", r.name, "run_id", runCtx.RunID, "max_turns", maxTurns)
			return nil, err
		}

		req := model.Request{Stream: stream}
		for _, p := range r.processors {
			if err := p.ProcessRequest(runCtx, &req, conv); err != nil {
				return nil, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
			}
		}

		var onPartial func(model.Response)
		if stream {
			onPartial = func(resp model.Response) {
				ev := core.NewEvent(runCtx.RunID, r.name, resp.Content)
				ev.Partial = true
				_ = emit(ev)
			}
		}

		resp, err := model.Collect(runCtx.Context, r.model, req, onPartial)
		if err != nil {
			runCtx.LogError("agent.model.error", "agent", r.name, "run_id", runCtx.RunID, "error", err.Error())
			return nil, err
		}

		content := resp.Content
		if content.Role == "" {
			content.Role = core.RoleAssistant
		}

		conv.Pending = append(conv.Pending, content)

		fnCalls := content.FunctionCalls()

		ev := core.NewEvent(runCtx.RunID, r.name, content)
		ev.TurnComplete = len(fnCalls) == 0

		if err := emit(ev); err != nil {
			return nil, err
		}

		if len(fnCalls) == 0 {
			r.persist(runCtx, conv.Pending)

			runCtx.LogInfo("agent.run.complete",
				"agent", r.name,
				"run_id", runCtx.RunID,
				"turns", runCtx.Limiter.Count(),
				"duration_ms", time.Since(start).Milliseconds(),
			)

			return env.Append(core.AI(content.Text())), nil
		}

		responses := core.Content{Role: core.RoleTool}

		err = r.executor.Execute(runCtx, r.tools, fnCalls, func(respEv core.Event) error {
			responses.Parts = append(responses.Parts, respEv.Content.Parts...)
			return emit(respEv)
		})
		if err != nil {
			return nil, err
		}

		conv.Pending = append(conv.Pending, responses)
	}
}

func (r *Runner) loadHistory(runCtx *core.RunContext) ([]core.Content, error) {
	if r.memory == nil {
		return nil, nil
	}

	history, err := r.memory.Load(runCtx.Context, runCtx.ThreadID(), r.name)
	if err != nil {
		return nil, fmt.Errorf("load memory for agent %s: %w", r.name, err)
	}

	runCtx.LogDebug("agent.memory.loaded", "agent", r.name, "thread_id", runCtx.ThreadID(), "count", len(history))

	return history, nil
}

// persist stores the run's contents. A failure is logged, not returned: the
// reply has already been produced.
func (r *Runner) persist(runCtx *core.RunContext, contents []core.Content) {
	if r.memory == nil {
		return
	}

	// The run may have been cancelled right after the final reply.
	ctx := context.WithoutCancel(runCtx.Context)

	if err := r.memory.Append(ctx, runCtx.ThreadID(), r.name, contents...); err != nil {
		runCtx.LogError("agent.memory.persist_failed", "agent", r.name, "thread_id", runCtx.ThreadID(), "error", err.Error())
		return
	}

	runCtx.LogDebug("agent.memory.persisted", "agent", r.name, "thread_id", runCtx.ThreadID(), "count", len(contents))
}

// IsMaxTurns reports whether err stems from the turn bound.
func IsMaxTurns(err error) bool { return errors.Is(err, core.ErrMaxTurnsExceeded) }
