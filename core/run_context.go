package core

import (
	"context"

	"github.com/hupe1980/meshgate/logging"
)

// RunContext carries execution state & helpers for a single agent run.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (RunID, agent name)
//   - The caller supplied RunConfig (thread id, delegation depth)
//   - The turn limiter bounding the reasoning loop
//
// A RunContext is created per Invoke/Stream call and never shared between runs.
type RunContext struct {
	Context   context.Context
	RunID     string
	AgentName string
	Config    RunConfig
	Limiter   *TurnLimiter

	*loggerAdapter
}

// NewRunContext constructs a RunContext with a fresh run id.
func NewRunContext(
	ctx context.Context,
	agentName string,
	cfg RunConfig,
	maxTurns int,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		RunID:         NewID(),
		AgentName:     agentName,
		Config:        cfg,
		Limiter:       NewTurnLimiter(maxTurns),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// ThreadID returns the effective thread id of the run.
func (rc *RunContext) ThreadID() string { return rc.Config.Thread() }
