package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshgate/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent: cancellation, the run config to pass on, and logging.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext
// and unique functionCallID.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// Config returns the run config of the invoking agent.
func (tc *ToolContext) Config() RunConfig { return tc.runCtx.Config }

// ThreadID returns the thread id of the invoking run.
func (tc *ToolContext) ThreadID() string { return tc.runCtx.ThreadID() }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.runCtx.AgentName }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.runCtx == nil || tc.runCtx.Context == nil {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}
