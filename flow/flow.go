// Package flow implements the reasoning loop behind every agent.
//
// A Runner repeatedly assembles a model request (instructions, bounded
// history, pending turns, tool definitions), calls the model, executes any
// requested function calls sequentially and feeds their responses back until
// the model answers without calls. History is loaded from and persisted to an
// optional core.MemoryStore keyed by (thread id, agent name).
package flow

import (
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/model"
)

// Conversation is the working state of one run.
type Conversation struct {
	// History holds contents persisted by earlier runs on the same thread.
	History []core.Content
	// Pending holds contents produced during this run, starting with the
	// caller's envelope. Only Pending is persisted on success.
	Pending []core.Content
}

// RequestProcessor mutates a model request before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request for the current turn.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, conv *Conversation) error
}
