package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/meshgate/core"
)

// EchoInvoker replies with Prefix followed by the last envelope content.
type EchoInvoker struct {
	AgentName string
	Prefix    string
}

var _ core.Invoker = EchoInvoker{}

// Name implements core.Invoker.
func (e EchoInvoker) Name() string { return e.AgentName }

// Description implements core.Invoker.
func (e EchoInvoker) Description() string { return "echoes its input" }

// Invoke implements core.Invoker.
func (e EchoInvoker) Invoke(_ context.Context, env core.Envelope, _ core.RunConfig) (core.Envelope, error) {
	if len(env) == 0 {
		return nil, core.ErrEmptyEnvelope
	}
	return env.Append(core.AI(e.Prefix + env.LastContent())), nil
}

// FailingInvoker always returns Err.
type FailingInvoker struct {
	AgentName string
	Err       error
}

var _ core.Invoker = FailingInvoker{}

// Name implements core.Invoker.
func (f FailingInvoker) Name() string { return f.AgentName }

// Description implements core.Invoker.
func (f FailingInvoker) Description() string { return "always fails" }

// Invoke implements core.Invoker.
func (f FailingInvoker) Invoke(context.Context, core.Envelope, core.RunConfig) (core.Envelope, error) {
	if f.Err == nil {
		return nil, errors.New("invoker failed")
	}
	return nil, f.Err
}

// Call is one observed invocation.
type Call struct {
	Envelope core.Envelope
	Config   core.RunConfig
}

// RecordingInvoker records calls and replies with Reply.
type RecordingInvoker struct {
	AgentName        string
	AgentDescription string
	Reply            string

	mu    sync.Mutex
	calls []Call
}

var _ core.Invoker = (*RecordingInvoker)(nil)

// Name implements core.Invoker.
func (r *RecordingInvoker) Name() string { return r.AgentName }

// Description implements core.Invoker.
func (r *RecordingInvoker) Description() string { return r.AgentDescription }

// Invoke implements core.Invoker.
func (r *RecordingInvoker) Invoke(_ context.Context, env core.Envelope, cfg core.RunConfig) (core.Envelope, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Envelope: env, Config: cfg})
	r.mu.Unlock()

	return env.Append(core.AI(r.Reply)), nil
}

// Calls returns a copy of the recorded calls.
func (r *RecordingInvoker) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
