package core

import "context"

// Invoker is the capability shared by agents and their stand-ins: turn an
// envelope into an envelope ending with the reply.
type Invoker interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, env Envelope, cfg RunConfig) (Envelope, error)
}

// Streamer is implemented by invokers that can emit incremental events.
// The event channel is closed when generation finishes; at most one error
// is delivered on the error channel.
type Streamer interface {
	Stream(ctx context.Context, env Envelope, cfg RunConfig) (<-chan Event, <-chan error)
}

// Registry resolves agents by name.
type Registry interface {
	Lookup(name string) (Invoker, bool)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc struct {
	AgentName        string
	AgentDescription string
	Fn               func(ctx context.Context, env Envelope, cfg RunConfig) (Envelope, error)
}

// Name implements Invoker.
func (f InvokerFunc) Name() string { return f.AgentName }

// Description implements Invoker.
func (f InvokerFunc) Description() string { return f.AgentDescription }

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, env Envelope, cfg RunConfig) (Envelope, error) {
	return f.Fn(ctx, env, cfg)
}
