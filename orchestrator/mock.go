package orchestrator

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshgate/core"
)

// MockInvoker stands in for an agent and answers with a canned message that
// quotes the received text. It is used for dry runs and tests.
type MockInvoker struct {
	name        string
	description string
}

var _ core.Invoker = (*MockInvoker)(nil)

// NewMockInvoker creates a stand-in for the agent called name.
func NewMockInvoker(name, description string) *MockInvoker {
	return &MockInvoker{name: name, description: description}
}

// Name implements core.Invoker.
func (m *MockInvoker) Name() string { return m.name }

// Description implements core.Invoker.
func (m *MockInvoker) Description() string { return m.description }

// Invoke implements core.Invoker.
func (m *MockInvoker) Invoke(ctx context.Context, env core.Envelope, _ core.RunConfig) (core.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(env) == 0 {
		return nil, core.ErrEmptyEnvelope
	}

	reply := fmt.Sprintf("This is a mock response from %s. I received your message: '%s'", m.name, env.LastContent())

	return env.Append(core.AI(reply)), nil
}
