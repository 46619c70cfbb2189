package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ infos []string }

func (l *testLogger) Debug(string, ...any) {}
func (l *testLogger) Info(msg string, _ ...any) { l.infos = append(l.infos, msg) }
func (l *testLogger) Warn(string, ...any) {}
func (l *testLogger) Error(string, ...any) {}

func TestEnvelope_AppendDoesNotAlias(t *testing.T) {
	base := NewEnvelope("hello")
	a := base.Append(AI("one"))
	b := base.Append(AI("two"))

	assert.Len(t, base, 1)
	assert.Equal(t, "one", a.LastContent())
	assert.Equal(t, "two", b.LastContent())
}

func TestEnvelope_LastOnEmpty(t *testing.T) {
	var env Envelope
	_, ok := env.Last()
	assert.False(t, ok)
	assert.Equal(t, "", env.LastContent())
}

func TestEnvelope_Contents(t *testing.T) {
	env := Envelope{Human("hi"), AI("hello"), Human("bye")}
	contents := env.Contents()
	require.Len(t, contents, 3)
	assert.Equal(t, RoleUser, contents[0].Role)
	assert.Equal(t, RoleAssistant, contents[1].Role)
	assert.Equal(t, "bye", contents[2].Text())
	assert.Equal(t, "human: hi\nai: hello\nhuman: bye", env.String())
}

func TestRunConfig_NestedAndThread(t *testing.T) {
	cfg := RunConfig{ThreadID: "t1", MaxTurns: 3}
	nested := cfg.Nested()
	assert.Equal(t, "t1", nested.ThreadID)
	assert.Equal(t, 1, nested.Depth)
	assert.Equal(t, 0, nested.MaxTurns)
	assert.Equal(t, 0, cfg.Depth)

	assert.Equal(t, DefaultThreadID, RunConfig{}.Thread())
	assert.Equal(t, "x", RunConfig{}.WithThread("x").Thread())
}

func TestInvokerFunc(t *testing.T) {
	inv := InvokerFunc{
		AgentName:        "echo",
		AgentDescription: "repeats",
		Fn: func(_ context.Context, env Envelope, _ RunConfig) (Envelope, error) {
			return env.Append(AI(env.LastContent())), nil
		},
	}

	var _ Invoker = inv

	out, err := inv.Invoke(context.Background(), NewEnvelope("ping"), RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ping", out.LastContent())
	assert.Equal(t, "echo", inv.Name())
	assert.Equal(t, "repeats", inv.Description())
}

func TestTurnLimiter(t *testing.T) {
	l := NewTurnLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxTurnsExceeded))
	assert.Equal(t, 3, l.Count())

	unlimited := NewTurnLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
