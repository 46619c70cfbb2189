package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRegistry map[string]core.Invoker

func (r mapRegistry) Lookup(name string) (core.Invoker, bool) {
	inv, ok := r[name]
	return inv, ok
}

type recordingInvoker struct {
	name  string
	reply string
	err   error

	mu    sync.Mutex
	envs  []core.Envelope
	cfgs  []core.RunConfig
	panic bool
}

func (r *recordingInvoker) Name() string        { return r.name }
func (r *recordingInvoker) Description() string { return r.name + " agent" }

func (r *recordingInvoker) Invoke(_ context.Context, env core.Envelope, cfg core.RunConfig) (core.Envelope, error) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.cfgs = append(r.cfgs, cfg)
	r.mu.Unlock()

	if r.panic {
		panic("kaboom")
	}
	if r.err != nil {
		return nil, r.err
	}
	return env.Append(core.AI(r.reply)), nil
}

func delegationContext(cfg core.RunConfig) *core.ToolContext {
	runCtx := core.NewRunContext(context.Background(), "main", cfg, 0, logging.NoOpLogger{})
	return core.NewToolContext(runCtx, "fc-delegate")
}

func mustSchema(t *testing.T, recipients ...Recipient) *DelegationSchema {
	t.Helper()
	s, err := NewDelegationSchema(recipients...)
	require.NoError(t, err)
	return s
}

func TestNewDelegationSchema(t *testing.T) {
	s := mustSchema(t,
		Recipient{Name: "calendar_agent", Description: "Manages the calendar"},
		Recipient{Name: "email_agent", Description: "Sends email"},
	)

	assert.Equal(t, []string{"calendar_agent", "email_agent"}, s.Names())
	assert.True(t, s.Allows("email_agent"))
	assert.False(t, s.Allows("main"))

	rs := s.Recipients()
	rs[0].Name = "mutated"
	assert.Equal(t, "calendar_agent", s.Names()[0])

	_, err := NewDelegationSchema()
	assert.Error(t, err)

	_, err = NewDelegationSchema(Recipient{Name: " "})
	assert.Error(t, err)

	_, err = NewDelegationSchema(Recipient{Name: "a"}, Recipient{Name: "a"})
	assert.ErrorContains(t, err, `duplicate delegation recipient "a"`)
}

func TestDelegationSchemaParameters(t *testing.T) {
	s := mustSchema(t,
		Recipient{Name: "calendar_agent", Description: "Manages the calendar"},
		Recipient{Name: "email_agent", Description: "Sends email"},
	)

	params := s.Parameters()
	props := params["properties"].(map[string]any)
	recipient := props["recipient"].(map[string]any)

	assert.Equal(t, []string{"calendar_agent", "email_agent"}, recipient["enum"])
	assert.Equal(t, "calendar_agent: Manages the calendar\nemail_agent: Sends email", recipient["description"])
	assert.Equal(t, "Message to send to sub-agent.", props["message"].(map[string]any)["description"])
	assert.Equal(t, []string{"recipient", "message"}, params["required"])

	again := mustSchema(t,
		Recipient{Name: "calendar_agent", Description: "Manages the calendar"},
		Recipient{Name: "email_agent", Description: "Sends email"},
	)
	assert.Equal(t, params, again.Parameters())
}

func TestDelegationSchemaValidate(t *testing.T) {
	s := mustSchema(t, Recipient{Name: "a"})

	assert.NoError(t, s.Validate("a", "hi"))

	err := s.Validate("", "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorContains(t, err, "recipient")
	assert.ErrorContains(t, err, "message")
}

func TestDelegation_Success(t *testing.T) {
	calendar := &recordingInvoker{name: "calendar_agent", reply: "Meeting booked"}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": calendar})

	assert.Equal(t, DelegationToolName, d.Name())
	assert.Equal(t, "main", d.Owner())

	res, err := d.Call(delegationContext(core.RunConfig{ThreadID: "t-42"}), map[string]any{
		"recipient": "calendar_agent",
		"message":   "Book a meeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "Successfully relayed message to calendar_agent. Response: Meeting booked", res)

	require.Len(t, calendar.envs, 1)
	assert.Equal(t, core.Envelope{core.Human("Book a meeting")}, calendar.envs[0])
	assert.Equal(t, "t-42", calendar.cfgs[0].ThreadID)
	assert.Equal(t, 1, calendar.cfgs[0].Depth)
}

func TestDelegation_MissingRecipient(t *testing.T) {
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "ghost"}), mapRegistry{})

	res, err := d.Call(delegationContext(core.RunConfig{}), map[string]any{
		"recipient": "ghost",
		"message":   "are you there?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Message sent to mock agent 'ghost'. The message was: 'are you there?'.", res)
}

func TestDelegation_NotASubAgent(t *testing.T) {
	other := &recordingInvoker{name: "other", reply: "nope"}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"other": other})

	res, _ := d.Call(delegationContext(core.RunConfig{}), map[string]any{"recipient": "other", "message": "hi"})
	assert.Contains(t, res, "Error while sending message to other")
	assert.Contains(t, res, "calendar_agent")
	assert.Empty(t, other.envs)
}

func TestDelegation_InvalidArguments(t *testing.T) {
	calendar := &recordingInvoker{name: "calendar_agent"}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": calendar})

	res, err := d.Call(delegationContext(core.RunConfig{}), map[string]any{"recipient": "calendar_agent"})
	require.NoError(t, err)
	assert.Contains(t, res, "Error while sending message to calendar_agent")
	assert.Empty(t, calendar.envs)
}

func TestDelegation_Failure(t *testing.T) {
	failing := &recordingInvoker{name: "calendar_agent", err: errors.New("provider down")}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": failing})

	res, err := d.Call(delegationContext(core.RunConfig{}), map[string]any{"recipient": "calendar_agent", "message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Error while sending message to calendar_agent: provider down", res)
}

func TestDelegation_Panic(t *testing.T) {
	panicking := &recordingInvoker{name: "calendar_agent", panic: true}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": panicking})

	res, err := d.Call(delegationContext(core.RunConfig{}), map[string]any{"recipient": "calendar_agent", "message": "hi"})
	require.NoError(t, err)
	assert.Contains(t, res, "panic in agent calendar_agent: kaboom")
}

func TestDelegation_DepthLimit(t *testing.T) {
	calendar := &recordingInvoker{name: "calendar_agent", reply: "ok"}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": calendar},
		func(o *DelegationOptions) { o.MaxDepth = 2 })

	res, _ := d.Call(delegationContext(core.RunConfig{Depth: 2}), map[string]any{"recipient": "calendar_agent", "message": "hi"})
	assert.Contains(t, res, "delegation depth 3 exceeds limit 2")
	assert.Empty(t, calendar.envs)

	res, _ = d.Call(delegationContext(core.RunConfig{Depth: 1}), map[string]any{"recipient": "calendar_agent", "message": "hi"})
	assert.Contains(t, res, "Successfully relayed")
}

func TestDelegation_EmptyReply(t *testing.T) {
	empty := core.InvokerFunc{
		AgentName: "calendar_agent",
		Fn: func(context.Context, core.Envelope, core.RunConfig) (core.Envelope, error) {
			return nil, nil
		},
	}
	d := NewDelegation("main", mustSchema(t, Recipient{Name: "calendar_agent"}), mapRegistry{"calendar_agent": empty})

	res, _ := d.Call(delegationContext(core.RunConfig{}), map[string]any{"recipient": "calendar_agent", "message": "hi"})
	assert.Contains(t, res, core.ErrNoReply.Error())
}
