package testutil

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/model"
	"github.com/stretchr/testify/mock"
)

// ScriptedModel is a testify mock of model.Model. Push and PushError queue
// one-shot Generate expectations that are consumed in order; tests may also
// register their own expectations with On("Generate", ...).
//
// The first return value is either a model.Response or a
// func(model.Request) (model.Response, error) computing one.
type ScriptedModel struct {
	mock.Mock
	name string
}

var _ model.Model = (*ScriptedModel)(nil)

// NewScriptedModel creates a model named name with the given responses queued.
func NewScriptedModel(name string, responses ...model.Response) *ScriptedModel {
	m := &ScriptedModel{name: name}
	for _, r := range responses {
		m.Push(r)
	}
	return m
}

// Push queues a fixed response.
func (m *ScriptedModel) Push(resp model.Response) *ScriptedModel {
	m.On("Generate", mock.Anything, mock.Anything).Return(resp, nil).Once()
	return m
}

// PushError queues a failure.
func (m *ScriptedModel) PushError(err error) *ScriptedModel {
	m.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, err).Once()
	return m
}

// PushFunc queues a computed step.
func (m *ScriptedModel) PushFunc(fn func(model.Request) (model.Response, error)) *ScriptedModel {
	m.On("Generate", mock.Anything, mock.Anything).Return(fn, nil).Once()
	return m
}

// Requests returns the requests Generate received, oldest first. Call it
// once the model is idle.
func (m *ScriptedModel) Requests() []model.Request {
	out := make([]model.Request, 0, len(m.Calls))
	for _, c := range m.Calls {
		if c.Method == "Generate" {
			out = append(out, c.Arguments.Get(1).(model.Request))
		}
	}
	return out
}

// Generate implements model.Model. When req.Stream is set the text of the
// response is first emitted word by word as partial chunks. A call with no
// matching expectation fails the generation instead of panicking.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 16)
	errCh := make(chan error, 1)

	resp, err := m.called(ctx, req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err != nil {
			errCh <- err
			return
		}

		if resp.Content.Role == "" {
			resp.Content.Role = core.RoleAssistant
		}

		if req.Stream {
			for _, chunk := range splitWords(resp.Content.Text()) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- model.Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, chunk)}:
				}
			}
		}

		resp.Partial = false
		respCh <- resp
	}()

	return respCh, errCh
}

func (m *ScriptedModel) called(ctx context.Context, req model.Request) (resp model.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scripted model %s: no response queued: %v", m.name, r)
		}
	}()

	args := m.MethodCalled("Generate", ctx, req)

	if fn, ok := args.Get(0).(func(model.Request) (model.Response, error)); ok {
		return fn(req)
	}

	return args.Get(0).(model.Response), args.Error(1)
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}

// TextResponse builds a final assistant text response.
func TextResponse(text string) model.Response {
	return model.Response{Content: core.NewTextContent(core.RoleAssistant, text), FinishReason: "stop"}
}

// CallResponse builds a response requesting a single function call.
func CallResponse(id, name, args string) model.Response {
	return model.Response{
		Content:      NewContentBuilder().FunctionCall(id, name, args).Build(),
		FinishReason: "tool_calls",
	}
}

// LastUserText returns the text of the newest user content in req.
func LastUserText(req model.Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == core.RoleUser {
			return req.Contents[i].Text()
		}
	}
	return ""
}

// LastFunctionResponse returns the newest function response in req.
func LastFunctionResponse(req model.Request) (core.FunctionResponse, bool) {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if frs := req.Contents[i].FunctionResponses(); len(frs) > 0 {
			return frs[len(frs)-1], true
		}
	}
	return core.FunctionResponse{}, false
}

func splitWords(s string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range s {
		if r == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
