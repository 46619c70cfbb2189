package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/internal/testutil"
	"github.com/hupe1980/meshgate/memory"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, name, nil, func(*core.ToolContext, map[string]any) (any, error) {
		return name, nil
	})
}

func TestNew_Defaults(t *testing.T) {
	a := New("helper")

	assert.Equal(t, "helper", a.Name())
	assert.Equal(t, "Agent helper", a.Description())
	assert.Equal(t, DefaultModelIdentifier, a.ModelIdentifier())
	assert.Equal(t, DefaultSystemPrompt, a.SystemPrompt())
	assert.Nil(t, a.Memory())
	assert.Empty(t, a.Tools())
	assert.False(t, a.Built())
}

func TestAgent_InvokeWithMockCatalogModel(t *testing.T) {
	a := New("echo", func(o *Options) { o.ModelIdentifier = "mock/echo" })

	out, err := a.Invoke(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hi", out.LastContent())
	assert.True(t, a.Built(), "first invoke builds lazily")
}

func TestAgent_SetTool(t *testing.T) {
	a := New("main", func(o *Options) {
		o.Model = testutil.NewScriptedModel("m")
		o.Tools = []tool.Tool{namedTool("a"), namedTool("b")}
	})
	require.NoError(t, a.Build())
	require.True(t, a.Built())

	replacement := namedTool("a")
	a.SetTool(replacement)
	a.SetTool(namedTool("c"))

	tools := a.Tools()
	require.Len(t, tools, 3)
	assert.Same(t, replacement, tools[0])
	assert.Equal(t, "b", tools[1].Name())
	assert.Equal(t, "c", tools[2].Name())
	assert.False(t, a.Built(), "mutation invalidates the runner")

	got, ok := a.Tool("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.Name())

	_, ok = a.Tool("missing")
	assert.False(t, ok)
}

func TestAgent_ToolsReturnsCopy(t *testing.T) {
	a := New("main", func(o *Options) { o.Tools = []tool.Tool{namedTool("a")} })

	tools := a.Tools()
	tools[0] = namedTool("z")

	assert.Equal(t, "a", a.Tools()[0].Name())
}

func TestAgent_RebuildSeesNewTools(t *testing.T) {
	m := testutil.NewScriptedModel("m", testutil.TextResponse("one"), testutil.TextResponse("two"))
	a := New("main", func(o *Options) { o.Model = m })

	_, err := a.Invoke(context.Background(), core.NewEnvelope("x"), core.RunConfig{})
	require.NoError(t, err)

	a.SetTool(namedTool("late"))
	require.NoError(t, a.Rebuild())

	_, err = a.Invoke(context.Background(), core.NewEnvelope("y"), core.RunConfig{})
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Tools)
	require.Len(t, reqs[1].Tools, 1)
	assert.Equal(t, "late", reqs[1].Tools[0].Function.Name)
}

func TestAgent_BuildIsIdempotent(t *testing.T) {
	var resolved atomic.Int32
	a := New("main", func(o *Options) {
		o.Resolver = func(string, float64) (model.Model, error) {
			resolved.Add(1)
			return testutil.NewScriptedModel("m"), nil
		}
	})

	require.NoError(t, a.Build())
	require.NoError(t, a.Build())
	assert.Equal(t, int32(1), resolved.Load())

	require.NoError(t, a.Rebuild())
	assert.Equal(t, int32(2), resolved.Load())
}

func TestAgent_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	var resolved atomic.Int32
	a := New("main", func(o *Options) {
		o.Resolver = func(string, float64) (model.Model, error) {
			resolved.Add(1)
			return model.NewMockModel("echo", "mock"), nil
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Invoke(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), resolved.Load())
}

func TestAgent_ResolverError(t *testing.T) {
	a := New("main", func(o *Options) { o.ModelIdentifier = "bogus/model" })

	_, err := a.Invoke(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})
	assert.ErrorContains(t, err, `resolve model "bogus/model"`)

	events, errs := a.Stream(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})
	for range events {
	}
	assert.Error(t, <-errs)
}

func TestAgent_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("timeout")
	a := New("main", func(o *Options) { o.Model = testutil.NewScriptedModel("m").PushError(boom) })

	_, err := a.Invoke(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})
	assert.ErrorIs(t, err, boom)
}

func TestAgent_SystemPromptTemplate(t *testing.T) {
	calendar := New("calendar_agent", func(o *Options) { o.Description = "Manages the calendar" })
	m := testutil.NewScriptedModel("m", testutil.TextResponse("ok"))

	a := New("main", func(o *Options) {
		o.Model = m
		o.SubAgents = []*Agent{calendar}
		o.SystemPrompt = "I am {{.agent_name}}. Team:\n{{.sub_agents}}\nThread {{.thread_id}}"
	})

	_, err := a.Invoke(context.Background(), core.NewEnvelope("hi"), core.RunConfig{ThreadID: "t7"})
	require.NoError(t, err)

	assert.Equal(t, "I am main. Team:\n- calendar_agent: Manages the calendar\nThread t7", m.Requests()[0].Instructions)
	assert.Equal(t, []*Agent{calendar}, a.SubAgents())
}

func TestAgent_Stream(t *testing.T) {
	a := New("main", func(o *Options) {
		o.Model = testutil.NewScriptedModel("m", testutil.TextResponse("streamed reply"))
	})

	events, errs := a.Stream(context.Background(), core.NewEnvelope("hi"), core.RunConfig{})

	var final string
	for ev := range events {
		if ev.IsFinalResponse() {
			final = ev.Text()
		}
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "streamed reply", final)
}

func TestAgent_MemoryScopedByThread(t *testing.T) {
	store := memory.NewInMemoryStore()
	a := New("main", func(o *Options) {
		o.Model = model.NewMockModel("echo", "mock")
		o.Memory = store
	})

	ctx := context.Background()
	_, err := a.Invoke(ctx, core.NewEnvelope("one"), core.RunConfig{ThreadID: "a"})
	require.NoError(t, err)
	_, err = a.Invoke(ctx, core.NewEnvelope("two"), core.RunConfig{ThreadID: "b"})
	require.NoError(t, err)

	ha, _ := store.Load(ctx, "a", "main")
	hb, _ := store.Load(ctx, "b", "main")
	require.Len(t, ha, 2)
	require.Len(t, hb, 2)
	assert.Equal(t, "one", ha[0].Text())
	assert.Equal(t, "two", hb[0].Text())
}
