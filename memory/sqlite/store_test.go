package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "nested", "checkpoints.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_AppendLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	call := testutil.NewContentBuilder().FunctionCall("fc-1", "send_message", `{"recipient":"calendar_agent","message":"hi"}`).Build()
	resp := testutil.NewContentBuilder().FunctionResponse("fc-1", "send_message", "Successfully relayed", nil).Build()

	require.NoError(t, s.Append(ctx, "t1", "main",
		core.NewTextContent(core.RoleUser, "hello"),
		call,
	))
	require.NoError(t, s.Append(ctx, "t1", "main",
		resp,
		core.NewTextContent(core.RoleAssistant, "done"),
	))

	got, err := s.Load(ctx, "t1", "main")
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "hello", got[0].Text())
	require.Len(t, got[1].FunctionCalls(), 1)
	assert.Equal(t, "send_message", got[1].FunctionCalls()[0].Name)
	require.Len(t, got[2].FunctionResponses(), 1)
	assert.Equal(t, "Successfully relayed", got[2].FunctionResponses()[0].Response)
	assert.Equal(t, "done", got[3].Text())
	assert.Equal(t, core.RoleAssistant, got[3].Role)
}

func TestStore_IsolatesThreadsAndAgents(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "a")))
	require.NoError(t, s.Append(ctx, "t1", "calendar_agent", core.NewTextContent(core.RoleUser, "b")))
	require.NoError(t, s.Append(ctx, "t2", "main", core.NewTextContent(core.RoleUser, "c")))

	got, err := s.Load(ctx, "t1", "main")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Text())

	threads, err := s.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, threads)

	require.NoError(t, s.Clear(ctx, "t1"))

	got, err = s.Load(ctx, "t1", "calendar_agent")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Load(ctx, "t2", "main")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "remember me")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "t1", "main")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "remember me", got[0].Text())
	assert.Equal(t, path, s.Path())
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, fmt.Sprint(i))))
		}(i)
	}
	wg.Wait()

	got, err := s.Load(ctx, "t1", "main")
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestStore_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "t", "a", core.NewTextContent(core.RoleUser, "x")))
	require.NoError(t, s.Append(ctx, "t", "a"))

	got, err := s.Load(ctx, "t", "a")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_CanceledContext(t *testing.T) {
	s := openTemp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Append(ctx, "t", "a", core.NewTextContent(core.RoleUser, "x")))
	_, err := s.Load(ctx, "t", "a")
	assert.Error(t, err)
}
