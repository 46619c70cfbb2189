package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/meshgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	got, err := store.Load(ctx, "t1", "main")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Append(ctx, "t1", "main",
		core.NewTextContent(core.RoleUser, "hi"),
		core.NewTextContent(core.RoleAssistant, "hello"),
	))
	require.NoError(t, store.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "again")))

	got, err = store.Load(ctx, "t1", "main")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "hi", got[0].Text())
	assert.Equal(t, "again", got[2].Text())
}

func TestInMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "a")))
	require.NoError(t, store.Append(ctx, "t2", "main", core.NewTextContent(core.RoleUser, "b")))
	require.NoError(t, store.Append(ctx, "t1", "sub", core.NewTextContent(core.RoleUser, "c")))

	t1, _ := store.Load(ctx, "t1", "main")
	t2, _ := store.Load(ctx, "t2", "main")
	sub, _ := store.Load(ctx, "t1", "sub")

	assert.Equal(t, "a", t1[0].Text())
	assert.Equal(t, "b", t2[0].Text())
	assert.Equal(t, "c", sub[0].Text())
}

func TestInMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "a")))

	got, _ := store.Load(ctx, "t1", "main")
	got[0] = core.NewTextContent(core.RoleUser, "mutated")

	again, _ := store.Load(ctx, "t1", "main")
	assert.Equal(t, "a", again[0].Text())
}

func TestInMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Append(ctx, "t1", "main", core.NewTextContent(core.RoleUser, "a")))
	require.NoError(t, store.Append(ctx, "t2", "main", core.NewTextContent(core.RoleUser, "b")))

	require.NoError(t, store.Clear(ctx, "t1"))

	t1, _ := store.Load(ctx, "t1", "main")
	t2, _ := store.Load(ctx, "t2", "main")
	assert.Empty(t, t1)
	assert.Len(t, t2, 1)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewInMemoryStore()
	assert.ErrorIs(t, store.Append(ctx, "t", "a", core.NewTextContent(core.RoleUser, "x")), context.Canceled)
	_, err := store.Load(ctx, "t", "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread := fmt.Sprintf("t%d", i%4)
			_ = store.Append(ctx, thread, "main", core.NewTextContent(core.RoleUser, "m"))
			_, _ = store.Load(ctx, thread, "main")
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		got, _ := store.Load(ctx, fmt.Sprintf("t%d", i), "main")
		total += len(got)
	}
	assert.Equal(t, 20, total)
}
