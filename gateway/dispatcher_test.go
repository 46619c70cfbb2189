package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsAllJobs(t *testing.T) {
	d := NewDispatcher(3, 16, nil)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(Job{ID: fmt.Sprint(i), Run: func(context.Context) { n.Add(1) }}))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(10), n.Load())

	assert.ErrorIs(t, d.Submit(Job{ID: "late", Run: func(context.Context) {}}), ErrDispatcherClosed)
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, nil)

	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, d.Submit(Job{ID: "1", Run: func(context.Context) {
		close(started)
		<-block
	}}))
	<-started

	require.NoError(t, d.Submit(Job{ID: "2", Run: func(context.Context) {}}))
	assert.ErrorIs(t, d.Submit(Job{ID: "3", Run: func(context.Context) {}}), ErrQueueFull)
	assert.Equal(t, 1, d.Active())

	close(block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 0, d.Active())
}

func TestDispatcher_CloseCancelsOnDeadline(t *testing.T) {
	d := NewDispatcher(1, 1, nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})

	require.NoError(t, d.Submit(Job{ID: "slow", Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(1, 2, nil)

	done := make(chan struct{})
	require.NoError(t, d.Submit(Job{ID: "boom", Run: func(context.Context) { panic("boom") }}))
	require.NoError(t, d.Submit(Job{ID: "ok", Run: func(context.Context) { close(done) }}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}

	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_DuplicateJobIDsTrackedSeparately(t *testing.T) {
	d := NewDispatcher(2, 4, nil)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	for i := 0; i < 2; i++ {
		require.NoError(t, d.Submit(Job{ID: "same-id", Run: func(context.Context) {
			started.Done()
			<-release
		}}))
	}

	started.Wait()
	assert.Equal(t, 2, d.Active())

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 0, d.Active())
}
