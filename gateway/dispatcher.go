package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/meshgate/logging"
)

var (
	// ErrQueueFull is returned when the dispatcher backlog is at capacity.
	ErrQueueFull = errors.New("gateway: dispatch queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("gateway: dispatcher closed")
)

// Job is a unit of background work. The context is cancelled when the
// dispatcher is closed before the job finished. ID is for logging only and
// need not be unique.
type Job struct {
	ID  string
	Run func(ctx context.Context)
}

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
// Running jobs are tracked under an internal sequence number so Close can
// cancel stragglers.
type Dispatcher struct {
	queue  chan Job
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	seq    uint64
	active map[uint64]context.CancelFunc
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize.
func NewDispatcher(workers, queueSize int, logger logging.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		queue:  make(chan Job, queueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[uint64]context.CancelFunc),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)

		go d.work()
	}

	return d
}

// Submit enqueues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Active returns the number of running jobs.
func (d *Dispatcher) Active() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.active)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for job := range d.queue {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithCancel(d.ctx)

	d.mu.Lock()
	d.seq++
	key := d.seq
	d.active[key] = cancel
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("gateway.dispatch.panic", "job_id", job.ID, "panic", r)
		}

		cancel()

		d.mu.Lock()
		delete(d.active, key)
		d.mu.Unlock()
	}()

	job.Run(ctx)
}

// Close stops accepting jobs and waits for queued and running jobs to finish.
// When ctx expires first, running jobs are cancelled and ctx.Err is returned
// once the workers exit.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.mu.RLock()
		pending := len(d.active)
		d.mu.RUnlock()

		d.logger.Warn("gateway.dispatch.cancel_pending", "active", pending)
		d.cancel()
		<-done

		return ctx.Err()
	}
}
