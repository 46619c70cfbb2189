// Package breaker decorates a model.Model with circuit breaker protection.
// When the wrapped provider fails repeatedly the circuit opens and subsequent
// generations fail fast without reaching the provider.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/model"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned (wrapped) while the circuit rejects calls.
var ErrOpen = errors.New("model circuit open")

// Options configures the breaker.
type Options struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
	Logger   logging.Logger
}

// Model routes Generate calls through a circuit breaker.
type Model struct {
	inner model.Model
	cb    *gobreaker.CircuitBreaker[struct{}]
}

var _ model.Model = (*Model)(nil)

// Wrap returns inner protected by a circuit breaker.
func Wrap(inner model.Model, optFns ...func(o *Options)) *Model {
	opts := Options{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	info := inner.Info()
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "model:" + info.Provider + "/" + info.Name,
		MaxRequests: 1, // single probe while half-open
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			opts.Logger.Warn("model.breaker.state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about provider health
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &Model{inner: inner, cb: cb}
}

// Generate implements model.Model. Responses are forwarded as they arrive;
// the breaker records the outcome once the inner generation completes.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		_, err := m.cb.Execute(func() (struct{}, error) {
			return struct{}{}, m.forward(ctx, req, out)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("%w: %s: %w", ErrOpen, m.inner.Info().Name, err)
			}
			errCh <- err
		}
	}()

	return out, errCh
}

func (m *Model) forward(ctx context.Context, req model.Request, out chan<- model.Response) error {
	respCh, errCh := m.inner.Generate(ctx, req)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return m.inner.Info() }

// State returns the current circuit breaker state for monitoring.
func (m *Model) State() gobreaker.State { return m.cb.State() }
