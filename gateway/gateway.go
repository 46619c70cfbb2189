// Package gateway exposes the orchestrator over HTTP: a messaging webhook that
// acknowledges immediately and answers through a channel Sender, a synchronous
// test endpoint and a health probe.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/meshgate/channel"
	"github.com/hupe1980/meshgate/channel/whatsapp"
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
)

// Invoker is the orchestrator capability the gateway needs.
type Invoker interface {
	Invoke(ctx context.Context, message string, cfg core.RunConfig) (string, error)
}

// Verifier authenticates webhook requests against the public webhook URL.
type Verifier interface {
	Verify(r *http.Request, webhookURL string) error
}

// Options configures a Gateway.
type Options struct {
	Addr string
	// Workers and QueueSize size the webhook dispatcher.
	Workers   int
	QueueSize int
	// Sync processes webhook messages before acknowledging them.
	Sync bool
	// SenderRatePerMinute and SenderBurst bound webhook messages per sender;
	// a non-positive rate disables the limit.
	SenderRatePerMinute int
	SenderBurst         int
	// ClientRatePerMinute and ClientBurst bound /test requests per client IP.
	ClientRatePerMinute int
	ClientBurst         int
	// TestThreadID is used by /test when the request names no thread.
	TestThreadID string
	// Parse extracts inbound messages from webhook requests.
	Parse func(r *http.Request) (channel.Inbound, error)
	// Verifier and WebhookURL enable webhook signature checks when both are set.
	Verifier   Verifier
	WebhookURL string
	// Now and TimeLayout produce the timestamp prefixed to every message.
	Now        func() time.Time
	TimeLayout string
	// ReplyTimeout bounds delivery of a reply through the sender.
	ReplyTimeout time.Duration
	Logger       logging.Logger
}

// Gateway serves the HTTP surface. Create it with New, start it with
// ListenAndServe or Serve and stop it with Shutdown.
type Gateway struct {
	invoker Invoker
	sender  channel.Sender
	opts    Options

	dispatcher    *Dispatcher
	senderLimiter *KeyedLimiter
	clientLimiter *KeyedLimiter
	server        *http.Server

	// baseCtx outlives requests and is cancelled by Shutdown.
	baseCtx context.Context
	stop    context.CancelFunc
}

// New creates a Gateway answering through sender.
func New(invoker Invoker, sender channel.Sender, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Addr:                ":5000",
		Workers:             8,
		QueueSize:           64,
		SenderRatePerMinute: 60,
		SenderBurst:         10,
		ClientRatePerMinute: 60,
		ClientBurst:         10,
		TestThreadID:        "test",
		Parse:               whatsapp.ParseInbound,
		Now:                 time.Now,
		TimeLayout:          DefaultTimeLayout,
		ReplyTimeout:        30 * time.Second,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	baseCtx, stop := context.WithCancel(context.Background())

	g := &Gateway{
		invoker:       invoker,
		sender:        sender,
		opts:          opts,
		senderLimiter: NewKeyedLimiter(opts.SenderRatePerMinute, opts.SenderBurst),
		clientLimiter: NewKeyedLimiter(opts.ClientRatePerMinute, opts.ClientBurst),
		baseCtx:       baseCtx,
		stop:          stop,
	}

	if !opts.Sync {
		g.dispatcher = NewDispatcher(opts.Workers, opts.QueueSize, opts.Logger)
	}

	go g.senderLimiter.Run(baseCtx)
	go g.clientLimiter.Run(baseCtx)

	g.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return baseCtx
		},
	}

	return g
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", g.handleWebhook)
	mux.HandleFunc("POST /whatsapp/webhook", g.handleWebhook)
	mux.HandleFunc("POST /test", g.handleTest)
	mux.HandleFunc("GET /healthz", g.handleHealth)

	return requestID(mux)
}

// ListenAndServe listens on the configured address. It returns nil after Shutdown.
func (g *Gateway) ListenAndServe() error {
	g.opts.Logger.Info("gateway.server.start", "addr", g.opts.Addr, "sync", g.opts.Sync)

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}

	return nil
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	g.opts.Logger.Info("gateway.server.start", "addr", ln.Addr().String(), "sync", g.opts.Sync)

	if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}

	return nil
}

// Shutdown stops the HTTP server, then drains queued webhook work.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.opts.Logger.Info("gateway.server.shutdown")

	var errs []error

	if err := g.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if g.dispatcher != nil {
		if err := g.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain workers: %w", err))
		}
	}

	g.stop()

	return errors.Join(errs...)
}

type requestIDKey struct{}

// RequestIDHeader carries the per-request id on responses.
const RequestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the id assigned to the request carried by ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
