package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/meshgate/channel"
	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeLayout formats the timestamp prefixed to inbound messages.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// AckBody is the webhook acknowledgement text.
const AckBody = "Message received"

// FormatMessage prefixes text with the current date and time the way every
// message reaches the main agent.
func FormatMessage(text string, now time.Time, layout string) string {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return fmt.Sprintf("Message: %s\nCurrent Date/time: %s", text, now.Format(layout))
}

func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFrom(r.Context())
	logger := g.opts.Logger

	if g.opts.Verifier != nil && g.opts.WebhookURL != "" {
		if err := g.opts.Verifier.Verify(r, g.opts.WebhookURL); err != nil {
			logger.Warn("gateway.webhook.unauthorized", "request_id", reqID, "error", err.Error())
			http.Error(w, "invalid signature", http.StatusForbidden)

			return
		}
	}

	in, err := g.opts.Parse(r)
	if err != nil {
		logger.Warn("gateway.webhook.malformed", "request_id", reqID, "error", err.Error())
		writeText(w, http.StatusOK, AckBody)

		return
	}

	logger.Info("gateway.webhook.received", "request_id", reqID, "from", in.From, "message_sid", in.MessageSID, "body_len", len(in.Body))

	switch {
	case !in.Valid():
		logger.Warn("gateway.webhook.incomplete", "request_id", reqID, "from", in.From, "has_body", in.Body != "")
	case !g.senderLimiter.Allow(in.From):
		logger.Warn("gateway.webhook.rate_limited", "request_id", reqID, "from", in.From)
	case g.opts.Sync:
		g.process(r.Context(), in, reqID)
	default:
		err := g.dispatcher.Submit(Job{
			ID:  reqID,
			Run: func(ctx context.Context) { g.process(ctx, in, reqID) },
		})
		if err != nil {
			logger.Error("gateway.webhook.dropped", "request_id", reqID, "from", in.From, "error", err.Error())
		}
	}

	writeText(w, http.StatusOK, AckBody)
}

// process runs one inbound message through the orchestrator and sends the
// reply. Failures are logged; the sender has already been acknowledged.
func (g *Gateway) process(ctx context.Context, in channel.Inbound, reqID string) {
	logger := g.opts.Logger
	start := time.Now()

	ctx, span := tracing.Start(ctx, "gateway.process",
		attribute.String("request_id", reqID),
		attribute.String("from", in.From),
	)
	defer span.End()

	cfg := core.RunConfig{
		ThreadID: in.From,
		Metadata: map[string]string{
			"channel":    "whatsapp",
			"sender":     in.From,
			"request_id": reqID,
		},
	}
	if in.ProfileName != "" {
		cfg.Metadata["profile_name"] = in.ProfileName
	}

	reply, err := g.invoker.Invoke(ctx, FormatMessage(in.Body, g.opts.Now(), g.opts.TimeLayout), cfg)
	if err != nil {
		logger.Error("gateway.process.invoke_failed", "request_id", reqID, "from", in.From, "error", err.Error())
		tracing.RecordError(span, err)

		return
	}

	sendCtx := ctx
	if g.opts.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, g.opts.ReplyTimeout)
		defer cancel()
	}

	sid, err := g.sender.Send(sendCtx, in.From, reply)
	if err != nil {
		logger.Error("gateway.process.send_failed", "request_id", reqID, "to", in.From, "error", err.Error())
		tracing.RecordError(span, err)

		return
	}

	logger.Info("gateway.process.complete",
		"request_id", reqID,
		"to", in.From,
		"sid", sid,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	tracing.SetOK(span)
}

type testRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (g *Gateway) handleTest(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFrom(r.Context())
	logger := g.opts.Logger

	if !g.clientLimiter.Allow(clientIP(r)) {
		logger.Warn("gateway.test.rate_limited", "request_id", reqID, "client", clientIP(r))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})

		return
	}

	req, err := decodeTestRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	if req.ThreadID == "" {
		req.ThreadID = g.opts.TestThreadID
	}

	ctx, span := tracing.Start(r.Context(), "gateway.test",
		attribute.String("request_id", reqID),
		attribute.String("thread_id", req.ThreadID),
	)
	defer span.End()

	logger.Info("gateway.test.received", "request_id", reqID, "thread_id", req.ThreadID)

	cfg := core.RunConfig{
		ThreadID: req.ThreadID,
		Metadata: map[string]string{"channel": "test", "request_id": reqID},
	}

	reply, err := g.invoker.Invoke(ctx, FormatMessage(req.Message, g.opts.Now(), g.opts.TimeLayout), cfg)
	if err != nil {
		logger.Error("gateway.test.invoke_failed", "request_id", reqID, "error", err.Error())
		tracing.RecordError(span, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

		return
	}

	tracing.SetOK(span)
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func decodeTestRequest(w http.ResponseWriter, r *http.Request) (testRequest, error) {
	var req testRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			return req, errors.New("invalid JSON body")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form body")
	}

	req.Message = r.PostForm.Get("message")
	req.ThreadID = r.PostForm.Get("thread_id")

	return req, nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"status": "ok"}
	if g.dispatcher != nil {
		status["active_jobs"] = g.dispatcher.Active()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
