// Package whatsapp implements the WhatsApp channel on top of the Twilio
// Programmable Messaging REST API: outbound messages are created with
// POST /2010-04-01/Accounts/{sid}/Messages.json and inbound messages arrive as
// form encoded webhooks.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/meshgate/channel"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Prefix marks WhatsApp addresses in the Twilio API.
const Prefix = "whatsapp:"

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com"

// Options configures a Channel.
type Options struct {
	// BaseURL overrides the Twilio API root (tests point it at httptest).
	BaseURL string
	// HTTPClient is used for outbound calls.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Channel sends WhatsApp messages through Twilio. It is safe for concurrent use.
type Channel struct {
	accountSID string
	authToken  string
	from       string
	opts       Options
}

var _ channel.Sender = (*Channel)(nil)

// New creates a Channel. from is the Twilio WhatsApp sender number; the
// whatsapp: prefix is added when missing.
func New(accountSID, authToken, from string, optFns ...func(o *Options)) (*Channel, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("whatsapp: account sid, auth token and sender number are required")
	}

	opts := Options{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Channel{
		accountSID: accountSID,
		authToken:  authToken,
		from:       Normalize(from),
		opts:       opts,
	}, nil
}

// From returns the normalised sender address.
func (c *Channel) From() string { return c.from }

// APIError is a non-2xx reply from the Twilio API.
type APIError struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio api error (HTTP %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("twilio api error (HTTP %d): %s", e.Status, e.Message)
}

// Send creates an outbound WhatsApp message and returns its SID.
func (c *Channel) Send(ctx context.Context, to, body string) (string, error) {
	to = Normalize(to)

	ctx, span := tracing.Start(ctx, "whatsapp.send", attribute.String("to", to))
	defer span.End()

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.opts.BaseURL, url.PathEscape(c.accountSID))

	form := url.Values{
		"To":   {to},
		"From": {c.from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		tracing.RecordError(span, err)
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.accountSID, c.authToken)

	c.opts.Logger.Debug("whatsapp.send.start", "to", to, "from", c.from, "body_len", len(body))

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.opts.Logger.Error("whatsapp.send.error", "to", to, "error", err.Error())
		tracing.RecordError(span, err)

		return "", fmt.Errorf("twilio api call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		tracing.RecordError(span, err)
		return "", fmt.Errorf("read twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}

		apiErr.Status = resp.StatusCode

		c.opts.Logger.Error("whatsapp.send.rejected", "to", to, "status", resp.StatusCode, "code", apiErr.Code, "error", apiErr.Message)
		tracing.RecordError(span, apiErr)

		return "", apiErr
	}

	var result struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		tracing.RecordError(span, err)
		return "", fmt.Errorf("parse twilio response: %w", err)
	}

	c.opts.Logger.Info("whatsapp.send.complete", "to", to, "sid", result.SID, "status", result.Status)
	tracing.SetOK(span)

	return result.SID, nil
}

// Normalize adds the whatsapp: prefix to addr when missing.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.HasPrefix(addr, Prefix) {
		return addr
	}
	return Prefix + addr
}

// ParseInbound extracts a message from a Twilio webhook request. Missing
// fields are left empty; callers decide whether to act on them.
func ParseInbound(r *http.Request) (channel.Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return channel.Inbound{}, fmt.Errorf("parse webhook form: %w", err)
	}

	return channel.Inbound{
		From:        Normalize(r.PostForm.Get("From")),
		Body:        r.PostForm.Get("Body"),
		MessageSID:  r.PostForm.Get("MessageSid"),
		ProfileName: r.PostForm.Get("ProfileName"),
	}, nil
}
