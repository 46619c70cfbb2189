// Package channel defines the contract between messaging transports and the
// gateway: inbound messages parsed from a provider webhook and a Sender that
// delivers replies back to the user.
package channel

import "context"

// Inbound is a message received from a messaging provider.
type Inbound struct {
	// From is the sender address, normalised by the channel (e.g. "whatsapp:+15550001").
	From string
	// Body is the message text.
	Body string
	// MessageSID is the provider message identifier, if any.
	MessageSID string
	// ProfileName is the display name supplied by the provider, if any.
	ProfileName string
}

// Valid reports whether the message carries both a sender and a body.
func (m Inbound) Valid() bool { return m.From != "" && m.Body != "" }

// Sender delivers a text message to a recipient and returns the provider's
// message identifier.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, to, body string) (string, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, to, body string) (string, error) {
	return f(ctx, to, body)
}
