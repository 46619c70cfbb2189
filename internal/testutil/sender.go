package testutil

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage is one message captured by RecordingSender.
type SentMessage struct {
	To   string
	Body string
}

// RecordingSender captures outbound messages. When Err is set every send
// fails after being recorded.
type RecordingSender struct {
	Err error

	mu   sync.Mutex
	sent []SentMessage
	ch   chan SentMessage
}

// NewRecordingSender creates a sender that also publishes sends on a channel
// so asynchronous tests can wait for them.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{ch: make(chan SentMessage, 64)}
}

// Send records the message and returns a synthetic message id.
func (s *RecordingSender) Send(_ context.Context, to, body string) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	n := len(s.sent)
	s.mu.Unlock()

	if s.ch != nil {
		select {
		case s.ch <- SentMessage{To: to, Body: body}:
		default:
		}
	}

	if s.Err != nil {
		return "", s.Err
	}

	return fmt.Sprintf("SM%04d", n), nil
}

// Sent returns a copy of all recorded messages.
func (s *RecordingSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// Notify returns the channel receiving every send attempt.
func (s *RecordingSender) Notify() <-chan SentMessage { return s.ch }
