package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit emitted while an agent run streams. It captures:
//   - Correlation (RunID, ID, Author)
//   - Conversational content (role-based Parts)
//   - Streaming state (Partial, TurnComplete)
//
// After emission an Event should be treated as immutable.
type Event struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Author       string    `json:"author"`
	Content      Content   `json:"content"`
	Partial      bool      `json:"partial,omitempty"`
	TurnComplete bool      `json:"turn_complete,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEvent creates an event authored by author bound to a run.
func NewEvent(runID, author string, content Content) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewFunctionResponseEvent wraps a tool result (or error) as a tool role event.
func NewFunctionResponseEvent(runID, author, callID, name string, result any, err error) Event {
	fr := FunctionResponse{ID: callID, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return NewEvent(runID, author, Content{
		Role:  RoleTool,
		Parts: []Part{FunctionResponsePart{FunctionResponse: fr}},
	})
}

// Text returns the concatenated text parts of the event content.
func (e Event) Text() string { return e.Content.Text() }

// IsFinalResponse reports whether the event carries the run's final reply.
func (e Event) IsFinalResponse() bool {
	return e.TurnComplete && !e.Partial && len(e.Content.FunctionCalls()) == 0
}

// NewID returns a random unique identifier.
func NewID() string { return uuid.NewString() }
