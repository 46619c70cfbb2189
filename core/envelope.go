package core

import "strings"

// Role identifies the speaker of an envelope turn.
type Role string

const (
	// RoleHuman marks a turn authored by the caller.
	RoleHuman Role = "human"
	// RoleAI marks a turn authored by an agent.
	RoleAI Role = "ai"
)

// Turn is a single (role, content) entry of a conversation envelope.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Human returns a human turn.
func Human(text string) Turn { return Turn{Role: RoleHuman, Content: text} }

// AI returns an ai turn.
func AI(text string) Turn { return Turn{Role: RoleAI, Content: text} }

// Envelope is the ordered sequence of turns exchanged with an agent. Invoking
// an agent appends one human turn and yields an envelope ending in one ai
// turn whose content is the reply.
type Envelope []Turn

// NewEnvelope wraps message as a single human turn.
func NewEnvelope(message string) Envelope { return Envelope{Human(message)} }

// Append returns a copy of e with turns appended.
func (e Envelope) Append(turns ...Turn) Envelope {
	out := make(Envelope, 0, len(e)+len(turns))
	out = append(out, e...)
	return append(out, turns...)
}

// Last returns the final turn; ok is false for an empty envelope.
func (e Envelope) Last() (Turn, bool) {
	if len(e) == 0 {
		return Turn{}, false
	}
	return e[len(e)-1], true
}

// LastContent returns the content of the final turn or "".
func (e Envelope) LastContent() string {
	t, _ := e.Last()
	return t.Content
}

// Contents converts the envelope into model contents.
func (e Envelope) Contents() []Content {
	out := make([]Content, 0, len(e))
	for _, t := range e {
		role := RoleUser
		if t.Role == RoleAI {
			role = RoleAssistant
		}
		out = append(out, NewTextContent(role, t.Content))
	}
	return out
}

// String renders the envelope one "role: content" line per turn.
func (e Envelope) String() string {
	var b strings.Builder
	for i, t := range e {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
