package core

// DefaultThreadID is used when a caller does not scope a conversation.
const DefaultThreadID = "default"

// RunConfig carries ambient per-request settings through agent invocations
// and tool calls. It is passed by value and never stored by agents.
type RunConfig struct {
	// ThreadID selects the persisted conversation history.
	ThreadID string
	// MaxTurns overrides the agent's reasoning-turn bound when > 0.
	MaxTurns int
	// Depth counts nested delegations; zero for the entry agent.
	Depth int
	// Metadata holds free-form request attributes (channel, sender, ...).
	Metadata map[string]string
}

// WithThread returns a copy of c scoped to threadID.
func (c RunConfig) WithThread(threadID string) RunConfig {
	c.ThreadID = threadID
	return c
}

// Nested returns the config handed to a delegated agent.
func (c RunConfig) Nested() RunConfig {
	c.Depth++
	c.MaxTurns = 0
	return c
}

// Thread returns the thread id or DefaultThreadID when unset.
func (c RunConfig) Thread() string {
	if c.ThreadID == "" {
		return DefaultThreadID
	}
	return c.ThreadID
}
