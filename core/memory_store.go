package core

import "context"

// MemoryStore persists conversation contents keyed by thread and agent.
// Implementations must be safe for concurrent use without external locking.
type MemoryStore interface {
	// Load returns the stored contents for (threadID, agent) in append order.
	Load(ctx context.Context, threadID, agent string) ([]Content, error)
	// Append stores contents after any existing history for (threadID, agent).
	Append(ctx context.Context, threadID, agent string, contents ...Content) error
	// Clear removes every agent's history for threadID.
	Clear(ctx context.Context, threadID string) error
}
