package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/meshgate/core"
)

// InMemoryStore is a process-local MemoryStore keyed by thread then agent.
//
// Concurrency: protected by RWMutex. Reads return copies of the stored
// slices so callers can append freely. Contents are lost on restart; use
// memory/sqlite for durable history.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]map[string][]core.Content // threadID -> agent -> contents
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string]map[string][]core.Content),
	}
}

// Load returns a copy of the contents stored for (threadID, agent).
func (m *InMemoryStore) Load(ctx context.Context, threadID, agent string) ([]core.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.threads[threadID][agent]
	out := make([]core.Content, len(stored))
	copy(out, stored)

	return out, nil
}

// Append adds contents after the existing history for (threadID, agent).
func (m *InMemoryStore) Append(ctx context.Context, threadID, agent string, contents ...core.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(contents) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agents, ok := m.threads[threadID]
	if !ok {
		agents = make(map[string][]core.Content)
		m.threads[threadID] = agents
	}

	agents[agent] = append(agents[agent], contents...)

	return nil
}

// Clear drops every agent's history for threadID.
func (m *InMemoryStore) Clear(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.threads, threadID)

	return nil
}
