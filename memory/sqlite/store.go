// Package sqlite provides a durable core.MemoryStore on top of the pure Go
// modernc.org/sqlite driver. Every persisted content is one row keyed by a
// ULID and ordered by a per (thread, agent) sequence number.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/meshgate/core"
	"github.com/hupe1980/meshgate/logging"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultPath is the database location used when none is configured.
const DefaultPath = "db/checkpoints.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	thread_id  TEXT NOT NULL,
	agent      TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	content    JSON NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_thread_agent_seq ON messages (thread_id, agent, seq);
`

// Options configures a Store.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
	Logger      logging.Logger
}

// Store is a SQLite backed core.MemoryStore. Reads run concurrently; writes
// are serialized in process so sequence numbers stay dense.
type Store struct {
	db      *sql.DB
	path    string
	logger  logging.Logger
	writeMu sync.Mutex

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

var _ core.MemoryStore = (*Store)(nil)

// Open opens (creating when needed) the database at path, enables WAL and
// applies the schema. Use ":memory:" for a throwaway database.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		BusyTimeout: 5 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if path == "" {
		path = DefaultPath
	}

	inMemory := path == ":memory:"

	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, opts.BusyTimeout.Milliseconds())
	if !inMemory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	opts.Logger.Info("memory.sqlite.opened", "path", path)

	return &Store{
		db:      db,
		path:    path,
		logger:  opts.Logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) newID(now time.Time) (string, error) {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Load returns contents for (threadID, agent) in append order.
func (s *Store) Load(ctx context.Context, threadID, agent string) ([]core.Content, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM messages WHERE thread_id = ? AND agent = ? ORDER BY seq`,
		threadID, agent,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Content

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		c, err := core.UnmarshalContent(raw)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return out, nil
}

// Append stores contents after the existing history in one transaction.
func (s *Store) Append(ctx context.Context, threadID, agent string, contents ...core.Content) error {
	if len(contents) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE thread_id = ? AND agent = ?`,
		threadID, agent,
	).Scan(&next); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, thread_id, agent, seq, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()

	for _, c := range contents {
		raw, err := core.MarshalContent(c)
		if err != nil {
			return err
		}

		id, err := s.newID(now)
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}

		next++

		if _, err := stmt.ExecContext(ctx, id, threadID, agent, next, string(raw), now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("memory.sqlite.appended", "thread_id", threadID, "agent", agent, "count", len(contents))

	return nil
}

// Clear removes every agent's history for threadID.
func (s *Store) Clear(ctx context.Context, threadID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	return nil
}

// Threads returns the distinct thread ids with stored history.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM messages ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}

		out = append(out, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	return out, nil
}
