package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/covenant-labs/covenant/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists recorded events in a hash-chained, totally ordered
// log. Every committed event owns a unique position; its commit hash covers
// the previous hash, so tampering anywhere breaks verification from that
// point forward.
type SQLiteStore struct {
	mu    sync.Mutex
	db    *sql.DB
	clock func() time.Time
}

// NewSQLiteStore opens (and migrates) an event store over db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *SQLiteStore) WithClock(clock func() time.Time) *SQLiteStore {
	s.clock = clock
	return s
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		position INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		context_id TEXT,
		actor TEXT,
		metadata JSON,
		committed_at DATETIME NOT NULL,
		prev_hash TEXT NOT NULL,
		commit_hash TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record implements Recorder by appending to the chain.
func (s *SQLiteStore) Record(ctx context.Context, eventType contracts.EventType, contextID, actor string, metadata map[string]interface{}) error {
	_, err := s.Append(ctx, Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ContextID: contextID,
		Actor:     actor,
		Metadata:  metadata,
	})
	return err
}

// Append commits an event at the next position and returns that position.
func (s *SQLiteStore) Append(ctx context.Context, event Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, prevHash, err := s.head(ctx)
	if err != nil {
		return 0, err
	}

	event.Timestamp = s.clock().UTC()
	commitHash, err := commitHash(position, event, prevHash)
	if err != nil {
		return 0, err
	}

	metaJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (position, event_id, event_type, context_id, actor, metadata, committed_at, prev_hash, commit_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		position, event.ID, string(event.Type), event.ContextID, event.Actor,
		string(metaJSON), event.Timestamp.Format(time.RFC3339Nano), prevHash, commitHash,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return position, nil
}

// head returns the next free position and the hash to chain from. Positions
// start at 1; the empty chain hangs off the "genesis" sentinel.
func (s *SQLiteStore) head(ctx context.Context) (uint64, string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT position, commit_hash FROM events ORDER BY position DESC LIMIT 1`)
	var position uint64
	var hash string
	switch err := row.Scan(&position, &hash); err {
	case nil:
		return position + 1, hash, nil
	case sql.ErrNoRows:
		return 1, "genesis", nil
	default:
		return 0, "", err
	}
}

// Get retrieves the event committed at position.
func (s *SQLiteStore) Get(ctx context.Context, position uint64) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, context_id, actor, metadata, committed_at
		FROM events WHERE position = ?`, position)
	return scanEvent(row)
}

// Range returns events with positions in [start, end], in order.
func (s *SQLiteStore) Range(ctx context.Context, start, end uint64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_type, context_id, actor, metadata, committed_at
		FROM events WHERE position >= ? AND position <= ? ORDER BY position`, start, end)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Len returns the number of committed events.
func (s *SQLiteStore) Len(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Verify walks the chain over [start, end] and reports whether every link's
// prev_hash matches its predecessor's commit_hash.
func (s *SQLiteStore) Verify(ctx context.Context, start, end uint64) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, prev_hash, commit_hash FROM events
		WHERE position >= ? AND position <= ? ORDER BY position`, start, end)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	var prevCommit string
	first := true
	for rows.Next() {
		var position uint64
		var prevHash, commit string
		if err := rows.Scan(&position, &prevHash, &commit); err != nil {
			return false, err
		}
		if !first && prevHash != prevCommit {
			return false, nil
		}
		prevCommit = commit
		first = false
	}
	return true, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var eventType, committedAt string
	var metaJSON sql.NullString
	if err := row.Scan(&e.ID, &eventType, &e.ContextID, &e.Actor, &metaJSON, &committedAt); err != nil {
		return nil, err
	}
	e.Type = contracts.EventType(eventType)
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}
	e.Timestamp = ts
	return &e, nil
}

func commitHash(position uint64, event Event, prevHash string) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d|%s|", position, prevHash)
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
