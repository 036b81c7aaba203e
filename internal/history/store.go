// Package history persists a transcript of answered turns.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/aurras/internal/nlu"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// ErrNotFound is returned by Get for an unknown turn id.
var ErrNotFound = errors.New("turn not found")

// Turn is one prompt and the reply it produced.
type Turn struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"` // cli | interact | tui | api
	Prompt      string        `json:"prompt"`
	Intent      string        `json:"intent,omitempty"`
	Entities    []nlu.Entity  `json:"entities"`
	Plugin      string        `json:"plugin,omitempty"`
	Status      string        `json:"status"`
	FailureKind string        `json:"failure_kind,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Response    string        `json:"response"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store reads and writes the turn_log table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends a turn.
func (s *Store) Record(ctx context.Context, t Turn) error {
	if t.ID == "" {
		return fmt.Errorf("turn id is empty")
	}
	entities := t.Entities
	if entities == nil {
		entities = []nlu.Entity{}
	}
	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO turn_log(id, source, prompt, intent, entities, plugin, status, failure_kind, detail, response, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		t.ID, t.Source, t.Prompt, nullable(t.Intent), string(raw), nullable(t.Plugin), t.Status,
		nullable(t.FailureKind), nullable(t.Detail), t.Response, t.Duration.Milliseconds(),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, prompt, intent, entities, plugin, status, failure_kind, detail, response, duration_ms, created_at
FROM turn_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// Get returns a single turn by id.
func (s *Store) Get(ctx context.Context, id string) (Turn, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, source, prompt, intent, entities, plugin, status, failure_kind, detail, response, duration_ms, created_at
FROM turn_log WHERE id = ?;`, id)
	t, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Turn{}, ErrNotFound
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(sc scanner) (Turn, error) {
	var (
		t                                   Turn
		intent, plugin, failureKind, detail sql.NullString
		entities, createdAt                 string
		durationMs                          int64
	)
	err := sc.Scan(&t.ID, &t.Source, &t.Prompt, &intent, &entities, &plugin, &t.Status,
		&failureKind, &detail, &t.Response, &durationMs, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Turn{}, err
		}
		return Turn{}, fmt.Errorf("scan turn: %w", err)
	}

	t.Intent, t.Plugin, t.FailureKind, t.Detail = intent.String, plugin.String, failureKind.String, detail.String
	t.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(entities), &t.Entities); err != nil {
		return Turn{}, fmt.Errorf("stored entities are invalid JSON for turn=%q: %w", t.ID, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Turn{}, fmt.Errorf("parse created_at for turn=%q: %w", t.ID, err)
	}
	return t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
