package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 7, 14, 5, 0, 0, time.UTC)

	in := Turn{
		ID:        "t1",
		Source:    "cli",
		Prompt:    "What is the date tomorrow?",
		Intent:    "get_date",
		Entities:  []nlu.Entity{{Label: "date", Text: "tomorrow", Start: 5, End: 5}},
		Plugin:    "DATETIME",
		Status:    "succeeded",
		Response:  "March 08",
		Duration:  42 * time.Millisecond,
		CreatedAt: created,
	}
	if err := s.Record(ctx, in); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Intent != "get_date" || got.Plugin != "DATETIME" || got.Response != "March 08" {
		t.Fatalf("unexpected turn: %+v", got)
	}
	if len(got.Entities) != 1 || got.Entities[0].Text != "tomorrow" {
		t.Fatalf("entities = %+v", got.Entities)
	}
	if got.Duration != 42*time.Millisecond || !got.CreatedAt.Equal(created) {
		t.Fatalf("duration/created_at = %v / %v", got.Duration, got.CreatedAt)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := s.Record(ctx, Turn{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		err := s.Record(ctx, Turn{
			ID: id, Source: "api", Prompt: id, Status: "failed",
			FailureKind: "no_plugin_for_intent", Response: "?",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}

	turns, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 || turns[0].ID != "c" || turns[1].ID != "b" {
		t.Fatalf("Recent(2) = %+v", turns)
	}
	if turns[0].Intent != "" || turns[0].Entities == nil {
		t.Fatalf("null columns not normalised: %+v", turns[0])
	}

	all, err := s.Recent(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("Recent(0) = %d, %v", len(all), err)
	}
}
