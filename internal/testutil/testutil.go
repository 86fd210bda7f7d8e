// Package testutil holds shared helpers for package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/promptbandit/promptbandit/internal/store"
)

// SetupStore creates a throwaway SQLite store under t.TempDir, closed
// automatically when the test finishes.
func SetupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// InsertVariant inserts one variant and forces its weights, returning
// the stored row. Weights are written directly because tests need exact
// posteriors, not ones accumulated through the observer.
func InsertVariant(t *testing.T, s *store.SQLiteStore, key string, alpha, beta float64) *store.Variant {
	t.Helper()

	ctx := context.Background()
	ids, err := s.InsertVariants(ctx, []store.NewVariant{{
		Key:    key,
		Text:   "question for " + key,
		IsSeed: true,
	}})
	if err != nil {
		t.Fatalf("failed to insert variant %s: %v", key, err)
	}

	if _, err := s.DB().Exec(`UPDATE variants SET alpha = ?, beta = ? WHERE id = ?`, alpha, beta, ids[0]); err != nil {
		t.Fatalf("failed to set weights for %s: %v", key, err)
	}

	v, err := s.GetVariant(ctx, ids[0])
	if err != nil {
		t.Fatalf("failed to reload variant %s: %v", key, err)
	}
	return v
}
