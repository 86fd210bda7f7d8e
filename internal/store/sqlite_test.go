package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/promptbandit/promptbandit/internal/store"
	"github.com/promptbandit/promptbandit/internal/testutil"
)

func openSelection(t *testing.T, s *store.SQLiteStore, subjectID, variantID string, windowEnd time.Time) string {
	t.Helper()
	id, err := s.InsertSelection(context.Background(), &store.Selection{
		SubjectID:   subjectID,
		VariantID:   variantID,
		SessionID:   "sess-1",
		WindowStart: time.Now().Add(-time.Minute),
		WindowEnd:   windowEnd,
	})
	if err != nil {
		t.Fatalf("failed to insert selection: %v", err)
	}
	return id
}

func TestListVariants_StableOrder(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	keys := []string{"first", "second", "third"}
	for _, k := range keys {
		if _, err := s.InsertVariants(ctx, []store.NewVariant{{Key: k, Text: k}}); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	for i := 0; i < 5; i++ {
		variants, err := s.ListVariants(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(variants) != 3 {
			t.Fatalf("got %d variants, want 3", len(variants))
		}
		for j, k := range keys {
			if variants[j].Key != k {
				t.Fatalf("position %d: got %s, want %s", j, variants[j].Key, k)
			}
		}
	}
}

func TestInsertVariants_UniformPrior(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	parent := "some-parent-id"
	ids, err := s.InsertVariants(ctx, []store.NewVariant{
		{Key: "gen_one", Text: "q1", ContextHint: "h1", ParentID: &parent},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	v, err := s.GetVariant(ctx, ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Alpha != 1.0 || v.Beta != 1.0 {
		t.Errorf("got alpha=%g beta=%g, want uniform prior 1.0/1.0", v.Alpha, v.Beta)
	}
	if v.IsSeed {
		t.Error("generated variant marked as seed")
	}
	if v.ParentID == nil || *v.ParentID != parent {
		t.Errorf("parent id not preserved: %v", v.ParentID)
	}
}

func TestGetVariant_NotFound(t *testing.T) {
	s := testutil.SetupStore(t)

	_, err := s.GetVariant(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAtomicAddWeight_Basics(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()
	v := testutil.InsertVariant(t, s, "v", 1, 1)

	if err := s.AtomicAddWeight(ctx, v.ID, store.FieldAlpha, 1.0); err != nil {
		t.Fatalf("add alpha: %v", err)
	}
	if err := s.AtomicAddWeight(ctx, v.ID, store.FieldBeta, 0.5); err != nil {
		t.Fatalf("add beta: %v", err)
	}

	got, err := s.GetVariant(ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Alpha != 2.0 || got.Beta != 1.5 {
		t.Errorf("got alpha=%g beta=%g, want 2.0/1.5", got.Alpha, got.Beta)
	}

	if err := s.AtomicAddWeight(ctx, v.ID, "gamma", 1); err == nil {
		t.Error("expected error for invalid weight field")
	}
	if err := s.AtomicAddWeight(ctx, v.ID, store.FieldAlpha, -1); err == nil {
		t.Error("expected error for negative delta")
	}
	if err := s.AtomicAddWeight(ctx, "missing", store.FieldAlpha, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound for unknown variant", err)
	}
}

func TestAtomicAddWeight_ConcurrentIncrementsAllLand(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()
	v := testutil.InsertVariant(t, s, "v", 1, 1)

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := s.AtomicAddWeight(ctx, v.ID, store.FieldAlpha, 0.5); err != nil {
					t.Errorf("add weight: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.GetVariant(ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := 1.0 + 0.5*workers*perWorker
	if got.Alpha != want {
		t.Errorf("alpha = %g after concurrent updates, want %g (lost increments)", got.Alpha, want)
	}
}

func TestListVariants_RejectsMalformedWeights(t *testing.T) {
	s := testutil.SetupStore(t)
	v := testutil.InsertVariant(t, s, "v", 1, 1)

	// Corrupt the row behind the store's back.
	if _, err := s.DB().Exec(`UPDATE variants SET alpha = 0 WHERE id = ?`, v.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := s.ListVariants(context.Background()); err == nil {
		t.Error("expected malformed variant row to fail the read")
	}
}

func TestCloseSelectionIfOpen_ExactlyOnce(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()
	v := testutil.InsertVariant(t, s, "v", 1, 1)
	id := openSelection(t, s, "subj", v.ID, time.Now().Add(time.Hour))

	closed, err := s.CloseSelectionIfOpen(ctx, id, "converted", "thanks")
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if !closed {
		t.Fatal("first close should succeed")
	}

	closed, err = s.CloseSelectionIfOpen(ctx, id, store.ConversionExpired, "")
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed {
		t.Error("second close must report already-closed")
	}

	// The first writer's event must survive.
	selections, err := s.FindOpenSelectionsForSubject(ctx, "subj")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if len(selections) != 0 {
		t.Errorf("selection still reported open after close")
	}
}

func TestFindOpenSelectionsForSubject_MostRecentFirst(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()
	v := testutil.InsertVariant(t, s, "v", 1, 1)

	first := openSelection(t, s, "subj", v.ID, time.Now().Add(time.Hour))
	second := openSelection(t, s, "subj", v.ID, time.Now().Add(time.Hour))
	openSelection(t, s, "other-subj", v.ID, time.Now().Add(time.Hour))
	expired := openSelection(t, s, "subj", v.ID, time.Now().Add(-time.Hour))

	selections, err := s.FindOpenSelectionsForSubject(ctx, "subj")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("got %d open selections, want 2 (expired and other-subject excluded)", len(selections))
	}
	if selections[0].ID != second || selections[1].ID != first {
		t.Errorf("wrong order: got [%s, %s], want most-recent-first [%s, %s]",
			selections[0].ID, selections[1].ID, second, first)
	}

	for _, sel := range selections {
		if sel.ID == expired {
			t.Error("expired window returned as open")
		}
	}
}

func TestFindExpiredOpenSelections_Limit(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()
	v := testutil.InsertVariant(t, s, "v", 1, 1)

	for i := 0; i < 5; i++ {
		openSelection(t, s, "subj", v.ID, time.Now().Add(-time.Hour))
	}
	stillOpen := openSelection(t, s, "subj", v.ID, time.Now().Add(time.Hour))

	expired, err := s.FindExpiredOpenSelections(ctx, 3)
	if err != nil {
		t.Fatalf("find expired: %v", err)
	}
	if len(expired) != 3 {
		t.Errorf("got %d expired selections, want batch limit 3", len(expired))
	}
	for _, sel := range expired {
		if sel.ID == stillOpen {
			t.Error("unexpired window returned as expired")
		}
	}
}

func TestSegmentModel_Roundtrip(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	_, err := s.GetSegmentModel(ctx, "tech:executive:daily")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for unknown segment", err)
	}

	model := &store.SegmentModel{
		SegmentKey:        "tech:executive:daily",
		SampleSize:        3,
		AvgConversionRate: 2.0 / 3.0,
		TopVariants:       []string{"v2", "v1"},
		Distribution:      map[string]int{"storyteller": 2, "analyst": 1},
	}
	if err := s.UpsertSegmentModel(ctx, model); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetSegmentModel(ctx, "tech:executive:daily")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SampleSize != 3 {
		t.Errorf("sample size %d, want 3", got.SampleSize)
	}
	if len(got.TopVariants) != 2 || got.TopVariants[0] != "v2" {
		t.Errorf("top variants %v, want [v2 v1]", got.TopVariants)
	}
	if got.Distribution["storyteller"] != 2 {
		t.Errorf("distribution %v lost counts", got.Distribution)
	}

	// Upsert replaces in place.
	model.SampleSize = 4
	if err := s.UpsertSegmentModel(ctx, model); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetSegmentModel(ctx, "tech:executive:daily")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.SampleSize != 4 {
		t.Errorf("sample size %d after upsert, want 4", got.SampleSize)
	}
}

func TestGetSegmentModel_RejectsMalformedRow(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec(
		`INSERT INTO segments (segment_key, sample_size, avg_conversion_rate, top_variants, distribution, updated_at)
		 VALUES ('bad', 1, 1.5, 'not json', '{}', 0)`,
	)
	if err != nil {
		t.Fatalf("insert bad row: %v", err)
	}

	if _, err := s.GetSegmentModel(ctx, "bad"); err == nil {
		t.Error("expected malformed segment row to fail the read")
	}
}

func TestNewestGeneratedAt(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	if _, err := s.InsertVariants(ctx, []store.NewVariant{{Key: "seed_a", Text: "q", IsSeed: true}}); err != nil {
		t.Fatalf("insert seed: %v", err)
	}

	// Seeds don't count as generated.
	if _, err := s.NewestGeneratedAt(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound with only seeds present", err)
	}

	if _, err := s.InsertVariants(ctx, []store.NewVariant{{Key: "gen_a", Text: "q"}}); err != nil {
		t.Fatalf("insert generated: %v", err)
	}

	at, err := s.NewestGeneratedAt(ctx)
	if err != nil {
		t.Fatalf("newest generated: %v", err)
	}
	if time.Since(at) > time.Minute {
		t.Errorf("newest generated timestamp %v too old", at)
	}
}
