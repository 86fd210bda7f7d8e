// Package plateau watches the variant pool for convergence. When the top
// performers have stopped separating, it asks the generator for fresh
// candidates and grows the pool; this is the only runtime path that adds
// variants.
package plateau

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/promptbandit/promptbandit/internal/generator"
	"github.com/promptbandit/promptbandit/internal/metrics"
	"github.com/promptbandit/promptbandit/internal/store"
)

const (
	// Convergence gates. All three must hold for a plateau: enough
	// variants, enough evidence on each of the top 3, and a leader that
	// is no longer pulling away.
	minPoolSize        = 3
	minTopSamples      = 20.0
	maxLeaderGap       = 0.05
	convergenceSamples = 50.0

	generateCount = 3
)

// RankedVariant is a variant viewed through its empirical win rate.
type RankedVariant struct {
	ID      string
	Key     string
	Text    string
	WinRate float64
	Samples float64
}

// Detection reports one convergence evaluation.
type Detection struct {
	Plateau     bool
	TopVariants []RankedVariant
	Reason      string
}

// CycleResult reports one full detect-and-generate cycle.
type CycleResult struct {
	Plateau     bool
	NewVariants int
	Reason      string
}

type Detector struct {
	store    store.Store
	gen      generator.Generator
	logger   *slog.Logger
	cooldown time.Duration
}

// New builds a detector. cooldown bounds how often a cycle may grow the
// pool; zero disables the guard.
func New(s store.Store, gen generator.Generator, logger *slog.Logger, cooldown time.Duration) *Detector {
	return &Detector{store: s, gen: gen, logger: logger, cooldown: cooldown}
}

// DetectPlateau ranks the pool by win rate and checks the convergence
// gates against the top 3.
func (d *Detector) DetectPlateau(ctx context.Context) (*Detection, error) {
	variants, err := d.store.ListVariants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant pool: %w", err)
	}

	if len(variants) < minPoolSize {
		return &Detection{Reason: "insufficient variants"}, nil
	}

	ranked := make([]RankedVariant, 0, len(variants))
	for _, v := range variants {
		ranked = append(ranked, RankedVariant{
			ID:      v.ID,
			Key:     v.Key,
			Text:    v.Text,
			WinRate: v.WinRate(),
			Samples: v.Samples(),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WinRate > ranked[j].WinRate
	})

	top := ranked[:minPoolSize]

	for _, v := range top {
		if v.Samples < minTopSamples {
			return &Detection{TopVariants: top, Reason: "insufficient samples for top variants"}, nil
		}
	}

	gap := top[0].WinRate - top[1].WinRate
	if gap > maxLeaderGap {
		return &Detection{
			TopVariants: top,
			Reason:      fmt.Sprintf("still separating: gap between top variants %.1f%%", gap*100),
		}, nil
	}

	if top[0].Samples <= convergenceSamples {
		return &Detection{TopVariants: top, Reason: "top variant still evolving"}, nil
	}

	return &Detection{
		Plateau:     true,
		TopVariants: top,
		Reason:      fmt.Sprintf("plateau: top variants within %.1f%% at %.0f+ samples", gap*100, top[0].Samples),
	}, nil
}

// RunCycle evaluates convergence and, on a plateau, generates new
// variants descended from the current leader. No plateau or zero
// generated candidates is a no-op; the next scheduled run retries.
// A pool that grew within the cooldown window is left alone so fast
// scheduler ticks cannot flood it with near-duplicates.
func (d *Detector) RunCycle(ctx context.Context) (*CycleResult, error) {
	if skip, err := d.inCooldown(ctx); err != nil {
		return nil, err
	} else if skip {
		metrics.PlateauCycles.WithLabelValues(metrics.OutcomeCooldown).Inc()
		return &CycleResult{Reason: "generation cooldown active"}, nil
	}

	detection, err := d.DetectPlateau(ctx)
	if err != nil {
		return nil, err
	}
	if !detection.Plateau {
		metrics.PlateauCycles.WithLabelValues(metrics.OutcomeNoPlateau).Inc()
		return &CycleResult{Reason: detection.Reason}, nil
	}

	seedTexts := make([]string, 0, len(detection.TopVariants))
	for _, v := range detection.TopVariants {
		seedTexts = append(seedTexts, v.Text)
	}

	candidates, err := d.gen.GenerateCandidates(ctx, seedTexts, generateCount)
	if err != nil {
		if !errors.Is(err, generator.ErrUnavailable) {
			return nil, err
		}
		candidates = nil
	}
	if len(candidates) == 0 {
		metrics.PlateauCycles.WithLabelValues(metrics.OutcomeNoNew).Inc()
		d.logger.Warn("plateau detected but no candidates generated", "reason", detection.Reason)
		return &CycleResult{Plateau: true, Reason: detection.Reason + "; no new variants generated"}, nil
	}

	inserted, err := d.insertCandidates(ctx, candidates, detection.TopVariants[0].ID)
	if err != nil {
		return nil, err
	}

	metrics.PlateauCycles.WithLabelValues(metrics.OutcomeGenerated).Inc()
	d.logger.Info("pool grown after plateau",
		"new_variants", inserted,
		"parent_key", detection.TopVariants[0].Key,
	)

	return &CycleResult{
		Plateau:     true,
		NewVariants: inserted,
		Reason:      fmt.Sprintf("%s; generated %d new variants", detection.Reason, inserted),
	}, nil
}

// inCooldown reports whether the pool already grew within the cooldown
// window. The clock derives from stored rows, so the guard survives
// restarts.
func (d *Detector) inCooldown(ctx context.Context) (bool, error) {
	if d.cooldown <= 0 {
		return false, nil
	}

	newest, err := d.store.NewestGeneratedAt(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return time.Since(newest) < d.cooldown, nil
}

// insertCandidates writes the generated variants with uniform priors and
// the current leader as parent, skipping keys the pool already holds.
func (d *Detector) insertCandidates(ctx context.Context, candidates []generator.Candidate, parentID string) (int, error) {
	newVariants := make([]store.NewVariant, 0, len(candidates))
	for _, c := range candidates {
		_, err := d.store.GetVariantByKey(ctx, c.Key)
		if err == nil {
			d.logger.Debug("skipping duplicate generated key", "variant_key", c.Key)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}

		parent := parentID
		newVariants = append(newVariants, store.NewVariant{
			Key:         c.Key,
			Text:        c.Text,
			ContextHint: c.ContextHint,
			ParentID:    &parent,
		})
	}

	if len(newVariants) == 0 {
		return 0, nil
	}

	ids, err := d.store.InsertVariants(ctx, newVariants)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generated variants: %w", err)
	}

	return len(ids), nil
}
