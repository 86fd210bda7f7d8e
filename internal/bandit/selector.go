// Package bandit implements Thompson-Sampling variant selection.
package bandit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptbandit/promptbandit/internal/metrics"
	"github.com/promptbandit/promptbandit/internal/stats"
	"github.com/promptbandit/promptbandit/internal/store"
)

// ErrNoVariants is returned when selection is asked to choose from an
// empty pool. Fatal to the calling request; never defaulted around.
var ErrNoVariants = errors.New("no variants available")

type Selector struct {
	store  store.Store
	logger *slog.Logger
	window time.Duration // observation window horizon
}

func NewSelector(s store.Store, logger *slog.Logger, window time.Duration) *Selector {
	return &Selector{store: s, logger: logger, window: window}
}

// Select draws one Beta sample per variant, applies any segment boost as
// sample*(1+boost), and returns the arg-max. Ties break first-seen, which
// the store's stable pool ordering makes deterministic.
func (s *Selector) Select(variants []*store.Variant, boosts map[string]float64) (*store.Variant, error) {
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}

	var best *store.Variant
	bestSample := -1.0

	for _, v := range variants {
		sample := stats.SampleBeta(v.Alpha, v.Beta)
		if boost, ok := boosts[v.ID]; ok {
			sample *= 1 + boost
		}
		if sample > bestSample {
			bestSample = sample
			best = v
		}
	}

	return best, nil
}

// SelectAndRecord chooses a variant for the subject and opens its
// observation window in the ledger as one logical operation. If the
// ledger write fails the selection is reported as failed, so no
// presentation can happen without a window to learn from.
func (s *Selector) SelectAndRecord(ctx context.Context, subjectID, sessionID, cohortKey, style string, boosts map[string]float64) (*store.Variant, *store.Selection, error) {
	variants, err := s.store.ListVariants(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load variant pool: %w", err)
	}

	chosen, err := s.Select(variants, boosts)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	sel := &store.Selection{
		SubjectID:   subjectID,
		VariantID:   chosen.ID,
		SessionID:   sessionID,
		CohortKey:   cohortKey,
		Style:       style,
		WindowStart: now,
		WindowEnd:   now.Add(s.window),
	}
	sel.ID, err = s.store.InsertSelection(ctx, sel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record selection: %w", err)
	}

	metrics.SelectionsTotal.WithLabelValues(chosen.Key).Inc()
	s.logger.Debug("selected variant",
		"variant_key", chosen.Key,
		"subject_id", subjectID,
		"selection_id", sel.ID,
		"boosted", len(boosts) > 0,
	)

	return chosen, sel, nil
}
