// Package segment shares conversion learning across cohorts of similar
// subjects. A cohort's top-performing variants get a small selection boost
// so new subjects in a known segment start from what worked for their
// peers, without overriding individual Thompson-Sampling exploration.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptbandit/promptbandit/internal/store"
)

const (
	// maxTopVariants bounds the per-segment top-performer list.
	maxTopVariants = 5

	// baseBoost is the multiplier bonus for the segment's best variant;
	// each following rank gets boostStep less, floored at zero.
	baseBoost = 0.20
	boostStep = 0.05
)

// Cohort identifies the segment a subject belongs to.
type Cohort struct {
	Domain   string `json:"domain"`   // e.g. "tech"
	Tier     string `json:"tier"`     // e.g. "executive"
	Behavior string `json:"behavior"` // e.g. "daily"
	Style    string `json:"style"`    // free-form tag, only used for distribution counts
}

// Key renders the composite segment key, "domain:tier:behavior".
func (c Cohort) Key() string {
	return fmt.Sprintf("%s:%s:%s", c.Domain, c.Tier, c.Behavior)
}

type Aggregator struct {
	store  store.Store
	logger *slog.Logger
}

func New(s store.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: s, logger: logger}
}

// GetBoosts returns per-variant boost multipliers for the cohort. An
// unknown cohort gets an empty map, which means pure Thompson Sampling.
//
// The boost is a deliberate biasing device, not a Bayesian-correct
// posterior adjustment: it nudges selection toward segment-level winners
// while the per-variant draw still carries the exploration.
func (a *Aggregator) GetBoosts(ctx context.Context, key string) (map[string]float64, error) {
	model, err := a.store.GetSegmentModel(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load segment model: %w", err)
	}

	boosts := make(map[string]float64, len(model.TopVariants))
	for i, variantID := range model.TopVariants {
		boost := baseBoost - float64(i)*boostStep
		if boost <= 0 {
			break
		}
		boosts[variantID] = boost
	}

	return boosts, nil
}

// Update folds one closed-selection outcome into the cohort's model,
// creating it lazily on first observation. Call exactly once per closed
// selection; the outcome observer owns that call, never the selector.
func (a *Aggregator) Update(ctx context.Context, key, style, variantID string, converted bool) error {
	model, err := a.store.GetSegmentModel(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		model = newModel(key, style, variantID, converted)
		if err := a.store.UpsertSegmentModel(ctx, model); err != nil {
			return fmt.Errorf("failed to create segment model: %w", err)
		}
		a.logger.Debug("created segment model", "segment", key, "converted", converted)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load segment model: %w", err)
	}

	outcome := 0.0
	if converted {
		outcome = 1.0
	}

	// Incremental running mean over all observations for this segment.
	newSize := model.SampleSize + 1
	model.AvgConversionRate = (model.AvgConversionRate*float64(model.SampleSize) + outcome) / float64(newSize)
	model.SampleSize = newSize

	if converted {
		model.TopVariants = prependUnique(model.TopVariants, variantID, maxTopVariants)
	}

	if model.Distribution == nil {
		model.Distribution = map[string]int{}
	}
	model.Distribution[style]++

	if err := a.store.UpsertSegmentModel(ctx, model); err != nil {
		return fmt.Errorf("failed to update segment model: %w", err)
	}

	return nil
}

func newModel(key, style, variantID string, converted bool) *store.SegmentModel {
	model := &store.SegmentModel{
		SegmentKey:   key,
		SampleSize:   1,
		Distribution: map[string]int{style: 1},
	}
	if converted {
		model.AvgConversionRate = 1.0
		model.TopVariants = []string{variantID}
	}
	return model
}

// prependUnique puts id at the front unless already present, truncating
// the result to limit.
func prependUnique(ids []string, id string, limit int) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	ids = append([]string{id}, ids...)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
