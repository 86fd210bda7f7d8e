// Package observer closes observation windows and writes the resulting
// learning updates. It is the only code path that mutates variant weights
// or segment models, which keeps the "exactly once per closed selection"
// accounting in one place.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/promptbandit/promptbandit/internal/metrics"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/store"
)

const (
	// qualityConverted and qualityExpired scale the weight added to a
	// variant's Beta parameters. An expiry is a softer signal than a
	// conversion, so it counts half.
	qualityConverted = 1.0
	qualityExpired   = 0.5

	// minWeight floors the update so a closure always moves the posterior.
	minWeight = 0.1
)

type Observer struct {
	store    store.Store
	segments *segment.Aggregator
	logger   *slog.Logger
}

func New(s store.Store, segments *segment.Aggregator, logger *slog.Logger) *Observer {
	return &Observer{store: s, segments: segments, logger: logger}
}

// RecordConversion credits a conversion event to the subject's most
// recently created open, unexpired observation window. A conversion with
// no attributable window is expected traffic and is silently absorbed.
func (o *Observer) RecordConversion(ctx context.Context, subjectID, conversionEvent, responseText string) error {
	open, err := o.store.FindOpenSelectionsForSubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to find open selections: %w", err)
	}
	if len(open) == 0 {
		metrics.UnattributedConversions.Inc()
		o.logger.Debug("conversion with no open window", "subject_id", subjectID, "event", conversionEvent)
		return nil
	}

	sel := open[0]
	if responseText == "" {
		responseText = conversionEvent
	}

	closed, err := o.store.CloseSelectionIfOpen(ctx, sel.ID, conversionEvent, responseText)
	if err != nil {
		return fmt.Errorf("failed to close selection %s: %w", sel.ID, err)
	}
	if !closed {
		// Lost the race against the expiry sweep. Not an error; the
		// window got exactly one closure either way.
		return nil
	}

	if err := o.updateWeights(ctx, sel.VariantID, true, qualityConverted); err != nil {
		return err
	}
	if err := o.updateSegment(ctx, sel, true); err != nil {
		return err
	}

	metrics.ConversionsTotal.Inc()
	o.logger.Info("conversion recorded",
		"subject_id", subjectID,
		"variant_id", sel.VariantID,
		"event", conversionEvent,
	)

	return nil
}

// ProcessExpiredWindows closes observation windows that elapsed without a
// conversion, bounded to batchSize per call. Safe to run concurrently
// with itself and with conversions: each close is a conditional write, so
// a window already closed elsewhere is skipped. Per-item failures are
// logged and the batch continues. Returns the number of windows this call
// actually closed.
func (o *Observer) ProcessExpiredWindows(ctx context.Context, batchSize int) (int, error) {
	expired, err := o.store.FindExpiredOpenSelections(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired selections: %w", err)
	}

	processed := 0
	for _, sel := range expired {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		closed, err := o.expireOne(ctx, sel)
		if err != nil {
			metrics.SweepErrors.Inc()
			o.logger.Error("failed to expire window", "selection_id", sel.ID, "error", err)
			continue
		}
		if closed {
			processed++
		}
	}

	return processed, nil
}

func (o *Observer) expireOne(ctx context.Context, sel *store.Selection) (bool, error) {
	closed, err := o.store.CloseSelectionIfOpen(ctx, sel.ID, store.ConversionExpired, "")
	if err != nil {
		return false, err
	}
	if !closed {
		return false, nil
	}

	if err := o.updateWeights(ctx, sel.VariantID, false, qualityExpired); err != nil {
		return false, err
	}
	if err := o.updateSegment(ctx, sel, false); err != nil {
		return false, err
	}

	metrics.WindowsExpiredTotal.Inc()
	return true, nil
}

// updateWeights adds max(minWeight, quality) to alpha on conversion, beta
// otherwise. The store applies it as a single atomic increment, so
// concurrent updates to the same variant never lose weight.
func (o *Observer) updateWeights(ctx context.Context, variantID string, converted bool, quality float64) error {
	weight := math.Max(minWeight, quality)

	field := store.FieldBeta
	if converted {
		field = store.FieldAlpha
	}

	if err := o.store.AtomicAddWeight(ctx, variantID, field, weight); err != nil {
		return fmt.Errorf("failed to update weights for variant %s: %w", variantID, err)
	}
	return nil
}

// updateSegment folds the closed selection into its cohort's model.
// Selections made without cohort context carry no segment key and are
// skipped.
func (o *Observer) updateSegment(ctx context.Context, sel *store.Selection, converted bool) error {
	if sel.CohortKey == "" {
		return nil
	}
	if err := o.segments.Update(ctx, sel.CohortKey, sel.Style, sel.VariantID, converted); err != nil {
		return fmt.Errorf("failed to update segment %s: %w", sel.CohortKey, err)
	}
	return nil
}
