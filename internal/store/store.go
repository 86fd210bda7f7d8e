package store

import (
	"context"
	"time"
)

// Store defines the persistence operations the bandit core depends on.
// Implementations must guarantee a stable variant ordering (creation time
// ascending) and atomic semantics for AtomicAddWeight and
// CloseSelectionIfOpen; those two carry the whole learning correctness.
type Store interface {
	// Variant operations
	ListVariants(ctx context.Context) ([]*Variant, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
	GetVariantByKey(ctx context.Context, key string) (*Variant, error)
	AtomicAddWeight(ctx context.Context, id string, field WeightField, delta float64) error
	InsertVariants(ctx context.Context, variants []NewVariant) ([]string, error)
	NewestGeneratedAt(ctx context.Context) (time.Time, error)

	// Selection ledger operations
	InsertSelection(ctx context.Context, sel *Selection) (string, error)
	FindOpenSelectionsForSubject(ctx context.Context, subjectID string) ([]*Selection, error)
	CloseSelectionIfOpen(ctx context.Context, id, conversionEvent, responseText string) (bool, error)
	FindExpiredOpenSelections(ctx context.Context, limit int) ([]*Selection, error)

	// Segment operations
	GetSegmentModel(ctx context.Context, key string) (*SegmentModel, error)
	UpsertSegmentModel(ctx context.Context, m *SegmentModel) error

	// Lifecycle
	Close() error
}
