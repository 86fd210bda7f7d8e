package store

import "time"

// ConversionExpired is the sentinel written to a selection whose observation
// window elapsed without a conversion.
const ConversionExpired = "expired"

// WeightField names one side of a variant's Beta distribution.
type WeightField string

const (
	FieldAlpha WeightField = "alpha"
	FieldBeta  WeightField = "beta"
)

// Variant is one candidate follow-up question plus its learned Beta
// parameters. Alpha and Beta start at 1.0 (uniform prior) and only ever
// grow: alpha accumulates weighted conversions, beta weighted
// non-conversions.
type Variant struct {
	ID          string
	Key         string
	Text        string
	ContextHint string
	Alpha       float64
	Beta        float64
	IsSeed      bool
	ParentID    *string // variant that inspired a generated one
	CreatedAt   time.Time
}

// WinRate is the empirical conversion estimate, the mean of Beta(alpha, beta).
func (v *Variant) WinRate() float64 {
	return v.Alpha / (v.Alpha + v.Beta)
}

// Samples is the observation count folded into this variant, with the two
// uniform-prior pseudo-counts subtracted.
func (v *Variant) Samples() float64 {
	return v.Alpha + v.Beta - 2
}

// NewVariant is the insert form of a Variant. Weights always start at the
// uniform prior; the store assigns the id and timestamp.
type NewVariant struct {
	Key         string
	Text        string
	ContextHint string
	IsSeed      bool
	ParentID    *string
}

// Selection records one presentation of a variant to a subject, with a
// fixed observation window during which a conversion is credited to it.
// ConversionEvent nil means the window is still open; closing it is a
// one-way transition that happens exactly once.
type Selection struct {
	ID              string
	SubjectID       string
	VariantID       string
	SessionID       string
	CohortKey       string // segment key captured at selection time; "" when unknown
	Style           string // cohort style tag for segment distribution counts
	ResponseText    *string
	ConversionEvent *string
	WindowStart     time.Time
	WindowEnd       time.Time
	CreatedAt       time.Time
}

// Open reports whether the selection's window has not been closed yet.
func (s *Selection) Open() bool {
	return s.ConversionEvent == nil
}

// SegmentModel holds cross-subject conversion statistics for one cohort
// key (domain:tier:behavior). TopVariants is ordered most-recent-successful
// first, capped at 5, deduplicated.
type SegmentModel struct {
	SegmentKey        string
	SampleSize        int
	AvgConversionRate float64
	TopVariants       []string
	Distribution      map[string]int
	UpdatedAt         time.Time
}
