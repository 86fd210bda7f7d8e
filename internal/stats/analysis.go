package stats

import (
	"math"
	"sort"

	"github.com/promptbandit/promptbandit/internal/store"
)

// Result summarizes the learned state of the variant pool.
type Result struct {
	Variants        []VariantResult // win-rate descending
	Confident       bool            // >= 95% confidence leader beats runner-up
	ConfidenceLevel float64         // 0-1
}

// VariantResult carries the reporting view of a single variant.
type VariantResult struct {
	ID      string
	Key     string
	WinRate float64
	Samples float64
	CILower float64
	CIUpper float64
	IsSeed  bool
}

// Analyze ranks the pool by empirical win rate and estimates how confident
// we are that the leader actually beats the runner-up. The Beta parameters
// map back to binomial counts: alpha-1 weighted successes out of
// alpha+beta-2 weighted trials.
func Analyze(variants []*store.Variant) *Result {
	results := make([]VariantResult, 0, len(variants))
	for _, v := range variants {
		lower, upper := WilsonInterval(v.Alpha-1, v.Samples(), 0.95)
		results = append(results, VariantResult{
			ID:      v.ID,
			Key:     v.Key,
			WinRate: v.WinRate(),
			Samples: v.Samples(),
			CILower: lower,
			CIUpper: upper,
			IsSeed:  v.IsSeed,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].WinRate > results[j].WinRate
	})

	var confidence float64
	if len(results) >= 2 {
		confidence = beatsConfidence(results[0], results[1])
	}

	return &Result{
		Variants:        results,
		Confident:       confidence >= 0.95,
		ConfidenceLevel: confidence,
	}
}

// beatsConfidence runs a two-proportion z-test on the weighted counts of
// two variants, returning the confidence (0-1) that a beats b.
func beatsConfidence(a, b VariantResult) float64 {
	if a.Samples <= 0 || b.Samples <= 0 {
		return 0.5 // need data on both sides
	}

	pA := a.WinRate
	pB := b.WinRate

	pooled := (pA*a.Samples + pB*b.Samples) / (a.Samples + b.Samples)
	se := math.Sqrt(pooled * (1 - pooled) * (1/a.Samples + 1/b.Samples))
	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		default:
			return 0.5
		}
	}

	z := (pA - pB) / se
	return normalCDF(z)
}
