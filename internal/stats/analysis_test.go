package stats_test

import (
	"testing"

	"github.com/promptbandit/promptbandit/internal/stats"
	"github.com/promptbandit/promptbandit/internal/store"
)

func TestWilsonInterval_50Percent(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 100, 0.95)

	if lower < 0.38 || lower > 0.42 {
		t.Errorf("lower bound %f not in expected range [0.38, 0.42]", lower)
	}
	if upper < 0.58 || upper > 0.62 {
		t.Errorf("upper bound %f not in expected range [0.58, 0.62]", upper)
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected (0, 0) for zero trials, got (%f, %f)", lower, upper)
	}
}

func TestWilsonInterval_Clamped(t *testing.T) {
	lower, _ := stats.WilsonInterval(0, 100, 0.95)
	if lower != 0 {
		t.Errorf("expected lower bound clamped to 0, got %f", lower)
	}
	_, upper := stats.WilsonInterval(100, 100, 0.95)
	if upper > 1 {
		t.Errorf("expected upper bound clamped to 1, got %f", upper)
	}
}

func variant(key string, alpha, beta float64) *store.Variant {
	return &store.Variant{ID: "id_" + key, Key: key, Alpha: alpha, Beta: beta}
}

func TestAnalyze_RanksByWinRate(t *testing.T) {
	result := stats.Analyze([]*store.Variant{
		variant("low", 10, 90),
		variant("high", 80, 20),
		variant("mid", 50, 50),
	})

	got := []string{result.Variants[0].Key, result.Variants[1].Key, result.Variants[2].Key}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d: got %s, want %s (full order %v)", i+1, got[i], want[i], got)
		}
	}
}

func TestAnalyze_ConfidentWithSeparation(t *testing.T) {
	// 79% vs 19% over ~100 weighted trials each is an unambiguous split.
	result := stats.Analyze([]*store.Variant{
		variant("winner", 80, 22),
		variant("loser", 20, 82),
	})

	if !result.Confident {
		t.Errorf("expected confident result, got confidence %f", result.ConfidenceLevel)
	}
}

func TestAnalyze_NotConfidentWithoutData(t *testing.T) {
	result := stats.Analyze([]*store.Variant{
		variant("a", 1, 1),
		variant("b", 1, 1),
	})

	if result.Confident {
		t.Errorf("two fresh variants should not be a confident split, got %f", result.ConfidenceLevel)
	}
}
