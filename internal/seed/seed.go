// Package seed holds the hand-authored starting pool of follow-up
// questions and the idempotent bootstrap that installs them.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptbandit/promptbandit/internal/store"
)

// Variants is the original 8-question pool. Thompson Sampling evolves the
// weights from here; the plateau cycle grows the pool around the winners.
var Variants = []store.NewVariant{
	{
		Key:         "seed_industry_insight",
		Text:        "What's one thing about your industry you wish more people understood?",
		ContextHint: "Reveals domain expertise and passion points",
		IsSeed:      true,
	},
	{
		Key:         "seed_recent_win",
		Text:        "What's a recent win you'd like to share with your network?",
		ContextHint: "Captures positive momentum and achievement style",
		IsSeed:      true,
	},
	{
		Key:         "seed_change_industry",
		Text:        "If you could change one thing about how your industry works, what would it be?",
		ContextHint: "Shows thought leadership and critical thinking",
		IsSeed:      true,
	},
	{
		Key:         "seed_best_advice",
		Text:        "What's the best career advice you've ever received?",
		ContextHint: "Reveals values and mentorship orientation",
		IsSeed:      true,
	},
	{
		Key:         "seed_exciting_trend",
		Text:        "What trend in your field are you most excited about?",
		ContextHint: "Identifies forward-thinking and innovation focus",
		IsSeed:      true,
	},
	{
		Key:         "seed_challenge_overcome",
		Text:        "Tell me about a challenge you recently overcame at work.",
		ContextHint: "Shows resilience and problem-solving style",
		IsSeed:      true,
	},
	{
		Key:         "seed_surprising_learning",
		Text:        "What's something you've learned this month that surprised you?",
		ContextHint: "Captures curiosity and growth mindset",
		IsSeed:      true,
	},
	{
		Key:         "seed_advice_newcomer",
		Text:        "If you could give one piece of advice to someone starting in your field, what would it be?",
		ContextHint: "Reveals mentoring voice and core beliefs",
		IsSeed:      true,
	},
}

// Ensure inserts any seed variants the store does not hold yet. Existing
// rows keep their learned weights; running Ensure repeatedly is safe.
// Returns the number of variants inserted.
func Ensure(ctx context.Context, s store.Store) (int, error) {
	var missing []store.NewVariant
	for _, v := range Variants {
		_, err := s.GetVariantByKey(ctx, v.Key)
		if errors.Is(err, store.ErrNotFound) {
			missing = append(missing, v)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check seed variant %q: %w", v.Key, err)
		}
	}

	if len(missing) == 0 {
		return 0, nil
	}

	if _, err := s.InsertVariants(ctx, missing); err != nil {
		return 0, fmt.Errorf("failed to insert seed variants: %w", err)
	}

	return len(missing), nil
}
