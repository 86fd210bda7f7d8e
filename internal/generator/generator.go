// Package generator produces fresh candidate variants from the text of
// the current top performers. The hosted-model call is the only piece of
// the system that talks to the outside world; everything downstream
// treats "no candidates" as a normal outcome.
package generator

import (
	"context"
	"errors"
)

// ErrUnavailable signals that generation could not run (timeout, API
// error). Callers treat it as zero new candidates and retry next cycle.
var ErrUnavailable = errors.New("candidate generation unavailable")

// Candidate is one generated variant proposal.
type Candidate struct {
	Key         string `json:"variant_key"`
	Text        string `json:"question_text"`
	ContextHint string `json:"context_hint"`
}

// Generator turns the texts of top-performing variants into up to count
// new candidates. A malformed model response yields an empty slice, not
// an error; ErrUnavailable covers transport-level failure.
type Generator interface {
	GenerateCandidates(ctx context.Context, seedTexts []string, count int) ([]Candidate, error)
}
