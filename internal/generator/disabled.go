package generator

import "context"

// Disabled is the generator used when no API key is configured. Every
// call reports ErrUnavailable, which plateau cycles treat as "zero new
// candidates, retry next run".
type Disabled struct{}

func (Disabled) GenerateCandidates(ctx context.Context, seedTexts []string, count int) ([]Candidate, error) {
	return nil, ErrUnavailable
}
