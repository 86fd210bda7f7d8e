package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/promptbandit/promptbandit/internal/metrics"
)

const promptTemplate = `These onboarding follow-up questions are performing best for driving user engagement:

%s

Generate %d NEW follow-up questions that explore similar themes but with fresh angles. The questions should:
- Be open-ended and invite personal/professional stories
- Feel natural and conversational
- Be different enough from the originals to test new approaches
- Help us learn about the person's professional identity

Return a JSON array with exactly %d objects:
[{ "variant_key": "gen_<short_snake_case>", "question_text": "the question", "context_hint": "what this reveals" }]

ONLY return the JSON array.`

// OpenAIGenerator asks a hosted chat model for new candidates.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAI(apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// GenerateCandidates prompts the model with the top performers' text. The
// call runs under a bounded timeout; a timeout or API error returns
// ErrUnavailable, while output we cannot parse returns an empty slice.
// The two failure modes are counted separately because they call for
// different operational responses.
func (g *OpenAIGenerator) GenerateCandidates(ctx context.Context, seedTexts []string, count int) ([]Candidate, error) {
	if len(seedTexts) == 0 || count <= 0 {
		return nil, nil
	}

	var numbered strings.Builder
	for i, text := range seedTexts {
		fmt.Fprintf(&numbered, "%d. %q\n", i+1, text)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(promptTemplate, numbered.String(), count, count),
			},
		},
	})
	if err != nil {
		reason := metrics.ReasonAPIError
		if ctx.Err() == context.DeadlineExceeded {
			reason = metrics.ReasonTimeout
		}
		metrics.GeneratorFailures.WithLabelValues(reason).Inc()
		g.logger.Error("candidate generation failed", "reason", reason, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		metrics.GeneratorFailures.WithLabelValues(metrics.ReasonMalformed).Inc()
		g.logger.Warn("model returned no choices")
		return nil, nil
	}

	candidates := ParseCandidates(resp.Choices[0].Message.Content, count)
	if candidates == nil {
		metrics.GeneratorFailures.WithLabelValues(metrics.ReasonMalformed).Inc()
		g.logger.Warn("model returned unparseable candidates", "model", g.model)
		return nil, nil
	}

	return candidates, nil
}

// ParseCandidates extracts the JSON array from a model response,
// tolerating prose around it. Returns nil when no valid array is found;
// entries missing a key or text are dropped.
func ParseCandidates(text string, count int) []Candidate {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}

	var parsed []Candidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil
	}

	candidates := make([]Candidate, 0, count)
	for _, c := range parsed {
		if c.Key == "" || c.Text == "" {
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) == count {
			break
		}
	}

	return candidates
}
