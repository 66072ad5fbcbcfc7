// Package content turns a location's matched observations into alert text.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/retry"
)

var ErrGenerationFailed = errors.New("content generation failed")

// Provider is a generative text backend that answers with JSON matching schema.
type Provider interface {
	Generate(ctx context.Context, prompt string, schema Schema) (string, error)
}

type Request struct {
	UserID string
	Match  models.LocationMatch
}

// Content is the text of one alert. Generated is false when the fallback
// template was used.
type Content struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Generated bool   `json:"generated"`
}

type Generator struct {
	provider Provider
	policy   retry.Policy
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// DefaultPolicy is one attempt plus three retries waiting 2s, 4s and 8s.
func DefaultPolicy(clock clockwork.Clock) retry.Policy {
	return retry.Policy{Retries: 3, BaseDelay: 2 * time.Second, Clock: clock}
}

// NewGenerator returns a generator that falls back to the template when
// provider is nil.
func NewGenerator(provider Provider, policy retry.Policy, metrics *observability.Metrics) *Generator {
	clock := policy.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
		policy.Clock = clock
	}
	return &Generator{
		provider: provider,
		policy:   policy,
		clock:    clock,
		metrics:  metrics,
	}
}

// Generate never returns an error for provider failures: after the retry
// policy is exhausted it returns the fallback content.
func (g *Generator) Generate(ctx context.Context, req Request) (Content, error) {
	if req.Match.Empty() {
		return Content{}, fmt.Errorf("%w: no observations for location %s", ErrGenerationFailed, req.Match.Location.ID)
	}
	if g.provider == nil {
		return g.fallback(req, nil), nil
	}

	prompt := BuildPrompt(req.Match, g.clock.Now())
	logger := slog.With("user", req.UserID, "location", req.Match.Location.ID)

	policy := g.policy
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("content generation failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	var out Content
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		if g.metrics != nil {
			g.metrics.GenerationAttempts.Inc()
		}
		raw, err := g.provider.Generate(ctx, prompt, ResponseSchema)
		if err != nil {
			return err
		}
		out, err = parseResponse(raw)
		return err
	})
	if err != nil {
		return g.fallback(req, err), nil
	}

	out.Generated = true
	return out, nil
}

func (g *Generator) fallback(req Request, cause error) Content {
	if g.metrics != nil {
		g.metrics.GenerationFallback.Inc()
	}
	if cause != nil {
		slog.Error("using fallback alert content",
			"user", req.UserID,
			"location", req.Match.Location.ID,
			"error", fmt.Errorf("%w: %w", ErrGenerationFailed, cause),
		)
	}
	return Fallback(req.Match)
}

type response struct {
	Subject  string `json:"subject"`
	HTMLBody string `json:"htmlBody"`
	Body     string `json:"body"`
}

func parseResponse(raw string) (Content, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a markdown fence despite the mime type.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var r response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Content{}, fmt.Errorf("decode provider response: %w", err)
	}

	body := r.HTMLBody
	if body == "" {
		body = r.Body
	}
	if strings.TrimSpace(r.Subject) == "" || strings.TrimSpace(body) == "" {
		return Content{}, errors.New("provider response missing subject or body")
	}
	return Content{Subject: strings.TrimSpace(r.Subject), Body: body}, nil
}
