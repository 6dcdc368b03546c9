package phrase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clintwin/pillfinder/internal/observability"
	"github.com/clintwin/pillfinder/internal/reliability"
)

// Chain tries phrasing providers in order until one returns a well-formed
// question. Each attempt is bounded by a per-provider timeout; failures fall
// through silently. The chain always terminates in the template provider,
// so Phrase cannot fail once the chain is built.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	metrics   *observability.Metrics
}

func NewChain(providers []Provider, perProviderTimeout time.Duration, metrics *observability.Metrics) *Chain {
	if perProviderTimeout <= 0 {
		perProviderTimeout = 5 * time.Second
	}
	hasTemplate := false
	for _, p := range providers {
		if p.Name() == "template" {
			hasTemplate = true
		}
	}
	if !hasTemplate {
		providers = append(providers, NewTemplateProvider())
	}
	return &Chain{
		providers: providers,
		timeout:   perProviderTimeout,
		metrics:   metrics,
	}
}

// Phrase produces the next question for an attribute. Every emission gets a
// freshly minted question id, and the option list is always canonicalized to
// req.Options regardless of what a provider returned, so answers map 1:1
// back to domain values.
func (c *Chain) Phrase(ctx context.Context, req Request) (Question, error) {
	if len(c.providers) == 0 {
		return Question{}, errNoProviders
	}
	var lastErr error
	for i, provider := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		candidate, err := provider.GenerateQuestion(callCtx, req)
		cancel()

		if err == nil {
			err = validateCandidate(candidate, req)
		}
		if err != nil {
			lastErr = err
			if c.metrics != nil {
				c.metrics.ProviderErrors.WithLabelValues(provider.Name(), reliability.Classify(err)).Inc()
				if i < len(c.providers)-1 {
					c.metrics.ProviderFallbacks.WithLabelValues(provider.Name()).Inc()
					c.metrics.ObserveIndicator("fallback:" + provider.Name())
				}
			}
			continue
		}

		return Question{
			ID:        uuid.NewString(),
			Attribute: req.Attribute.Name,
			Text:      strings.TrimSpace(candidate.Text),
			Options:   append([]string(nil), req.Options...),
			Source:    provider.Name(),
		}, nil
	}
	return Question{}, fmt.Errorf("all phrasing providers failed: %w", lastErr)
}

// validateCandidate rejects ill-formed provider output: empty text, empty
// options, or options that fail to cover every observed value.
func validateCandidate(candidate Candidate, req Request) error {
	if strings.TrimSpace(candidate.Text) == "" {
		return fmt.Errorf("empty question text: %w", reliability.ErrMalformedOutput)
	}
	if len(candidate.Options) == 0 {
		return fmt.Errorf("empty options: %w", reliability.ErrMalformedOutput)
	}
	for _, want := range req.Options {
		if want == EscapeOption {
			continue
		}
		if !containsFold(candidate.Options, want) {
			return fmt.Errorf("options missing %q: %w", want, reliability.ErrMalformedOutput)
		}
	}
	return nil
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(strings.TrimSpace(s), needle) {
			return true
		}
	}
	return false
}

var errNoProviders = errors.New("phrasing chain has no providers")
