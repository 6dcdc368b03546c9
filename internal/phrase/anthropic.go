package phrase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clintwin/pillfinder/internal/reliability"
)

// AnthropicConfig configures the Anthropic messages API provider.
type AnthropicConfig struct {
	URL         string
	APIKey      string
	Model       string
	Temperature float64
}

type anthropicProvider struct {
	cfg    AnthropicConfig
	client *http.Client
}

func NewAnthropicProvider(cfg AnthropicConfig) Provider {
	return &anthropicProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) GenerateQuestion(ctx context.Context, req Request) (Candidate, error) {
	optionsJSON, err := json.Marshal(req.Options)
	if err != nil {
		return Candidate{}, fmt.Errorf("marshal options: %w", err)
	}

	prompt := fmt.Sprintf(`Generate a multiple-choice question to identify a medicine based on visual attributes.

Attribute to ask about: %s
Options to use: %s

Generate a natural, friendly question. Return JSON only:
{"question_text": "your question here", "options": %s}`,
		strings.ReplaceAll(req.Attribute.Name, "_", " "),
		optionsJSON,
		optionsJSON,
	)

	payload := map[string]any{
		"model":      p.cfg.Model,
		"max_tokens": 500,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": p.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Candidate{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Candidate{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Candidate{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return Candidate{}, &reliability.HTTPStatusError{Provider: "anthropic", Status: res.StatusCode}
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Candidate{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return Candidate{}, fmt.Errorf("empty content: %w", reliability.ErrMalformedOutput)
	}

	return parseQuestionJSON(parsed.Content[0].Text)
}
