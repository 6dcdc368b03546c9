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

const systemPrompt = "You generate multiple-choice questions to help identify medicines by their visual appearance. " +
	"NEVER mention medicine names in questions - only ask about colors, shapes, forms, and visual features. " +
	"Return valid JSON only."

// OpenAIConfig configures an OpenAI-compatible chat completions provider.
// The Hack Club proxy and OpenAI itself both speak this protocol.
type OpenAIConfig struct {
	Name        string
	URL         string
	APIKey      string
	Model       string
	Temperature float64
}

// openAIProvider calls an OpenAI-compatible chat completions endpoint.
type openAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) Provider {
	return &openAIProvider{
		cfg: cfg,
		client: &http.Client{
			// The chain applies the real per-provider deadline via context;
			// this only bounds calls made without one.
			Timeout: 60 * time.Second,
		},
	}
}

func (p *openAIProvider) Name() string { return p.cfg.Name }

func (p *openAIProvider) GenerateQuestion(ctx context.Context, req Request) (Candidate, error) {
	optionsJSON, err := json.Marshal(req.Options)
	if err != nil {
		return Candidate{}, fmt.Errorf("marshal options: %w", err)
	}

	prompt := fmt.Sprintf(`You're helping someone remember which medicine they take by asking about its VISUAL appearance.

ATTRIBUTE TO ASK ABOUT: %s
EXAMPLE QUESTION: %q
OPTIONS TO USE: %s

Write a friendly, clear question asking about this visual feature.

IMPORTANT RULES:
- Ask about VISUAL characteristics (color, shape, form) - NOT the medicine name!
- Use simple language anyone can understand
- The question should help identify the medicine based on what it LOOKS like

Return ONLY this JSON (no extra text):
{"question_text": "your question here", "options": %s}`,
		strings.ReplaceAll(req.Attribute.Name, "_", " "),
		req.Attribute.Template,
		optionsJSON,
		optionsJSON,
	)

	payload := map[string]any{
		"model": p.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": p.cfg.Temperature,
		"max_tokens":  300,
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
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Candidate{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return Candidate{}, &reliability.HTTPStatusError{Provider: p.cfg.Name, Status: res.StatusCode}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Candidate{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Candidate{}, fmt.Errorf("empty choices: %w", reliability.ErrMalformedOutput)
	}

	return parseQuestionJSON(parsed.Choices[0].Message.Content)
}

// parseQuestionJSON extracts {question_text, options} from model output,
// tolerating markdown code fences around the JSON.
func parseQuestionJSON(content string) (Candidate, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = parts[1]
		}
		content = strings.TrimSpace(strings.TrimPrefix(content, "json"))
	}

	var out struct {
		QuestionText string   `json:"question_text"`
		Options      []string `json:"options"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Candidate{}, fmt.Errorf("parse question json: %w", reliability.ErrMalformedOutput)
	}
	return Candidate{Text: out.QuestionText, Options: out.Options}, nil
}
