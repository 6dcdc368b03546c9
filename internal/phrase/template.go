package phrase

import (
	"context"
	"strings"
)

// templateProvider phrases questions from the attribute's declared template.
// It is deterministic and never fails, which makes it the guaranteed tail of
// every provider chain.
type templateProvider struct{}

func NewTemplateProvider() Provider { return templateProvider{} }

func (templateProvider) Name() string { return "template" }

func (templateProvider) GenerateQuestion(_ context.Context, req Request) (Candidate, error) {
	text := strings.TrimSpace(req.Attribute.Template)
	if text == "" {
		text = "What is the " + strings.ReplaceAll(req.Attribute.Name, "_", " ") + "?"
	}
	return Candidate{Text: text, Options: req.Options}, nil
}
