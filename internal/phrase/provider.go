package phrase

import (
	"context"
	"strings"

	"github.com/clintwin/pillfinder/internal/catalog"
)

// EscapeOption is the terminal "don't know" choice appended to every
// question. Choosing it never filters the candidate set.
const EscapeOption = "Not sure"

// Question is the user-facing multiple-choice question for one attribute.
type Question struct {
	ID        string   `json:"question_id"`
	Attribute string   `json:"field_target"`
	Text      string   `json:"question_text"`
	Options   []string `json:"options"`
	Source    string   `json:"source"`
}

// Request carries what a provider needs to phrase a question: the attribute,
// the distinct values observed among current candidates, and the canonical
// option list those values map to.
type Request struct {
	Attribute catalog.AttributeSpec
	Values    []string
	Options   []string
	Asked     int
}

// Candidate is a provider's raw output before chain validation.
type Candidate struct {
	Text    string
	Options []string
}

// Provider converts a selected attribute into question text and options.
type Provider interface {
	Name() string
	GenerateQuestion(ctx context.Context, req Request) (Candidate, error)
}

// FormatOption turns a raw domain value into display text, e.g.
// "capsule_shaped" -> "Capsule Shaped".
func FormatOption(value string) string {
	words := strings.Split(strings.ReplaceAll(value, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// OptionsFor builds the canonical option list for a set of observed values:
// one formatted option per value plus the terminal escape option.
func OptionsFor(values []string) []string {
	options := make([]string, 0, len(values)+1)
	for _, v := range values {
		options = append(options, FormatOption(v))
	}
	return append(options, EscapeOption)
}
