package phrase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clintwin/pillfinder/internal/observability"
)

// Config controls phrasing chain construction.
type Config struct {
	Chain           string
	ProviderTimeout time.Duration
	Temperature     float64

	HackClubURL    string
	HackClubAPIKey string
	HackClubModel  string

	OpenAIURL    string
	OpenAIAPIKey string
	OpenAIModel  string

	AnthropicURL    string
	AnthropicAPIKey string
	AnthropicModel  string
}

// NewChainFromConfig builds the ordered provider chain named in cfg.Chain
// (comma-separated, e.g. "hackclub,openai,template"). The template provider
// is always appended when missing so the chain can never fully fail.
func NewChainFromConfig(cfg Config, metrics *observability.Metrics) (*Chain, error) {
	names := strings.Split(cfg.Chain, ",")
	var providers []Provider
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		switch name {
		case "hackclub":
			if strings.TrimSpace(cfg.HackClubURL) == "" {
				return nil, errors.New("hackclub provider url is required")
			}
			providers = append(providers, NewOpenAIProvider(OpenAIConfig{
				Name:        "hackclub",
				URL:         cfg.HackClubURL,
				APIKey:      cfg.HackClubAPIKey,
				Model:       cfg.HackClubModel,
				Temperature: cfg.Temperature,
			}))
		case "openai":
			if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
				return nil, errors.New("openai api key is required")
			}
			providers = append(providers, NewOpenAIProvider(OpenAIConfig{
				Name:        "openai",
				URL:         cfg.OpenAIURL,
				APIKey:      cfg.OpenAIAPIKey,
				Model:       cfg.OpenAIModel,
				Temperature: cfg.Temperature,
			}))
		case "anthropic":
			if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
				return nil, errors.New("anthropic api key is required")
			}
			providers = append(providers, NewAnthropicProvider(AnthropicConfig{
				URL:         cfg.AnthropicURL,
				APIKey:      cfg.AnthropicAPIKey,
				Model:       cfg.AnthropicModel,
				Temperature: cfg.Temperature,
			}))
		case "template":
			providers = append(providers, NewTemplateProvider())
		default:
			return nil, fmt.Errorf("unsupported phrasing provider %q", name)
		}
	}
	return NewChain(providers, cfg.ProviderTimeout, metrics), nil
}
