package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the identification service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	JanitorInterval          time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	MaxQuestions        int
	ConfidenceThreshold float64
	MaxAlternatives     int

	PhraseChain           string
	PhraseProviderTimeout time.Duration
	PhraseTemperature     float64

	HackClubURL    string
	HackClubAPIKey string
	HackClubModel  string

	OpenAIURL    string
	OpenAIAPIKey string
	OpenAIModel  string

	AnthropicURL    string
	AnthropicAPIKey string
	AnthropicModel  string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "pillfinder"),
		AllowAnyOrigin:   false,

		MaxQuestions:        3,
		ConfidenceThreshold: 0.90,
		MaxAlternatives:     3,

		// The template provider alone keeps the service fully offline; add
		// llm providers in front when keys are available, e.g.
		// "hackclub,openai,template".
		PhraseChain:           envOrDefault("PHRASE_PROVIDER_CHAIN", "template"),
		PhraseProviderTimeout: 5 * time.Second,
		PhraseTemperature:     0.3,

		HackClubURL:    envOrDefault("HACKCLUB_API_URL", "https://ai.hackclub.com/proxy/v1/chat/completions"),
		HackClubAPIKey: stringsTrimSpace("HACKCLUB_API_KEY"),
		HackClubModel:  envOrDefault("HACKCLUB_MODEL", "qwen/qwen3-32b"),

		OpenAIURL:    envOrDefault("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIAPIKey: stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:  envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		AnthropicURL:    envOrDefault("ANTHROPIC_API_URL", "https://api.anthropic.com/v1/messages"),
		AnthropicAPIKey: stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOrDefault("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		JanitorInterval:          30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_SESSION_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PhraseProviderTimeout, err = durationFromEnv("PHRASE_PROVIDER_TIMEOUT", cfg.PhraseProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.MaxQuestions, err = intFromEnv("IDENTIFY_MAX_QUESTIONS", cfg.MaxQuestions)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAlternatives, err = intFromEnv("IDENTIFY_MAX_ALTERNATIVES", cfg.MaxAlternatives)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceThreshold, err = floatFromEnv("IDENTIFY_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.PhraseTemperature, err = floatFromEnv("PHRASE_TEMPERATURE", cfg.PhraseTemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxQuestions <= 0 {
		return Config{}, fmt.Errorf("IDENTIFY_MAX_QUESTIONS must be positive")
	}
	if cfg.MaxAlternatives < 0 {
		return Config{}, fmt.Errorf("IDENTIFY_MAX_ALTERNATIVES must be >= 0")
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("IDENTIFY_CONFIDENCE_THRESHOLD must be in (0, 1]")
	}
	if cfg.PhraseProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("PHRASE_PROVIDER_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
