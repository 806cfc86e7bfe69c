package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config holds all LLM provider configuration.
type Config struct {
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds a single Generate call including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns the configuration used when nothing is set.
// Review generation produces a few hundred tokens of prose per question,
// so the small models of each vendor are the defaults.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-001"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

// ConfigFromEnv reads SABIPREP_* variables from the process environment.
func ConfigFromEnv() Config {
	return configFrom(os.Getenv)
}

// configFrom builds a Config from the given lookup. When no provider is
// named explicitly and no SABIPREP key is present, the standard vendor
// variables are probed.
func configFrom(getenv func(string) string) Config {
	cfg := DefaultConfig()
	explicit := false

	if p := strings.ToLower(strings.TrimSpace(getenv("SABIPREP_LLM_PROVIDER"))); p != "" {
		cfg.Provider = p
		explicit = true
	}

	setIf(&cfg.Anthropic.APIKey, getenv("SABIPREP_ANTHROPIC_API_KEY"))
	setIf(&cfg.Anthropic.Model, getenv("SABIPREP_ANTHROPIC_MODEL"))
	setIf(&cfg.OpenAI.APIKey, getenv("SABIPREP_OPENAI_API_KEY"))
	setIf(&cfg.OpenAI.Model, getenv("SABIPREP_OPENAI_MODEL"))
	setIf(&cfg.OpenAI.BaseURL, getenv("SABIPREP_OPENAI_BASE_URL"))
	setIf(&cfg.Gemini.APIKey, getenv("SABIPREP_GEMINI_API_KEY"))
	setIf(&cfg.Gemini.Model, getenv("SABIPREP_GEMINI_MODEL"))
	setIf(&cfg.OpenRouter.APIKey, getenv("SABIPREP_OPENROUTER_API_KEY"))
	setIf(&cfg.OpenRouter.Model, getenv("SABIPREP_OPENROUTER_MODEL"))

	if d, err := time.ParseDuration(getenv("SABIPREP_LLM_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}

	if explicit || cfg.Validate() == nil {
		return cfg
	}
	if found, ok := discover(cfg, getenv); ok {
		return found
	}
	return cfg
}

// discover picks the first vendor whose standard key variable is set,
// in the order Gemini, OpenAI, Anthropic, OpenRouter.
func discover(base Config, getenv func(string) string) (Config, bool) {
	cfg := base
	switch {
	case getenv("GEMINI_API_KEY") != "":
		cfg.Provider = ProviderGemini
		cfg.Gemini.APIKey = getenv("GEMINI_API_KEY")
	case getenv("OPENAI_API_KEY") != "":
		cfg.Provider = ProviderOpenAI
		cfg.OpenAI.APIKey = getenv("OPENAI_API_KEY")
	case getenv("ANTHROPIC_API_KEY") != "":
		cfg.Provider = ProviderAnthropic
		cfg.Anthropic.APIKey = getenv("ANTHROPIC_API_KEY")
	case getenv("OPENROUTER_API_KEY") != "":
		cfg.Provider = ProviderOpenRouter
		cfg.OpenRouter.APIKey = getenv("OPENROUTER_API_KEY")
	default:
		return Config{}, false
	}
	return cfg, true
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Validate checks that the selected provider has its API key.
func (c Config) Validate() error {
	var key string
	switch c.Provider {
	case ProviderAnthropic:
		key = c.Anthropic.APIKey
	case ProviderOpenAI:
		key = c.OpenAI.APIKey
	case ProviderGemini:
		key = c.Gemini.APIKey
	case ProviderOpenRouter:
		key = c.OpenRouter.APIKey
	case ProviderMock:
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if key == "" {
		return fmt.Errorf("SABIPREP_%s_API_KEY is required for the %s provider", strings.ToUpper(c.Provider), c.Provider)
	}
	return nil
}
