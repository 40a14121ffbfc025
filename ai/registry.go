package ai

import (
	"context"
	"fmt"

	"github.com/DachengChen/paiask/config"
)

// SupportedProviders lists available provider names for display.
var SupportedProviders = []string{"openai", "anthropic", "gemini", "groq", "ollama", "placeholder"}

// MissingKeyError reports a hosted provider selected without credentials.
type MissingKeyError struct {
	Provider string
	EnvVar   string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s API key not set. Set %s or add it to ~/.paiask/config.json", e.Provider, e.EnvVar)
}

// NewProvider creates the completion service selected in cfg. An empty
// selection means the offline placeholder.
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, &MissingKeyError{Provider: "OpenAI", EnvVar: "OPENAI_API_KEY"}
		}
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model), nil

	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, &MissingKeyError{Provider: "Anthropic", EnvVar: "ANTHROPIC_API_KEY"}
		}
		return NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.Model), nil

	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, &MissingKeyError{Provider: "Gemini", EnvVar: "GEMINI_API_KEY"}
		}
		return NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)

	case "groq":
		if cfg.Groq.APIKey == "" {
			return nil, &MissingKeyError{Provider: "Groq", EnvVar: "GROQ_API_KEY"}
		}
		return NewGroq(cfg.Groq.APIKey, cfg.Groq.Model), nil

	case "ollama":
		return NewOllama(cfg.Ollama.Host, cfg.Ollama.Model), nil

	case "placeholder", "":
		return NewPlaceholder(), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q. Supported: %v", cfg.Provider, SupportedProviders)
	}
}
