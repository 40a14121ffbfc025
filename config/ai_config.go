// Package config: AI provider and pipeline configuration.
//
// Settings are stored in ~/.paiask/config.json alongside
// connection profiles. API keys can also be set via environment
// variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, GROQ_API_KEY).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AIConfig holds the AI provider selection and credentials.
type AIConfig struct {
	Provider  string          `json:"provider"` // "openai", "anthropic", "gemini", "groq", "ollama", "placeholder"
	OpenAI    OpenAIConfig    `json:"openai"`
	Anthropic AnthropicConfig `json:"anthropic"`
	Gemini    GeminiConfig    `json:"gemini"`
	Ollama    OllamaConfig    `json:"ollama"`
	Groq      GroqConfig      `json:"groq"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model"`
}

// GeminiConfig holds Google Gemini-specific settings.
type GeminiConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host  string `json:"host"`
	Model string `json:"model"`
}

// GroqConfig holds Groq-specific settings.
type GroqConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model"`
}

// PipelineConfig tunes the question-answering pipeline.
type PipelineConfig struct {
	MaxRetries        int      `json:"max_retries"`
	SampleRows        int      `json:"sample_rows"`
	MaxRows           int      `json:"max_rows"`
	PreviewRows       int      `json:"preview_rows"`
	DefaultLimit      int      `json:"default_limit"`
	Temperature       float64  `json:"temperature"`
	StageTimeout      Duration `json:"stage_timeout"`
	QueryTimeout      Duration `json:"query_timeout"`
	NarrationLanguage string   `json:"narration_language"`
}

// ReferenceConfig points at the vector-indexed reference document store.
type ReferenceConfig struct {
	Enabled        bool     `json:"enabled"`
	Path           string   `json:"path"` // sqlite file with a ref_docs table
	EmbeddingModel string   `json:"embedding_model"`
	TopK           int      `json:"top_k"`
	MaxChars       int      `json:"max_chars"`
	Timeout        Duration `json:"timeout"`
}

// Duration is a time.Duration that reads and writes as "30s" in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Accept bare numbers as seconds.
		var secs float64
		if err2 := json.Unmarshal(b, &secs); err2 != nil {
			return err
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// AppConfig is the top-level config file structure (~/.paiask/config.json).
type AppConfig struct {
	AI         AIConfig        `json:"ai"`
	Pipeline   PipelineConfig  `json:"pipeline"`
	References ReferenceConfig `json:"references"`
}

// DefaultAIConfig returns sensible defaults.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider: "placeholder",
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2",
		},
		Groq: GroqConfig{
			Model: "llama-3.1-8b-instant",
		},
	}
}

// DefaultPipelineConfig returns the pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetries:        2,
		SampleRows:        3,
		MaxRows:           20000,
		PreviewRows:       50,
		DefaultLimit:      1000,
		Temperature:       0.1,
		StageTimeout:      Duration{60 * time.Second},
		QueryTimeout:      Duration{30 * time.Second},
		NarrationLanguage: "English",
	}
}

// DefaultReferenceConfig returns the reference retrieval defaults.
func DefaultReferenceConfig() ReferenceConfig {
	return ReferenceConfig{
		EmbeddingModel: "gemini-embedding-001",
		TopK:           6,
		MaxChars:       9000,
		Timeout:        Duration{10 * time.Second},
	}
}

// ConfigDir returns ~/.paiask.
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".paiask"), nil
}

// LoadAppConfig reads ~/.paiask/config.json; returns defaults if not found.
func LoadAppConfig() (*AppConfig, error) {
	dir, err := ConfigDir()
	if err != nil {
		cfg := defaultAppConfig()
		applyEnv(cfg)
		return cfg, nil
	}
	return LoadAppConfigFrom(filepath.Join(dir, "config.json"))
}

// LoadAppConfigFrom reads the config at path; a missing file yields defaults.
// Environment variables override file values.
func LoadAppConfigFrom(path string) (*AppConfig, error) {
	cfg := defaultAppConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets env vars override file config.
func applyEnv(cfg *AppConfig) {
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		cfg.AI.OpenAI.APIKey = envKey
	}
	if envModel := os.Getenv("OPENAI_CHAT_MODEL"); envModel != "" {
		cfg.AI.OpenAI.Model = envModel
	}
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		cfg.AI.Anthropic.APIKey = envKey
	}
	if envKey := os.Getenv("GEMINI_API_KEY"); envKey != "" {
		cfg.AI.Gemini.APIKey = envKey
	}
	if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
		cfg.AI.Ollama.Host = envHost
	}
	if envKey := os.Getenv("GROQ_API_KEY"); envKey != "" {
		cfg.AI.Groq.APIKey = envKey
	}
	if envProvider := os.Getenv("PAIASK_AI_PROVIDER"); envProvider != "" {
		cfg.AI.Provider = envProvider
	}
	if envPath := os.Getenv("PAIASK_REFERENCES"); envPath != "" {
		cfg.References.Path = envPath
		cfg.References.Enabled = true
	}
	if envRetries := os.Getenv("PAIASK_MAX_RETRIES"); envRetries != "" {
		if n, err := strconv.Atoi(envRetries); err == nil && n >= 0 {
			cfg.Pipeline.MaxRetries = n
		}
	}
}

// SaveAppConfig writes the config to ~/.paiask/config.json.
func SaveAppConfig(cfg *AppConfig) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0600)
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		AI:         DefaultAIConfig(),
		Pipeline:   DefaultPipelineConfig(),
		References: DefaultReferenceConfig(),
	}
}
