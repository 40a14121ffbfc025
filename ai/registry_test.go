package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DachengChen/paiask/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.AIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "placeholder", p.Name())

	p, err = NewProvider(ctx, config.AIConfig{Provider: "groq", Groq: config.GroqConfig{APIKey: "gsk"}})
	require.NoError(t, err)
	assert.Equal(t, "Groq (llama-3.1-8b-instant)", p.Name())

	p, err = NewProvider(ctx, config.AIConfig{Provider: "ollama", Ollama: config.OllamaConfig{Model: "qwen2.5"}})
	require.NoError(t, err)
	assert.Equal(t, "Ollama (qwen2.5)", p.Name())

	_, err = NewProvider(ctx, config.AIConfig{Provider: "anthropic"})
	var missing *MissingKeyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "ANTHROPIC_API_KEY", missing.EnvVar)

	_, err = NewProvider(ctx, config.AIConfig{Provider: "mistral"})
	assert.ErrorContains(t, err, `unknown AI provider "mistral"`)
}

func TestPlaceholderHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPlaceholder().Complete(ctx, []Message{{Role: "user", Content: "x"}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
