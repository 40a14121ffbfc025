// Package ai defines the completion-service interface used by the
// question-answering pipeline and its provider implementations.
//
// Design decisions:
//   - Provider is an interface so we can swap backends (OpenAI, Anthropic,
//     Gemini, Ollama, placeholder) without changing the pipeline.
//   - All methods accept context for cancellation and deadlines.
//   - Output is plain text. Callers treat it as untrusted and parse it
//     defensively; nothing here promises well-formed JSON.
package ai

import (
	"context"
)

// Message represents a chat message.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Options controls a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// DefaultOptions mirrors the settings the pipeline uses when a stage
// does not ask for anything specific.
func DefaultOptions() Options {
	return Options{MaxTokens: 800, Temperature: 0.1}
}

// Provider is the interface all completion backends must implement.
type Provider interface {
	// Complete sends the prompt messages and returns the generated text.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)

	// Name returns the provider name for display.
	Name() string
}

// splitSystem separates the system prompt from the conversation, for APIs
// that take it as a top-level field.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = d.Temperature
	}
	return o
}
