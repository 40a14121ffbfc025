package ai

import (
	"context"
	"fmt"
	"time"
)

// Placeholder is an offline provider for development. It never returns
// structured output, so every stage falls back to its degraded default.
type Placeholder struct {
	latency time.Duration
}

var _ Provider = (*Placeholder)(nil)

func NewPlaceholder() *Placeholder {
	return &Placeholder{latency: 200 * time.Millisecond}
}

func (p *Placeholder) Name() string {
	return "placeholder"
}

func (p *Placeholder) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	// Simulate network latency
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if len(messages) == 0 {
		return "No messages provided.", nil
	}

	last := messages[len(messages)-1].Content
	return fmt.Sprintf("[placeholder] received %d message(s), last one %d chars: %q. "+
		"Configure a real AI provider (OpenAI, Anthropic, Gemini, Ollama) to get actual answers.",
		len(messages), len(last), truncate(last, 60)), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
