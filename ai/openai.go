package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

// OpenAI talks to the Chat Completions API. Groq serves the same API, so
// it is the same type with another base URL.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	label   string
	client  *http.Client
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{apiKey: apiKey, model: model, baseURL: openAIBaseURL, label: "OpenAI", client: http.DefaultClient}
}

// NewGroq creates a provider for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string) *OpenAI {
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	return &OpenAI{apiKey: apiKey, model: model, baseURL: groqBaseURL, label: "Groq", client: http.DefaultClient}
}

func (o *OpenAI) Name() string {
	return fmt.Sprintf("%s (%s)", o.label, o.model)
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	opts = opts.withDefaults()
	vendor := strings.ToLower(o.label)

	req := chatCompletionRequest{
		Model:       o.model,
		Messages:    toChatMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	header := http.Header{"Authorization": {"Bearer " + o.apiKey}}

	var resp chatCompletionResponse
	url := strings.TrimSuffix(o.baseURL, "/") + "/chat/completions"
	if err := postJSON(ctx, o.client, url, header, vendor, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(vendor + " returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
