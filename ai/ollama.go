package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Ollama implements the Provider interface for local Ollama instances.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

var _ Provider = (*Ollama)(nil)

// NewOllama creates an Ollama provider.
func NewOllama(host, model string) *Ollama {
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Ollama{host: strings.TrimSuffix(host, "/"), model: model, client: http.DefaultClient}
}

func (o *Ollama) Name() string {
	return fmt.Sprintf("Ollama (%s)", o.model)
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

func (o *Ollama) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	opts = opts.withDefaults()

	req := ollamaChatRequest{Model: o.model, Messages: toChatMessages(messages)}
	req.Options.Temperature = opts.Temperature
	req.Options.NumPredict = opts.MaxTokens

	var resp ollamaChatResponse
	if err := postJSON(ctx, o.client, o.host+"/api/chat", nil, "ollama", req, &resp); err != nil {
		return "", fmt.Errorf("%w (is Ollama running at %s?)", err, o.host)
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", errors.New("ollama returned empty response")
	}
	return content, nil
}
