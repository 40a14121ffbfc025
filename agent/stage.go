package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DachengChen/paiask/ai"
)

var errNoCompleter = errors.New("no completion service configured")

// generator wraps a Completer with the per-stage timeout, operation tag
// and temperature shared by every generating stage.
type generator struct {
	llm         Completer
	log         *slog.Logger
	timeout     time.Duration
	temperature float64
}

func (g generator) complete(ctx context.Context, stage Stage, system, user string, maxTokens int) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger().Error("completion panicked", "stage", stage, "panic", r)
			out, err = "", fmt.Errorf("completion panicked: %v", r)
		}
	}()
	if g.llm == nil {
		return "", errNoCompleter
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ctx = ai.WithOperation(ctx, string(stage))

	StageInvocations.WithLabelValues(string(stage)).Inc()
	out, err = g.llm.Complete(ctx, []ai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, ai.Options{MaxTokens: maxTokens, Temperature: g.temperature})
	if err != nil {
		g.logger().Warn("completion failed", "stage", stage, "error", err)
		return "", err
	}
	return out, nil
}

func (g generator) logger() *slog.Logger {
	if g.log == nil {
		return slog.Default()
	}
	return g.log
}

func degraded(log *slog.Logger, stage Stage, reason string) {
	StageDegraded.WithLabelValues(string(stage)).Inc()
	log.Warn("stage degraded", "stage", stage, "reason", reason)
}
