// logger.go records every completion request and response.
//
// Records go to ~/.paiask/logs/ai.log by default, one boxed block per
// call, so a failed pipeline run can be replayed prompt by prompt.
package ai

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type operationKey struct{}

// WithOperation tags ctx with the name of the stage issuing the call.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// Operation returns the stage name set by WithOperation, or "Complete".
func Operation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return "Complete"
}

// Logged wraps a Provider and writes each exchange to w.
type Logged struct {
	inner Provider
	mu    sync.Mutex
	w     io.Writer
}

var _ Provider = (*Logged)(nil)

// WithLogging decorates p. A nil writer disables logging.
func WithLogging(p Provider, w io.Writer) Provider {
	if w == nil {
		return p
	}
	return &Logged{inner: p, w: w}
}

// OpenLogFile opens (or creates) ~/.paiask/logs/ai.log for appending.
func OpenLogFile() (*os.File, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(homeDir, ".paiask", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logDir, "ai.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func (l *Logged) Name() string { return l.inner.Name() }

func (l *Logged) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	op := Operation(ctx)
	l.logRequest(op, messages, opts)
	start := time.Now()
	resp, err := l.inner.Complete(ctx, messages, opts)
	l.logResponse(op, resp, err, time.Since(start))
	return resp, err
}

// ─────────────────────────────────────────────────────────────────
// Request / response blocks
// ─────────────────────────────────────────────────────────────────

func (l *Logged) logRequest(op string, messages []Message, opts Options) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	var sb strings.Builder
	fmt.Fprintf(&sb,
		"\n════════════════════════════════════════════════════════════════\n"+
			"[REQUEST] %s  |  Op: %s  |  Provider: %s  |  max_tokens=%d temperature=%.2f\n"+
			"════════════════════════════════════════════════════════════════\n",
		ts, op, l.inner.Name(), opts.MaxTokens, opts.Temperature,
	)
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s:\n%s\n────────────────────────────────────────\n", m.Role, m.Content)
	}
	l.write(sb.String())
}

func (l *Logged) logResponse(op string, response string, err error, took time.Duration) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	errStr := "(none)"
	if err != nil {
		errStr = err.Error()
	}
	l.write(fmt.Sprintf(
		"[RESPONSE] %s  |  Op: %s  |  took %s\n"+
			"────────────────────────────────────────\n"+
			"Error: %s\n"+
			"────────────────────────────────────────\n"+
			"Response:\n%s\n"+
			"════════════════════════════════════════════════════════════════\n\n",
		ts, op, took.Round(time.Millisecond), errStr, response,
	))
}

func (l *Logged) write(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, s) //nolint:errcheck
}
