// Package applog builds the application's structured loggers.
//
// Interactive commands log to stderr with colour; the TUI owns the
// terminal, so it logs to ~/.paiask/logs/app.log instead.
package applog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a tint-formatted logger writing to w.
// Debug records are only emitted when verbose is set.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}))
}

// NewFile opens ~/.paiask/logs/app.log for appending and returns a logger
// writing to it plus a close func. Falls back to a discarding logger when
// the file cannot be opened.
func NewFile(verbose bool) (*slog.Logger, func()) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Discard(), func() {}
	}
	logDir := filepath.Join(homeDir, ".paiask", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return Discard(), func() {}
	}
	f, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return Discard(), func() {}
	}
	return New(f, verbose), func() { f.Close() }
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
