package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
)

// Options wires the TUI to the rest of the application.
type Options struct {
	Logger *slog.Logger
	// Provider names the completion service for display.
	Provider string
	// NewCoordinator builds the pipeline once a database is connected.
	NewCoordinator func(*db.DB) (*agent.Coordinator, error)
}

// Start initializes the connection store and launches the TUI.
func Start(ctx context.Context, opts Options) error {
	store, err := config.NewConnectionStore()
	if err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}

	app := NewApp(ctx, store, opts)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err = p.Run()
	app.disconnect()
	return err
}
