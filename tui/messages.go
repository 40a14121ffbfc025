// messages.go defines Bubble Tea messages used for async communication.
//
// Database work and pipeline runs send results back to the TUI via these
// message types, so the UI never blocks.
package tui

import (
	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
)

// ConnectedMsg is sent when a DB connection is successfully established.
type ConnectedMsg struct {
	DB   *db.DB
	Cfg  config.Config
	Conn config.Connection
}

// ConnectErrorMsg is sent when connection fails.
type ConnectErrorMsg struct {
	Err error
}

// ReportMsg is sent when a question has been answered.
type ReportMsg struct {
	Question string
	Report   *agent.Report
	Err      error
}

// SchemaMsg carries a finished schema scan.
type SchemaMsg struct {
	Schema *agent.SchemaOverview
	Err    error
}

// StatusMsg is a transient status message for the status bar.
type StatusMsg string
