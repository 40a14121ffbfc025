package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/db"
)

// schemaSampleRows is how many rows the schema tab samples per table.
const schemaSampleRows = 1

// SchemaView lists what the pipeline sees of the database.
type SchemaView struct {
	ctx       context.Context
	inspector agent.SchemaInspector
	viewport  *Viewport
	schema    *agent.SchemaOverview
	loading   bool
	err       error
	now       func() time.Time
}

func NewSchemaView(ctx context.Context, inspector agent.SchemaInspector) *SchemaView {
	return &SchemaView{
		ctx:       ctx,
		inspector: inspector,
		viewport:  NewViewport(80, 20),
		now:       time.Now,
	}
}

func (v *SchemaView) Name() string { return "Schema" }

func (v *SchemaView) WantsTextInput() bool { return false }

func (v *SchemaView) SetSize(width, height int) {
	v.viewport.SetSize(width-2, height-3)
}

func (v *SchemaView) ShortHelp() []KeyBinding {
	return []KeyBinding{
		{Key: "↑/↓", Desc: "scroll"},
		{Key: "r", Desc: "rescan"},
	}
}

func (v *SchemaView) Init() tea.Cmd {
	if v.schema != nil || v.loading {
		return nil
	}
	return v.scan()
}

func (v *SchemaView) scan() tea.Cmd {
	v.loading = true
	v.err = nil
	v.viewport.SetContent(StyleDimmed.Render("Scanning schema..."))
	ctx, inspector := v.ctx, v.inspector
	return func() tea.Msg {
		if inspector == nil {
			return SchemaMsg{Err: fmt.Errorf("not connected")}
		}
		schema, err := inspector.Scan(ctx, schemaSampleRows)
		return SchemaMsg{Schema: schema, Err: err}
	}
}

func (v *SchemaView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case SchemaMsg:
		v.loading = false
		v.schema, v.err = msg.Schema, msg.Err
		v.viewport.SetContentLines(v.render())
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			v.viewport.ScrollUp(1)
		case "down", "j":
			v.viewport.ScrollDown(1)
		case "pgup":
			v.viewport.PageUp()
		case "pgdown":
			v.viewport.PageDown()
		case "r":
			if !v.loading {
				return v, v.scan()
			}
		}
	}
	return v, nil
}

func (v *SchemaView) render() []string {
	if v.err != nil {
		return []string{StyleError.Render("✗ " + v.err.Error())}
	}
	if v.schema == nil || len(v.schema.Tables) == 0 {
		return []string{StyleDimmed.Render("No tables in the public schema.")}
	}

	var lines []string
	lines = append(lines, StyleDimmed.Render(fmt.Sprintf("%d tables · scanned %s ago",
		len(v.schema.Tables), db.FormatTimeAgo(v.schema.ScannedAt, v.now()))), "")
	for _, t := range v.schema.Tables {
		lines = append(lines, StyleBold.Render(t.Name)+StyleDimmed.Render(fmt.Sprintf("  ~%s rows", db.FormatRowCount(t.RowCount))))
		for _, c := range t.Columns {
			lines = append(lines, fmt.Sprintf("    %-28s %s", c.Name, StyleDimmed.Render(c.Type)))
		}
		if len(t.Sample) > 0 {
			var parts []string
			for _, name := range t.ColumnNames() {
				parts = append(parts, fmt.Sprintf("%s=%v", name, t.Sample[0][name]))
			}
			lines = append(lines, StyleDimmed.Render("    e.g. "+strings.Join(parts, ", ")))
		}
		lines = append(lines, "")
	}
	return lines
}

func (v *SchemaView) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, StyleTitle.Render("Schema"), v.viewport.Render())
}
