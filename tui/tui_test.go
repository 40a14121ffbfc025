package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/ai"
	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
)

type nopInspector struct{}

func (nopInspector) Scan(context.Context, int) (*agent.SchemaOverview, error) {
	return &agent.SchemaOverview{}, nil
}

type nopRunner struct{}

func (nopRunner) Query(context.Context, string, int) ([]string, []map[string]any, error) {
	return nil, nil, nil
}

type nopCompleter struct{}

func (nopCompleter) Complete(context.Context, []ai.Message, ai.Options) (string, error) {
	return "", errors.New("offline")
}

// reportFrom runs cmd, descending into batches, and returns the ReportMsg
// it produces. Spinner ticks are skipped.
func reportFrom(t *testing.T, cmd tea.Cmd) ReportMsg {
	t.Helper()
	switch msg := cmd().(type) {
	case ReportMsg:
		return msg
	case tea.BatchMsg:
		for _, c := range msg {
			if c == nil {
				continue
			}
			if r, ok := c().(ReportMsg); ok {
				return r
			}
		}
	}
	t.Fatal("command produced no ReportMsg")
	return ReportMsg{}
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func newTestApp(t *testing.T, newCoord func(*db.DB) (*agent.Coordinator, error)) *App {
	t.Helper()
	store, err := config.OpenConnectionStore(t.TempDir())
	require.NoError(t, err)
	app := NewApp(context.Background(), store, Options{Provider: "ollama", NewCoordinator: newCoord})
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return app
}

func workingCoordinator(*db.DB) (*agent.Coordinator, error) {
	return agent.New(agent.Deps{
		Inspector: nopInspector{},
		Runner:    nopRunner{},
		Completer: nopCompleter{},
	}, agent.DefaultOptions())
}

func connectedMsg() ConnectedMsg {
	cfg := config.Config{Host: "db.internal", Port: 5432, User: "analyst", Database: "game"}
	return ConnectedMsg{DB: &db.DB{}, Cfg: cfg, Conn: config.Connection{Name: "prod"}}
}

func TestAppConnectedSwitchesToTabs(t *testing.T) {
	app := newTestApp(t, workingCoordinator)
	assert.Equal(t, PhaseConnect, app.phase)

	app.Update(connectedMsg())
	require.Equal(t, PhaseMain, app.phase)
	require.Len(t, app.views, 3)
	assert.Equal(t, TabAsk, app.activeTab)

	out := ansi.Strip(app.View())
	assert.Contains(t, out, "paiask")
	assert.Contains(t, out, "prod (analyst@db.internal:5432/game)")
	assert.Contains(t, out, "F1 Ask")
	assert.Contains(t, out, "F3 Schema")
}

func TestAppCoordinatorErrorStaysOnConnect(t *testing.T) {
	app := newTestApp(t, func(*db.DB) (*agent.Coordinator, error) {
		return nil, errors.New("completion service is required")
	})

	app.Update(connectedMsg())
	assert.Equal(t, PhaseConnect, app.phase)
	assert.Nil(t, app.db)
	assert.Contains(t, ansi.Strip(app.View()), "completion service is required")
}

func TestAppTabSwitching(t *testing.T) {
	app := newTestApp(t, workingCoordinator)
	app.Update(connectedMsg())

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabReport, app.activeTab)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabSchema, app.activeTab)
	assert.NotNil(t, cmd, "first visit to the schema tab starts a scan")

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabAsk, app.activeTab)

	app.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, TabSchema, app.activeTab)

	app.Update(tea.KeyMsg{Type: tea.KeyF2})
	assert.Equal(t, TabReport, app.activeTab)
}

func TestAppAskTabKeepsPrintableKeys(t *testing.T) {
	app := newTestApp(t, workingCoordinator)
	app.Update(connectedMsg())

	app.Update(runes("q"))
	app.Update(runes(":?"))
	assert.Equal(t, PhaseMain, app.phase)
	assert.Equal(t, ModeNormal, app.mode)
	assert.False(t, app.showHelp)
	assert.Equal(t, "q:?", app.views[TabAsk].(*AskView).input.Value())
}

func TestAppReportMsgReachesAskAndReport(t *testing.T) {
	app := newTestApp(t, workingCoordinator)
	app.Update(connectedMsg())

	report := &agent.Report{
		Question:  "logins per VIP level",
		Narration: "VIP 3 players logged in 42 times.",
		Columns:   []string{"VipLV", "logins"},
		Preview:   []map[string]any{{"VipLV": 3, "logins": 42}},
		TotalRows: 1,
		Attempts:  []agent.QueryAttempt{{Index: 1, RowCount: 1}},
		Summary:   agent.ExecutionSummary{FinalState: agent.StateNarrated, Attempts: 1},
	}
	app.Update(ReportMsg{Question: report.Question, Report: report})

	ask := ansi.Strip(app.views[TabAsk].View())
	assert.Contains(t, ask, "Q: logins per VIP level")
	assert.Contains(t, ask, "VIP 3 players logged in 42 times.")
	assert.Contains(t, ask, "NARRATED · 1 rows · 1 attempts")

	app.Update(tea.KeyMsg{Type: tea.KeyF2})
	rep := ansi.Strip(app.View())
	assert.Contains(t, rep, "logins per VIP level")
	assert.Contains(t, rep, "== Agent communication ==")
}

func TestAppCommandMode(t *testing.T) {
	app := newTestApp(t, workingCoordinator)
	app.Update(connectedMsg())
	app.Update(tea.KeyMsg{Type: tea.KeyF2})

	app.Update(runes(":"))
	require.Equal(t, ModeCommand, app.mode)
	app.Update(runes("bogus"))
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ModeNormal, app.mode)
	assert.Equal(t, "unknown command: bogus", app.statusMsg)

	app.Update(runes(":"))
	app.Update(runes("disconnect"))
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, PhaseConnect, app.phase)
	assert.Nil(t, app.db)
	assert.Nil(t, app.views)

	// Disconnecting twice is harmless.
	app.disconnect()
}

func TestAskViewWithoutPipeline(t *testing.T) {
	v := NewAskView(context.Background(), nil, "openai")
	v.SetSize(80, 20)
	v.Init()

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "blank questions are ignored")

	v.Update(runes("top countries"))
	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, v.loading)
	assert.Empty(t, v.input.Value())
	assert.Contains(t, ansi.Strip(v.View()), "waiting for the answer")

	v.Update(runes("ignored while loading"))
	assert.Empty(t, v.input.Value())

	msg := reportFrom(t, cmd)
	assert.Equal(t, "top countries", msg.Question)
	require.Error(t, msg.Err)

	v.Update(msg)
	assert.False(t, v.loading)
	assert.Contains(t, ansi.Strip(v.View()), "no pipeline configured")
}

func TestSchemaViewRender(t *testing.T) {
	v := NewSchemaView(context.Background(), nopInspector{})
	v.SetSize(100, 30)
	cmd := v.Init()
	require.NotNil(t, cmd)
	assert.Nil(t, v.Init(), "no second scan while loading")

	v.Update(SchemaMsg{Schema: &agent.SchemaOverview{Tables: []agent.TableDescriptor{{
		Name:     "player_logins",
		RowCount: 120000,
		Columns:  []agent.ColumnDescriptor{{Name: "VipLV", Type: "integer"}},
	}}}})
	out := ansi.Strip(v.View())
	assert.Contains(t, out, "player_logins")
	assert.Contains(t, out, "~120k rows")
	assert.Contains(t, out, "VipLV")

	v.Update(SchemaMsg{Err: errors.New("permission denied")})
	assert.Contains(t, ansi.Strip(v.View()), "permission denied")
}

func TestConnectViewSkipsSSHRowsWhenOff(t *testing.T) {
	store, err := config.OpenConnectionStore(t.TempDir())
	require.NoError(t, err)
	v := NewConnectView(context.Background(), nil, store)

	v.focus = fieldSSHEnabled
	v.move(1)
	assert.Equal(t, fieldConnect, v.focus)

	v.toggleSSH()
	v.focus = fieldSSHEnabled
	v.move(1)
	assert.Equal(t, fieldSSHHost, v.focus)
}

func TestConnectViewSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := config.OpenConnectionStore(dir)
	require.NoError(t, err)
	v := NewConnectView(context.Background(), nil, store)

	v.focus = fieldSave
	v.action()
	require.Error(t, v.err, "a name is required")

	v.fields[fieldName] = "staging"
	v.fields[fieldHost] = "10.0.0.5"
	v.action()
	require.NoError(t, v.err)

	reopened, err := config.OpenConnectionStore(dir)
	require.NoError(t, err)
	conn, ok := reopened.Get("staging")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", conn.Host)

	v.focus = fieldDelete
	v.action()
	require.NoError(t, v.err)
	assert.Empty(t, store.Connections)
}

func TestViewportScrollAndIndicator(t *testing.T) {
	vp := NewViewport(30, 3)
	var lines []string
	for i := range 10 {
		lines = append(lines, strings.Repeat("x", i))
	}
	vp.SetContentLines(lines)

	vp.ScrollUp(5)
	y, _ := vp.Offset()
	assert.Equal(t, 0, y)

	vp.End()
	y, _ = vp.Offset()
	assert.Equal(t, 7, y)

	vp.ScrollDown(50)
	y, _ = vp.Offset()
	assert.Equal(t, 7, y)

	out := ansi.Strip(vp.Render())
	assert.True(t, strings.HasSuffix(out, " 100% (8/10)"), out)
}

func TestViewportCutsStyledLines(t *testing.T) {
	vp := NewViewport(4, 1)
	vp.SetContentLines([]string{StyleBold.Render("abcdefgh")})

	vp.ScrollRight(2)
	assert.Equal(t, "cdef", ansi.Strip(vp.Render()))

	vp.ScrollRight(100)
	_, x := vp.Offset()
	assert.Equal(t, 4, x)

	vp.ToggleWrap()
	assert.True(t, vp.Wrapped())
	_, x = vp.Offset()
	assert.Equal(t, 0, x)
	vp.End()
	y, _ := vp.Offset()
	assert.Equal(t, 1, y)
}

func TestViewportTinyWidth(t *testing.T) {
	vp := NewViewport(2, 1)
	vp.SetContentLines([]string{"a", "b", "c"})
	assert.NotPanics(t, func() { vp.Render() })
}
