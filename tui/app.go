// app.go is the top-level Bubble Tea model that orchestrates all views.
//
// Flow:
//  1. Start with ConnectView (connection form)
//  2. On successful connection → build the pipeline and switch to the tabs
//  3. User can disconnect and return to connection screen
//
// Key bindings:
//   - Tab / Shift+Tab or F1–F3 switch between Ask, Report and Schema
//   - Command mode (`:`) outside text input: quit, disconnect
//   - Help overlay (`?`) toggled on/off
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
)

const appVersion = "0.2.0"

// Tab indices for connected mode.
const (
	TabAsk = iota
	TabReport
	TabSchema
)

// AppPhase tracks whether we're connecting or already connected.
type AppPhase int

const (
	PhaseConnect AppPhase = iota
	PhaseMain
)

// InputMode determines what keystrokes do in main phase.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeCommand
)

// App is the root Bubble Tea model.
type App struct {
	ctx  context.Context
	opts Options
	log  *slog.Logger

	// Phase management
	phase       AppPhase
	connectView *ConnectView
	store       *config.ConnectionStore

	// Connected state
	views     []View
	activeTab int
	db        *db.DB
	cfg       config.Config
	connName  string

	// UI state
	width     int
	height    int
	mode      InputMode
	cmdInput  string
	showHelp  bool
	statusMsg string
}

// NewApp creates the application starting with the connection screen.
func NewApp(ctx context.Context, store *config.ConnectionStore, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &App{
		ctx:         ctx,
		opts:        opts,
		log:         log,
		phase:       PhaseConnect,
		connectView: NewConnectView(ctx, log, store),
		store:       store,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.connectView.Init()
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case ConnectedMsg:
		return a, a.connected(msg)

	case ReportMsg:
		// Both the prompt and the report tab follow every answer.
		var cmds []tea.Cmd
		for _, i := range []int{TabAsk, TabReport} {
			if i < len(a.views) {
				updated, cmd := a.views[i].Update(msg)
				a.views[i] = updated
				cmds = append(cmds, cmd)
			}
		}
		return a, tea.Batch(cmds...)

	case spinner.TickMsg:
		// The spinner belongs to the Ask tab whichever tab is showing.
		if TabAsk < len(a.views) {
			updated, cmd := a.views[TabAsk].Update(msg)
			a.views[TabAsk] = updated
			return a, cmd
		}
		return a, nil

	case SchemaMsg:
		if TabSchema < len(a.views) {
			updated, cmd := a.views[TabSchema].Update(msg)
			a.views[TabSchema] = updated
			return a, cmd
		}
		return a, nil

	case StatusMsg:
		a.statusMsg = string(msg)
		return a, nil
	}

	if a.phase == PhaseConnect {
		return a.updateConnect(msg)
	}
	return a.updateMain(msg)
}

// connected moves from the connect phase to the tabs.
func (a *App) connected(msg ConnectedMsg) tea.Cmd {
	var coord = a.opts.NewCoordinator
	if coord == nil {
		msg.DB.Close()
		a.connectView.Update(ConnectErrorMsg{Err: fmt.Errorf("no pipeline configured")})
		return nil
	}
	c, err := coord(msg.DB)
	if err != nil {
		msg.DB.Close()
		a.connectView.Update(ConnectErrorMsg{Err: err})
		return nil
	}

	a.db = msg.DB
	a.cfg = msg.Cfg
	a.connName = msg.Conn.Name
	a.phase = PhaseMain
	a.views = []View{
		NewAskView(a.ctx, c, a.opts.Provider),
		NewReportView(),
		NewSchemaView(a.ctx, msg.DB),
	}
	a.activeTab = TabAsk
	a.log.Info("connected", "target", msg.Cfg.Redacted())
	a.resize()
	return a.views[a.activeTab].Init()
}

func (a *App) resize() {
	// header(1) + border(2) + status bar(1) = 4 lines of chrome
	contentH := a.height - 4
	contentW := a.width - 2
	if a.phase == PhaseConnect {
		a.connectView.SetSize(contentW, contentH)
		return
	}
	for _, v := range a.views {
		v.SetSize(contentW, contentH)
	}
}

func (a *App) updateConnect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
		return a, tea.Quit
	}
	updated, cmd := a.connectView.Update(msg)
	a.connectView = updated.(*ConnectView)
	return a, cmd
}

func (a *App) updateMain(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		return a.handleKey(key)
	}
	return a.forward(msg)
}

func (a *App) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.activeTab < len(a.views) {
		updated, cmd := a.views[a.activeTab].Update(msg)
		a.views[a.activeTab] = updated
		return a, cmd
	}
	return a, nil
}

// handleKey processes keyboard input in main phase.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeCommand {
		return a.handleCommandMode(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "tab":
		return a.switchTab((a.activeTab + 1) % len(a.views))
	case "shift+tab":
		return a.switchTab((a.activeTab + len(a.views) - 1) % len(a.views))
	case "f1":
		return a.switchTab(TabAsk)
	case "f2":
		return a.switchTab(TabReport)
	case "f3":
		return a.switchTab(TabSchema)
	}

	// When the active view is accepting text input, printable keys are
	// the view's.
	if a.views[a.activeTab].WantsTextInput() {
		return a.forward(msg)
	}

	switch msg.String() {
	case ":":
		a.mode = ModeCommand
		a.cmdInput = ""
		return a, nil
	case "?":
		a.showHelp = !a.showHelp
		return a, nil
	case "q":
		return a, tea.Quit
	}
	return a.forward(msg)
}

func (a *App) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		cmd := a.executeCommand(a.cmdInput)
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, cmd

	case "esc":
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, nil

	case "backspace":
		if len(a.cmdInput) > 0 {
			a.cmdInput = a.cmdInput[:len(a.cmdInput)-1]
		}
		return a, nil

	default:
		if msg.Type == tea.KeyRunes {
			a.cmdInput += string(msg.Runes)
		}
		return a, nil
	}
}

func (a *App) switchTab(idx int) (tea.Model, tea.Cmd) {
	if idx >= 0 && idx < len(a.views) {
		a.activeTab = idx
		a.showHelp = false
		return a, a.views[a.activeTab].Init()
	}
	return a, nil
}

func (a *App) executeCommand(input string) tea.Cmd {
	switch strings.TrimSpace(input) {
	case "q", "quit":
		return tea.Quit
	case "disconnect":
		a.disconnect()
		return nil
	case "schema":
		_, cmd := a.switchTab(TabSchema)
		return cmd
	default:
		a.statusMsg = "unknown command: " + input
		return nil
	}
}

func (a *App) disconnect() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	a.phase = PhaseConnect
	a.views = nil
	a.activeTab = 0
	a.statusMsg = ""
	a.connectView = NewConnectView(a.ctx, a.log, a.store)
	a.resize()
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	header := a.renderHeader()
	frameHeight := max(a.height-4, 0)
	frame := StyleBorder.
		Width(a.width - 2).
		Height(frameHeight)

	if a.phase == PhaseConnect {
		return lipgloss.JoinVertical(lipgloss.Left,
			header, frame.Render(a.connectView.View()), a.renderHelpBar(a.connectView.ShortHelp()))
	}

	var content string
	if a.showHelp {
		content = a.renderHelp()
	} else {
		content = lipgloss.JoinVertical(lipgloss.Left, a.renderTabBar(), a.views[a.activeTab].View())
	}
	return header + "\n" + frame.Render(content) + "\n" + a.renderStatusBar()
}

// renderHeader draws a simple text bar: logo + version + connection info.
func (a *App) renderHeader() string {
	left := StyleBold.Render("🐘 paiask") + StyleDimmed.Render(" v"+appVersion)

	if a.phase == PhaseMain {
		label := a.connName
		if label == "" {
			label = "Direct"
		}
		left += StyleSuccess.Render(fmt.Sprintf("  ⚡ %s (%s)", label, a.cfg.Redacted()))
	}

	right := StyleDimmed.Render(a.opts.Provider)
	gap := max(a.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return lipgloss.NewStyle().
		Width(a.width).
		Render(left + strings.Repeat(" ", gap) + right)
}

func (a *App) renderTabBar() string {
	var tabs []string
	for i, v := range a.views {
		label := fmt.Sprintf("F%d %s", i+1, v.Name())
		if i == a.activeTab {
			tabs = append(tabs, StyleTabActive.Render(label))
		} else {
			tabs = append(tabs, StyleTabInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderHelpBar(help []KeyBinding) string {
	var parts []string
	for _, h := range help {
		parts = append(parts, StyleHelpKey.Render(h.Key)+" "+StyleHelpDesc.Render(h.Desc))
	}
	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Render(strings.Join(parts, StyleDimmed.Render("  │  ")))
}

func (a *App) renderStatusBar() string {
	var content string
	switch {
	case a.mode == ModeCommand:
		content = StylePrompt.Render(":") + a.cmdInput + "█"
	case a.statusMsg != "":
		content = a.statusMsg
	default:
		help := append(a.views[a.activeTab].ShortHelp(),
			KeyBinding{Key: "?", Desc: "help"},
			KeyBinding{Key: "Ctrl+C", Desc: "quit"})
		var parts []string
		for _, h := range help {
			parts = append(parts, StyleHelpKey.Render(h.Key)+" "+StyleHelpDesc.Render(h.Desc))
		}
		content = strings.Join(parts, "  │  ")
	}
	return StyleStatusBar.Width(a.width).Render(content)
}

func (a *App) renderHelp() string {
	help := []string{
		StyleTitle.Render("⌨ paiask Keyboard Shortcuts"),
		"",
		StyleHelpKey.Render("Tab / Shift+Tab") + "  Switch between tabs",
		StyleHelpKey.Render("F1 F2 F3") + "         Ask, Report, Schema",
		StyleHelpKey.Render("?") + "                Toggle this help",
		StyleHelpKey.Render("Ctrl+C") + "           Quit",
		"",
		StyleTitle.Render("Report and Schema"),
		"",
		StyleHelpKey.Render("↑/↓ j/k") + "          Vertical scroll",
		StyleHelpKey.Render("←/→ h/l") + "          Horizontal scroll",
		StyleHelpKey.Render("J") + "                Text or JSON report",
		StyleHelpKey.Render("r") + "                Rescan schema",
		"",
		StyleTitle.Render("Commands"),
		"",
		StyleHelpKey.Render(":disconnect") + "      Return to connection screen",
		StyleHelpKey.Render(":schema") + "          Show the schema tab",
		StyleHelpKey.Render(":quit") + "            Quit",
		"",
		StyleDimmed.Render("Press ? to close"),
	}

	return lipgloss.NewStyle().
		Width(a.width-4).
		Padding(1, 2).
		Render(strings.Join(help, "\n"))
}
