package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DachengChen/paiask/agent"
)

// ReportView shows the full report of the latest answer.
type ReportView struct {
	viewport *Viewport
	report   *agent.Report
	question string
	showJSON bool
	err      error
}

func NewReportView() *ReportView {
	return &ReportView{viewport: NewViewport(80, 20)}
}

func (v *ReportView) Name() string { return "Report" }

func (v *ReportView) WantsTextInput() bool { return false }

func (v *ReportView) SetSize(width, height int) {
	v.viewport.SetSize(width-2, height-3)
}

func (v *ReportView) ShortHelp() []KeyBinding {
	return []KeyBinding{
		{Key: "↑/↓", Desc: "scroll"},
		{Key: "←/→", Desc: "pan"},
		{Key: "J", Desc: "text/JSON"},
		{Key: "w", Desc: "wrap"},
	}
}

func (v *ReportView) Init() tea.Cmd {
	v.refresh()
	return nil
}

func (v *ReportView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case ReportMsg:
		v.report = msg.Report
		v.question = msg.Question
		v.err = msg.Err
		v.refresh()
		v.viewport.Home()

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			v.viewport.ScrollUp(1)
		case "down", "j":
			v.viewport.ScrollDown(1)
		case "left", "h":
			v.viewport.ScrollLeft(4)
		case "right", "l":
			v.viewport.ScrollRight(4)
		case "pgup":
			v.viewport.PageUp()
		case "pgdown", " ":
			v.viewport.PageDown()
		case "g", "home":
			v.viewport.Home()
		case "G", "end":
			v.viewport.End()
		case "w":
			v.viewport.ToggleWrap()
		case "J":
			v.showJSON = !v.showJSON
			v.refresh()
			v.viewport.Home()
		}
	}
	return v, nil
}

func (v *ReportView) refresh() {
	switch {
	case v.err != nil:
		v.viewport.SetContent(StyleError.Render(v.err.Error()))
	case v.report == nil:
		v.viewport.SetContent(StyleDimmed.Render("No report yet. Ask a question first."))
	case v.showJSON:
		b, err := v.report.JSON()
		if err != nil {
			v.viewport.SetContent(StyleError.Render(err.Error()))
			return
		}
		v.viewport.SetContent(string(b))
	default:
		v.viewport.SetContent(v.report.String())
	}
}

func (v *ReportView) View() string {
	title := StyleTitle.Render("Report")
	if v.question != "" {
		title += StyleDimmed.Render("  " + v.question)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, v.viewport.Render())
}
