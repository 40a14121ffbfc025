// view_ask.go: question prompt.
//
// Questions run through the pipeline asynchronously; the UI stays
// responsive while the stages work. Each answer shows the narration and
// a one-line summary; the full report goes to the Report tab.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/DachengChen/paiask/agent"
)

type askEntry struct {
	question string
	report   *agent.Report
	err      error
}

type AskView struct {
	ctx      context.Context
	coord    *agent.Coordinator
	provider string
	viewport *Viewport
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	history  []askEntry
	loading  bool
	pending  string
}

func NewAskView(ctx context.Context, coord *agent.Coordinator, provider string) *AskView {
	ti := textinput.New()
	ti.Placeholder = "How many logins per VIP level in Taiwan last month?"
	ti.Prompt = "Ask> "
	ti.PromptStyle = StylePrompt
	ti.CharLimit = 1000
	ti.Width = 72
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StylePrompt

	return &AskView{
		ctx:      ctx,
		coord:    coord,
		provider: provider,
		viewport: NewViewport(80, 20),
		input:    ti,
		spinner:  sp,
		renderer: newMarkdownRenderer(76),
	}
}

// newMarkdownRenderer returns nil when glamour cannot be set up; narration
// is then shown as plain text.
func newMarkdownRenderer(wrap int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(wrap, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

func (v *AskView) Name() string { return "Ask" }

func (v *AskView) WantsTextInput() bool { return true }

func (v *AskView) SetSize(width, height int) {
	v.viewport.SetSize(width-2, height-4)
	v.input.Width = max(width-8, 10)
	v.renderer = newMarkdownRenderer(width - 6)
	if len(v.history) > 0 || v.loading {
		v.viewport.SetContentLines(v.renderHistory())
	}
}

func (v *AskView) ShortHelp() []KeyBinding {
	return []KeyBinding{
		{Key: "Enter", Desc: "ask"},
		{Key: "Tab", Desc: "next tab"},
		{Key: "Ctrl+L", Desc: "clear"},
		{Key: "PgUp/PgDn", Desc: "scroll"},
	}
}

func (v *AskView) Init() tea.Cmd {
	if len(v.history) == 0 && !v.loading {
		v.viewport.SetContentLines(v.welcome())
	}
	return textinput.Blink
}

func (v *AskView) welcome() []string {
	return []string{
		StyleTitle.Render("Ask your data") + StyleDimmed.Render(" ("+v.provider+")"),
		"",
		"Ask an analytics question in plain language, for example:",
		"  • How many logins per VIP level in Taiwan during October 2024?",
		"  • Which countries registered the most players this year?",
		"",
		StyleDimmed.Render("Type your question and press Enter."),
	}
}

func (v *AskView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return v.handleKey(msg)

	case spinner.TickMsg:
		if !v.loading {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case ReportMsg:
		v.loading = false
		v.pending = ""
		v.history = append(v.history, askEntry{question: msg.Question, report: msg.Report, err: msg.Err})
		v.viewport.SetContentLines(v.renderHistory())
		v.viewport.End()
		return v, nil
	}

	// Cursor blink and friends.
	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *AskView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return v, v.ask()
	case "ctrl+l":
		v.history = nil
		return v, v.Init()
	case "pgup":
		v.viewport.PageUp()
		return v, nil
	case "pgdown":
		v.viewport.PageDown()
		return v, nil
	}
	if v.loading {
		return v, nil
	}
	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *AskView) ask() tea.Cmd {
	question := strings.TrimSpace(v.input.Value())
	if question == "" || v.loading {
		return nil
	}
	v.input.Reset()
	v.loading = true
	v.pending = question
	v.viewport.SetContentLines(v.renderHistory())
	v.viewport.End()

	ctx, coord := v.ctx, v.coord
	run := func() tea.Msg {
		if coord == nil {
			return ReportMsg{Question: question, Err: fmt.Errorf("no pipeline configured")}
		}
		return ReportMsg{Question: question, Report: coord.Ask(ctx, question)}
	}
	return tea.Batch(run, v.spinner.Tick)
}

func (v *AskView) renderHistory() []string {
	var lines []string
	lines = append(lines, StyleTitle.Render("Ask your data")+StyleDimmed.Render(" ("+v.provider+")"), "")

	for _, e := range v.history {
		lines = append(lines, StyleQuestion.Render("Q: ")+e.question)
		if e.err != nil {
			lines = append(lines, StyleError.Render("  "+e.err.Error()), "")
			continue
		}
		lines = append(lines, StyleAnswer.Render("A:"))
		lines = append(lines, v.renderNarration(e.report.Narration)...)

		summaryStyle := StyleDimmed
		if n := len(e.report.Attempts); n > 0 && e.report.Attempts[n-1].Err != nil {
			summaryStyle = StyleWarning
		}
		lines = append(lines, summaryStyle.Render("  "+summaryLine(e.report)), "")
	}

	if v.loading {
		lines = append(lines, StyleQuestion.Render("Q: ")+v.pending, StyleDimmed.Render("  Working through the pipeline..."))
	}
	return lines
}

// renderNarration renders the answer as markdown, falling back to
// indented plain text.
func (v *AskView) renderNarration(text string) []string {
	if v.renderer != nil {
		if out, err := v.renderer.Render(text); err == nil {
			return strings.Split(strings.Trim(out, "\n"), "\n")
		}
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, "  "+line)
	}
	return lines
}

func summaryLine(r *agent.Report) string {
	s := r.Summary
	return fmt.Sprintf("%s · %d rows · %d attempts · %s · see Report tab",
		s.FinalState, r.TotalRows, s.Attempts, s.Duration.Round(10*time.Millisecond))
}

func (v *AskView) View() string {
	prompt := v.input.View()
	if v.loading {
		prompt = v.spinner.View() + StyleDimmed.Render(" waiting for the answer...")
	}
	return lipgloss.JoinVertical(lipgloss.Left, prompt, "", v.viewport.Render())
}
