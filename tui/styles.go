package tui

import "github.com/charmbracelet/lipgloss"

// Palette, tuned for dark terminals.
var (
	ColorPrimary   = lipgloss.Color("255")
	ColorSecondary = lipgloss.Color("240")
	ColorAccent    = lipgloss.Color("39")
	ColorSuccess   = lipgloss.Color("42")
	ColorError     = lipgloss.Color("196")
	ColorWarning   = lipgloss.Color("214")
	ColorDim       = ColorSecondary
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// Text.
var (
	StyleNormal  = fg(ColorPrimary)
	StyleDimmed  = fg(ColorDim)
	StyleBold    = fg(ColorPrimary).Bold(true)
	StyleSuccess = fg(ColorSuccess)
	StyleError   = fg(ColorError).Bold(true)
	StyleWarning = fg(ColorWarning)
)

// Chrome: header, tabs, status and help.
var (
	StyleTitle       = fg(ColorAccent).Bold(true).MarginBottom(1)
	StylePrompt      = fg(ColorAccent).Bold(true)
	StyleBorder      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorSecondary)
	StyleTabActive   = fg(ColorAccent).Bold(true).Padding(0, 1)
	StyleTabInactive = fg(ColorDim).Padding(0, 1)
	StyleStatusBar   = fg(ColorSecondary)
	StyleHelpKey     = fg(ColorAccent).Bold(true)
	StyleHelpDesc    = fg(ColorDim)
)

// Ask history.
var (
	StyleQuestion = fg(ColorAccent).Bold(true)
	StyleAnswer   = fg(ColorSuccess)
)

// Connect form.
var (
	StyleListItemActive = fg(ColorAccent).Bold(true)
	StyleInputFocused   = fg(ColorAccent).Bold(true)
)
