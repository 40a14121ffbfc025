// viewport.go provides a scrollable text area with vertical and horizontal
// scrolling, pagination, and wrapping.
//
// Content may carry lipgloss styling; all width math is done on display
// cells so escape sequences are never split.
package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Viewport is a scrollable text area with pagination.
type Viewport struct {
	width    int
	height   int
	content  []string
	scrollY  int // first visible line (after wrapping when wrapText is set)
	scrollX  int // first visible cell column
	wrapText bool
}

// NewViewport creates a viewport with the given dimensions.
func NewViewport(width, height int) *Viewport {
	return &Viewport{
		width:  width,
		height: height,
	}
}

// SetContent replaces the viewport content.
func (v *Viewport) SetContent(content string) {
	v.SetContentLines(strings.Split(content, "\n"))
}

// SetContentLines replaces the viewport content with pre-split lines.
func (v *Viewport) SetContentLines(lines []string) {
	v.content = lines
	v.clampScroll()
}

// SetSize updates viewport dimensions.
func (v *Viewport) SetSize(width, height int) {
	v.width = max(width, 0)
	v.height = max(height, 0)
	v.clampScroll()
}

// ToggleWrap toggles text wrapping.
func (v *Viewport) ToggleWrap() {
	v.wrapText = !v.wrapText
	v.scrollX = 0
	v.clampScroll()
}

// Wrapped reports whether wrapping is on.
func (v *Viewport) Wrapped() bool { return v.wrapText }

func (v *Viewport) ScrollUp(n int) {
	v.scrollY -= n
	v.clampScroll()
}

func (v *Viewport) ScrollDown(n int) {
	v.scrollY += n
	v.clampScroll()
}

// ScrollLeft is a no-op while wrapping.
func (v *Viewport) ScrollLeft(n int) {
	if !v.wrapText {
		v.scrollX = max(v.scrollX-n, 0)
	}
}

// ScrollRight stops once the widest line's end is in view.
func (v *Viewport) ScrollRight(n int) {
	if !v.wrapText {
		v.scrollX = min(v.scrollX+n, max(v.widest()-v.width, 0))
	}
}

func (v *Viewport) PageUp() { v.ScrollUp(v.height) }

func (v *Viewport) PageDown() { v.ScrollDown(v.height) }

// Home scrolls to the top-left corner.
func (v *Viewport) Home() {
	v.scrollY = 0
	v.scrollX = 0
}

// End scrolls to the last page.
func (v *Viewport) End() {
	v.scrollY = v.maxScrollY()
}

// Offset returns the vertical and horizontal scroll position.
func (v *Viewport) Offset() (y, x int) { return v.scrollY, v.scrollX }

// Render returns the visible portion of the content, padded to the
// viewport height, with a position indicator when it overflows.
func (v *Viewport) Render() string {
	if len(v.content) == 0 {
		return ""
	}

	lines := v.lines()
	end := min(v.scrollY+v.height, len(lines))
	var visible []string
	for _, line := range lines[min(v.scrollY, end):end] {
		if !v.wrapText {
			line = ansi.Cut(line, v.scrollX, v.scrollX+v.width)
		}
		visible = append(visible, line)
	}
	for len(visible) < v.height {
		visible = append(visible, "")
	}

	content := strings.Join(visible, "\n")
	if indicator := v.scrollIndicator(len(lines)); indicator != "" {
		return lipgloss.JoinVertical(lipgloss.Left, content, indicator)
	}
	return content
}

// lines returns the content as displayed, hard-wrapped at the viewport
// width when wrapping is on.
func (v *Viewport) lines() []string {
	if !v.wrapText || v.width <= 0 {
		return v.content
	}
	var out []string
	for _, line := range v.content {
		if ansi.StringWidth(line) <= v.width {
			out = append(out, line)
			continue
		}
		out = append(out, strings.Split(ansi.Hardwrap(line, v.width, true), "\n")...)
	}
	return out
}

func (v *Viewport) widest() int {
	w := 0
	for _, line := range v.content {
		w = max(w, ansi.StringWidth(line))
	}
	return w
}

func (v *Viewport) clampScroll() {
	v.scrollY = min(max(v.scrollY, 0), v.maxScrollY())
}

func (v *Viewport) maxScrollY() int {
	return max(len(v.lines())-v.height, 0)
}

func (v *Viewport) scrollIndicator(total int) string {
	if total <= v.height {
		return ""
	}

	pct := ((v.scrollY + v.height) * 100) / total
	label := " " + strconv.Itoa(min(pct, 100)) + "% (" +
		strconv.Itoa(v.scrollY+1) + "/" + strconv.Itoa(total) + ")"
	rule := strings.Repeat("─", max(v.width-ansi.StringWidth(label), 0))
	return StyleDimmed.Render(rule + label)
}
