package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultPreviewRows caps the rows shown to the narrator.
	DefaultPreviewRows = 50
	// narrationTail is how many recent messages the narrator sees.
	narrationTail = 3
)

// ResultNarrator summarises a finished run.
type ResultNarrator struct {
	gen         generator
	language    string
	previewRows int
}

// NewResultNarrator creates a narrator writing in language.
func NewResultNarrator(llm Completer, log *slog.Logger, temperature float64, timeout time.Duration, language string, previewRows int) *ResultNarrator {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &ResultNarrator{
		gen:         generator{llm: llm, log: log, timeout: timeout, temperature: temperature},
		language:    language,
		previewRows: previewRows,
	}
}

// Narrate returns the finding for pc. With zero rows the text always ends
// with the likely causes of the empty result.
func (n *ResultNarrator) Narrate(ctx context.Context, pc *PipelineContext) string {
	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nSQL:\n%s\n\nTotal rows: %d\n", pc.Question, pc.Query, len(pc.Rows))
	if len(pc.Rows) > 0 {
		preview := pc.Rows[:min(len(pc.Rows), n.previewRows)]
		b, err := json.Marshal(preview)
		if err == nil {
			fmt.Fprintf(&user, "Rows (first %d):\n%s\n", len(preview), b)
		}
	}
	if e := pc.LastError(); e != nil {
		fmt.Fprintf(&user, "Last execution error: %s\n", e.Message)
	}
	if tail := pc.Tail(narrationTail); len(tail) > 0 {
		user.WriteString("\nRecent pipeline events:\n")
		for _, m := range tail {
			fmt.Fprintf(&user, "- %s -> %s: %s\n", m.Sender, m.Receiver, m.Kind)
		}
	}

	text, err := n.gen.complete(ctx, StageResultNarrator, narrateSystemPrompt(n.language), user.String(), 700)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		reason := "empty output"
		if err != nil {
			reason = err.Error()
		}
		degraded(n.gen.logger(), StageResultNarrator, reason)
		if len(pc.Rows) == 0 {
			return zeroRowCauses(pc)
		}
		return summariseRows(pc)
	}
	if len(pc.Rows) == 0 {
		return text + "\n\n" + zeroRowCauses(pc)
	}
	return text
}

// Feedback grades the run by row count.
func (n *ResultNarrator) Feedback(pc *PipelineContext) Feedback {
	return FeedbackFor(len(pc.Rows))
}

// FeedbackFor applies the row-count rules.
func FeedbackFor(rows int) Feedback {
	fb := Feedback{Quality: "good", RowCount: rows, Suggestions: []string{}}
	switch {
	case rows == 0:
		fb.Quality = "poor"
		fb.Suggestions = append(fb.Suggestions,
			"Widen the filters or the date range.",
			"Verify the table and column mappings against the schema.")
	case rows < 10:
		fb.Suggestions = append(fb.Suggestions, "Broaden the query criteria to get more data.")
	}
	return fb
}

// zeroRowCauses explains an empty result deterministically.
func zeroRowCauses(pc *PipelineContext) string {
	var sb strings.Builder
	sb.WriteString("Likely causes of the empty result:\n")

	dateDesc := "integer YYYYMMDD date columns"
	filterDesc := "the filter values"
	if filters := pc.Plan.Filters; len(filters) > 0 || len(pc.Intent.Filters) > 0 {
		if len(filters) == 0 {
			filters = pc.Intent.Filters
		}
		var dates, values []string
		for _, k := range sortedKeys(filters) {
			if isDateKey(k) {
				dates = append(dates, fmt.Sprintf("%s=%v", k, describeFilterValue(filters[k])))
			} else {
				values = append(values, fmt.Sprintf("%s=%v", k, describeFilterValue(filters[k])))
			}
		}
		if len(dates) > 0 {
			dateDesc = strings.Join(dates, ", ")
		}
		if len(values) > 0 {
			filterDesc = strings.Join(values, ", ")
		}
	}
	fmt.Fprintf(&sb, "- Date-column mismatch: check that %s covers data actually present and is compared numerically.\n", dateDesc)
	fmt.Fprintf(&sb, "- Filter-value mismatch: %s may not match the stored values exactly (codes, case, spelling).\n", filterDesc)

	if e := pc.LastError(); e != nil {
		switch e.Kind {
		case ErrorSchemaAbsence:
			fmt.Fprintf(&sb, "- Column or table mismatch: the query referenced something the schema does not have: %s\n", e.Message)
		default:
			fmt.Fprintf(&sb, "- The query could not be executed (%s): %s\n", e.Kind, e.Message)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func summariseRows(pc *PipelineContext) string {
	return fmt.Sprintf("The query returned %d rows with columns %s.", len(pc.Rows), strings.Join(pc.Columns, ", "))
}

func describeFilterValue(v any) string {
	if r, ok := v.(DateRange); ok {
		return fmt.Sprintf("%d..%d", r.Start, r.End)
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
