package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ReportPreviewRows is how many result rows a report shows.
const ReportPreviewRows = 10

// ExecutionSummary counts what a run did.
type ExecutionSummary struct {
	Stages        int           `json:"stages"`
	Messages      int           `json:"messages"`
	TablesScanned int           `json:"tables_scanned"`
	RowsProcessed int           `json:"rows_processed"`
	Attempts      int           `json:"attempts"`
	Refinements   int           `json:"refinements"`
	FinalState    State         `json:"final_state"`
	Duration      time.Duration `json:"duration"`
}

// Report is the complete answer to one question.
type Report struct {
	ID         string           `json:"id"`
	Question   string           `json:"question"`
	Messages   []Message        `json:"messages"`
	Intent     Intent           `json:"intent"`
	Plan       Plan             `json:"plan"`
	Query      string           `json:"query"`
	Columns    []string         `json:"columns"`
	Preview    []map[string]any `json:"preview"`
	TotalRows  int              `json:"total_rows"`
	Narration  string           `json:"narration"`
	References []Reference      `json:"references"`
	Feedback   Feedback         `json:"feedback"`
	Attempts   []QueryAttempt   `json:"attempts"`
	Summary    ExecutionSummary `json:"summary"`
}

// NewReport builds the report for a finished run.
func NewReport(pc *PipelineContext) *Report {
	stages := make(map[Stage]bool)
	for _, m := range pc.Messages {
		for _, s := range []Stage{m.Sender, m.Receiver} {
			if s != StageSystem {
				stages[s] = true
			}
		}
	}
	tables := 0
	if pc.Schema != nil {
		tables = len(pc.Schema.Tables)
	}
	return &Report{
		ID:         pc.ID,
		Question:   pc.Question,
		Messages:   pc.Messages,
		Intent:     pc.Intent,
		Plan:       pc.Plan,
		Query:      pc.Query,
		Columns:    pc.Columns,
		Preview:    pc.Rows[:min(len(pc.Rows), ReportPreviewRows)],
		TotalRows:  len(pc.Rows),
		Narration:  pc.Narration,
		References: pc.References,
		Feedback:   pc.Feedback,
		Attempts:   pc.Attempts,
		Summary: ExecutionSummary{
			Stages:        len(stages),
			Messages:      len(pc.Messages),
			TablesScanned: tables,
			RowsProcessed: len(pc.Rows),
			Attempts:      len(pc.Attempts),
			Refinements:   pc.Refinements,
			FinalState:    pc.State(),
			Duration:      pc.FinishedAt.Sub(pc.StartedAt),
		},
	}
}

// JSON returns the indented machine-readable form.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String renders the text report.
func (r *Report) String() string {
	var sb strings.Builder
	section := func(title string) {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "== %s ==\n", title)
	}

	section("Agent communication")
	for _, m := range r.Messages {
		fmt.Fprintf(&sb, "[%d] %s -> %s: %s\n", m.Seq, m.Sender, m.Receiver, m.Kind)
	}

	section("Intent")
	sb.WriteString(marshalIndent(r.Intent) + "\n")

	section("Plan")
	sb.WriteString(marshalIndent(r.Plan) + "\n")

	section("SQL")
	sb.WriteString(r.Query + "\n")

	section(fmt.Sprintf("Results (%d rows)", r.TotalRows))
	if len(r.Preview) == 0 {
		sb.WriteString("(no rows)\n")
	} else {
		r.renderPreview(&sb)
		if r.TotalRows > len(r.Preview) {
			fmt.Fprintf(&sb, "... %d more rows\n", r.TotalRows-len(r.Preview))
		}
	}

	section("Analysis")
	sb.WriteString(r.Narration + "\n")

	section("Reference hits")
	if len(r.References) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, ref := range r.References {
		fmt.Fprintf(&sb, "%.3f  %s [%s]\n", ref.Score, ref.Title, ref.Type)
	}

	section("Execution summary")
	s := r.Summary
	fmt.Fprintf(&sb, "stages: %d\nmessages: %d\ntables scanned: %d\nrows processed: %d\nattempts: %d\nrefinements: %d\nfinal state: %s\n",
		s.Stages, s.Messages, s.TablesScanned, s.RowsProcessed, s.Attempts, s.Refinements, s.FinalState)
	fmt.Fprintf(&sb, "quality: %s\n", r.Feedback.Quality)
	for _, sug := range r.Feedback.Suggestions {
		fmt.Fprintf(&sb, "  - %s\n", sug)
	}
	return sb.String()
}

func (r *Report) renderPreview(sb *strings.Builder) {
	table := tablewriter.NewWriter(sb)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(r.Columns)
	for _, row := range r.Preview {
		cells := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			cells[i] = formatCell(row[col])
		}
		table.Append(cells)
	}
	table.Render()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
	case time.Time:
		return val.Format(time.DateTime)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
