package agent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedContext() *PipelineContext {
	rows := make([]map[string]any, 14)
	for i := range rows {
		rows[i] = map[string]any{"VipLV": i, "logins": float64(i) * 1.5}
	}
	return &PipelineContext{
		ID:         "run-1",
		Question:   "logins by level",
		Schema:     sessionSchema(),
		References: []Reference{{Title: "VIP levels", Type: "glossary", Score: 0.812}},
		Intent:     Intent{Goal: "logins by level", Tables: []string{"SessionActive"}, Confidence: 0.9},
		Plan:       Plan{Tables: []TableUse{{Name: "SessionActive", Priority: 1}}, Limit: 100},
		Query:      `SELECT "VipLV", COUNT(*) AS logins FROM "SessionActive" GROUP BY "VipLV"` + "\nLIMIT 100",
		Columns:    []string{"VipLV", "logins"},
		Rows:       rows,
		Attempts:   []QueryAttempt{{Index: 0, RowCount: 14}},
		Narration:  "Level 13 is the most active.",
		Feedback:   FeedbackFor(14),
		Messages: []Message{
			{Seq: 1, Sender: StageSchemaInspector, Receiver: StageQueryRewriter, Kind: "schema_scan"},
			{Seq: 2, Sender: StageQueryRewriter, Receiver: StageTableSelector, Kind: "query_rewritten"},
			{Seq: 3, Sender: StageResultNarrator, Receiver: StageSystem, Kind: "analysis_complete"},
		},
		States:     []State{StateInit, StateSchemaScanned, StateRewritten, StateNarrated},
		StartedAt:  scanTime,
		FinishedAt: scanTime.Add(3 * time.Second),
	}
}

func TestReportSectionsInOrder(t *testing.T) {
	out := NewReport(finishedContext()).String()

	sections := []string{
		"== Agent communication ==",
		"== Intent ==",
		"== Plan ==",
		"== SQL ==",
		"== Results (14 rows) ==",
		"== Analysis ==",
		"== Reference hits ==",
		"== Execution summary ==",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, s)
		assert.Greater(t, idx, last, s)
		last = idx
	}

	assert.Contains(t, out, "[1] SchemaInspector -> QueryRewriter: schema_scan")
	assert.Contains(t, out, "... 4 more rows")
	assert.Contains(t, out, "0.812  VIP levels [glossary]")
	assert.Contains(t, out, "tables scanned: 2")
	assert.Contains(t, out, "rows processed: 14")
	assert.Contains(t, out, "final state: NARRATED")
	assert.Contains(t, out, "13.5")
	assert.NotContains(t, out, "19.5")
}

func TestReportSummary(t *testing.T) {
	r := NewReport(finishedContext())
	assert.Len(t, r.Preview, ReportPreviewRows)
	assert.Equal(t, 14, r.TotalRows)
	assert.Equal(t, ExecutionSummary{
		Stages:        4,
		Messages:      3,
		TablesScanned: 2,
		RowsProcessed: 14,
		Attempts:      1,
		FinalState:    StateNarrated,
		Duration:      3 * time.Second,
	}, r.Summary)
}

func TestReportJSON(t *testing.T) {
	b, err := NewReport(finishedContext()).JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "run-1", decoded["id"])
	assert.Equal(t, float64(14), decoded["total_rows"])
	assert.Len(t, decoded["preview"], ReportPreviewRows)
	plan := decoded["plan"].(map[string]any)
	assert.Equal(t, float64(100), plan["limit"])
}

func TestReportEmptyResult(t *testing.T) {
	pc := finishedContext()
	pc.Rows, pc.Columns = nil, nil
	out := NewReport(pc).String()
	assert.Contains(t, out, "== Results (0 rows) ==\n(no rows)\n")
}
