package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteRestrictsToSchema(t *testing.T) {
	llm := newScripted().on(StageQueryRewriter, `Sure:
{"goal":" players per country ","available_tables":["players","Logins"],
 "available_columns":{"Players":["country","Nickname"],"Ghost":["x"],"SessionActive":["VipLV"]},
 "filters":{"registerdate":{"start":"2024-01","end":"2024-03"},"Platform":"ios"},
 "metrics":["count", ""],"confidence":0.8}`)
	r := NewQueryRewriter(llm, testLog, 0.1, time.Second)

	in := r.Rewrite(context.Background(), "players per country", sessionSchema(), "")

	assert.Equal(t, "players per country", in.Goal)
	assert.Equal(t, []string{"Players", "SessionActive"}, in.Tables)
	assert.Equal(t, map[string][]string{"Players": {"Country"}, "SessionActive": {"VipLV"}}, in.Columns)
	assert.Equal(t, map[string]any{"RegisterDate": DateRange{Start: 20240101, End: 20240331}}, in.Filters)
	assert.Equal(t, []string{"filter on unknown column: Platform=ios"}, in.Hints)
	assert.Equal(t, []string{"count"}, in.Metrics)
	assert.Equal(t, 0.8, in.Confidence)
	assert.False(t, in.Degraded)
}

func TestRewriteAcceptsShortKeys(t *testing.T) {
	llm := newScripted().on(StageQueryRewriter, `{"goal":"g","tables":["Players"],"columns":{"Players":["PlayerID"]}}`)
	r := NewQueryRewriter(llm, testLog, 0.1, time.Second)

	in := r.Rewrite(context.Background(), "q", sessionSchema(), "")
	assert.Equal(t, []string{"Players"}, in.Tables)
	assert.Equal(t, map[string][]string{"Players": {"PlayerID"}}, in.Columns)
}

func TestRewriteDegrades(t *testing.T) {
	tests := []struct {
		name string
		llm  *scriptedCompleter
		hint string
	}{
		{"prose", newScripted().on(StageQueryRewriter, "Let me think about that."), "Let me think about that."},
		{"broken json", newScripted().on(StageQueryRewriter, `{"goal": 12}`), `{"goal": 12}`},
		{"service error", newScripted().fail(StageQueryRewriter, errors.New("upstream 503")), "upstream 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewQueryRewriter(tt.llm, testLog, 0.1, time.Second)
			in := r.Rewrite(context.Background(), "how many VIPs?", sessionSchema(), "")

			assert.True(t, in.Degraded)
			assert.Equal(t, "how many VIPs?", in.Goal)
			assert.Equal(t, []string{"SessionActive", "Players"}, in.Tables)
			assert.Equal(t, sessionSchema().ColumnMap(), in.Columns)
			assert.Empty(t, in.Filters)
			assert.Equal(t, DegradedIntentConfidence, in.Confidence)
			assert.Equal(t, []string{tt.hint}, in.Hints)
		})
	}
}

func TestRefine(t *testing.T) {
	prev := Intent{Goal: "old", Tables: []string{"Players"}, Confidence: 0.5}
	pc := &PipelineContext{Question: "q", Schema: sessionSchema(), Intent: prev}

	t.Run("replaces intent", func(t *testing.T) {
		llm := newScripted().on(StageQueryRewriter, `{"goal":"new","available_tables":["SessionActive"],"confidence":0.7}`)
		r := NewQueryRewriter(llm, testLog, 0.1, time.Second)

		got := r.Refine(context.Background(), pc, []string{`table "Logins" does not exist`})
		assert.Equal(t, "new", got.Goal)
		assert.Equal(t, []string{"SessionActive"}, got.Tables)
		assert.True(t, got.Refined)

		p := llm.prompt(StageQueryRewriter, 0)
		assert.Contains(t, p, `table "Logins" does not exist`)
		assert.Contains(t, p, `"goal": "old"`)
	})

	t.Run("keeps previous on garbage", func(t *testing.T) {
		llm := newScripted().on(StageQueryRewriter, "no idea")
		r := NewQueryRewriter(llm, testLog, 0.1, time.Second)
		assert.Equal(t, prev, r.Refine(context.Background(), pc, []string{"x"}))
	})

	t.Run("keeps previous on timeout", func(t *testing.T) {
		r := NewQueryRewriter(blockingCompleter{}, testLog, 0.1, 10*time.Millisecond)
		assert.Equal(t, prev, r.Refine(context.Background(), pc, []string{"x"}))
	})
}

func TestRewritePromptIncludesSchemaAndSamples(t *testing.T) {
	llm := newScripted().on(StageQueryRewriter, `{"goal":"g"}`)
	r := NewQueryRewriter(llm, testLog, 0.1, time.Second)
	r.Rewrite(context.Background(), "q", sessionSchema(), "# glossary\n")

	require.Equal(t, 1, llm.calls(StageQueryRewriter))
	p := llm.prompt(StageQueryRewriter, 0)
	assert.Contains(t, p, `TABLE "SessionActive" (~120000 rows)`)
	assert.Contains(t, p, `"LoginDate" integer`)
	assert.Contains(t, p, `sample: [{"Country":"TW","LoginDate":20241003,"VipLV":2}]`)
	assert.Contains(t, p, "Reference notes:\n# glossary")
}
