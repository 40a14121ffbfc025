package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/DachengChen/paiask/ai"
)

// DegradedIntentConfidence is the confidence of a fallback Intent.
const DegradedIntentConfidence = 0.3

// QueryRewriter turns a question into a structured Intent.
type QueryRewriter struct {
	gen generator
}

// NewQueryRewriter creates a rewriter. timeout bounds each completion call.
func NewQueryRewriter(llm Completer, log *slog.Logger, temperature float64, timeout time.Duration) *QueryRewriter {
	return &QueryRewriter{gen: generator{llm: llm, log: log, timeout: timeout, temperature: temperature}}
}

// Rewrite produces an Intent for question. Unusable generator output
// yields the degraded Intent, never an error.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, schema *SchemaOverview, referenceText string) Intent {
	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nSchema:\n%s", question, describeSchema(schema, true))
	if referenceText != "" {
		fmt.Fprintf(&user, "\nReference notes:\n%s\n", referenceText)
	}

	raw, err := r.gen.complete(ctx, StageQueryRewriter, withSchema(rewriteSystemPrompt, intentSchema()), user.String(), 800)
	if err != nil {
		degraded(r.gen.logger(), StageQueryRewriter, err.Error())
		return degradedIntent(question, schema, err.Error())
	}
	intent, err := parseIntent(raw, question, schema)
	if err != nil {
		degraded(r.gen.logger(), StageQueryRewriter, err.Error())
		return degradedIntent(question, schema, raw)
	}
	return intent
}

// Refine re-runs rewriting with the previous Intent and the issues that
// made its plan invalid. On unusable output the previous Intent is
// returned unchanged.
func (r *QueryRewriter) Refine(ctx context.Context, pc *PipelineContext, issues []string) Intent {
	prev := pc.Intent

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nSchema:\n%s", pc.Question, describeSchema(pc.Schema, false))
	fmt.Fprintf(&user, "\nPrevious intent:\n%s\n", marshalIndent(prev))
	user.WriteString("\nThe plan built from it was rejected:\n")
	for _, issue := range issues {
		fmt.Fprintf(&user, "- %s\n", issue)
	}
	user.WriteString("\nReturn a corrected intent that uses only tables and columns present in the schema.\n")

	raw, err := r.gen.complete(ctx, StageQueryRewriter, withSchema(rewriteSystemPrompt, intentSchema()), user.String(), 800)
	if err != nil {
		r.gen.logger().Warn("refinement kept previous intent", "error", err)
		return prev
	}
	intent, err := parseIntent(raw, pc.Question, pc.Schema)
	if err != nil {
		r.gen.logger().Warn("refinement kept previous intent", "error", err)
		return prev
	}
	intent.Refined = true
	return intent
}

// parseIntent decodes generator output and restricts it to the schema.
func parseIntent(raw, question string, schema *SchemaOverview) (Intent, error) {
	body := ai.ExtractJSON(raw)
	if body == "" {
		return Intent{}, fmt.Errorf("no JSON object in rewriter output")
	}
	var out struct {
		intentOutput
		// Older prompts asked for "tables"/"columns".
		Tables  []string            `json:"tables"`
		Columns map[string][]string `json:"columns"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}

	tables := out.AvailableTables
	if len(tables) == 0 {
		tables = out.Tables
	}
	columns := out.AvailableColumns
	if len(columns) == 0 {
		columns = out.Columns
	}

	filters, unknown := normalizeFilters(out.Filters, schema)
	intent := Intent{
		Goal:       strings.TrimSpace(out.Goal),
		Metrics:    nonEmpty(out.Metrics),
		Hints:      nonEmpty(out.Hints),
		Confidence: clamp01(out.Confidence),
		Filters:    filters,
	}
	for _, f := range unknown {
		intent.Hints = append(intent.Hints, "filter on unknown column: "+f)
	}
	if intent.Goal == "" {
		intent.Goal = question
	}
	intent.Tables, intent.Columns = restrictToSchema(tables, columns, schema)
	return intent, nil
}

// restrictToSchema canonicalizes table and column names and drops any the
// schema does not contain. Tables named only through columns are added.
func restrictToSchema(tables []string, columns map[string][]string, schema *SchemaOverview) ([]string, map[string][]string) {
	seen := make(map[string]bool)
	var outTables []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			outTables = append(outTables, name)
		}
	}
	for _, name := range tables {
		if t, ok := schema.Lookup(strings.TrimSpace(name)); ok {
			add(t.Name)
		}
	}

	outColumns := make(map[string][]string)
	keys := make([]string, 0, len(columns))
	for table := range columns {
		keys = append(keys, table)
	}
	slices.Sort(keys)
	for _, table := range keys {
		t, ok := schema.Lookup(strings.TrimSpace(table))
		if !ok {
			continue
		}
		for _, c := range columns[table] {
			if col, ok := t.Column(strings.TrimSpace(c)); ok && !slices.Contains(outColumns[t.Name], col.Name) {
				outColumns[t.Name] = append(outColumns[t.Name], col.Name)
			}
		}
		add(t.Name)
	}
	return outTables, outColumns
}

func degradedIntent(question string, schema *SchemaOverview, raw string) Intent {
	return Intent{
		Goal:       question,
		Tables:     schema.TableNames(),
		Columns:    schema.ColumnMap(),
		Filters:    map[string]any{},
		Hints:      []string{raw},
		Confidence: DegradedIntentConfidence,
		Degraded:   true,
	}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
