package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DachengChen/paiask/ai"
)

// DegradedPlanConfidence is the confidence of a fallback Plan.
const DegradedPlanConfidence = 0.1

// TableSelector turns an Intent into a concrete Plan and checks plans
// against the schema.
type TableSelector struct {
	gen          generator
	defaultLimit int
}

// NewTableSelector creates a selector. defaultLimit is the row limit of a
// fallback plan.
func NewTableSelector(llm Completer, log *slog.Logger, temperature float64, timeout time.Duration, defaultLimit int) *TableSelector {
	return &TableSelector{
		gen:          generator{llm: llm, log: log, timeout: timeout, temperature: temperature},
		defaultLimit: defaultLimit,
	}
}

// Decide produces a Plan for intent. notes carry extra context for a
// re-plan, such as the execution error that triggered it.
func (s *TableSelector) Decide(ctx context.Context, intent Intent, schema *SchemaOverview, notes ...string) Plan {
	var user strings.Builder
	fmt.Fprintf(&user, "Intent:\n%s\n\nSchema:\n%s", marshalIndent(intent), describeSchema(schema, false))
	if len(notes) > 0 {
		user.WriteString("\nThe previous plan failed at execution:\n")
		for _, n := range notes {
			fmt.Fprintf(&user, "- %s\n", n)
		}
		user.WriteString("Choose only tables and columns that exist in the schema.\n")
	}

	raw, err := s.gen.complete(ctx, StageTableSelector, withSchema(decideSystemPrompt, planSchema()), user.String(), 800)
	if err != nil {
		degraded(s.gen.logger(), StageTableSelector, err.Error())
		return s.degradedPlan(err.Error(), "")
	}
	plan, err := parsePlan(raw, intent, schema)
	if err != nil {
		degraded(s.gen.logger(), StageTableSelector, err.Error())
		return s.degradedPlan(err.Error(), raw)
	}
	return plan
}

// Validate checks the plan against the schema without executing anything.
func (s *TableSelector) Validate(plan Plan, schema *SchemaOverview) ValidationResult {
	return ValidatePlan(plan, schema)
}

// ValidatePlan reports every table, column or join reference in plan that
// the schema cannot satisfy.
func ValidatePlan(plan Plan, schema *SchemaOverview) ValidationResult {
	var issues []string
	if len(plan.Tables) == 0 {
		issues = append(issues, "plan selects no tables")
	}
	for _, t := range plan.Tables {
		td, ok := schema.Lookup(t.Name)
		if !ok {
			issues = append(issues, fmt.Sprintf("table %q does not exist", t.Name))
			continue
		}
		for _, c := range t.Columns {
			if _, ok := td.Column(c); !ok {
				issues = append(issues, fmt.Sprintf("column %q does not exist in table %q", c, td.Name))
			}
		}
	}
	for _, j := range plan.Joins {
		for _, side := range []string{j.Left, j.Right} {
			table, column, ok := splitQualified(side)
			if !ok {
				issues = append(issues, fmt.Sprintf("join reference %q is not table.column", side))
				continue
			}
			if _, exists := schema.Lookup(table); !exists {
				issues = append(issues, fmt.Sprintf("join reference %q names unknown table %q", side, table))
				continue
			}
			if !schema.HasColumn(table, column) {
				issues = append(issues, fmt.Sprintf("join reference %q names unknown column %q", side, column))
			}
		}
	}
	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// splitQualified splits "table.column" into exactly two non-empty parts.
func splitQualified(ref string) (string, string, bool) {
	parts := strings.Split(strings.TrimSpace(ref), ".")
	if len(parts) != 2 {
		return "", "", false
	}
	table := strings.Trim(strings.TrimSpace(parts[0]), `"`)
	column := strings.Trim(strings.TrimSpace(parts[1]), `"`)
	if table == "" || column == "" {
		return "", "", false
	}
	return table, column, true
}

// parsePlan decodes generator output. Names are canonicalized to the
// schema's spelling but unknown names are kept so Validate can report them.
func parsePlan(raw string, intent Intent, schema *SchemaOverview) (Plan, error) {
	body := ai.ExtractJSON(raw)
	if body == "" {
		return Plan{}, fmt.Errorf("no JSON object in selector output")
	}
	var out planOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}

	plan := Plan{
		Limit:        out.Limit,
		Confidence:   clamp01(out.Confidence),
		Rationale:    strings.TrimSpace(out.Reason),
		SchemaIssues: nonEmpty(out.SchemaIssues),
		Alternatives: nonEmpty(out.Alternatives),
		Raw:          raw,
	}
	if plan.Limit < 0 {
		plan.Limit = 0
	}
	for i, t := range out.Tables {
		use := TableUse{Name: strings.TrimSpace(t.Name), Priority: t.Priority}
		if use.Priority <= 0 {
			use.Priority = i + 1
		}
		td, known := schema.Lookup(use.Name)
		if known {
			use.Name = td.Name
		}
		for _, c := range t.Columns {
			c = strings.TrimSpace(c)
			if known {
				if col, ok := td.Column(c); ok {
					c = col.Name
				}
			}
			use.Columns = append(use.Columns, c)
		}
		plan.Tables = append(plan.Tables, use)
	}
	for _, j := range out.Joins {
		plan.Joins = append(plan.Joins, JoinSpec{
			Left:  canonicalRef(j.Left, schema),
			Right: canonicalRef(j.Right, schema),
			Kind:  strings.ToUpper(strings.TrimSpace(j.Type)),
		})
	}

	var unknown []string
	plan.Filters, unknown = normalizeFilters(out.Filters, schema)
	for _, f := range unknown {
		plan.SchemaIssues = append(plan.SchemaIssues, "filter on unknown column dropped: "+f)
	}
	if len(plan.Filters) == 0 && len(intent.Filters) > 0 {
		plan.Filters = intent.Filters
	}
	return plan, nil
}

func canonicalRef(ref string, schema *SchemaOverview) string {
	table, column, ok := splitQualified(ref)
	if !ok {
		return strings.TrimSpace(ref)
	}
	td, found := schema.Lookup(table)
	if !found {
		return table + "." + column
	}
	if col, ok := td.Column(column); ok {
		column = col.Name
	}
	return td.Name + "." + column
}

func (s *TableSelector) degradedPlan(reason, raw string) Plan {
	return Plan{
		Filters:    map[string]any{},
		Limit:      s.defaultLimit,
		Confidence: DegradedPlanConfidence,
		Rationale:  reason,
		Raw:        raw,
		Degraded:   true,
	}
}
