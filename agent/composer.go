package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DachengChen/paiask/ai"
)

// DefaultLimit is appended when neither the query nor the plan sets one.
const DefaultLimit = 1000

var (
	reDateCompare = regexp.MustCompile(`"([^"]+)"(\s*)(<=|>=|<>|!=|=|<|>)(\s*)'(\d{4}-?\d{2}-?\d{2})'`)
	reDateBetween = regexp.MustCompile(`(?i)"([^"]+)"(\s+)between\s+'([0-9/-]+)'\s+and\s+'([0-9/-]+)'`)
	reDateLike    = regexp.MustCompile(`(?i)"([^"]+)"\s+i?like\s+'([0-9-]+)%'`)
	reCountryCmp  = regexp.MustCompile(`(?i)"([^"]+)"\s*(?:i?like|=)\s*'%?([A-Za-z]{2})%?'`)
)

// QueryComposer turns a Plan into one executable read-only query.
type QueryComposer struct {
	gen          generator
	defaultLimit int
}

// NewQueryComposer creates a composer. A non-positive defaultLimit uses DefaultLimit.
func NewQueryComposer(llm Completer, log *slog.Logger, temperature float64, timeout time.Duration, defaultLimit int) *QueryComposer {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &QueryComposer{
		gen:          generator{llm: llm, log: log, timeout: timeout, temperature: temperature},
		defaultLimit: defaultLimit,
	}
}

// Compose generates the query for plan and enforces the read-only rules on
// whatever comes back. errorFeedback, when set, is the previous attempt's
// error and is passed to the generator verbatim.
func (c *QueryComposer) Compose(ctx context.Context, plan Plan, question string, schema *SchemaOverview, errorFeedback string) string {
	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nPlan:\n%s\n\nSchema:\n%s", question, marshalIndent(plan), describeSchema(planSchemaSubset(plan, schema), false))
	if errorFeedback != "" {
		fmt.Fprintf(&user, "\nThe previous query failed with this error:\n%s\n", errorFeedback)
		user.WriteString("Use only columns that exist in the schema above.\n")
	}

	raw, err := c.gen.complete(ctx, StageQueryComposer, composeSystemPrompt, user.String(), 600)
	if err != nil || strings.TrimSpace(raw) == "" {
		reason := "empty output"
		if err != nil {
			reason = err.Error()
		}
		degraded(c.gen.logger(), StageQueryComposer, reason)
		raw = fallbackQuery(plan, schema)
	}
	return c.Enforce(raw, plan, schema)
}

// Enforce applies the post-generation rules in order: strip fences and
// trailing semicolons, disable anything that is not a single SELECT/WITH,
// quote schema identifiers, make integer date comparisons numeric, make
// country comparisons exact, and append a LIMIT when missing.
func (c *QueryComposer) Enforce(raw string, plan Plan, schema *SchemaOverview) string {
	sql := strings.TrimSpace(ai.StripCodeFence(raw))
	sql = strings.TrimSpace(strings.TrimRight(sql, "; \t\r\n"))

	stmts := splitStatements(sql)
	if len(stmts) != 1 {
		first := ""
		if len(stmts) > 0 {
			first = stmts[0]
		}
		return InvalidMarker + first
	}
	sql = stmts[0]
	switch firstKeyword(sql) {
	case "select", "with":
	default:
		return InvalidMarker + sql
	}

	sql = quoteIdentifiers(sql, schema)
	sql = numericDateLiterals(sql, schema)
	sql = exactCountryMatch(sql)

	if !hasRowLimit(sql) {
		limit := plan.Limit
		if limit <= 0 {
			limit = c.defaultLimit
		}
		sql += "\nLIMIT " + strconv.Itoa(limit)
	}
	return sql
}

// isIntegerDateColumn reports whether name is a date column stored as an
// integer in the schema.
func isIntegerDateColumn(name string, schema *SchemaOverview) bool {
	if !isDateKey(name) {
		return false
	}
	_, col, ok := schema.findColumn(name)
	if !ok {
		return false
	}
	switch strings.ToLower(col.Type) {
	case "integer", "int", "int4", "int8", "bigint", "smallint", "numeric":
		return true
	}
	return false
}

func numericDateLiterals(sql string, schema *SchemaOverview) string {
	sql = reDateCompare.ReplaceAllStringFunc(sql, func(m string) string {
		g := reDateCompare.FindStringSubmatch(m)
		if !isIntegerDateColumn(g[1], schema) {
			return m
		}
		r, ok := parseDateRange(g[5])
		if !ok {
			return m
		}
		return fmt.Sprintf(`"%s"%s%s%s%d`, g[1], g[2], g[3], g[4], r.Start)
	})
	sql = reDateBetween.ReplaceAllStringFunc(sql, func(m string) string {
		g := reDateBetween.FindStringSubmatch(m)
		if !isIntegerDateColumn(g[1], schema) {
			return m
		}
		lo, okLo := parseDateRange(g[3])
		hi, okHi := parseDateRange(g[4])
		if !okLo || !okHi {
			return m
		}
		return fmt.Sprintf(`"%s"%sBETWEEN %d AND %d`, g[1], g[2], lo.Start, hi.End)
	})
	sql = reDateLike.ReplaceAllStringFunc(sql, func(m string) string {
		g := reDateLike.FindStringSubmatch(m)
		if !isIntegerDateColumn(g[1], schema) {
			return m
		}
		r, ok := parseDateRange(strings.TrimRight(g[2], "-"))
		if !ok {
			return m
		}
		return fmt.Sprintf(`"%s" BETWEEN %d AND %d`, g[1], r.Start, r.End)
	})
	return sql
}

func exactCountryMatch(sql string) string {
	return reCountryCmp.ReplaceAllStringFunc(sql, func(m string) string {
		g := reCountryCmp.FindStringSubmatch(m)
		if !isCountryKey(g[1]) {
			return m
		}
		return fmt.Sprintf(`"%s" = '%s'`, g[1], strings.ToUpper(g[2]))
	})
}

// planSchemaSubset narrows the schema to the plan's tables, or returns it
// whole when the plan names none that exist.
func planSchemaSubset(plan Plan, schema *SchemaOverview) *SchemaOverview {
	if schema == nil {
		return nil
	}
	sub := &SchemaOverview{ScannedAt: schema.ScannedAt}
	for _, name := range plan.TableNames() {
		if t, ok := schema.Lookup(name); ok {
			sub.Tables = append(sub.Tables, t)
		}
	}
	if len(sub.Tables) == 0 {
		return schema
	}
	return sub
}

// fallbackQuery builds a plain SELECT over the plan's first known table
// with its filters applied. Returns "" when the plan has no usable table.
func fallbackQuery(plan Plan, schema *SchemaOverview) string {
	var table TableDescriptor
	var cols []string
	found := false
	for _, name := range plan.TableNames() {
		if t, ok := schema.Lookup(name); ok {
			table, found = t, true
			for _, use := range plan.Tables {
				if use.Name == name {
					cols = use.Columns
				}
			}
			break
		}
	}
	if !found {
		return ""
	}

	var sel []string
	for _, c := range cols {
		if col, ok := table.Column(c); ok {
			sel = append(sel, quoteIdent(col.Name))
		}
	}
	if len(sel) == 0 {
		sel = []string{"*"}
	}
	q := "SELECT " + strings.Join(sel, ", ") + " FROM " + quoteIdent(table.Name)

	keys := make([]string, 0, len(plan.Filters))
	for k := range plan.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var where []string
	for _, k := range keys {
		col, ok := table.Column(k)
		if !ok {
			continue
		}
		if cond := filterCondition(quoteIdent(col.Name), plan.Filters[k]); cond != "" {
			where = append(where, cond)
		}
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q
}

func filterCondition(ident string, v any) string {
	switch val := v.(type) {
	case DateRange:
		return fmt.Sprintf("%s BETWEEN %d AND %d", ident, val.Start, val.End)
	case int:
		return fmt.Sprintf("%s = %d", ident, val)
	case float64:
		return fmt.Sprintf("%s = %s", ident, strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		return fmt.Sprintf("%s = %t", ident, val)
	case string:
		return fmt.Sprintf("%s = '%s'", ident, strings.ReplaceAll(val, "'", "''"))
	}
	return ""
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
