package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// intentOutput is the shape the rewriter asks the generator for.
type intentOutput struct {
	Goal             string              `json:"goal" jsonschema:"one sentence describing what the user wants"`
	AvailableTables  []string            `json:"available_tables" jsonschema:"tables from the schema that can answer the question"`
	AvailableColumns map[string][]string `json:"available_columns" jsonschema:"table name to the columns needed from it"`
	Filters          map[string]any      `json:"filters" jsonschema:"column to value; dates as YYYYMMDD integers or {start,end}; country as 2-letter code"`
	Metrics          []string            `json:"metrics" jsonschema:"aggregations or measures requested"`
	Hints            []string            `json:"hints" jsonschema:"anything else useful for planning"`
	Confidence       float64             `json:"confidence" jsonschema:"0 to 1"`
}

type tableOutput struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	Priority int      `json:"priority" jsonschema:"1 is the driving table"`
}

type joinOutput struct {
	Left  string `json:"left" jsonschema:"table.column"`
	Right string `json:"right" jsonschema:"table.column"`
	Type  string `json:"type" jsonschema:"INNER or LEFT"`
}

// planOutput is the shape the table selector asks the generator for.
type planOutput struct {
	Tables       []tableOutput  `json:"tables"`
	Joins        []joinOutput   `json:"joins"`
	Filters      map[string]any `json:"filters"`
	Limit        int            `json:"limit"`
	Confidence   float64        `json:"confidence"`
	Reason       string         `json:"reason"`
	SchemaIssues []string       `json:"schema_issues"`
	Alternatives []string       `json:"alternatives"`
}

var (
	intentSchema = sync.OnceValue(func() string { return schemaText[intentOutput]() })
	planSchema   = sync.OnceValue(func() string { return schemaText[planOutput]() })
)

// schemaText renders the JSON schema for T, or "" if it cannot be derived.
func schemaText[T any]() string {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return ""
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func withSchema(instructions, schema string) string {
	if schema == "" {
		return instructions
	}
	return instructions + "\n\nRespond with a single JSON object matching this schema:\n" + schema
}

const rewriteSystemPrompt = `You translate analytics questions into a structured intent over a PostgreSQL schema.
Rules:
- Only use table and column names that appear in the schema.
- Dates stored as integers use YYYYMMDD. Express a single day as 20241015 and a period as {"start":20241001,"end":20241031}.
- Countries are ISO 3166 alpha-2 codes in upper case, e.g. "TW".
- Output JSON only. No commentary.`

const decideSystemPrompt = `You choose the tables, columns and joins needed to answer an analytics intent over a PostgreSQL schema.
Rules:
- Only use tables and columns listed in the schema.
- Join sides are written as table.column.
- Order tables by priority, 1 first.
- Report anything in the intent that the schema cannot satisfy in schema_issues.
- Output JSON only. No commentary.`

const composeSystemPrompt = `You write one PostgreSQL SELECT statement for an analytics plan.
Rules:
- Exactly one statement, starting with SELECT or WITH. No semicolons.
- Double-quote every table and column identifier, e.g. "SessionActive"."LoginDate".
- Date columns stored as integers (YYYYMMDD) are compared numerically, e.g. "LoginDate" BETWEEN 20241001 AND 20241031. Never compare them to strings.
- Country columns use exact equality with the upper-case 2-letter code, e.g. "Country" = 'TW'.
- Include a LIMIT clause.
- Output SQL only.`

func narrateSystemPrompt(language string) string {
	if language == "" {
		language = "English"
	}
	return "You are a data analyst. Summarise query results for a business reader in " + language + `.
Rules:
- Lead with the direct answer, then notable patterns.
- Quote concrete numbers from the rows.
- Keep it under 200 words.
- If there are no rows, explain the most likely reasons.`
}

// describeSchema renders the overview compactly for prompts.
func describeSchema(schema *SchemaOverview, withSamples bool) string {
	if schema == nil || len(schema.Tables) == 0 {
		return "(schema unavailable)"
	}
	var sb strings.Builder
	for _, t := range schema.Tables {
		fmt.Fprintf(&sb, "TABLE %q (~%d rows)\n", t.Name, t.RowCount)
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "  %q %s\n", c.Name, c.Type)
		}
		if withSamples && len(t.Sample) > 0 {
			b, err := json.Marshal(t.Sample)
			if err == nil {
				fmt.Fprintf(&sb, "  sample: %s\n", b)
			}
		}
	}
	return sb.String()
}
