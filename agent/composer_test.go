package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforce(t *testing.T) {
	c := NewQueryComposer(nil, testLog, 0, 0, 0)
	schema := sessionSchema()
	plan := Plan{Limit: 200}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "quotes identifiers and appends plan limit",
			raw:  "select viplv, count(*) from sessionactive group by viplv",
			want: "select \"VipLV\", count(*) from \"SessionActive\" group by \"VipLV\"\nLIMIT 200",
		},
		{
			name: "keeps existing limit",
			raw:  `SELECT "VipLV" FROM "SessionActive" LIMIT 5`,
			want: `SELECT "VipLV" FROM "SessionActive" LIMIT 5`,
		},
		{
			name: "limit inside a cte still gets an outer limit",
			raw:  `WITH top AS (SELECT VipLV FROM SessionActive ORDER BY VipLV DESC LIMIT 3) SELECT * FROM top`,
			want: `WITH top AS (SELECT "VipLV" FROM "SessionActive" ORDER BY "VipLV" DESC LIMIT 3) SELECT * FROM top` + "\nLIMIT 200",
		},
		{
			name: "limit inside a subquery still gets an outer limit",
			raw:  `SELECT * FROM (SELECT VipLV FROM SessionActive LIMIT 5) s`,
			want: `SELECT * FROM (SELECT "VipLV" FROM "SessionActive" LIMIT 5) s` + "\nLIMIT 200",
		},
		{
			name: "fetch first counts as a limit",
			raw:  `SELECT VipLV FROM SessionActive ORDER BY VipLV FETCH FIRST 10 ROWS ONLY`,
			want: `SELECT "VipLV" FROM "SessionActive" ORDER BY "VipLV" FETCH FIRST 10 ROWS ONLY`,
		},
		{
			name: "strips fence and trailing semicolons",
			raw:  "```sql\nSELECT 1 AS one;;\n```",
			want: "SELECT 1 AS one\nLIMIT 200",
		},
		{
			name: "string date compared to integer column",
			raw:  `SELECT * FROM SessionActive WHERE LoginDate >= '2024-10-01' AND LoginDate < '20241101'`,
			want: `SELECT * FROM "SessionActive" WHERE "LoginDate" >= 20241001 AND "LoginDate" < 20241101` + "\nLIMIT 200",
		},
		{
			name: "month like on integer date becomes range",
			raw:  `SELECT COUNT(*) FROM SessionActive WHERE LoginDate LIKE '2024-10%'`,
			want: `SELECT COUNT(*) FROM "SessionActive" WHERE "LoginDate" BETWEEN 20241001 AND 20241031` + "\nLIMIT 200",
		},
		{
			name: "country ilike becomes exact code",
			raw:  `SELECT * FROM SessionActive s WHERE s.Country ILIKE '%tw%'`,
			want: `SELECT * FROM "SessionActive" s WHERE s."Country" = 'TW'` + "\nLIMIT 200",
		},
		{
			name: "string literals and casts untouched",
			raw:  `SELECT 'Country' AS label, VipLV::text FROM SessionActive`,
			want: `SELECT 'Country' AS label, "VipLV"::text FROM "SessionActive"` + "\nLIMIT 200",
		},
		{
			name: "with clause allowed",
			raw:  `WITH t AS (SELECT VipLV FROM SessionActive) SELECT * FROM t`,
			want: `WITH t AS (SELECT "VipLV" FROM "SessionActive") SELECT * FROM t` + "\nLIMIT 200",
		},
		{
			name: "non select disabled",
			raw:  `DELETE FROM SessionActive`,
			want: InvalidMarker + `DELETE FROM SessionActive`,
		},
		{
			name: "multiple statements disabled",
			raw:  `SELECT 1; DROP TABLE SessionActive`,
			want: InvalidMarker + `SELECT 1`,
		},
		{
			name: "prose disabled",
			raw:  `I could not write a query for that.`,
			want: InvalidMarker + `I could not write a query for that.`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Enforce(tt.raw, plan, schema))
		})
	}
}

func TestEnforceDefaultLimit(t *testing.T) {
	c := NewQueryComposer(nil, testLog, 0, 0, 0)
	assert.Equal(t, "SELECT 1\nLIMIT 1000", c.Enforce("SELECT 1", Plan{}, nil))

	c = NewQueryComposer(nil, testLog, 0, 0, 25)
	assert.Equal(t, "SELECT 1\nLIMIT 25", c.Enforce("SELECT 1", Plan{}, nil))
}

func TestEnforceInvariants(t *testing.T) {
	c := NewQueryComposer(nil, testLog, 0, 0, 0)
	inputs := []string{
		"SELECT * FROM SessionActive;",
		"  with x as (select 1) select * from x ;  ",
		"```\nSELECT Country FROM Players\n```",
		"(SELECT 1) UNION (SELECT 2)",
		"SELECT ';' AS semi FROM Players",
	}
	for _, in := range inputs {
		out := c.Enforce(in, Plan{}, sessionSchema())
		assert.True(t, IsReadOnlyStatement(out), out)
		assert.True(t, hasRowLimit(out), out)
		assert.Len(t, splitStatements(out), 1, out)
		assert.False(t, strings.HasSuffix(strings.TrimSpace(out), ";"), out)
	}
}

func TestComposeFallsBackToPlanQuery(t *testing.T) {
	llm := newScripted().fail(StageQueryComposer, errors.New("overloaded"))
	c := NewQueryComposer(llm, testLog, 0, time.Second, 0)
	plan := Plan{
		Tables:  []TableUse{{Name: "SessionActive", Columns: []string{"VipLV", "Country"}, Priority: 1}},
		Filters: map[string]any{"LoginDate": DateRange{Start: 20241001, End: 20241031}, "Country": "TW"},
		Limit:   10,
	}

	got := c.Compose(context.Background(), plan, "q", sessionSchema(), "")
	assert.Equal(t, `SELECT "VipLV", "Country" FROM "SessionActive" WHERE "Country" = 'TW' AND "LoginDate" BETWEEN 20241001 AND 20241031`+"\nLIMIT 10", got)
}

func TestComposeRetryPromptCarriesError(t *testing.T) {
	llm := newScripted().on(StageQueryComposer, "SELECT 1")
	c := NewQueryComposer(llm, testLog, 0, time.Second, 0)

	c.Compose(context.Background(), Plan{}, "q", sessionSchema(), `column "Regoin" does not exist`)
	require.Equal(t, 1, llm.calls(StageQueryComposer))
	p := llm.prompt(StageQueryComposer, 0)
	assert.Contains(t, p, `column "Regoin" does not exist`)
	assert.Contains(t, p, "Use only columns that exist in the schema above.")
}

func TestPlanSchemaSubset(t *testing.T) {
	schema := sessionSchema()
	sub := planSchemaSubset(Plan{Tables: []TableUse{{Name: "Players"}}}, schema)
	assert.Equal(t, []string{"Players"}, sub.TableNames())

	whole := planSchemaSubset(Plan{Tables: []TableUse{{Name: "Nope"}}}, schema)
	assert.Equal(t, schema, whole)
}
