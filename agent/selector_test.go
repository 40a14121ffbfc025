package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePlan(t *testing.T) {
	schema := sessionSchema()
	tests := []struct {
		name   string
		plan   Plan
		issues []string
	}{
		{
			name: "valid join",
			plan: Plan{
				Tables: []TableUse{{Name: "SessionActive", Columns: []string{"VipLV"}}, {Name: "Players"}},
				Joins:  []JoinSpec{{Left: "SessionActive.Country", Right: "Players.Country", Kind: "INNER"}},
			},
		},
		{
			name:   "empty plan",
			plan:   Plan{},
			issues: []string{"plan selects no tables"},
		},
		{
			name:   "unknown table",
			plan:   Plan{Tables: []TableUse{{Name: "Logins"}}},
			issues: []string{`table "Logins" does not exist`},
		},
		{
			name:   "unknown column",
			plan:   Plan{Tables: []TableUse{{Name: "Players", Columns: []string{"Level"}}}},
			issues: []string{`column "Level" does not exist in table "Players"`},
		},
		{
			name: "malformed join sides",
			plan: Plan{
				Tables: []TableUse{{Name: "Players"}},
				Joins:  []JoinSpec{{Left: "Players", Right: "public.Players.Country"}},
			},
			issues: []string{
				`join reference "Players" is not table.column`,
				`join reference "public.Players.Country" is not table.column`,
			},
		},
		{
			name: "join to missing column",
			plan: Plan{
				Tables: []TableUse{{Name: "Players"}},
				Joins:  []JoinSpec{{Left: "Players.PlayerID", Right: "SessionActive.PlayerID"}},
			},
			issues: []string{`join reference "SessionActive.PlayerID" names unknown column "PlayerID"`},
		},
		{
			name: "empty join part",
			plan: Plan{
				Tables: []TableUse{{Name: "Players"}},
				Joins:  []JoinSpec{{Left: "Players.", Right: ".Country"}},
			},
			issues: []string{
				`join reference "Players." is not table.column`,
				`join reference ".Country" is not table.column`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidatePlan(tt.plan, schema)
			assert.Equal(t, len(tt.issues) == 0, res.Valid)
			assert.Equal(t, tt.issues, res.Issues)
		})
	}
}

func TestDecideCanonicalizesButKeepsUnknown(t *testing.T) {
	llm := newScripted().on(StageTableSelector, "```json\n"+`{
		"tables": [{"name": "sessionactive", "columns": ["viplv", "Region"]}, {"name": "Ghost", "columns": ["a"]}],
		"joins": [{"left": "sessionactive.country", "right": "players.COUNTRY", "type": "inner"}],
		"filters": {"country": "tw", "Platform": "ios"},
		"limit": -5,
		"confidence": 1.7,
		"reason": "by level"
	}`+"\n```")
	s := NewTableSelector(llm, testLog, 0, time.Second, 1000)

	plan := s.Decide(context.Background(), Intent{Goal: "g"}, sessionSchema())

	require.Len(t, plan.Tables, 2)
	assert.Equal(t, TableUse{Name: "SessionActive", Columns: []string{"VipLV", "Region"}, Priority: 1}, plan.Tables[0])
	assert.Equal(t, TableUse{Name: "Ghost", Columns: []string{"a"}, Priority: 2}, plan.Tables[1])
	assert.Equal(t, []JoinSpec{{Left: "SessionActive.Country", Right: "Players.Country", Kind: "INNER"}}, plan.Joins)
	assert.Equal(t, map[string]any{"Country": "TW"}, plan.Filters)
	assert.Equal(t, []string{"filter on unknown column dropped: Platform=ios"}, plan.SchemaIssues)
	assert.Equal(t, 0, plan.Limit)
	assert.Equal(t, 1.0, plan.Confidence)
	assert.False(t, plan.Degraded)

	res := s.Validate(plan, sessionSchema())
	assert.False(t, res.Valid)
	assert.Len(t, res.Issues, 2)
}

func TestDecideDegradesOnUnparseableOutput(t *testing.T) {
	llm := newScripted().on(StageTableSelector, "tables: SessionActive")
	s := NewTableSelector(llm, testLog, 0, time.Second, 1000)

	plan := s.Decide(context.Background(), Intent{}, sessionSchema())
	assert.True(t, plan.Degraded)
	assert.Empty(t, plan.Tables)
	assert.Equal(t, DegradedPlanConfidence, plan.Confidence)
	assert.Equal(t, "tables: SessionActive", plan.Raw)
	assert.Contains(t, plan.Rationale, "no JSON object")
	assert.Equal(t, 1000, plan.Limit)
}

func TestDecideDegradesOnCompletionError(t *testing.T) {
	llm := newScripted().fail(StageTableSelector, errors.New("429 too many requests"))
	s := NewTableSelector(llm, testLog, 0, time.Second, 500)

	plan := s.Decide(context.Background(), Intent{}, sessionSchema())
	assert.True(t, plan.Degraded)
	assert.Equal(t, "429 too many requests", plan.Rationale)
}

func TestDecideNotesReachPrompt(t *testing.T) {
	llm := newScripted().on(StageTableSelector, `{"tables":[{"name":"Players"}]}`)
	s := NewTableSelector(llm, testLog, 0, time.Second, 1000)

	s.Decide(context.Background(), Intent{}, sessionSchema(), `error: relation "Logins" does not exist`)
	assert.Contains(t, llm.prompt(StageTableSelector, 0), `relation "Logins" does not exist`)
}

func TestPlanTableNamesByPriority(t *testing.T) {
	p := Plan{Tables: []TableUse{{Name: "b", Priority: 2}, {Name: "a", Priority: 1}, {Name: "c", Priority: 2}}}
	assert.Equal(t, []string{"a", "b", "c"}, p.TableNames())
}
