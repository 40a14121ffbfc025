// Package agent answers natural-language analytics questions against a
// relational store. A Coordinator drives a fixed sequence of stages
// (schema scan, rewrite, table selection, composition, execution with a
// bounded repair loop, narration) over one PipelineContext per question.
package agent

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ColumnDescriptor is one column of a table.
type ColumnDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableDescriptor describes one table in the scanned schema.
type TableDescriptor struct {
	Name     string             `json:"name"`
	Columns  []ColumnDescriptor `json:"columns"`
	RowCount int64              `json:"row_count"`
	Sample   []map[string]any   `json:"sample,omitempty"`
}

// Column returns the column with the given name, matched case-insensitively.
func (t TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// ColumnNames returns the column names in ordinal order.
func (t TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SchemaOverview is an immutable snapshot of the store, taken once per question.
type SchemaOverview struct {
	Tables    []TableDescriptor `json:"tables"`
	ScannedAt time.Time         `json:"scanned_at"`
}

// TableNames returns every table name in scan order.
func (s *SchemaOverview) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a table by name, case-insensitively.
func (s *SchemaOverview) Lookup(name string) (TableDescriptor, bool) {
	if s == nil {
		return TableDescriptor{}, false
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableDescriptor{}, false
}

// HasColumn reports whether table.column exists.
func (s *SchemaOverview) HasColumn(table, column string) bool {
	t, ok := s.Lookup(table)
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

// ColumnMap returns table -> ordered column names for every table.
func (s *SchemaOverview) ColumnMap() map[string][]string {
	out := make(map[string][]string)
	if s == nil {
		return out
	}
	for _, t := range s.Tables {
		out[t.Name] = t.ColumnNames()
	}
	return out
}

// findColumn resolves a column name against every table, returning the
// first match in scan order.
func (s *SchemaOverview) findColumn(name string) (TableDescriptor, ColumnDescriptor, bool) {
	if s == nil {
		return TableDescriptor{}, ColumnDescriptor{}, false
	}
	for _, t := range s.Tables {
		if c, ok := t.Column(name); ok {
			return t, c, true
		}
	}
	return TableDescriptor{}, ColumnDescriptor{}, false
}

// Reference is one document returned by vector search.
type Reference struct {
	Title string  `json:"title"`
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// DateRange is an inclusive YYYYMMDD integer range.
type DateRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Intent is the structured interpretation of a question.
// A refinement replaces the whole value.
type Intent struct {
	Goal       string              `json:"goal"`
	Tables     []string            `json:"available_tables"`
	Columns    map[string][]string `json:"available_columns"`
	Filters    map[string]any      `json:"filters"`
	Metrics    []string            `json:"metrics"`
	Hints      []string            `json:"hints"`
	Confidence float64             `json:"confidence"`

	// Degraded is set when the generator's output was unusable and the
	// deterministic fallback was produced instead.
	Degraded bool `json:"degraded,omitempty"`
	// Refined is set on an Intent produced by a refinement round-trip.
	Refined bool `json:"refined,omitempty"`
}

// TableUse is one table selected by a plan.
type TableUse struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	Priority int      `json:"priority"`
}

// JoinSpec joins two "table.column" references.
type JoinSpec struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Kind  string `json:"type"`
}

// Plan is the concrete table/column/join/filter selection for a query.
type Plan struct {
	Tables       []TableUse     `json:"tables"`
	Joins        []JoinSpec     `json:"joins"`
	Filters      map[string]any `json:"filters"`
	Limit        int            `json:"limit"`
	Confidence   float64        `json:"confidence"`
	Rationale    string         `json:"reason"`
	SchemaIssues []string       `json:"schema_issues"`
	Alternatives []string       `json:"alternatives,omitempty"`

	Raw      string `json:"-"`
	Degraded bool   `json:"degraded,omitempty"`
}

// TableNames returns the plan's table names in priority order.
func (p Plan) TableNames() []string {
	uses := append([]TableUse(nil), p.Tables...)
	sort.SliceStable(uses, func(i, j int) bool { return uses[i].Priority < uses[j].Priority })
	names := make([]string, len(uses))
	for i, u := range uses {
		names[i] = u.Name
	}
	return names
}

// ValidationResult is the outcome of checking a Plan against the schema.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// ErrorKind classifies an execution failure.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorSchemaAbsence
	ErrorSyntax
	ErrorTimeout
	ErrorSafety
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorSchemaAbsence:
		return "schema_absence"
	case ErrorSyntax:
		return "syntax_error"
	case ErrorTimeout:
		return "timeout"
	case ErrorSafety:
		return "safety"
	default:
		return "other"
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ExecError is a classified execution failure. It never escapes the
// Executor as a Go error; it travels inside ExecResult.
type ExecError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *ExecError) Error() string {
	if e.Code != "" {
		return e.Kind.String() + " (" + e.Code + "): " + e.Message
	}
	return e.Kind.String() + ": " + e.Message
}

// ExecResult is what the Executor returns for one query.
type ExecResult struct {
	Columns []string
	Rows    []map[string]any
	Err     *ExecError
}

// QueryAttempt records one execution attempt. Attempts are kept for
// diagnosis after they are resolved.
type QueryAttempt struct {
	Index    int           `json:"index"`
	Query    string        `json:"query"`
	RowCount int           `json:"row_count"`
	Err      *ExecError    `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Feedback is the deterministic quality assessment of a run.
type Feedback struct {
	Quality     string   `json:"quality"`
	RowCount    int      `json:"row_count"`
	Suggestions []string `json:"suggestions"`
}

// Stage names a pipeline component for message routing.
type Stage string

const (
	StageSystem             Stage = "System"
	StageSchemaInspector    Stage = "SchemaInspector"
	StageReferenceRetriever Stage = "ReferenceRetriever"
	StageQueryRewriter      Stage = "QueryRewriter"
	StageTableSelector      Stage = "TableSelector"
	StageQueryComposer      Stage = "QueryComposer"
	StageExecutor           Stage = "Executor"
	StageResultNarrator     Stage = "ResultNarrator"
	StageCoordinator        Stage = "Coordinator"
)

// State is a Coordinator state.
type State string

const (
	StateInit            State = "INIT"
	StateSchemaScanned   State = "SCHEMA_SCANNED"
	StateRewritten       State = "REWRITTEN"
	StatePlanned         State = "PLANNED"
	StatePlanInvalid     State = "PLAN_INVALID"
	StateComposed        State = "COMPOSED"
	StateExecuting       State = "EXECUTING"
	StateExecutedOK      State = "EXECUTED_OK"
	StateExecutionFailed State = "EXECUTION_FAILED"
	StateTerminalFailed  State = "TERMINAL_FAILED"
	StateNarrated        State = "NARRATED"
)

// Message is an immutable log entry for one state transition.
type Message struct {
	Seq      int            `json:"seq"`
	Sender   Stage          `json:"sender"`
	Receiver Stage          `json:"receiver"`
	Kind     string         `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// PipelineContext is the single mutable record for one question.
// Only the Coordinator writes to it.
type PipelineContext struct {
	ID            string           `json:"id"`
	Question      string           `json:"question"`
	References    []Reference      `json:"references"`
	ReferenceText string           `json:"-"`
	Schema        *SchemaOverview  `json:"schema"`
	Intent        Intent           `json:"intent"`
	Plan          Plan             `json:"plan"`
	Validation    ValidationResult `json:"validation"`
	Query         string           `json:"query"`
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"-"`
	Attempts      []QueryAttempt   `json:"attempts"`
	Narration     string           `json:"narration"`
	Feedback      Feedback         `json:"feedback"`
	Messages      []Message        `json:"messages"`
	States        []State          `json:"states"`
	Refinements   int              `json:"refinements"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// State returns the current state.
func (pc *PipelineContext) State() State {
	if len(pc.States) == 0 {
		return StateInit
	}
	return pc.States[len(pc.States)-1]
}

// LastAttempt returns the most recent execution attempt, if any.
func (pc *PipelineContext) LastAttempt() (QueryAttempt, bool) {
	if len(pc.Attempts) == 0 {
		return QueryAttempt{}, false
	}
	return pc.Attempts[len(pc.Attempts)-1], true
}

// LastError returns the error of the final attempt, or nil when it succeeded.
func (pc *PipelineContext) LastError() *ExecError {
	a, ok := pc.LastAttempt()
	if !ok {
		return nil
	}
	return a.Err
}

// Tail returns up to n of the most recent messages.
func (pc *PipelineContext) Tail(n int) []Message {
	if n <= 0 || len(pc.Messages) == 0 {
		return nil
	}
	if len(pc.Messages) <= n {
		return pc.Messages
	}
	return pc.Messages[len(pc.Messages)-n:]
}

func marshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
