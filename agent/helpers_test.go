package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DachengChen/paiask/ai"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type reply struct {
	text string
	err  error
}

// scriptedCompleter answers by stage. Each stage's replies are consumed in
// order and the last one repeats.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[Stage][]reply
	prompts map[Stage][]string
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{replies: map[Stage][]reply{}, prompts: map[Stage][]string{}}
}

func (s *scriptedCompleter) on(stage Stage, texts ...string) *scriptedCompleter {
	for _, t := range texts {
		s.replies[stage] = append(s.replies[stage], reply{text: t})
	}
	return s
}

func (s *scriptedCompleter) fail(stage Stage, err error) *scriptedCompleter {
	s.replies[stage] = append(s.replies[stage], reply{err: err})
	return s
}

func (s *scriptedCompleter) Complete(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	stage := Stage(ai.Operation(ctx))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[stage] = append(s.prompts[stage], messages[len(messages)-1].Content)
	queue := s.replies[stage]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + string(stage))
	}
	r := queue[0]
	if len(queue) > 1 {
		s.replies[stage] = queue[1:]
	}
	return r.text, r.err
}

func (s *scriptedCompleter) calls(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts[stage])
}

func (s *scriptedCompleter) prompt(stage Stage, i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[stage][i]
}

// panickingCompleter blows up on every call.
type panickingCompleter struct{}

func (panickingCompleter) Complete(context.Context, []ai.Message, ai.Options) (string, error) {
	panic("completer exploded")
}

// blockingCompleter waits for its context to end.
type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ []ai.Message, _ ai.Options) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// memRunner serves queries from a function and records what it was asked.
type memRunner struct {
	mu      sync.Mutex
	fn      func(sql string) ([]string, []map[string]any, error)
	queries []string
	maxRows []int
}

func (m *memRunner) Query(ctx context.Context, sql string, maxRows int) ([]string, []map[string]any, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sql)
	m.maxRows = append(m.maxRows, maxRows)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	cols, rows, err := m.fn(sql)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return cols, rows, nil
}

func (m *memRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

type staticInspector struct {
	schema *SchemaOverview
	err    error
}

func (s staticInspector) Scan(ctx context.Context, sampleRows int) (*SchemaOverview, error) {
	return s.schema, s.err
}

type staticSearcher struct {
	refs  []Reference
	err   error
	panic bool
}

func (s staticSearcher) Search(ctx context.Context, query string, k int) ([]Reference, error) {
	if s.panic {
		panic("index corrupted")
	}
	if len(s.refs) > k {
		return s.refs[:k], s.err
	}
	return s.refs, s.err
}

var scanTime = time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)

func sessionSchema() *SchemaOverview {
	return &SchemaOverview{
		ScannedAt: scanTime,
		Tables: []TableDescriptor{
			{
				Name: "SessionActive",
				Columns: []ColumnDescriptor{
					{Name: "LoginDate", Type: "integer"},
					{Name: "VipLV", Type: "integer"},
					{Name: "Country", Type: "character"},
				},
				RowCount: 120000,
				Sample: []map[string]any{
					{"LoginDate": 20241003, "VipLV": 2, "Country": "TW"},
				},
			},
			{
				Name: "Players",
				Columns: []ColumnDescriptor{
					{Name: "PlayerID", Type: "bigint"},
					{Name: "Country", Type: "character"},
					{Name: "RegisterDate", Type: "integer"},
				},
				RowCount: 5000,
			},
		},
	}
}

func messageKinds(msgs []Message) []string {
	kinds := make([]string, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Kind
	}
	return kinds
}
