package agent

import (
	"context"

	"github.com/DachengChen/paiask/ai"
)

// Completer is the text-generation service. Its output is untrusted and
// always parsed defensively.
type Completer interface {
	Complete(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error)
}

// SchemaInspector introspects the relational store.
type SchemaInspector interface {
	// Scan returns tables, columns, row count estimates and up to
	// sampleRows sample rows per table.
	Scan(ctx context.Context, sampleRows int) (*SchemaOverview, error)
}

// QueryRunner executes one read-only statement and returns at most maxRows rows.
type QueryRunner interface {
	Query(ctx context.Context, sql string, maxRows int) (columns []string, rows []map[string]any, err error)
}

// ReferenceSearcher returns up to k documents similar to query.
type ReferenceSearcher interface {
	Search(ctx context.Context, query string, k int) ([]Reference, error)
}
