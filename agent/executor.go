package agent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"time"
)

// DefaultMaxRows caps rows fetched per query.
const DefaultMaxRows = 20000

// Executor runs composed queries. It re-checks read-only safety on its own
// and reports every failure as an ExecError inside the result.
type Executor struct {
	runner  QueryRunner
	log     *slog.Logger
	timeout time.Duration
}

// NewExecutor creates an executor. timeout bounds each query.
func NewExecutor(runner QueryRunner, log *slog.Logger, timeout time.Duration) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{runner: runner, log: log, timeout: timeout}
}

// Execute runs query and returns at most maxRows rows.
func (e *Executor) Execute(ctx context.Context, query string, maxRows int) (res ExecResult) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if !IsReadOnlyStatement(query) {
		return ExecResult{Err: &ExecError{Kind: ErrorSafety, Message: "refused to dispatch: not a single SELECT or WITH statement"}}
	}
	if e.runner == nil {
		return ExecResult{Err: &ExecError{Kind: ErrorOther, Message: "no query runner configured"}}
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("query runner panicked", "panic", r)
			res = ExecResult{Err: &ExecError{Kind: ErrorOther, Message: fmt.Sprintf("query runner panic: %v", r)}}
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	columns, rows, err := e.runner.Query(ctx, query, maxRows)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ExecResult{Err: &ExecError{Kind: ErrorTimeout, Code: SQLState(err), Message: err.Error()}}
		}
		return ExecResult{Err: &ExecError{Kind: ClassifyError(err), Code: SQLState(err), Message: err.Error()}}
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	columns, rows = addFormattedDates(columns, rows)
	return ExecResult{Columns: columns, Rows: rows}
}

// addFormattedDates adds "<col>_formatted" (YYYY-MM-DD) next to every
// integer column named like a date whose values look like YYYYMMDD.
func addFormattedDates(columns []string, rows []map[string]any) ([]string, []map[string]any) {
	if len(rows) == 0 {
		return columns, rows
	}
	out := append([]string(nil), columns...)
	rows = append([]map[string]any(nil), rows...)
	for _, col := range columns {
		if !isDateKey(col) {
			continue
		}
		formatted := make([]string, len(rows))
		ok, seen := true, false
		for i, row := range rows {
			n, isInt := asInt64(row[col])
			if !isInt {
				if row[col] == nil {
					continue
				}
				ok = false
				break
			}
			s, valid := formatDateInt(n)
			if !valid {
				ok = false
				break
			}
			formatted[i] = s
			seen = true
		}
		if !ok || !seen {
			continue
		}
		name := col + "_formatted"
		for i, row := range rows {
			if formatted[i] != "" {
				row = maps.Clone(row)
				row[name] = formatted[i]
				rows[i] = row
			}
		}
		out = append(out, name)
	}
	return out, rows
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}
