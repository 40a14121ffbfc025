// schema.go implements the schema scan handed to the agent pipeline.
//
// One scan gathers, for every base table in the public schema:
//   - Column definitions (name, declared type) in ordinal order
//   - An estimated row count (pg_class.reltuples, exact count when unanalyzed)
//   - A few sample rows
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DachengChen/paiask/agent"
	pgx "github.com/jackc/pgx/v5"
)

const publicSchema = "public"

// Scan implements agent.SchemaInspector. A table whose row count or sample
// cannot be read is still listed, with a zero count and no sample.
func (d *DB) Scan(ctx context.Context, sampleRows int) (*agent.SchemaOverview, error) {
	tables, err := d.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	columns, err := d.listColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	overview := &agent.SchemaOverview{ScannedAt: time.Now()}
	for _, t := range tables {
		td := agent.TableDescriptor{Name: t.name, Columns: columns[t.name]}

		td.RowCount = t.estimate
		if td.RowCount < 0 {
			if n, err := d.countRows(ctx, t.name); err != nil {
				d.logger().Warn("row count failed", "table", t.name, "error", err)
				td.RowCount = 0
			} else {
				td.RowCount = n
			}
		}

		if sampleRows > 0 {
			sample, err := d.sampleRows(ctx, t.name, sampleRows)
			if err != nil {
				d.logger().Warn("sample failed", "table", t.name, "error", err)
				td.RowCount = 0
			} else {
				td.Sample = sample
			}
		}
		overview.Tables = append(overview.Tables, td)
	}

	d.logger().Debug("schema scanned", "tables", len(overview.Tables))
	return overview, nil
}

type tableInfo struct {
	name     string
	estimate int64 // -1 when the table was never analyzed
}

func (d *DB) listTables(ctx context.Context) ([]tableInfo, error) {
	query := `
		SELECT t.table_name,
		       COALESCE(c.reltuples, -1)::bigint
		FROM information_schema.tables t
		LEFT JOIN pg_class c
		  ON c.relname = t.table_name
		  AND c.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = t.table_schema)
		WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name`
	rows, err := d.Pool.Query(ctx, query, publicSchema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []tableInfo
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.name, &t.estimate); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (d *DB) listColumns(ctx context.Context) (map[string][]agent.ColumnDescriptor, error) {
	query := `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`
	rows, err := d.Pool.Query(ctx, query, publicSchema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string][]agent.ColumnDescriptor)
	for rows.Next() {
		var table string
		var col agent.ColumnDescriptor
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, err
		}
		results[table] = append(results[table], col)
	}
	return results, rows.Err()
}

func (d *DB) countRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := d.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+qualified(table)).Scan(&n)
	return n, err
}

func (d *DB) sampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	rows, err := d.Pool.Query(ctx, "SELECT * FROM "+qualified(table)+" LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	_, sample, err := collect(rows, limit)
	return sample, err
}

func qualified(table string) string {
	return pgx.Identifier{publicSchema, table}.Sanitize()
}

func (d *DB) logger() *slog.Logger {
	if d.log == nil {
		return slog.Default()
	}
	return d.log
}

// FormatRowCount formats a row count for compact display:
//   - under 1000: exact number (e.g. "42", "999")
//   - 1000..999499: Xk (e.g. "1k", "999k")
//   - 999500+: XM (e.g. "1M", "10M")
func FormatRowCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 999500 {
		return fmt.Sprintf("%dk", (n+500)/1000)
	}
	return fmt.Sprintf("%dM", (n+500000)/1000000)
}

// FormatTimeAgo formats the time elapsed since t compactly:
//
//	<60s  → "Xs"
//	<60m  → "Xm"
//	<24h  → "Xh"
//	>=24h → "Xd"
func FormatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
