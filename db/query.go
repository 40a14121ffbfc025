// query.go runs generated SQL on behalf of the agent executor.
//
// Statements run inside a read-only transaction that is always rolled
// back. Errors are returned unchanged so the caller can classify them by
// SQLSTATE.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Query implements agent.QueryRunner. At most maxRows rows are fetched.
func (d *DB) Query(ctx context.Context, sql string, maxRows int) ([]string, []map[string]any, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, nil, errors.New("empty query")
	}

	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin read-only: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	return collect(rows, maxRows)
}

// collect reads up to limit rows as column→value maps. limit <= 0 means
// no cap.
func collect(rows pgx.Rows, limit int) ([]string, []map[string]any, error) {
	defer rows.Close()

	var columns []string
	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, fd.Name)
	}

	var results []map[string]any
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[columns[i]] = normalizeValue(v)
		}
		results = append(results, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, results, nil
}

// normalizeValue converts driver values without a natural JSON or text form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN || val.InfinityModifier != pgtype.Finite {
			f, err := val.Float64Value()
			if err != nil {
				return nil
			}
			return fmt.Sprint(f.Float64)
		}
		if val.Exp == 0 && val.Int != nil && val.Int.IsInt64() {
			return val.Int.Int64()
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		iv, err := val.Value()
		if err != nil {
			return nil
		}
		return iv
	default:
		return v
	}
}
