// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlhelper

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
)

// Runner runs statements, either on a pooled connection (*Helper) or inside
// a transaction (*Tx).
type Runner interface {
	run(ctx context.Context, op, query string, params []any, fn execFunc) error
	sqlDialect() dbutil.Dialect
}

// executor is satisfied by *sqlx.Conn and *sqlx.Tx.
type executor interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type execFunc func(ctx context.Context, ex executor, query string, args []any) error

// RowMapper builds one value from the current row.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

var (
	_ Runner   = &Helper{}
	_ Runner   = &Tx{}
	_ executor = &sqlx.Conn{}
	_ executor = &sqlx.Tx{}
)

func queryTable(ctx context.Context, r Runner, query string, params []any) (*Table, error) {
	var table *Table
	err := r.run(ctx, "query", query, params, func(ctx context.Context, ex executor, q string, args []any) error {
		rows, err := ex.QueryContext(ctx, q, args...)
		if err != nil {
			return errors.Trace(err)
		}
		defer rows.Close()

		table, err = newTable(rows)
		return errors.Trace(err)
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func execute(ctx context.Context, r Runner, query string, params []any) (int64, error) {
	var affected int64
	err := r.run(ctx, "execute", query, params, func(ctx context.Context, ex executor, q string, args []any) error {
		res, err := ex.ExecContext(ctx, q, args...)
		if err != nil {
			return errors.Trace(err)
		}
		affected, err = res.RowsAffected()
		return errors.Trace(err)
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// QueryMap runs a statement and maps every row with mapper. An error returned
// by mapper stops the iteration and is returned unchanged.
func QueryMap[T any](ctx context.Context, r Runner, query string, mapper RowMapper[T], params ...any) ([]T, error) {
	result := make([]T, 0)
	err := r.run(ctx, "query_map", query, params, func(ctx context.Context, ex executor, q string, args []any) error {
		rows, err := ex.QueryContext(ctx, q, args...)
		if err != nil {
			return errors.Trace(err)
		}
		defer rows.Close()

		for rows.Next() {
			item, err := mapper(rows)
			if err != nil {
				return err
			}
			result = append(result, item)
		}
		return errors.Trace(rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Select runs a statement and scans the rows into T. Struct fields are matched
// to columns by their `db` tag; scalar types take a single column.
func Select[T any](ctx context.Context, r Runner, query string, params ...any) ([]T, error) {
	result := make([]T, 0)
	err := r.run(ctx, "select", query, params, func(ctx context.Context, ex executor, q string, args []any) error {
		return errors.Trace(sqlx.SelectContext(ctx, ex, &result, q, args...))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Scalar returns the first column of the first row converted to T. Other
// columns and rows are ignored. NULL yields the zero value of T; no row yields
// sql.ErrNoRows.
func Scalar[T any](ctx context.Context, r Runner, query string, params ...any) (T, error) {
	var v sql.Null[T]
	err := r.run(ctx, "scalar", query, params, func(ctx context.Context, ex executor, q string, args []any) error {
		rows, err := ex.QueryContext(ctx, q, args...)
		if err != nil {
			return errors.Trace(err)
		}
		defer rows.Close()

		if !rows.Next() {
			if err = rows.Err(); err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(sql.ErrNoRows)
		}
		cols, err := rows.Columns()
		if err != nil {
			return errors.Trace(err)
		}
		if len(cols) == 0 {
			return errors.New("scalar query returned no columns")
		}

		dest := make([]any, len(cols))
		dest[0] = &v
		for i := 1; i < len(dest); i++ {
			dest[i] = new(sql.RawBytes)
		}
		return errors.Trace(rows.Scan(dest...))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.V, nil
}
