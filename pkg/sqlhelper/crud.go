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
	"fmt"
	"sort"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
)

var (
	// ErrNoCondition is returned by Update and Delete when no condition is given.
	ErrNoCondition = errors.New("update or delete without condition")
	// ErrNoValues is returned by Insert and Update when no column value is given.
	ErrNoValues = errors.New("no column values")
)

// Insert inserts one row and returns the number of affected rows. table may
// be schema qualified.
func Insert(ctx context.Context, r Runner, table string, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	d := r.sqlDialect()

	cols := sortedKeys(values)
	quoted := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		quoted = append(quoted, d.QuoteName(col))
		args = append(args, values[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dbutil.QualifiedName(d, table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return execute(ctx, r, query, []any{Args(args)})
}

// Update sets values on the rows matching where and returns the number of
// affected rows. where must not be empty.
func Update(ctx context.Context, r Runner, table string, values, where map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	if len(where) == 0 {
		return 0, ErrNoCondition
	}
	d := r.sqlDialect()

	cols := sortedKeys(values)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(where))
	for _, col := range cols {
		sets = append(sets, d.QuoteName(col)+" = ?")
		args = append(args, values[col])
	}
	cond, condArgs := whereClause(d, where)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", dbutil.QualifiedName(d, table), strings.Join(sets, ", "), cond)
	return execute(ctx, r, query, []any{Args(append(args, condArgs...))})
}

// Delete removes the rows matching where and returns the number of affected
// rows. where must not be empty.
func Delete(ctx context.Context, r Runner, table string, where map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, ErrNoCondition
	}
	d := r.sqlDialect()

	cond, args := whereClause(d, where)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", dbutil.QualifiedName(d, table), cond)
	return execute(ctx, r, query, []any{Args(args)})
}

// Count returns the number of rows matching where, or of the whole table when
// where is empty.
func Count(ctx context.Context, r Runner, table string, where map[string]any) (int64, error) {
	d := r.sqlDialect()

	query := fmt.Sprintf("SELECT COUNT(1) cnt FROM %s", dbutil.QualifiedName(d, table))
	var args []any
	if len(where) > 0 {
		var cond string
		cond, args = whereClause(d, where)
		query += " WHERE " + cond
	}
	return Scalar[int64](ctx, r, query, Args(args))
}

// whereClause joins equality conditions with AND. A nil value matches NULL.
func whereClause(d dbutil.Dialect, where map[string]any) (string, []any) {
	cols := sortedKeys(where)
	conds := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v := where[col]
		if v == nil {
			conds = append(conds, d.QuoteName(col)+" IS NULL")
			continue
		}
		conds = append(conds, d.QuoteName(col)+" = ?")
		args = append(args, v)
	}
	return strings.Join(conds, " AND "), args
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
