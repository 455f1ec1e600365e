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
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pingcap/errors"
)

// Column describes one column of a Table.
type Column struct {
	Name string
	// DatabaseType is the type name reported by the driver, e.g. VARCHAR or INT8.
	// It is empty when the driver does not report one.
	DatabaseType string
	Nullable     bool
}

// Table is a fully read result set.
type Table struct {
	Columns []Column
	Rows    [][]any
}

func newTable(rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Trace(err)
	}

	t := &Table{
		Columns: make([]Column, len(types)),
		Rows:    make([][]any, 0),
	}
	binary := make([]bool, len(types))
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		t.Columns[i] = Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Nullable:     nullable,
		}
		binary[i] = isBinaryType(t.Columns[i].DatabaseType)
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, errors.Trace(err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && !binary[i] {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}

	return t, errors.Trace(rows.Err())
}

func isBinaryType(typ string) bool {
	typ = strings.ToUpper(typ)
	return strings.Contains(typ, "BLOB") || strings.Contains(typ, "BINARY") ||
		typ == "BYTEA" || typ == "BIT" || typ == "GEOMETRY"
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnNames returns the column names in result order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the index of the named column, or -1. An exact match is
// preferred over a case-insensitive one.
func (t *Table) ColumnIndex(name string) int {
	idx := -1
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
		if idx < 0 && strings.EqualFold(c.Name, name) {
			idx = i
		}
	}
	return idx
}

// Value returns the value at row and column. ok is false when either is out of range.
func (t *Table) Value(row int, column string) (v any, ok bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[row][idx], true
}

// Maps returns every row keyed by column name.
func (t *Table) Maps() []map[string]any {
	result := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			m[c.Name] = row[i]
		}
		result = append(result, m)
	}
	return result
}

// Render writes the table as text.
func (t *Table) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(t.ColumnNames())
	for _, row := range t.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = FormatValue(v)
		}
		table.Append(line)
	}
	table.Render()
}

// FormatValue renders a single value the way Render prints it.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("0x%X", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
