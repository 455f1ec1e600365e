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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/check"
	"github.com/pingcap/sqlhelper/pkg/sqlhelper"
	"gopkg.in/yaml.v3"
)

// printer writes command results in the configured format.
type printer struct {
	w      io.Writer
	format string
}

func (p *printer) table(t *sqlhelper.Table) error {
	switch p.format {
	case formatJSON:
		rows := make([]orderedRow, 0, len(t.Rows))
		for _, row := range t.Rows {
			rows = append(rows, orderedRow{columns: t.ColumnNames(), values: row})
		}
		return p.json(rows)
	case formatYAML:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, row := range t.Rows {
			m := &yaml.Node{Kind: yaml.MappingNode}
			for i, col := range t.Columns {
				var value yaml.Node
				if err := value.Encode(plainValue(row[i])); err != nil {
					return errors.Trace(err)
				}
				m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: col.Name}, &value)
			}
			seq.Content = append(seq.Content, m)
		}
		return p.yaml(seq)
	default:
		t.Render(p.w)
		_, err := fmt.Fprintf(p.w, "%d rows in set\n", t.Len())
		return errors.Trace(err)
	}
}

func (p *printer) affected(n int64) error {
	switch p.format {
	case formatJSON:
		return p.json(map[string]int64{"affected": n})
	case formatYAML:
		return p.yaml(map[string]int64{"affected": n})
	default:
		_, err := fmt.Fprintf(p.w, "Query OK, %d rows affected\n", n)
		return errors.Trace(err)
	}
}

func (p *printer) scalar(v string) error {
	switch p.format {
	case formatJSON:
		return p.json(map[string]string{"value": v})
	case formatYAML:
		return p.yaml(map[string]string{"value": v})
	default:
		_, err := fmt.Fprintln(p.w, v)
		return errors.Trace(err)
	}
}

func (p *printer) checkResults(results *check.Results) error {
	switch p.format {
	case formatJSON:
		return p.json(results)
	case formatYAML:
		return p.yaml(results)
	}

	table := tablewriter.NewWriter(p.w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"ID", "Name", "State", "Error", "Instruction", "Extra"})
	for _, r := range results.Results {
		table.Append([]string{fmt.Sprint(r.ID), r.Name, string(r.State), r.ErrorMsg, r.Instruction, r.Extra})
	}
	table.Render()

	s := results.Summary
	_, err := fmt.Fprintf(p.w, "passed: %v, total: %d, successful: %d, warning: %d, failed: %d\n",
		s.Passed, s.Total, s.Successful, s.Warning, s.Failed)
	return errors.Trace(err)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return errors.Trace(enc.Encode(v))
}

func (p *printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(enc.Close())
}

// orderedRow keeps the column order of a row in JSON output.
type orderedRow struct {
	columns []string
	values  []any
}

func (r orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, errors.Trace(err)
		}
		value, err := json.Marshal(plainValue(r.values[i]))
		if err != nil {
			return nil, errors.Trace(err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// plainValue keeps numbers, booleans and text as they are and renders
// everything else as text.
func plainValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	default:
		return sqlhelper.FormatValue(v)
	}
}
