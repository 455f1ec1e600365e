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
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	// value expressions need a driver to parse literals
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// IsQuery reports whether a statement returns rows. MySQL syntax is parsed;
// other dialects fall back to the leading keyword and a RETURNING clause.
func IsQuery(query string) bool {
	stmt, err := parser.New().ParseOneStmt(query, "", "")
	if err == nil {
		switch stmt.(type) {
		case *ast.SelectStmt, *ast.SetOprStmt, *ast.ShowStmt, *ast.ExplainStmt:
			return true
		}
		return false
	}

	words := strings.Fields(strings.ToUpper(strings.TrimLeft(query, "( \t\r\n")))
	if len(words) == 0 {
		return false
	}
	switch words[0] {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "DESCRIBE", "DESC", "VALUES", "TABLE", "PRAGMA":
		return true
	}
	for _, w := range words {
		if w == "RETURNING" {
			return true
		}
	}
	return false
}

// SplitStatements splits a script into statements at semicolons outside of
// quoted text. Single, double and backtick quotes, PostgreSQL dollar quotes
// and /* */ comments are copied through untouched; -- comments outside of
// them are dropped. A backslash escapes the next character inside quotes, as
// in MySQL.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); {
		end := i + 1
		switch c := script[i]; {
		case c == '\'' || c == '"' || c == '`':
			end = quoteEnd(script, i)
		case strings.HasPrefix(script[i:], "--"):
			if n := strings.IndexByte(script[i:], '\n'); n >= 0 {
				i += n
			} else {
				i = len(script)
			}
			continue
		case strings.HasPrefix(script[i:], "/*"):
			end = closingEnd(script, i+2, "*/")
		case c == '$' && (i == 0 || !isIdentByte(script[i-1])):
			if tag := dollarTag(script[i:]); tag != "" {
				end = closingEnd(script, i+len(tag), tag)
			}
		case c == ';':
			flush()
			i++
			continue
		}
		current.WriteString(script[i:end])
		i = end
	}
	flush()
	return statements
}

// quoteEnd returns the index just past the quote opened at script[start].
// A doubled quote character does not close it.
func quoteEnd(script string, start int) int {
	q := script[start]
	for j := start + 1; j < len(script); j++ {
		switch script[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			if j+1 < len(script) && script[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(script)
}

// closingEnd returns the index just past the first delim at or after from,
// or the end of script when it is unterminated.
func closingEnd(script string, from int, delim string) int {
	n := strings.Index(script[from:], delim)
	if n < 0 {
		return len(script)
	}
	return from + n + len(delim)
}

// dollarTag returns the $tag$ opening s, or "" when s does not start one.
// $1 style placeholders are not tags.
func dollarTag(s string) string {
	j := 1
	for j < len(s) && isIdentByte(s[j]) && !(j == 1 && s[j] >= '0' && s[j] <= '9') {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1]
	}
	return ""
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
