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
	"database/sql/driver"
	"reflect"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
)

// Params is a set of statement parameters.
//
// Positional parameters are written as ? and named parameters as :name. Both
// are rewritten to the bindvar of the dialect, $1.. for PostgreSQL.
type Params interface {
	bind(query string) (string, []any, error)
}

// Args is an ordered list of positional parameters.
type Args []any

func (a Args) bind(query string) (string, []any, error) {
	return query, []any(a), nil
}

// Named maps parameter names to values.
type Named map[string]any

func (n Named) bind(query string) (string, []any, error) {
	q, args, err := sqlx.Named(query, map[string]any(n))
	return q, args, errors.Trace(err)
}

// NamedList is a pre-built list of named parameters.
type NamedList []sql.NamedArg

func (l NamedList) bind(query string) (string, []any, error) {
	m := make(Named, len(l))
	for _, arg := range l {
		m[arg.Name] = arg.Value
	}
	return m.bind(query)
}

type bag struct {
	v any
}

// Bag reads named parameters from the exported fields of a struct, using the
// `db` tag when present and the lower-cased field name otherwise. Maps with
// string keys are accepted too.
func Bag(v any) Params {
	return bag{v: v}
}

func (b bag) bind(query string) (string, []any, error) {
	if b.v == nil {
		return "", nil, errors.New("nil parameter bag")
	}
	q, args, err := sqlx.Named(query, b.v)
	return q, args, errors.Trace(err)
}

var (
	dollarBindvar = regexp.MustCompile(`\$[0-9]+`)

	timeType   = reflect.TypeOf(time.Time{})
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

func toParams(params []any) Params {
	if len(params) == 1 {
		switch p := params[0].(type) {
		case Params:
			return p
		case map[string]any:
			return Named(p)
		case []sql.NamedArg:
			return NamedList(p)
		case sql.NamedArg:
			return NamedList{p}
		case []any:
			return Args(p)
		}
		if isBag(params[0]) {
			return bag{v: params[0]}
		}
	}

	if len(params) > 0 {
		list := make(NamedList, 0, len(params))
		for _, p := range params {
			arg, ok := p.(sql.NamedArg)
			if !ok {
				return Args(params)
			}
			list = append(list, arg)
		}
		return list
	}
	return Args(params)
}

func isBag(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if t.Implements(valuerType) {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return t != timeType && !reflect.PointerTo(t).Implements(valuerType)
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	}
	return false
}

func bindType(d dbutil.Dialect) int {
	if d == dbutil.Postgres {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}

// bindParams resolves params against query and rewrites placeholders for the
// dialect. A statement without arguments, or one already written with $n
// placeholders, reaches the driver as written.
func bindParams(d dbutil.Dialect, query string, params []any) (string, []any, error) {
	q, args, err := toParams(params).bind(query)
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return query, nil, nil
	}
	if bindType(d) == sqlx.QUESTION || dollarBindvar.MatchString(q) {
		return q, args, nil
	}
	return sqlx.Rebind(bindType(d), q), args, nil
}
