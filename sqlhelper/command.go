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
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/sqlhelper/pkg/check"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"github.com/pingcap/sqlhelper/pkg/sqlhelper"
	"go.uber.org/zap"
)

var errCheckFailed = errors.New("pre-flight check failed")

// statementRunner is implemented by *sqlhelper.Helper and *sqlhelper.Tx.
type statementRunner interface {
	sqlhelper.Runner
	Query(ctx context.Context, query string, params ...any) (*sqlhelper.Table, error)
	Execute(ctx context.Context, query string, params ...any) (int64, error)
}

func execCommand(ctx context.Context, cfg *Config, p *printer) error {
	connString, err := cfg.DB.ConnString()
	if err != nil {
		return errors.Trace(err)
	}

	h, err := sqlhelper.New(connString, sqlhelper.WithTimeout(cfg.Timeout))
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err1 := h.Close(); err1 != nil {
			log.Warn("close db connection failed", zap.Error(err1))
		}
	}()

	return dispatch(ctx, cfg, h, p)
}

func dispatch(ctx context.Context, cfg *Config, h *sqlhelper.Helper, p *printer) error {
	if cfg.Command == cmdCheck {
		return runCheck(ctx, cfg, h, p)
	}

	stmts, err := cfg.statements()
	if err != nil {
		return errors.Trace(err)
	}
	params := cfg.queryParams()

	if !cfg.InTransaction {
		return runStatements(ctx, cfg.Command, h, stmts, params, p)
	}
	return h.InTransaction(ctx, func(ctx context.Context, tx *sqlhelper.Tx) error {
		log.Debug("run statements in transaction", zap.String("txn-id", tx.ID()), zap.Int("count", len(stmts)))
		return runStatements(ctx, cfg.Command, tx, stmts, params, p)
	})
}

func runStatements(ctx context.Context, command string, r statementRunner, stmts []string, params []any, p *printer) error {
	for _, stmt := range stmts {
		if err := runStatement(ctx, command, r, stmt, params, p); err != nil {
			return errors.Annotatef(err, "statement %q", stmt)
		}
	}
	return nil
}

func runStatement(ctx context.Context, command string, r statementRunner, stmt string, params []any, p *printer) error {
	switch command {
	case cmdScalar:
		v, err := sqlhelper.Scalar[string](ctx, r, stmt, params...)
		if err != nil {
			return errors.Trace(err)
		}
		return p.scalar(v)
	case cmdExec:
		return execute(ctx, r, stmt, params, p)
	case cmdQuery:
		return query(ctx, r, stmt, params, p)
	default:
		if sqlhelper.IsQuery(stmt) {
			return query(ctx, r, stmt, params, p)
		}
		return execute(ctx, r, stmt, params, p)
	}
}

func query(ctx context.Context, r statementRunner, stmt string, params []any, p *printer) error {
	t, err := r.Query(ctx, stmt, params...)
	if err != nil {
		return errors.Trace(err)
	}
	return p.table(t)
}

func execute(ctx context.Context, r statementRunner, stmt string, params []any, p *printer) error {
	affected, err := r.Execute(ctx, stmt, params...)
	if err != nil {
		return errors.Trace(err)
	}
	return p.affected(affected)
}

func runCheck(ctx context.Context, cfg *Config, h *sqlhelper.Helper, p *printer) error {
	target := cfg.DB.String()
	if cfg.DB.DSN != "" {
		target = dbutil.RedactConnString(cfg.DB.DSN)
	}

	results := check.Do(ctx, []check.Checker{
		check.NewConnectivityChecker(h.DB(), target, cfg.Timeout),
		check.NewVersionChecker(h.DB(), h.Dialect()),
	})
	if err := p.checkResults(results); err != nil {
		return errors.Trace(err)
	}
	if !results.Summary.Passed {
		return errCheckFailed
	}
	return nil
}
