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

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"go.uber.org/zap"
)

const commitErrorFailpoint = "github.com/pingcap/sqlhelper/pkg/sqlhelper/commitError"

// TxFunc is a unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx *Tx) error

// Tx runs statements inside a transaction opened by InTransaction. It must
// not be used after the unit of work returns.
type Tx struct {
	h      *Helper
	tx     *sqlx.Tx
	id     string
	logger *zap.Logger
}

// ID identifies the transaction in logs.
func (t *Tx) ID() string {
	return t.id
}

// Query runs a statement and returns all rows as a Table.
func (t *Tx) Query(ctx context.Context, query string, params ...any) (*Table, error) {
	return queryTable(ctx, t, query, params)
}

// Execute runs a statement and returns the number of affected rows.
func (t *Tx) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	return execute(ctx, t, query, params)
}

func (t *Tx) sqlDialect() dbutil.Dialect {
	return t.h.dialect
}

func (t *Tx) run(ctx context.Context, op, query string, params []any, fn execFunc) (err error) {
	bound, args, err := bindParams(t.h.dialect, query, params)
	if err != nil {
		return errors.Trace(err)
	}

	start := t.h.begin()
	defer func() {
		t.h.finish(op, query, start, err, zap.String("txn-id", t.id))
	}()

	return contextError(ctx, fn(ctx, t.tx, bound, args))
}

func (t *Tx) rollback() {
	err := t.tx.Rollback()
	if err != nil && errors.Cause(err) != sql.ErrTxDone {
		t.logger.Warn("rollback transaction failed", zap.Error(err))
	}
}

// InTransaction runs fn inside a transaction with default options.
func (h *Helper) InTransaction(ctx context.Context, fn TxFunc) error {
	return h.InTransactionWithOptions(ctx, nil, fn)
}

// InTransactionWithOptions begins a transaction, runs fn and commits.
//
// When fn returns an error the transaction is rolled back and that error is
// returned as is; a rollback failure is only logged. When fn panics the
// transaction is rolled back and the panic continues. A commit failure is
// returned.
func (h *Helper) InTransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TxFunc) (err error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	conn, err := h.db.Connx(ctx)
	if err != nil {
		return contextError(ctx, errors.Trace(err))
	}
	defer conn.Close()

	sqlTx, err := conn.BeginTxx(ctx, opts)
	if err != nil {
		return contextError(ctx, errors.Trace(err))
	}

	id := uuid.NewString()
	tx := &Tx{
		h:      h,
		tx:     sqlTx,
		id:     id,
		logger: h.logger.With(zap.String("txn-id", id)),
	}
	tx.logger.Debug("begin transaction")

	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			h.metrics.txnDone(txnRollback)
			tx.logger.Warn("transaction rolled back on panic", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		tx.rollback()
		h.metrics.txnDone(txnRollback)
		tx.logger.Debug("transaction rolled back", zap.Error(err))
		return err
	}

	if v, fpErr := failpoint.Eval(commitErrorFailpoint); fpErr == nil {
		tx.rollback()
		h.metrics.txnDone(txnCommitFailed)
		return errors.Errorf("commit transaction failed: %v", v)
	}

	if err = sqlTx.Commit(); err != nil {
		h.metrics.txnDone(txnCommitFailed)
		tx.logger.Warn("commit transaction failed", zap.Error(err))
		return errors.Trace(err)
	}

	h.metrics.txnDone(txnCommit)
	tx.logger.Debug("commit transaction")
	return nil
}
