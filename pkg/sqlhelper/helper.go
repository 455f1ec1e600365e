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

// Package sqlhelper runs parameterized statements against MySQL, PostgreSQL
// or SQLite, taking a pooled connection for each call and releasing it when
// the call returns.
package sqlhelper

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"github.com/pingcap/tidb/pkg/parser"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Helper executes statements on connections taken from a driver pool.
// It is safe for concurrent use.
type Helper struct {
	db      *sqlx.DB
	dialect dbutil.Dialect
	logger  *zap.Logger
	metrics *Metrics
	timeout time.Duration

	calls    atomic.Int64
	failures atomic.Int64
	inFlight atomic.Int64
}

// Stats is a snapshot of the call counters of a Helper.
type Stats struct {
	Calls    int64
	Failures int64
	InFlight int64
}

// New creates a Helper for a connection string. No connection is made until
// the first call.
func New(connString string, opts ...Option) (*Helper, error) {
	d, dsn, err := dbutil.ParseConnString(connString)
	if err != nil {
		return nil, errors.Trace(err)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}

	h := NewWithDB(db, d, opts...)
	h.logger.Info("create sql helper",
		zap.String("dialect", string(d)),
		zap.String("target", dbutil.RedactConnString(connString)))
	return h, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB, d dbutil.Dialect, opts ...Option) *Helper {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.applyPool(db)

	return &Helper{
		db:      sqlx.NewDb(db, d.DriverName()),
		dialect: d,
		logger:  o.logger,
		metrics: NewMetrics(o.namespace),
		timeout: o.timeout,
	}
}

// DB returns the underlying pool.
func (h *Helper) DB() *sql.DB {
	return h.db.DB
}

// Dialect returns the SQL dialect of the connection string.
func (h *Helper) Dialect() dbutil.Dialect {
	return h.dialect
}

// Metrics returns the collectors of the helper. They are not registered.
func (h *Helper) Metrics() *Metrics {
	return h.metrics
}

// Stats returns the call counters.
func (h *Helper) Stats() Stats {
	return Stats{
		Calls:    h.calls.Load(),
		Failures: h.failures.Load(),
		InFlight: h.inFlight.Load(),
	}
}

// Ping checks that a connection can be established.
func (h *Helper) Ping(ctx context.Context) error {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return errors.Trace(h.db.PingContext(ctx))
}

// Close closes the pool.
func (h *Helper) Close() error {
	return dbutil.CloseDB(h.db.DB)
}

// Query runs a statement and returns all rows as a Table.
func (h *Helper) Query(ctx context.Context, query string, params ...any) (*Table, error) {
	return queryTable(ctx, h, query, params)
}

// Execute runs a statement and returns the number of affected rows.
func (h *Helper) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	return execute(ctx, h, query, params)
}

func (h *Helper) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *Helper) sqlDialect() dbutil.Dialect {
	return h.dialect
}

func (h *Helper) run(ctx context.Context, op, query string, params []any, fn execFunc) (err error) {
	bound, args, err := bindParams(h.dialect, query, params)
	if err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	start := h.begin()
	defer func() {
		h.finish(op, query, start, err)
	}()

	conn, err := h.db.Connx(ctx)
	if err != nil {
		return contextError(ctx, errors.Trace(err))
	}
	defer conn.Close()

	return contextError(ctx, fn(ctx, conn, bound, args))
}

// contextError makes ctx.Err() the cause of err once ctx is done, whatever
// error the driver reported for the interrupted call.
func contextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Cause(err) == ctxErr {
		return err
	}
	return errors.Annotate(ctxErr, err.Error())
}

func (h *Helper) begin() time.Time {
	h.calls.Inc()
	h.inFlight.Inc()
	h.metrics.inFlight.Inc()
	return time.Now()
}

func (h *Helper) finish(op, query string, start time.Time, err error, fields ...zap.Field) {
	cost := time.Since(start)
	h.inFlight.Dec()
	h.metrics.inFlight.Dec()
	h.metrics.observe(op, cost, err)

	failed := err != nil && errors.Cause(err) != sql.ErrNoRows
	if failed {
		h.failures.Inc()
	} else if !h.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}

	normalized, digest := parser.NormalizeDigest(query)
	fields = append(fields,
		zap.String("op", op),
		zap.String("digest", digest.String()),
		zap.String("sql", normalized),
		zap.Duration("cost", cost))
	if failed {
		h.logger.Warn("execute sql failed", append(fields, zap.Error(err))...)
		return
	}
	h.logger.Debug("execute sql", fields...)
}
