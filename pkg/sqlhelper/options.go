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
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Option configures a Helper.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	namespace       string
	timeout         time.Duration
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:    log.L(),
		namespace: "sqlhelper",
	}
}

func (o *options) applyPool(db *sql.DB) {
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.maxIdleConns > 0 {
		db.SetMaxIdleConns(o.maxIdleConns)
	}
	if o.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.connMaxLifetime)
	}
}

// WithLogger sets the logger. The global pingcap/log logger is used by default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsNamespace sets the prometheus namespace of the helper's collectors.
func WithMetricsNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// WithTimeout bounds every call, and every transaction as a whole.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithMaxOpenConns limits the number of open connections of the pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

// WithMaxIdleConns limits the number of idle connections kept by the pool.
func WithMaxIdleConns(n int) Option {
	return func(o *options) {
		o.maxIdleConns = n
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		o.connMaxLifetime = d
	}
}
