// Copyright 2018 PingCAP, Inc.
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

// Package pkgdb keeps the original helper that holds two long-lived
// connections and reports failures as a boolean.
//
// Deprecated: use github.com/pingcap/sqlhelper/pkg/sqlhelper, which returns
// the driver errors instead of logging and dropping them.
package pkgdb

import (
	"database/sql"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"go.uber.org/zap"
)

// LegacyHelper keeps a read connection and a write connection opened from one
// connection string. It is not safe for concurrent Open and Close.
type LegacyHelper struct {
	connString string

	ReadDB *sql.DB

	// writes go through a single connection so ExecBatch sees its own changes
	WriteDB *sql.DB
}

// NewLegacyHelper returns a LegacyHelper for a connection string. Nothing is opened until Open.
func NewLegacyHelper(connString string) *LegacyHelper {
	return &LegacyHelper{connString: connString}
}

// NewLegacyHelperWithDB wraps already opened connections.
func NewLegacyHelperWithDB(readDB, writeDB *sql.DB) *LegacyHelper {
	return &LegacyHelper{ReadDB: readDB, WriteDB: writeDB}
}

// Open opens both connections unless they are already usable.
func (h *LegacyHelper) Open() bool {
	if h.IsOpen() {
		return true
	}
	h.Close()

	if h.connString == "" {
		log.Warn("open db connections failed", zap.Error(dbutil.ErrEmptyConnString))
		return false
	}

	readDB, err := openDB(h.connString)
	if err != nil {
		log.Warn("open read connection failed", zap.Error(err))
		return false
	}
	writeDB, err := openDB(h.connString)
	if err != nil {
		log.Warn("open write connection failed", zap.Error(err))
		if err1 := readDB.Close(); err1 != nil {
			log.Warn("close db connection failed", zap.Error(err1))
		}
		return false
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	h.ReadDB, h.WriteDB = readDB, writeDB
	return true
}

func openDB(connString string) (*sql.DB, error) {
	db, _, err := dbutil.OpenConnString(connString)
	return db, errors.Trace(err)
}

// IsOpen reports whether both connections are set and answer a ping.
func (h *LegacyHelper) IsOpen() bool {
	if h.ReadDB == nil || h.WriteDB == nil {
		return false
	}
	return h.ReadDB.Ping() == nil && h.WriteDB.Ping() == nil
}

// Close closes both connections.
func (h *LegacyHelper) Close() {
	for _, db := range []*sql.DB{h.ReadDB, h.WriteDB} {
		if err := dbutil.CloseDB(db); err != nil {
			log.Warn("close db connection failed", zap.Error(err))
		}
	}
	h.ReadDB, h.WriteDB = nil, nil
}

// Select returns every row of query read through the read connection.
func (h *LegacyHelper) Select(query string, args ...interface{}) ([]map[string][]byte, bool) {
	if !h.Open() {
		return nil, false
	}

	rows, err := h.ReadDB.Query(query, args...)
	if err != nil {
		logFailure("select", query, err)
		return nil, false
	}
	defer rows.Close()

	var rowsData []map[string][]byte
	for rows.Next() {
		fields, err1 := dbutil.ScanRow(rows)
		if err1 != nil {
			logFailure("select", query, err1)
			return nil, false
		}
		rowsData = append(rowsData, fields)
	}
	if err = rows.Err(); err != nil {
		logFailure("select", query, err)
		return nil, false
	}

	return rowsData, true
}

// Scalar returns the first column of the first row as text. NULL and no
// rows both give an empty string.
func (h *LegacyHelper) Scalar(query string, args ...interface{}) (string, bool) {
	if !h.Open() {
		return "", false
	}

	var value sql.NullString
	err := h.ReadDB.QueryRow(query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", true
	}
	if err != nil {
		logFailure("scalar", query, err)
		return "", false
	}
	return value.String, true
}

// Exec runs a statement through the write connection.
func (h *LegacyHelper) Exec(query string, args ...interface{}) bool {
	_, ok := h.ExecAffected(query, args...)
	return ok
}

// ExecAffected runs a statement and returns the affected row count.
func (h *LegacyHelper) ExecAffected(query string, args ...interface{}) (int64, bool) {
	if !h.Open() {
		return 0, false
	}

	res, err := h.WriteDB.Exec(query, args...)
	if err != nil {
		logFailure("exec", query, err)
		return 0, false
	}
	affected, err := res.RowsAffected()
	if err != nil {
		logFailure("exec", query, err)
		return 0, false
	}
	return affected, true
}

// ExecBatch runs statements in one transaction. Any failure rolls back.
func (h *LegacyHelper) ExecBatch(queries []string) bool {
	if !h.Open() {
		return false
	}

	txn, err := h.WriteDB.Begin()
	if err != nil {
		logFailure("begin", "", err)
		return false
	}

	for _, query := range queries {
		if _, err = txn.Exec(query); err != nil {
			logFailure("exec batch", query, err)
			if err1 := txn.Rollback(); err1 != nil {
				log.Warn("rollback failed", zap.Error(err1))
			}
			return false
		}
	}

	if err = txn.Commit(); err != nil {
		logFailure("commit", "", err)
		return false
	}
	return true
}

func logFailure(op, query string, err error) {
	log.Warn("db operation failed", zap.String("op", op), zap.String("sql", query), zap.Error(err))
}
