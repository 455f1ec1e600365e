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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockHelper(t *testing.T, d dbutil.Dialect) (*Helper, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return NewWithDB(db, d, WithLogger(zap.NewNop())), mock
}

func TestQuery(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), []byte("bob")).
		AddRow(int64(3), nil)
	mock.ExpectQuery("SELECT id, name FROM users WHERE age > ?").WithArgs(18).WillReturnRows(rows)

	table, err := h.Query(ctx, "SELECT id, name FROM users WHERE age > ?", 18)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, table.ColumnNames())
	require.Equal(t, 3, table.Len())
	require.Equal(t, [][]any{{int64(1), "alice"}, {int64(2), "bob"}, {int64(3), nil}}, table.Rows)
	require.NoError(t, mock.ExpectationsWereMet())

	stats := h.Stats()
	require.Equal(t, int64(1), stats.Calls)
	require.Equal(t, int64(0), stats.Failures)
	require.Equal(t, int64(0), stats.InFlight)
}

func TestQueryKeepsBinaryColumns(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("name").OfType("VARCHAR", ""),
		sqlmock.NewColumn("data").OfType("BLOB", []byte{}).Nullable(true),
	).AddRow([]byte("alice"), []byte{0x01, 0x02})
	mock.ExpectQuery("SELECT name, data FROM files").WillReturnRows(rows)

	table, err := h.Query(context.Background(), "SELECT name, data FROM files")
	require.NoError(t, err)
	require.Equal(t, "VARCHAR", table.Columns[0].DatabaseType)
	require.True(t, table.Columns[1].Nullable)
	require.Equal(t, []any{"alice", []byte{0x01, 0x02}}, table.Rows[0])
}

func TestQueryError(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)
	errBoom := errors.New("boom")

	mock.ExpectQuery("SELECT 1").WillReturnError(errBoom)
	_, err := h.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	require.Equal(t, errBoom, errors.Cause(err))
	require.Equal(t, int64(1), h.Stats().Failures)
	require.Equal(t, float64(1), testutil.ToFloat64(h.Metrics().failures.WithLabelValues("query")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBindError(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)

	_, err := h.Query(context.Background(), "SELECT * FROM t WHERE id = :id", Named{"name": "x"})
	require.Error(t, err)
	require.Equal(t, int64(0), h.Stats().Calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.Postgres)

	mock.ExpectExec("UPDATE t SET a = $1 WHERE id = $2").WithArgs(1, 2).WillReturnResult(sqlmock.NewResult(0, 3))
	affected, err := h.Execute(context.Background(), "UPDATE t SET a = ? WHERE id = ?", 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), affected)

	mock.ExpectExec("UPDATE t SET a = $1 WHERE id = $2").WithArgs("x", 7).WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err = h.Execute(context.Background(), "UPDATE t SET a = :a WHERE id = :id", map[string]any{"a": "x", "id": 7})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	errExec := errors.New("duplicate entry")
	mock.ExpectExec("DELETE FROM t").WillReturnError(errExec)
	_, err = h.Execute(context.Background(), "DELETE FROM t")
	require.Equal(t, errExec, errors.Cause(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScalar(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT(1) FROM t").WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(42)))
	cnt, err := Scalar[int64](ctx, h, "SELECT COUNT(1) FROM t")
	require.NoError(t, err)
	require.Equal(t, int64(42), cnt)

	mock.ExpectQuery("SELECT name FROM t WHERE id = ?").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(nil))
	name, err := Scalar[string](ctx, h, "SELECT name FROM t WHERE id = ?", 1)
	require.NoError(t, err)
	require.Equal(t, "", name)

	mock.ExpectQuery("SELECT name FROM t WHERE id = ?").WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	_, err = Scalar[string](ctx, h, "SELECT name FROM t WHERE id = ?", 2)
	require.Equal(t, sql.ErrNoRows, errors.Cause(err))
	require.Equal(t, int64(0), h.Stats().Failures)

	// only the first column of the first row is read
	mock.ExpectQuery("SELECT id, name FROM t ORDER BY id").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "carol").AddRow(int64(4), "dave"))
	id, err := Scalar[int64](ctx, h, "SELECT id, name FROM t ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

type user struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func TestQueryMap(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.MySQL)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice").AddRow(int64(2), "bob"))
	users, err := QueryMap[user](ctx, h, "SELECT id, name FROM users", func(rows *sql.Rows) (user, error) {
		var u user
		err := rows.Scan(&u.ID, &u.Name)
		return u, err
	})
	require.NoError(t, err)
	require.Equal(t, []user{{1, "alice"}, {2, "bob"}}, users)

	errMap := errors.New("bad row")
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))
	_, err = QueryMap[user](ctx, h, "SELECT id, name FROM users", func(rows *sql.Rows) (user, error) {
		return user{}, errMap
	})
	require.Equal(t, errMap, err)

	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	users, err = QueryMap[user](ctx, h, "SELECT id, name FROM users", func(rows *sql.Rows) (user, error) {
		return user{}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, users)
	require.Len(t, users, 0)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect(t *testing.T) {
	h, mock := newMockHelper(t, dbutil.Postgres)

	mock.ExpectQuery("SELECT id, name FROM users WHERE name = $1").WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))
	users, err := Select[user](context.Background(), h, "SELECT id, name FROM users WHERE name = :name", Bag(user{Name: "alice"}))
	require.NoError(t, err)
	require.Equal(t, []user{{1, "alice"}}, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsRegister(t *testing.T) {
	h, _ := newMockHelper(t, dbutil.MySQL)
	registry := prometheus.NewRegistry()
	require.NoError(t, h.Metrics().Register(registry))
	require.NoError(t, h.Metrics().Register(registry))
	require.Len(t, h.Metrics().Collectors(), 4)
}

func TestQueryContextDone(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	h := NewWithDB(db, dbutil.MySQL, WithLogger(zap.NewNop()), WithTimeout(50*time.Millisecond))

	mock.ExpectQuery("SELECT SLEEP(1)").WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"s"}).AddRow(int64(0)))
	_, err = h.Query(context.Background(), "SELECT SLEEP(1)")
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	require.Equal(t, int64(0), h.Stats().InFlight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Execute(ctx, "DELETE FROM t")
	require.Equal(t, context.Canceled, errors.Cause(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionReleased(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	h := NewWithDB(db, dbutil.MySQL, WithLogger(zap.NewNop()), WithMaxOpenConns(1))

	// a leaked connection would block the last call until ctx expires
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock.ExpectQuery("SELECT a FROM missing").WillReturnError(errors.New("table missing doesn't exist"))
	_, err = h.Query(ctx, "SELECT a FROM missing")
	require.Error(t, err)

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))
	require.Panics(t, func() {
		_, _ = QueryMap[user](ctx, h, "SELECT id, name FROM users", func(rows *sql.Rows) (user, error) {
			panic("mapper failed")
		})
	})

	mock.ExpectQuery("SELECT COUNT(1) FROM users").WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(1)))
	cnt, err := Scalar[int64](ctx, h, "SELECT COUNT(1) FROM users")
	require.NoError(t, err)
	require.Equal(t, int64(1), cnt)

	require.Equal(t, 0, db.Stats().InUse)
	require.Equal(t, int64(0), h.Stats().InFlight)
	require.Equal(t, int64(3), h.Stats().Calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
