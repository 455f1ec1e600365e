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

package dbutil

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/pingcap/check"
)

func (*testDBSuite) TestScanRow(c *C) {
	db, mock, err := sqlmock.New()
	c.Assert(err, IsNil)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, nil)
	mock.ExpectQuery("SELECT id, name FROM t").WillReturnRows(rows)

	rs, err := db.QueryContext(context.Background(), "SELECT id, name FROM t")
	c.Assert(err, IsNil)
	defer rs.Close()

	var results []map[string][]byte
	for rs.Next() {
		row, err := ScanRow(rs)
		c.Assert(err, IsNil)
		results = append(results, row)
	}
	c.Assert(rs.Err(), IsNil)
	c.Assert(results, HasLen, 2)
	c.Assert(string(results[0]["id"]), Equals, "1")
	c.Assert(string(results[0]["name"]), Equals, "a")
	c.Assert(results[1]["name"], IsNil)
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (*testDBSuite) TestScanRowsToInterfaces(c *C) {
	db, mock, err := sqlmock.New()
	c.Assert(err, IsNil)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "a").AddRow(int64(2), "b")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	rs, err := db.QueryContext(context.Background(), "SELECT id, name FROM t")
	c.Assert(err, IsNil)
	defer rs.Close()

	data, err := ScanRowsToInterfaces(rs)
	c.Assert(err, IsNil)
	c.Assert(data, DeepEquals, [][]interface{}{{int64(1), "a"}, {int64(2), "b"}})
}
