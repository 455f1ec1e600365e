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
	"strings"

	"github.com/pingcap/errors"
)

// Dialect identifies the SQL flavour spoken by a connection.
type Dialect string

const (
	// MySQL covers MySQL, MariaDB and TiDB.
	MySQL Dialect = "mysql"
	// Postgres is PostgreSQL through pgx.
	Postgres Dialect = "postgres"
	// SQLite is the pure Go SQLite driver.
	SQLite Dialect = "sqlite"
)

// DialectOf maps a driver or scheme name to its dialect.
func DialectOf(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "mysql", "tidb", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx", "pgx/v5":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", errors.Errorf("unsupported database driver %q", name)
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// QuoteName quotes an identifier, doubling any embedded quote character.
func (d Dialect) QuoteName(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) versionQuery() string {
	switch d {
	case Postgres:
		return "SHOW server_version"
	case SQLite:
		return "SELECT sqlite_version()"
	default:
		return "SELECT version()"
	}
}
