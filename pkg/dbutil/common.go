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

package dbutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	// register the postgres and sqlite drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/utils"
	_ "modernc.org/sqlite"
)


var (
	// ErrVersionNotFound means can't get the database's version
	ErrVersionNotFound = errors.New("can't get the database's version")

	versionRegexp = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)
)

// DBConfig is database configuration.
type DBConfig struct {
	Driver string `toml:"driver" json:"driver"`

	// DSN is a complete connection string. When set, the other connection fields are ignored.
	DSN string `toml:"dsn" json:"dsn"`

	Host string `toml:"host" json:"host"`

	Port int `toml:"port" json:"port"`

	User string `toml:"user" json:"user"`

	Password string `toml:"password" json:"password"`

	// Schema is the database name, or the file path for sqlite.
	Schema string `toml:"schema" json:"schema"`

	SSLCA   string `toml:"ssl-ca" json:"ssl-ca"`
	SSLCert string `toml:"ssl-cert" json:"ssl-cert"`
	SSLKey  string `toml:"ssl-key" json:"ssl-key"`

	Params map[string]string `toml:"params" json:"params"`
}

// String returns native format of database configuration, with secrets hidden.
func (c *DBConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	cfg := *c
	if cfg.Password != "" {
		cfg.Password = redactedPassword
	}
	if cfg.DSN != "" {
		cfg.DSN = RedactConnString(cfg.DSN)
	}
	return fmt.Sprintf("DBConfig(%+v)", cfg)
}

// ConnString returns the connection string described by the config.
func (c *DBConfig) ConnString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	d, err := DialectOf(c.Driver)
	if err != nil {
		return "", errors.Trace(err)
	}

	switch d {
	case SQLite:
		if c.Schema == "" {
			return "", errors.New("sqlite requires the database file path in schema")
		}
		return "sqlite://" + c.Schema, nil
	case Postgres:
		return c.postgresURL(), nil
	default:
		return c.mysqlDSN()
	}
}

func (c *DBConfig) hostPort(defaultPort int) string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *DBConfig) mysqlDSN() (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.hostPort(3306)
	cfg.DBName = c.Schema
	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}

	if c.SSLCA != "" {
		tlsConfig, err := utils.ToTLSConfig(c.SSLCA, c.SSLCert, c.SSLKey)
		if err != nil {
			return "", errors.Trace(err)
		}
		name := tlsConfigName(c.SSLCA, c.SSLCert, c.SSLKey)
		if err = mysql.RegisterTLSConfig(name, tlsConfig); err != nil {
			return "", errors.Trace(err)
		}
		cfg.TLSConfig = name
	}

	return cfg.FormatDSN(), nil
}

// tlsConfigName keys a registered TLS config by its certificate files, so
// configs with different certificates do not replace each other.
func tlsConfigName(ca, cert, key string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(ca+"\x00"+cert+"\x00"+key))
	return "sqlhelper-tls-" + id.String()
}

func (c *DBConfig) postgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.hostPort(5432),
		Path:   "/" + c.Schema,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, c.Params[k])
	}
	if c.SSLCA != "" {
		q.Set("sslmode", "verify-full")
		q.Set("sslrootcert", c.SSLCA)
		if c.SSLCert != "" && c.SSLKey != "" {
			q.Set("sslcert", c.SSLCert)
			q.Set("sslkey", c.SSLKey)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenDB opens a connection pool for the config and checks it with a ping.
func OpenDB(cfg DBConfig) (*sql.DB, Dialect, error) {
	connString, err := cfg.ConnString()
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	return OpenConnString(connString)
}

// OpenConnString opens a connection pool for a connection string and checks it with a ping.
func OpenConnString(connString string) (*sql.DB, Dialect, error) {
	d, dsn, err := ParseConnString(connString)
	if err != nil {
		return nil, "", errors.Trace(err)
	}

	dbConn, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, "", errors.Trace(err)
	}

	if err = dbConn.Ping(); err != nil {
		dbConn.Close()
		return nil, "", errors.Trace(err)
	}
	return dbConn, d, nil
}

// CloseDB closes the db connection pool
func CloseDB(db *sql.DB) error {
	if db == nil {
		return nil
	}

	return errors.Trace(db.Close())
}

// TableName returns `schema`.`table` quoted for the dialect.
// An empty schema yields only the quoted table name.
func TableName(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteName(table)
	}
	return fmt.Sprintf("%s.%s", d.QuoteName(schema), d.QuoteName(table))
}

// QualifiedName quotes a possibly schema-qualified name such as "db.tbl".
func QualifiedName(d Dialect, name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return TableName(d, name[:i], name[i+1:])
	}
	return d.QuoteName(name)
}

// GetDBVersion returns the database's version
func GetDBVersion(ctx context.Context, db QueryExecutor, d Dialect) (string, error) {
	/*
		example in MySQL/TiDB:
		mysql> select version();
		+--------------------------------------+
		| version()                            |
		+--------------------------------------+
		| 5.7.10-TiDB-v2.1.0-beta-173-g7e48ab1 |
		+--------------------------------------+
	*/
	var version sql.NullString
	err := db.QueryRowContext(ctx, d.versionQuery()).Scan(&version)
	if err != nil {
		return "", errors.Trace(err)
	}

	if !version.Valid {
		return "", ErrVersionNotFound
	}

	return version.String, nil
}

// ParseServerVersion extracts major.minor[.patch] from a server version string
// such as "8.0.33-0ubuntu0.22.04.2", "16.2 (Debian 16.2-1)" or "3.45.1".
func ParseServerVersion(raw string) (*semver.Version, error) {
	m := versionRegexp.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.NotFoundf("version number in %q", raw)
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v, err := semver.NewVersion(fmt.Sprintf("%s.%s.%s", m[1], m[2], patch))
	return v, errors.Trace(err)
}

// IsTiDB returns true if the version string reported by MySQL protocol belongs to TiDB.
func IsTiDB(version string) bool {
	return strings.Contains(strings.ToLower(version), "tidb")
}
