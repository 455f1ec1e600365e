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

package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
)

// DefaultPingTimeout bounds the connectivity check when no timeout is given.
const DefaultPingTimeout = 5 * time.Second

// Pinger is implemented by *sql.DB and *sql.Conn.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnectivityChecker checks that the database answers a ping.
type ConnectivityChecker struct {
	db      Pinger
	target  string
	timeout time.Duration
}

// NewConnectivityChecker returns a Checker. target only shows up in the result.
func NewConnectivityChecker(db Pinger, target string, timeout time.Duration) Checker {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	return &ConnectivityChecker{db: db, target: target, timeout: timeout}
}

// Check implements the Checker interface.
func (cc *ConnectivityChecker) Check(ctx context.Context) *Result {
	result := &Result{
		Name:  cc.Name(),
		Desc:  "check whether the database is reachable",
		State: StateFailure,
		Extra: fmt.Sprintf("address of db instance - %s", cc.target),
	}

	ctx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	start := time.Now()
	if err := cc.db.PingContext(ctx); err != nil {
		result.Instruction = "please check the connection string and that the database is running"
		markCheckError(result, err)
		return result
	}

	result.State = StateSuccess
	result.Extra = fmt.Sprintf("%s, ping took %s", result.Extra, time.Since(start).Round(time.Millisecond))
	return result
}

// Name implements the Checker interface.
func (cc *ConnectivityChecker) Name() string {
	return "connectivity"
}

/*****************************************************/

// MinVersion is the minimal server version required for each dialect.
var MinVersion = map[dbutil.Dialect]*semver.Version{
	dbutil.MySQL:    semver.New("5.7.0"),
	dbutil.Postgres: semver.New("12.0.0"),
	dbutil.SQLite:   semver.New("3.35.0"),
}

// VersionChecker checks that the server version is supported.
type VersionChecker struct {
	db      dbutil.QueryExecutor
	dialect dbutil.Dialect
}

// NewVersionChecker returns a Checker
func NewVersionChecker(db dbutil.QueryExecutor, d dbutil.Dialect) Checker {
	return &VersionChecker{db: db, dialect: d}
}

// Check implements the Checker interface.
func (vc *VersionChecker) Check(ctx context.Context) *Result {
	result := &Result{
		Name:  vc.Name(),
		Desc:  fmt.Sprintf("check whether %s version is satisfied", vc.dialect),
		State: StateFailure,
	}

	raw, err := dbutil.GetDBVersion(ctx, vc.db, vc.dialect)
	if err != nil {
		markCheckError(result, err)
		return result
	}
	result.Extra = fmt.Sprintf("server version - %s", raw)

	vc.checkVersion(raw, result)
	return result
}

func (vc *VersionChecker) checkVersion(raw string, result *Result) {
	minVersion, ok := MinVersion[vc.dialect]
	if !ok {
		result.ErrorMsg = fmt.Sprintf("unknown dialect %q", vc.dialect)
		return
	}

	version, err := dbutil.ParseServerVersion(raw)
	if err != nil {
		markCheckError(result, err)
		return
	}

	if version.LessThan(*minVersion) {
		result.ErrorMsg = fmt.Sprintf("version required at least %v but got %v", minVersion, version)
		result.Instruction = "Please upgrade your database system"
		return
	}

	result.State = StateSuccess
	if vc.dialect == dbutil.MySQL && IsMariaDB(raw) {
		// MariaDB versions do not map onto MySQL versions
		result.State = StateWarning
		result.ErrorMsg = "MariaDB is not fully compatible with MySQL"
	}
}

// Name implements the Checker interface.
func (vc *VersionChecker) Name() string {
	return "version"
}

// IsMariaDB tells whether the version is from mariadb.
func IsMariaDB(version string) bool {
	return strings.Contains(strings.ToUpper(version), "MARIADB")
}
