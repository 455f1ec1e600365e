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
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/sqlhelper/pkg/dbutil"
	"github.com/pingcap/sqlhelper/pkg/sqlhelper"
	"github.com/pingcap/sqlhelper/pkg/utils"
	flag "github.com/spf13/pflag"
)

const (
	cmdQuery  = "query"
	cmdExec   = "exec"
	cmdScalar = "scalar"
	cmdRun    = "run"
	cmdCheck  = "check"

	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// Config is the configuration of the sqlhelper tool.
type Config struct {
	*flag.FlagSet `toml:"-" json:"-"`

	ConfigFile string `toml:"-" json:"config-file"`

	LogLevel string `toml:"log-level" json:"log-level"`

	LogFile string `toml:"log-file" json:"log-file"`

	DB dbutil.DBConfig `toml:"db" json:"db"`

	// Command is one of query, exec, scalar, run and check.
	Command string `toml:"cmd" json:"cmd"`

	SQL string `toml:"sql" json:"sql"`

	// File holds the statement, or the script for run. Used when SQL is empty.
	File string `toml:"file" json:"file"`

	// Positional holds the parameters bound to `?` placeholders.
	Positional []string `toml:"args" json:"args"`

	// Params are named parameters bound to `:name` placeholders, written as name=value.
	Params []string `toml:"params" json:"params"`

	Format string `toml:"format" json:"format"`

	Timeout time.Duration `toml:"timeout" json:"timeout"`

	// InTransaction runs every statement of the command in one transaction.
	InTransaction bool `toml:"tx" json:"tx"`

	PrintVersion bool `toml:"-" json:"-"`
}

// NewConfig creates a new config.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.FlagSet = flag.NewFlagSet("sqlhelper", flag.ContinueOnError)
	fs := cfg.FlagSet

	fs.StringVar(&cfg.ConfigFile, "config", "", "Config file")
	fs.StringVarP(&cfg.LogLevel, "log-level", "L", "info", "log level: debug, info, warn, error, fatal")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path, logs go to stderr when empty")
	fs.StringVar(&cfg.DB.DSN, "dsn", "", "connection string, e.g. mysql://root@127.0.0.1:4000/test, postgres://... or sqlite:///tmp/a.db")
	fs.StringVar(&cfg.Command, "cmd", cmdQuery, "command: query, exec, scalar, run, check")
	fs.StringVar(&cfg.SQL, "sql", "", "the statement to run")
	fs.StringVar(&cfg.File, "file", "", "read the statement or script from this file")
	fs.StringArrayVar(&cfg.Positional, "arg", nil, "positional parameter, can be repeated")
	fs.StringArrayVar(&cfg.Params, "param", nil, "named parameter as name=value, can be repeated")
	fs.StringVar(&cfg.Format, "format", formatTable, "output format: table, json, yaml")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "timeout of every database call, 0 means no timeout")
	fs.BoolVar(&cfg.InTransaction, "tx", false, "run the statements in one transaction")
	fs.BoolVarP(&cfg.PrintVersion, "version", "V", false, "print version of sqlhelper")

	return cfg
}

// Parse parses flag definitions from the argument list.
// Values from the command line override values from the config file.
func (c *Config) Parse(arguments []string) error {
	// Find the config file first. Repeatable flags must be parsed only once.
	configFile := findConfigFile(arguments)
	if configFile != "" {
		if err := c.configFromFile(configFile); err != nil {
			return errors.Trace(err)
		}
	}

	err := c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.Trace(err)
	}

	if len(c.FlagSet.Args()) != 0 {
		return errors.Errorf("'%s' is an invalid flag", c.FlagSet.Arg(0))
	}

	return errors.Trace(c.adjust())
}

func findConfigFile(arguments []string) string {
	var configFile string
	fs := flag.NewFlagSet("sqlhelper-config", flag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringVar(&configFile, "config", "", "")
	// errors show up again in the full parse
	_ = fs.Parse(arguments)
	return configFile
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Trace(err)
	}
	if len(meta.Undecoded()) > 0 {
		return errors.Errorf("unknown keys in config file %s: %v", path, meta.Undecoded())
	}
	return nil
}

func (c *Config) adjust() error {
	switch c.Command {
	case cmdQuery, cmdExec, cmdScalar, cmdRun, cmdCheck:
	default:
		return errors.NotValidf("command %q", c.Command)
	}

	switch c.Format {
	case formatTable, formatJSON, formatYAML:
	default:
		return errors.NotValidf("format %q", c.Format)
	}

	if c.DB.DSN == "" && c.DB.Driver == "" {
		return errors.New("either --dsn or the [db] section of the config file is required")
	}

	if c.Timeout < 0 {
		return errors.NotValidf("timeout %s", c.Timeout)
	}

	if len(c.Positional) > 0 && len(c.Params) > 0 {
		return errors.New("--arg and --param can't be used together")
	}
	if c.Command == cmdRun && (len(c.Positional) > 0 || len(c.Params) > 0) {
		return errors.New("--arg and --param can't be used with run")
	}
	if _, err := c.namedParams(); err != nil {
		return errors.Trace(err)
	}

	if c.Command != cmdCheck && c.SQL == "" && c.File == "" {
		return errors.Errorf("command %s requires --sql or --file", c.Command)
	}

	return nil
}

// statements returns the SQL text to run, split into statements for run.
func (c *Config) statements() ([]string, error) {
	text := c.SQL
	if text == "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, errors.Annotatef(err, "read sql file %s", c.File)
		}
		text = string(data)
	}

	if c.Command == cmdRun {
		stmts := sqlhelper.SplitStatements(text)
		if len(stmts) == 0 {
			return nil, errors.New("no statement found")
		}
		return stmts, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("no statement found")
	}
	return []string{text}, nil
}

func (c *Config) namedParams() (sqlhelper.Named, error) {
	if len(c.Params) == 0 {
		return nil, nil
	}
	named := make(sqlhelper.Named, len(c.Params))
	for _, p := range c.Params {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NotValidf("param %q, expected name=value", p)
		}
		named[name] = value
	}
	return named, nil
}

// queryParams returns the parameters given on the command line in the form
// the helper binds.
func (c *Config) queryParams() []any {
	if named, err := c.namedParams(); err == nil && named != nil {
		return []any{named}
	}
	if len(c.Positional) == 0 {
		return nil
	}
	return []any{sqlhelper.Args(utils.StringsToInterfaces(c.Positional))}
}

func (c *Config) String() string {
	cfg := *c
	cfg.DB.Password = redacted(cfg.DB.Password)
	if cfg.DB.DSN != "" {
		cfg.DB.DSN = dbutil.RedactConnString(cfg.DB.DSN)
	}
	data, err := json.Marshal(&cfg)
	if err != nil {
		return "<nil>"
	}
	return string(data)
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "******"
}
