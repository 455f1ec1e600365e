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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/sqlhelper/pkg/utils"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg := NewConfig()
	err := cfg.Parse(os.Args[1:])
	switch errors.Cause(err) {
	case nil:
	case flag.ErrHelp:
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "parse cmd flags err %s\n", errors.ErrorStack(err))
		os.Exit(2)
	}

	if cfg.PrintVersion {
		fmt.Print(utils.GetRawInfo("sqlhelper"))
		return
	}

	if err = initLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger err %s\n", errors.ErrorStack(err))
		os.Exit(2)
	}
	log.Info("sqlhelper", zap.Stringer("config", cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, &printer{w: os.Stdout, format: cfg.Format})
	cancel()
	utils.SyncLog()
	os.Exit(code)
}

func initLogger(cfg *Config) error {
	logCfg := &log.Config{Level: cfg.LogLevel}
	if cfg.LogFile != "" {
		logCfg.File = log.FileLogConfig{Filename: cfg.LogFile}
	}
	lg, props, err := log.InitLogger(logCfg)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(lg, props)
	return nil
}

// run executes the configured command and returns the process exit code.
func run(ctx context.Context, cfg *Config, p *printer) int {
	err := execCommand(ctx, cfg, p)
	switch {
	case err == nil:
		return 0
	case errors.Cause(err) == errCheckFailed:
		return 1
	default:
		log.Error("command failed", zap.String("cmd", cfg.Command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", cfg.Command, errors.Cause(err))
		return 1
	}
}
