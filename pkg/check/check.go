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

// Package check runs pre-flight checks against a database before the helper
// is put to use.
package check

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/log"
	"github.com/pingcap/sqlhelper/pkg/utils"
	"go.uber.org/zap"
)

// State is the state of a check result.
type State string

const (
	// StateSuccess indicates that the check passed.
	StateSuccess State = "success"
	// StateWarning indicates a problem that does not block the helper.
	StateWarning State = "warn"
	// StateFailure indicates a problem that must be fixed.
	StateFailure State = "fail"
)

// Result is the result of one check.
type Result struct {
	ID          uint64 `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Desc        string `json:"desc" yaml:"desc"`
	State       State  `json:"state" yaml:"state"`
	ErrorMsg    string `json:"errorMsg" yaml:"errorMsg"`
	Instruction string `json:"instruction" yaml:"instruction"`
	Extra       string `json:"extra" yaml:"extra"`
}

// Checker is the interface every check implements.
type Checker interface {
	Name() string
	Check(ctx context.Context) *Result
}

// Summary counts the results of a run.
type Summary struct {
	Passed     bool  `json:"passed" yaml:"passed"`
	Total      int64 `json:"total" yaml:"total"`
	Successful int64 `json:"successful" yaml:"successful"`
	Failed     int64 `json:"failed" yaml:"failed"`
	Warning    int64 `json:"warning" yaml:"warning"`
}

// Results holds the results of all checkers in the order they were given.
type Results struct {
	Results []*Result `json:"results" yaml:"results"`
	Summary Summary   `json:"summary" yaml:"summary"`
}

// Do runs the checkers concurrently and collects their results.
// The run passes when no result is a failure.
func Do(ctx context.Context, checkers []Checker) *Results {
	results := make([]*Result, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			results[i] = runChecker(ctx, checker)
			results[i].ID = uint64(i)
		}(i, checker)
	}
	wg.Wait()

	summary := Summary{Total: int64(len(results))}
	for _, result := range results {
		switch result.State {
		case StateSuccess:
			summary.Successful++
		case StateWarning:
			summary.Warning++
		default:
			summary.Failed++
		}
		log.Info("check finished", zap.String("name", result.Name), zap.String("state", string(result.State)))
	}
	summary.Passed = summary.Failed == 0

	return &Results{Results: results, Summary: summary}
}

func runChecker(ctx context.Context, checker Checker) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &Result{
				Name:     checker.Name(),
				State:    StateFailure,
				ErrorMsg: fmt.Sprintf("checker panicked: %v", r),
			}
		}
	}()

	result = checker.Check(ctx)
	if result == nil {
		result = &Result{Name: checker.Name(), State: StateFailure, ErrorMsg: "checker returned no result"}
	}
	return result
}

func markCheckError(result *Result, err error) {
	if err != nil {
		// cancellation counts as a failure too
		result.State = StateFailure
		if utils.OriginError(err) == context.Canceled {
			result.Instruction = "the check was interrupted, run it again"
		}
		result.ErrorMsg = fmt.Sprintf("%v\n%s", err, result.ErrorMsg)
	}
}
