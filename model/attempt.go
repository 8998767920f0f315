// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package model

import "time"

// AttemptStatus is the lifecycle state of one SourceAttempt.
type AttemptStatus string

const (
	StatusPending         AttemptStatus = "PENDING"
	StatusInProgress      AttemptStatus = "IN_PROGRESS"
	StatusOK              AttemptStatus = "OK"
	StatusSkipped         AttemptStatus = "SKIPPED"
	StatusFailedRetryable AttemptStatus = "FAILED_RETRYABLE"
	StatusFailedFatal     AttemptStatus = "FAILED_FATAL"
)

// Terminal reports whether the status will never transition again.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusOK, StatusSkipped, StatusFailedFatal:
		return true
	default:
		return false
	}
}

// SourceAttempt tracks one (source, ticker, fiscal_year, period_type)
// work unit's progress across retries. It lives in the orchestrator's
// in-memory state and is the unit persisted into the checkpoint file.
type SourceAttempt struct {
	Source        string        `json:"source"`
	Ticker        string        `json:"ticker"`
	Region        Region        `json:"region"`
	FiscalYear    int           `json:"fiscal_year"`
	PeriodType    PeriodType    `json:"period_type"`
	Status        AttemptStatus `json:"status"`
	Attempts      int           `json:"attempts"`
	LastErrorKind string        `json:"last_error_kind,omitempty"`
	LastAttemptAt time.Time     `json:"last_attempt_at"`
}

// AttemptKey is the identity SourceAttempt is keyed by in the orchestrator's
// concurrent state map.
type AttemptKey struct {
	Source     string
	Ticker     string
	Region     Region
	FiscalYear int
	PeriodType PeriodType
}

func (a SourceAttempt) Key() AttemptKey {
	return AttemptKey{
		Source:     a.Source,
		Ticker:     a.Ticker,
		Region:     a.Region,
		FiscalYear: a.FiscalYear,
		PeriodType: a.PeriodType,
	}
}

// String renders the key as a single string so it can back a map whose key
// type must be a plain hashable primitive (e.g. haxmap.Map[string, V]).
func (k AttemptKey) String() string {
	return k.Source + "|" + string(k.Region) + "|" + k.Ticker + "|" + itoa(k.FiscalYear) + "|" + string(k.PeriodType)
}
