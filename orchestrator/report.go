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
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kfundamentals/backfill/model"
)

// SourceHistogram is the per-source error histogram in the run report.
type SourceHistogram struct {
	OK         int `json:"ok"`
	Empty      int `json:"empty"`
	Throttled  int `json:"throttled"`
	Transient  int `json:"transient"`
	NotFound   int `json:"not_found"`
	AuthFailed int `json:"auth_failed"`
}

// Statistics is the run report's `statistics` block.
type Statistics struct {
	TotalUnits      int                         `json:"total_units"`
	SuccessfulUnits int                         `json:"successful_units"`
	SkippedUnits    int                         `json:"skipped_units"`
	FailedUnits     int                         `json:"failed_units"`
	BySource        map[string]*SourceHistogram `json:"by_source"`
	DurationSeconds float64                     `json:"duration_seconds"`
}

// Report is the run report JSON emitted on completion.
type Report struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Parameters map[string]any             `json:"parameters"`
	Statistics Statistics                 `json:"statistics"`
	Results    map[string]map[string]bool `json:"results"` // ticker -> fiscal_year -> success
}

// BuildReport folds a State snapshot into the run report shape.
func BuildReport(timestamp time.Time, parameters map[string]any, duration time.Duration, attempts []model.SourceAttempt) Report {
	stats := Statistics{
		BySource: make(map[string]*SourceHistogram),
	}
	results := make(map[string]map[string]bool)

	for _, a := range attempts {
		stats.TotalUnits++

		hist, ok := stats.BySource[a.Source]
		if !ok {
			hist = &SourceHistogram{}
			stats.BySource[a.Source] = hist
		}

		switch a.Status {
		case model.StatusOK:
			stats.SuccessfulUnits++
			hist.OK++
		case model.StatusSkipped:
			stats.SkippedUnits++
		case model.StatusFailedRetryable, model.StatusFailedFatal:
			stats.FailedUnits++
		}

		switch a.LastErrorKind {
		case "throttled":
			hist.Throttled++
		case "transient":
			hist.Transient++
		case "not_found":
			hist.NotFound++
		case "empty":
			hist.Empty++
		case "auth_failed":
			hist.AuthFailed++
		}

		if _, ok := results[a.Ticker]; !ok {
			results[a.Ticker] = make(map[string]bool)
		}
		results[a.Ticker][fmt.Sprintf("%d", a.FiscalYear)] = a.Status == model.StatusOK
	}

	stats.DurationSeconds = duration.Seconds()

	return Report{
		Timestamp:  timestamp,
		Parameters: parameters,
		Statistics: stats,
		Results:    results,
	}
}

// Write serializes the report as JSON into dir, named by timestamp, and
// returns the path written.
func (r Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("backfill-report-%s.json", r.Timestamp.Format("20060102T150405Z")))

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
