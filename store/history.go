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
package store

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
)

// RunHistoryEntry is one row of run_history, read back by the CLI's
// `info` subcommand to list prior runs without re-reading checkpoint
// files off disk.
type RunHistoryEntry struct {
	RunID           uuid.UUID  `db:"run_id"`
	StartedAt       time.Time  `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
	Parameters      []byte     `db:"parameters"`
	TotalUnits      int        `db:"total_units"`
	SuccessfulUnits int        `db:"successful_units"`
	SkippedUnits    int        `db:"skipped_units"`
	FailedUnits     int        `db:"failed_units"`
	ReportPath      string     `db:"report_path"`
}

// RecordRunStart inserts the row a run started, so a crash before
// RecordRunFinish still leaves a `finished_at IS NULL` trace of an
// incomplete run.
func (s *Store) RecordRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, parameters []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_history (run_id, started_at, parameters)
		VALUES ($1, $2, $3)`, runID, startedAt, parameters)
	return classify(err)
}

// RecordRunFinish updates the run_history row with the final statistics
// the run report carries, mirrored into the store for queryability.
func (s *Store) RecordRunFinish(ctx context.Context, runID uuid.UUID, finishedAt time.Time, total, successful, skipped, failed int, reportPath string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE run_history SET
			finished_at = $2, total_units = $3, successful_units = $4,
			skipped_units = $5, failed_units = $6, report_path = $7
		WHERE run_id = $1`,
		runID, finishedAt, total, successful, skipped, failed, reportPath)
	return classify(err)
}

// RecentRuns returns the limit most recent run_history rows, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*RunHistoryEntry, error) {
	var entries []*RunHistoryEntry
	err := pgxscan.Select(ctx, s.pool, &entries, `
		SELECT run_id, started_at, finished_at, parameters,
		       total_units, successful_units, skipped_units, failed_units,
		       coalesce(report_path, '') as report_path
		FROM run_history
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}
