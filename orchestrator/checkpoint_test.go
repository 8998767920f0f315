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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kfundamentals/backfill/model"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backfill.checkpoint.json")

	want := Checkpoint{
		Sequence: 7,
		Attempts: []model.SourceAttempt{
			{
				Source: "DART", Ticker: "005930", Region: model.KR,
				FiscalYear: 2023, PeriodType: model.Annual,
				Status: model.StatusOK, Attempts: 1,
				LastAttemptAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			},
			{
				Source: "pykrx", Ticker: "000660", Region: model.KR,
				FiscalYear: 2023, PeriodType: model.Annual,
				Status: model.StatusFailedRetryable, Attempts: 3,
				LastErrorKind: "transient",
			},
		},
	}

	if err := WriteCheckpoint(path, want); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}

	got, ok, err := ReadCheckpoint(path)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if !ok {
		t.Fatal("ReadCheckpoint reported no checkpoint for a file just written")
	}
	if got.Sequence != want.Sequence {
		t.Errorf("Sequence = %d, want %d", got.Sequence, want.Sequence)
	}
	if len(got.Attempts) != len(want.Attempts) {
		t.Fatalf("got %d attempts, want %d", len(got.Attempts), len(want.Attempts))
	}
	if got.Attempts[0].Status != model.StatusOK || got.Attempts[1].LastErrorKind != "transient" {
		t.Errorf("attempts did not round-trip: %+v", got.Attempts)
	}
}

func TestCheckpoint_MissingFileIsFreshRun(t *testing.T) {
	_, ok, err := ReadCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("ReadCheckpoint on a missing file: %v, want nil", err)
	}
	if ok {
		t.Fatal("ReadCheckpoint reported a checkpoint where none exists")
	}
}

func TestCheckpoint_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cp.json")

	if err := WriteCheckpoint(path, Checkpoint{Sequence: 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteCheckpoint(path, Checkpoint{Sequence: 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, _, err := ReadCheckpoint(path)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if got.Sequence != 2 {
		t.Errorf("Sequence = %d, want the later write to win", got.Sequence)
	}

	// No temp files may survive a successful rename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("checkpoint dir holds %d entries, want only the checkpoint itself", len(entries))
	}
}
