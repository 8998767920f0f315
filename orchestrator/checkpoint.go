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
	"errors"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/kfundamentals/backfill/model"
)

// ErrCheckpointIO wraps any failure writing or reading the checkpoint
// file. A single failure is logged and the run continues; a second
// consecutive failure aborts (enforced by the caller in run.go, which is
// the only place that knows about "consecutive").
var ErrCheckpointIO = errors.New("orchestrator: checkpoint I/O failure")

// Checkpoint is the durable snapshot of the Orchestrator's per-unit status
// map (Glossary: "Checkpoint"), plus a monotonically increasing sequence
// number so a reader can tell two checkpoint files apart.
type Checkpoint struct {
	Sequence int                   `json:"sequence"`
	Attempts []model.SourceAttempt `json:"attempts"`
}

// WriteCheckpoint atomically replaces path's contents: write to a temp
// file in the same directory, fsync it, then rename over the destination.
// The same-directory temp file keeps the rename on one filesystem so it
// is atomic.
func WriteCheckpoint(path string, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errors.Join(ErrCheckpointIO, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errors.Join(ErrCheckpointIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Join(ErrCheckpointIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Join(ErrCheckpointIO, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(ErrCheckpointIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(ErrCheckpointIO, err)
	}
	return nil
}

// ReadCheckpoint loads a checkpoint written by WriteCheckpoint. A missing
// file is not an error -- it means this is a fresh run -- and returns a
// zero-value Checkpoint with ok=false.
func ReadCheckpoint(path string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, errors.Join(ErrCheckpointIO, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, errors.Join(ErrCheckpointIO, err)
	}
	return cp, true, nil
}
