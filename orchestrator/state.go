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
	"time"

	"github.com/alphadose/haxmap"

	"github.com/kfundamentals/backfill/model"
)

// State is the Orchestrator's in-memory SourceAttempt table, mutated
// concurrently by every dispatched work unit's goroutine. It backs
// haxmap.Map with the attempt key's string form since haxmap's generic key
// constraint only covers hashable primitives, not the AttemptKey struct.
type State struct {
	attempts *haxmap.Map[string, *model.SourceAttempt]
}

// NewState builds an empty State, or one seeded from a checkpoint loaded
// at startup so an interrupted run resumes instead of starting over.
func NewState(seed []model.SourceAttempt) *State {
	s := &State{attempts: haxmap.New[string, *model.SourceAttempt]()}
	for i := range seed {
		a := seed[i]
		s.attempts.Set(a.Key().String(), &a)
	}
	return s
}

// Get returns the current attempt for key, or a fresh PENDING attempt if
// none has been recorded yet.
func (s *State) Get(key model.AttemptKey) model.SourceAttempt {
	if v, ok := s.attempts.Get(key.String()); ok {
		return *v
	}
	return model.SourceAttempt{
		Source:     key.Source,
		Ticker:     key.Ticker,
		Region:     key.Region,
		FiscalYear: key.FiscalYear,
		PeriodType: key.PeriodType,
		Status:     model.StatusPending,
	}
}

// Set records the given attempt under its own key.
func (s *State) Set(a model.SourceAttempt) {
	s.attempts.Set(a.Key().String(), &a)
}

// Transition marks key with a new status and stamps LastAttemptAt,
// replacing LastErrorKind with errKind (an empty errKind clears it).
// Attempts counts fetches, so
// it only increments on the IN_PROGRESS transition that precedes each
// adapter call, not on the terminal transition that follows it.
func (s *State) Transition(key model.AttemptKey, status model.AttemptStatus, errKind string) model.SourceAttempt {
	current := s.Get(key)
	current.Status = status
	if status == model.StatusInProgress {
		current.Attempts++
	}
	current.LastAttemptAt = time.Now().UTC()
	current.LastErrorKind = errKind
	s.Set(current)
	return current
}

// SkipAllPending marks every non-terminal attempt for source as SKIPPED:
// units already queued for a poisoned source never dispatch. Entries are
// replaced, not mutated in place, since other goroutines may hold the old
// pointer from a concurrent Get.
func (s *State) SkipAllPending(source string) {
	s.attempts.ForEach(func(_ string, a *model.SourceAttempt) bool {
		if a.Source == source && !a.Status.Terminal() {
			skipped := *a
			skipped.Status = model.StatusSkipped
			skipped.LastErrorKind = "auth_failed"
			s.Set(skipped)
		}
		return true
	})
}

// Snapshot returns every tracked attempt, used to flush a checkpoint and to
// assemble the run report.
func (s *State) Snapshot() []model.SourceAttempt {
	out := make([]model.SourceAttempt, 0, s.attempts.Len())
	s.attempts.ForEach(func(_ string, a *model.SourceAttempt) bool {
		out = append(out, *a)
		return true
	})
	return out
}
