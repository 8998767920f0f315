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
	"context"
	"sync"

	"github.com/kfundamentals/backfill/model"
	"github.com/kfundamentals/backfill/provider"
	"github.com/kfundamentals/backfill/store"
)

// fakeEngine is an in-memory stand-in for store.Engine honoring the
// provenance-rank conflict-resolution rule without a live Postgres
// instance.
type fakeEngine struct {
	mu    sync.Mutex
	rows  map[model.RecordIdentity]*model.FundamentalRecord
	ranks map[model.RecordIdentity]model.ProvenanceRank
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rows:  make(map[model.RecordIdentity]*model.FundamentalRecord),
		ranks: make(map[model.RecordIdentity]model.ProvenanceRank),
	}
}

func (f *fakeEngine) Upsert(_ context.Context, record *model.FundamentalRecord, rank model.ProvenanceRank) (store.Outcome, error) {
	if err := record.Validate(); err != nil {
		return store.Rejected, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := record.Identity()
	existing, found := f.rows[id]
	if !found {
		f.rows[id] = record
		f.ranks[id] = rank
		return store.Inserted, nil
	}

	existingRank := f.ranks[id]
	if rank >= existingRank {
		f.rows[id] = record
		f.ranks[id] = rank
		return store.Updated, nil
	}

	// lower rank: fill only nil fields (mirrors store.mergeFill without
	// importing its unexported helper -- the fake exercises the same
	// contract, not the same code).
	if existing.Revenue == nil && record.Revenue != nil {
		existing.Revenue = record.Revenue
		return store.Updated, nil
	}
	return store.NoChange, nil
}

func (f *fakeEngine) ExistingRank(_ context.Context, id model.RecordIdentity) (model.ProvenanceRank, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rank, ok := f.ranks[id]
	return rank, ok, nil
}

var _ store.Engine = (*fakeEngine)(nil)

// fakeAdapter returns a scripted sequence of results, one per call,
// repeating the last entry once exhausted.
type fakeAdapter struct {
	name    string
	rank    model.ProvenanceRank
	results []provider.Result
	calls   int
	mu      sync.Mutex
}

func (f *fakeAdapter) Name() string               { return f.name }
func (f *fakeAdapter) Rank() model.ProvenanceRank { return f.rank }

func (f *fakeAdapter) Fetch(_ context.Context, _ provider.FetchRequest) (provider.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx], nil
}

var _ provider.Adapter = (*fakeAdapter)(nil)
