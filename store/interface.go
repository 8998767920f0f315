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
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/kfundamentals/backfill/model"
)

// Engine is the Upsert Engine contract the Orchestrator depends on. *Store
// is the Postgres-backed implementation; tests substitute an in-memory
// fake satisfying the same interface.
type Engine interface {
	Upsert(ctx context.Context, record *model.FundamentalRecord, rank model.ProvenanceRank) (Outcome, error)
	ExistingRank(ctx context.Context, id model.RecordIdentity) (model.ProvenanceRank, bool, error)
}

var _ Engine = (*Store)(nil)

// ExistingRank reports the provenance rank of any existing row at id,
// letting the Orchestrator's incremental-mode filter skip identities
// already present at a rank it could not improve on without performing a
// full Upsert round trip.
func (s *Store) ExistingRank(ctx context.Context, id model.RecordIdentity) (model.ProvenanceRank, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, false, classify(err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
		SELECT provenance_rank FROM fundamentals
		WHERE ticker = $1 AND region = $2
		  AND fiscal_year IS NOT DISTINCT FROM $3
		  AND period_type = $4`,
		id.Ticker, id.Region, nullableYear(id), id.PeriodType)

	var rank model.ProvenanceRank
	if err := row.Scan(&rank); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, classify(err)
	}
	return rank, true, nil
}
