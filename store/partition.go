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
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
)

// yearRange is one [Start, End) batch of fiscal years to pre-create
// partitions for.
type yearRange struct {
	Start, End int
}

// EnsurePartitions creates any missing yearly partitions of fundamentals
// covering [startYear, endYear] inclusive, walking the years in 5-year
// batches inside a single transaction. It is safe to call repeatedly;
// existing partitions are
// left untouched (CREATE TABLE IF NOT EXISTS).
func (s *Store) EnsurePartitions(ctx context.Context, startYear, endYear int) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return classify(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			log.Debug().Err(err).Msg("partition tx rollback (likely already committed)")
		}
	}()

	for _, batch := range batchYears(startYear, endYear, 5) {
		for year := batch.Start; year < batch.End; year++ {
			name := partitionName(year)
			sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s
				PARTITION OF fundamentals FOR VALUES FROM (%[2]d) TO (%[3]d)`,
				name, year, year+1)
			if _, err := tx.Exec(ctx, sql); err != nil {
				return classify(err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func batchYears(start, end, batchSize int) []yearRange {
	var ranges []yearRange
	for y := start; y <= end; y += batchSize {
		upper := y + batchSize
		if upper > end+1 {
			upper = end + 1
		}
		ranges = append(ranges, yearRange{Start: y, End: upper})
	}
	return ranges
}

// partitionName computes a deterministic, slug-safe partition table name.
func partitionName(year int) string {
	return strings.ReplaceAll(slug.Make(fmt.Sprintf("fundamentals y%d", year)), "-", "_")
}
