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
	"time"
)

// CompressOldPartitions sets lz4 TOAST compression on the data_source
// column of every yearly partition whose fiscal_year ended more than one
// year before asOf.
// Postgres has no native chunk-level recompression of already
// partitioned range tables the way a time-series database does, so this is
// the closest faithful mechanism: new TOASTed values written after the
// ALTER compress with lz4, existing values are left until next rewritten.
func (s *Store) CompressOldPartitions(ctx context.Context, asOf time.Time) error {
	cutoffYear := asOf.Year() - 2

	rows, err := s.pool.Query(ctx, `
		SELECT c.relname
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = 'fundamentals'`)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return classify(err)
		}
		partitions = append(partitions, name)
	}
	if err := rows.Err(); err != nil {
		return classify(err)
	}

	for _, name := range partitions {
		year, ok := yearFromPartitionName(name)
		if !ok || year > cutoffYear {
			continue
		}
		sql := fmt.Sprintf(`ALTER TABLE %[1]s ALTER COLUMN data_source SET COMPRESSION lz4`, name)
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return classify(err)
		}
	}
	return nil
}

// yearFromPartitionName recovers the fiscal year encoded by partitionName,
// e.g. "fundamentals_y2024" -> 2024, true.
func yearFromPartitionName(name string) (int, bool) {
	const prefix = "fundamentals_y"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	year := 0
	for _, r := range name[len(prefix):] {
		if r < '0' || r > '9' {
			return 0, false
		}
		year = year*10 + int(r-'0')
	}
	return year, true
}
