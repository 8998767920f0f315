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

// Package store is the Canonical Store: the fundamentals table, its
// partitioned physical layout, and the Upsert Engine that writes records
// into it idempotently with provenance-rank conflict resolution.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store wraps the pooled Postgres connection every store operation runs
// through.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against storeURL (the STORE_URL environment
// variable) and verifies connectivity with a ping.
func New(ctx context.Context, storeURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, storeURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity to the store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// LogPoolStats emits a debug line with the pool's connection counts,
// called by the CLI at the end of a run to surface leaked or saturated
// connections before the pool closes.
func (s *Store) LogPoolStats() {
	stat := s.pool.Stat()
	log.Debug().
		Int32("total_conns", stat.TotalConns()).
		Int32("idle_conns", stat.IdleConns()).
		Msg("store pool stats")
}
