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
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel store errors, checked with errors.Is.
var (
	ErrTransientConnection = errors.New("store: transient connection error")
	ErrSchemaMismatch      = errors.New("store: schema mismatch")
	ErrUniqueViolation     = errors.New("store: unexpected unique violation")
)

// classify maps a raw store error to the taxonomy the Orchestrator
// branches on: transient connection errors are retried with the unit,
// schema mismatches abort the run.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrUniqueViolation
		case pgerrcode.UndefinedColumn, pgerrcode.UndefinedTable, pgerrcode.InvalidColumnReference:
			return ErrSchemaMismatch
		case pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.SQLClientUnableToEstablishSQLConnection,
			pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection,
			pgerrcode.TooManyConnections:
			return ErrTransientConnection
		}
	}

	// Connection-pool-level failures (context deadline on acquire, network
	// reset) surface without a PgError; treat anything not recognized above
	// as transient rather than fatal, so an unclassified error retries the
	// unit instead of aborting the run.
	return ErrTransientConnection
}

// Retryable reports whether the Orchestrator should retry the unit rather
// than halting the run.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientConnection) || errors.Is(err, ErrUniqueViolation)
}

// Fatal reports whether the Orchestrator must halt the run.
func Fatal(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}
