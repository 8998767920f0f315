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
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kfundamentals/backfill/model"
)

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{Inserted, "inserted"},
		{Updated, "updated"},
		{NoChange, "no_change"},
		{Rejected, "rejected"},
		{Outcome(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestNullableYear(t *testing.T) {
	annual := model.RecordIdentity{Ticker: "005930", Region: model.KR, FiscalYear: 2023, PeriodType: model.Annual}
	if y := nullableYear(annual); y == nil || *y != 2023 {
		t.Errorf("nullableYear(annual) = %v, want 2023", y)
	}

	daily := model.RecordIdentity{Ticker: "005930", Region: model.KR, PeriodType: model.Daily}
	if y := nullableYear(daily); y != nil {
		t.Errorf("nullableYear(daily) = %v, want nil", y)
	}
}

func pgError(code string) error {
	return &pgconn.PgError{Code: code}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil passes through", nil, nil},
		{"unique violation", pgError(pgerrcode.UniqueViolation), ErrUniqueViolation},
		{"undefined column is schema mismatch", pgError(pgerrcode.UndefinedColumn), ErrSchemaMismatch},
		{"undefined table is schema mismatch", pgError(pgerrcode.UndefinedTable), ErrSchemaMismatch},
		{"connection failure is transient", pgError(pgerrcode.ConnectionFailure), ErrTransientConnection},
		{"too many connections is transient", pgError(pgerrcode.TooManyConnections), ErrTransientConnection},
		{"unrecognized errors are transient", errors.New("connection reset by peer"), ErrTransientConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableAndFatal(t *testing.T) {
	if !Retryable(ErrTransientConnection) || !Retryable(ErrUniqueViolation) {
		t.Error("transient connection and unique violation must be retryable")
	}
	if Retryable(ErrSchemaMismatch) {
		t.Error("schema mismatch must not be retryable")
	}
	if !Fatal(ErrSchemaMismatch) {
		t.Error("schema mismatch must be fatal")
	}
	if Fatal(ErrTransientConnection) {
		t.Error("transient connection must not be fatal")
	}
}
