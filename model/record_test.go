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
package model

import (
	"errors"
	"math"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func baseRecord() *FundamentalRecord {
	return &FundamentalRecord{
		Ticker:     "005930",
		Region:     KR,
		FiscalYear: ptr(2023),
		PeriodType: Annual,
		DataSource: "DART-2023-11011",
	}
}

func TestValidate_IdentityMissing(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*FundamentalRecord)
		want error
	}{
		{"empty ticker", func(r *FundamentalRecord) { r.Ticker = "" }, ErrIdentityMissing},
		{"invalid region", func(r *FundamentalRecord) { r.Region = "ZZ" }, ErrIdentityMissing},
		{"no data source", func(r *FundamentalRecord) { r.DataSource = "" }, ErrDataSourceMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRecord()
			tt.mut(r)
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate_PeriodYearConsistency(t *testing.T) {
	t.Run("annual requires fiscal year", func(t *testing.T) {
		r := baseRecord()
		r.FiscalYear = nil
		if err := r.Validate(); !errors.Is(err, ErrPeriodYearInconsistent) {
			t.Errorf("Validate() = %v, want ErrPeriodYearInconsistent", err)
		}
	})

	t.Run("daily forbids fiscal year", func(t *testing.T) {
		r := baseRecord()
		r.PeriodType = Daily
		if err := r.Validate(); !errors.Is(err, ErrPeriodYearInconsistent) {
			t.Errorf("Validate() = %v, want ErrPeriodYearInconsistent", err)
		}
	})

	t.Run("daily with nil year is valid", func(t *testing.T) {
		r := baseRecord()
		r.PeriodType = Daily
		r.FiscalYear = nil
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})
}

func TestValidate_NonFiniteRatio(t *testing.T) {
	for _, bad := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		r := baseRecord()
		r.PER = ptr(bad)
		if err := r.Validate(); !errors.Is(err, ErrNonFiniteRatio) {
			t.Errorf("Validate() with PER=%v = %v, want ErrNonFiniteRatio", bad, err)
		}
	}
}

func TestAlgebraMismatch(t *testing.T) {
	tests := []struct {
		name    string
		revenue *int64
		cogs    *int64
		gross   *int64
		want    bool
	}{
		{"all nil", nil, nil, nil, false},
		{"agrees exactly", ptr(int64(100)), ptr(int64(40)), ptr(int64(60)), false},
		{"within tolerance", ptr(int64(100)), ptr(int64(40)), ptr(int64(59)), false},
		{"disagrees", ptr(int64(100)), ptr(int64(40)), ptr(int64(10)), true},
		{"gross missing does not block", ptr(int64(100)), ptr(int64(40)), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRecord()
			r.Revenue, r.COGS, r.GrossProfit = tt.revenue, tt.cogs, tt.gross
			if got := r.AlgebraMismatch(); got != tt.want {
				t.Errorf("AlgebraMismatch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveGrossProfit(t *testing.T) {
	r := baseRecord()
	r.Revenue, r.COGS = ptr(int64(100)), ptr(int64(40))

	if got := r.EffectiveGrossProfit(); got == nil || *got != 60 {
		t.Errorf("EffectiveGrossProfit() = %v, want 60 (derived)", got)
	}

	r.GrossProfit = ptr(int64(65))
	if got := r.EffectiveGrossProfit(); got == nil || *got != 65 {
		t.Errorf("EffectiveGrossProfit() = %v, want 65 (supplied takes priority)", got)
	}
}

func TestRecordIdentity(t *testing.T) {
	r := baseRecord()
	id := r.Identity()
	want := RecordIdentity{Ticker: "005930", Region: KR, FiscalYear: 2023, PeriodType: Annual}
	if id != want {
		t.Errorf("Identity() = %+v, want %+v", id, want)
	}
}
