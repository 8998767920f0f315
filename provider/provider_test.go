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
package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/kfundamentals/backfill/model"
)

func TestLookupField_TriesSynonymsInOrder(t *testing.T) {
	statement := gjson.Parse(`{"총자산": 500, "영업이익(손실)": 42}`)

	v, ok := lookupField(statement, "total_assets")
	if !ok || v.Int() != 500 {
		t.Errorf("lookupField(total_assets) = %v, %v, want 500, true", v, ok)
	}

	v, ok = lookupField(statement, "operating_profit")
	if !ok || v.Int() != 42 {
		t.Errorf("lookupField(operating_profit) = %v, %v, want 42, true (second synonym)", v, ok)
	}

	_, ok = lookupField(statement, "net_income")
	if ok {
		t.Error("lookupField(net_income) on statement missing every synonym = true, want false")
	}
}

func TestLookupInt64_ParsesFilingAmounts(t *testing.T) {
	statement := gjson.Parse(`{"자산총계": "258,255,411,000", "매출액": 12345, "당기순이익": "-", "부채총계": ""}`)

	if v := lookupInt64(statement, "total_assets"); v == nil || *v != 258255411000 {
		t.Errorf("lookupInt64(total_assets) = %v, want 258255411000 (comma-separated string)", v)
	}
	if v := lookupInt64(statement, "revenue"); v == nil || *v != 12345 {
		t.Errorf("lookupInt64(revenue) = %v, want 12345 (plain number)", v)
	}
	if v := lookupInt64(statement, "net_income"); v != nil {
		t.Errorf("lookupInt64(net_income) = %v, want nil for a dash placeholder", v)
	}
	if v := lookupInt64(statement, "total_liabilities"); v != nil {
		t.Errorf("lookupInt64(total_liabilities) = %v, want nil for an empty amount", v)
	}
}

func TestPeriodTypeToReportCode(t *testing.T) {
	tests := []struct {
		pt   model.PeriodType
		want string
	}{
		{model.Annual, "11011"},
		{model.SemiAnnual, "11012"},
		{model.Q1, "11013"},
		{model.Q3, "11014"},
		{model.Q2, ""},
	}
	for _, tt := range tests {
		if got := periodTypeToReportCode(tt.pt); got != tt.want {
			t.Errorf("periodTypeToReportCode(%v) = %q, want %q", tt.pt, got, tt.want)
		}
	}
}

func TestFiscalYearEnd(t *testing.T) {
	tests := []struct {
		pt   model.PeriodType
		want string
	}{
		{model.Annual, "2023-12-31"},
		{model.SemiAnnual, "2023-06-30"},
		{model.Q1, "2023-03-31"},
		{model.Q3, "2023-09-30"},
	}
	for _, tt := range tests {
		got := fiscalYearEnd(2023, tt.pt).Format("2006-01-02")
		if got != tt.want {
			t.Errorf("fiscalYearEnd(2023, %v) = %s, want %s", tt.pt, got, tt.want)
		}
	}
}

func TestRegulator_FloorYearReturnsEmptyNotError(t *testing.T) {
	r := NewRegulator("key", "http://unused.invalid", map[model.Region]int{model.KR: 1999})
	result, err := r.Fetch(context.Background(), FetchRequest{
		Ticker: "005930", Region: model.KR, FiscalYear: 1990, PeriodType: model.Annual,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil", err)
	}
	if result.Kind != KindEmpty {
		t.Errorf("Fetch() pre-floor-year Kind = %v, want KindEmpty", result.Kind)
	}
}

func TestRegulator_MissingTickerIsProgrammerError(t *testing.T) {
	r := NewRegulator("key", "http://unused.invalid", nil)
	_, err := r.Fetch(context.Background(), FetchRequest{Region: model.KR, FiscalYear: 2023, PeriodType: model.Annual})
	if err == nil {
		t.Fatal("Fetch() with empty ticker returned nil error, want ErrMissingTicker")
	}
}

func TestRegulator_AuthFailurePoisonsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewRegulator("key", srv.URL, map[model.Region]int{model.KR: 1999})
	result, err := r.Fetch(context.Background(), FetchRequest{
		Ticker: "005930", Region: model.KR, FiscalYear: 2023, PeriodType: model.Annual,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Kind != KindError || result.ErrKind != ErrKindAuthFailed {
		t.Errorf("Fetch() = %+v, want KindError/ErrKindAuthFailed", result)
	}
	if !result.ErrKind.PoisonsSource() {
		t.Error("ErrKindAuthFailed.PoisonsSource() = false, want true")
	}
}

func TestMarketHelper_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewMarketHelper(srv.URL)
	result, err := m.Fetch(context.Background(), FetchRequest{
		Ticker: "005930", Region: model.KR, FiscalYear: 2023, PeriodType: model.Annual,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Kind != KindEmpty {
		t.Errorf("Fetch() Kind = %v, want KindEmpty", result.Kind)
	}
}

func TestGlobalFallback_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGlobalFallback(srv.URL)
	result, err := g.Fetch(context.Background(), FetchRequest{
		Ticker: "AAPL", Region: model.US, FiscalYear: 2023, PeriodType: model.Annual,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Kind != KindError || result.ErrKind != ErrKindThrottled {
		t.Errorf("Fetch() = %+v, want KindError/ErrKindThrottled", result)
	}
	if !result.ErrKind.Retryable() {
		t.Error("ErrKindThrottled.Retryable() = false, want true")
	}
}

func TestRankOrdering(t *testing.T) {
	if !(model.RankRegulator > model.RankMarketHelper && model.RankMarketHelper > model.RankGlobalFallback) {
		t.Fatal("provenance rank ordering broken: regulator > market_helper > global_fallback must hold")
	}
}
