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
	"testing"
	"time"

	"github.com/kfundamentals/backfill/model"
	"github.com/kfundamentals/backfill/provider"
	"github.com/kfundamentals/backfill/ratelimit"
)

func unlimitedGovernor(sources ...string) *ratelimit.Governor {
	cfgs := make(map[string]ratelimit.Config, len(sources))
	for _, s := range sources {
		cfgs[s] = ratelimit.Config{Capacity: 1000, RefillRate: 1000}
	}
	return ratelimit.New(cfgs)
}

func okResult(ticker string, year int) provider.Result {
	y := year
	return provider.Ok(&model.FundamentalRecord{
		Ticker:     ticker,
		Region:     model.KR,
		FiscalYear: &y,
		PeriodType: model.Annual,
		ReportDate: time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		DataSource: "DART-test",
	})
}

// Happy path: one ticker, three years, single source.
func TestRun_HappyPath(t *testing.T) {
	engine := newFakeEngine()
	adapter := &fakeAdapter{name: "DART", rank: model.RankRegulator, results: []provider.Result{
		okResult("005930", 2022),
		okResult("005930", 2023),
		okResult("005930", 2024),
	}}

	units := BuildPlan(PlanParams{Tickers: []string{"005930"}, Region: model.KR, StartYear: 2022, EndYear: 2024})

	o := New(Config{
		Sources:           []Source{{Adapter: adapter}},
		Governor:          unlimitedGovernor("DART"),
		Engine:            engine,
		GlobalConcurrency: 4,
	}, nil)

	if err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(engine.rows) != 3 {
		t.Fatalf("expected 3 rows written, got %d", len(engine.rows))
	}

	successful := 0
	for _, a := range o.Snapshot() {
		if a.Status == model.StatusOK {
			successful++
		}
	}
	if successful != 3 {
		t.Fatalf("expected 3 successful attempts, got %d", successful)
	}
}

// Auth poisoning: once a source returns AuthFailed, every remaining
// unit for that source is SKIPPED rather than dispatched.
func TestRun_AuthPoisoning(t *testing.T) {
	engine := newFakeEngine()
	adapter := &fakeAdapter{name: "DART", rank: model.RankRegulator, results: []provider.Result{
		provider.Err(provider.ErrKindAuthFailed),
	}}

	units := BuildPlan(PlanParams{Tickers: []string{"005930", "000660"}, Region: model.KR, StartYear: 2022, EndYear: 2022})

	o := New(Config{
		Sources:           []Source{{Adapter: adapter}},
		Governor:          unlimitedGovernor("DART"),
		Engine:            engine,
		GlobalConcurrency: 1,
	}, nil)

	if err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, a := range o.Snapshot() {
		if a.Status != model.StatusSkipped {
			t.Fatalf("expected every unit SKIPPED after auth failure, got %s for %s", a.Status, a.Ticker)
		}
	}
}

// Retry exhaustion: a source that always reports Transient ends up
// FAILED_RETRYABLE after MaxAttempts, never OK, and the run does not abort.
func TestRun_RetryExhaustion(t *testing.T) {
	engine := newFakeEngine()
	adapter := &fakeAdapter{name: "pykrx", rank: model.RankMarketHelper, results: []provider.Result{
		provider.Err(provider.ErrKindTransient),
	}}

	units := BuildPlan(PlanParams{Tickers: []string{"005930"}, Region: model.KR, StartYear: 2022, EndYear: 2022})

	o := New(Config{
		Sources:           []Source{{Adapter: adapter}},
		Governor:          unlimitedGovernor("pykrx"),
		Engine:            engine,
		GlobalConcurrency: 1,
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffCap:        time.Millisecond,
	}, nil)

	if err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	snap := o.Snapshot()
	if len(snap) != 1 || snap[0].Status != model.StatusFailedRetryable {
		t.Fatalf("expected one FAILED_RETRYABLE attempt, got %+v", snap)
	}
	if snap[0].Attempts != 2 {
		t.Fatalf("expected 2 attempts before giving up, got %d", snap[0].Attempts)
	}
}

// Resume: units already OK in a seeded checkpoint are not re-fetched, so
// a restarted run converges on the same state without repeating work.
func TestRun_ResumeSkipsCompletedUnits(t *testing.T) {
	engine := newFakeEngine()
	adapter := &fakeAdapter{name: "DART", rank: model.RankRegulator, results: []provider.Result{
		okResult("005930", 2023),
	}}

	seed := []model.SourceAttempt{{
		Source: "DART", Ticker: "005930", Region: model.KR,
		FiscalYear: 2022, PeriodType: model.Annual,
		Status: model.StatusOK, Attempts: 1,
	}}

	units := BuildPlan(PlanParams{Tickers: []string{"005930"}, Region: model.KR, StartYear: 2022, EndYear: 2023})

	o := New(Config{
		Sources:           []Source{{Adapter: adapter}},
		Governor:          unlimitedGovernor("DART"),
		Engine:            engine,
		GlobalConcurrency: 1,
	}, seed)

	if err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if adapter.calls != 1 {
		t.Fatalf("expected only the unseeded 2023 unit to fetch, got %d adapter calls", adapter.calls)
	}
	if len(engine.rows) != 1 {
		t.Fatalf("expected 1 row written for the unseeded unit, got %d", len(engine.rows))
	}
}

// Units the plan filter dropped still show up as SKIPPED in the report.
func TestMarkSkipped_CountsInReport(t *testing.T) {
	o := New(Config{
		Sources:           []Source{{Adapter: &fakeAdapter{name: "DART", rank: model.RankRegulator}}},
		Governor:          unlimitedGovernor("DART"),
		Engine:            newFakeEngine(),
		GlobalConcurrency: 1,
	}, nil)

	units := BuildPlan(PlanParams{Tickers: []string{"005930"}, Region: model.KR, StartYear: 2022, EndYear: 2024})
	o.MarkSkipped(units, "DART")

	report := BuildReport(time.Now(), nil, time.Second, o.Snapshot())
	if report.Statistics.SkippedUnits != 3 {
		t.Fatalf("skipped_units = %d, want 3", report.Statistics.SkippedUnits)
	}
	if report.Statistics.SuccessfulUnits != 0 {
		t.Fatalf("successful_units = %d, want 0", report.Statistics.SuccessfulUnits)
	}
}

// Idempotence: running twice in incremental mode with a filtered plan
// writes nothing the second time.
func TestFilter_IncrementalSkipsExistingAtBestRank(t *testing.T) {
	engine := newFakeEngine()
	id := model.RecordIdentity{Ticker: "005930", Region: model.KR, FiscalYear: 2022, PeriodType: model.Annual}
	engine.ranks[id] = model.RankRegulator
	engine.rows[id] = &model.FundamentalRecord{Ticker: "005930", Region: model.KR}

	units := BuildPlan(PlanParams{Tickers: []string{"005930"}, Region: model.KR, StartYear: 2022, EndYear: 2022})

	dispatch, skipped, err := Filter(context.Background(), units, engine, ModeIncremental, model.RankRegulator)
	if err != nil {
		t.Fatalf("Filter returned error: %v", err)
	}
	if len(dispatch) != 0 || len(skipped) != 1 {
		t.Fatalf("expected the only unit to be skipped, got dispatch=%d skipped=%d", len(dispatch), len(skipped))
	}
}

// An empty universe plans zero units.
func TestBuildPlan_EmptyUniverse(t *testing.T) {
	units := BuildPlan(PlanParams{Tickers: nil, Region: model.KR, StartYear: 2022, EndYear: 2024})
	if len(units) != 0 {
		t.Fatalf("expected zero units for an empty ticker universe, got %d", len(units))
	}
}

// Both fiscal year range endpoints are included.
func TestBuildPlan_RangeEndpointsInclusive(t *testing.T) {
	units := BuildPlan(PlanParams{Tickers: []string{"AAPL"}, Region: model.US, StartYear: 2020, EndYear: 2022})
	years := map[int]bool{}
	for _, u := range units {
		years[u.FiscalYear] = true
	}
	if !years[2020] || !years[2022] {
		t.Fatalf("expected both range endpoints present, got years %v", years)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 annual units for a 3-year range, got %d", len(units))
	}
}
