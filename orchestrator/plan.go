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

// Package orchestrator is the Backfill Orchestrator: it builds
// the Cartesian work plan, dispatches work units with bounded concurrency
// through the Rate Governor and Source Adapters, writes results through the
// Upsert Engine, and checkpoints progress so interrupted runs resume.
package orchestrator

import (
	"github.com/kfundamentals/backfill/model"
)

// Mode selects how the plan is filtered against existing store state.
type Mode string

const (
	ModeFull         Mode = "full"
	ModeIncremental  Mode = "incremental"
	ModeForceRefresh Mode = "force_refresh"
)

// WorkUnit is one (ticker, fiscal_year, period_type) dispatched through
// exactly one adapter per attempt.
type WorkUnit struct {
	Ticker     string
	Region     model.Region
	FiscalYear int
	PeriodType model.PeriodType
}

func (w WorkUnit) Identity() model.RecordIdentity {
	return model.RecordIdentity{
		Ticker:     w.Ticker,
		Region:     w.Region,
		FiscalYear: w.FiscalYear,
		PeriodType: w.PeriodType,
	}
}

// PlanParams describes the Cartesian work set the Orchestrator dispatches:
// every ticker in the universe crossed with every year in range, at
// PeriodType ANNUAL unless ExtraPeriods widens it. SEMI_ANNUAL and
// quarterly periods are only added when explicitly requested.
type PlanParams struct {
	Tickers      []string
	Region       model.Region
	StartYear    int
	EndYear      int
	ExtraPeriods []model.PeriodType // e.g. SemiAnnual, Q1, Q2, Q3
}

// BuildPlan enumerates the Cartesian work set for PlanParams. Callers pass
// the result through Filter to respect Mode before dispatch.
func BuildPlan(p PlanParams) []WorkUnit {
	periods := append([]model.PeriodType{model.Annual}, p.ExtraPeriods...)

	units := make([]WorkUnit, 0, len(p.Tickers)*(p.EndYear-p.StartYear+1)*len(periods))
	for _, ticker := range p.Tickers {
		for year := p.StartYear; year <= p.EndYear; year++ {
			for _, pt := range periods {
				units = append(units, WorkUnit{
					Ticker:     ticker,
					Region:     p.Region,
					FiscalYear: year,
					PeriodType: pt,
				})
			}
		}
	}
	return units
}
