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

// Package provider defines the uniform Source Adapter contract and ships three adapters: a strict-rate regulator filing source, a
// moderate-rate market-data helper, and a lenient global fallback. Adapters
// are stateless across requests -- all retry/backoff lives in the
// orchestrator.
package provider

import (
	"context"

	"github.com/kfundamentals/backfill/model"
)

// FetchRequest is one work unit handed to an adapter's Fetch method.
type FetchRequest struct {
	Ticker     string
	Region     model.Region
	FiscalYear int
	PeriodType model.PeriodType
}

// ResultKind tags what an adapter's Fetch call produced. It is deliberately
// not a Go error: Empty is a normal, expected outcome distinct from Error,
// and the Orchestrator's retry policy branches on this tag rather than on
// error-string inspection.
type ResultKind int

const (
	// KindOk: the adapter produced a usable record. Statement fields are
	// best-effort; only identity fields are guaranteed populated.
	KindOk ResultKind = iota
	// KindEmpty: the provider acknowledged the request but holds no data
	// for it (e.g. before the regulator's filing cutover year). Distinct
	// from KindError: the orchestrator does not retry or count it as a
	// failure.
	KindEmpty
	// KindError: see Result.ErrKind for the failure classification.
	KindError
)

// Result is the tagged outcome of one adapter Fetch.
type Result struct {
	Kind    ResultKind
	Record  *model.FundamentalRecord
	ErrKind ErrKind
}

// Adapter is the uniform contract every Source Adapter implements.
type Adapter interface {
	// Name is the short provider tag used in data_source and error
	// histograms, e.g. "DART", "pykrx", "yfinance".
	Name() string
	// Rank is this adapter's provenance rank for conflict resolution.
	Rank() model.ProvenanceRank
	// Fetch retrieves one (ticker, fiscal_year, period_type) work unit.
	// The returned error is reserved for programmer-bug-class failures
	// (e.g. a request with no ticker); every provider-side outcome, including
	// failure, is communicated through Result.
	Fetch(ctx context.Context, req FetchRequest) (Result, error)
}

// Ok builds a successful Result.
func Ok(record *model.FundamentalRecord) Result {
	return Result{Kind: KindOk, Record: record}
}

// Empty builds a no-data Result.
func Empty() Result {
	return Result{Kind: KindEmpty}
}

// Err builds a failed Result of the given classification.
func Err(kind ErrKind) Result {
	return Result{Kind: KindError, ErrKind: kind}
}
