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

import "time"

// FundamentalRecord is the canonical row the engine writes to the store.
// Every field below statement fields is optional and currency-neutral;
// nullability is significant (a nil field means "not reported", never
// "reported as zero").
type FundamentalRecord struct {
	// Identity. (ticker, region, fiscal_year, period_type) is the dedup key
	// the store enforces uniqueness on.
	Ticker     string     `db:"ticker" json:"ticker"`
	Region     Region     `db:"region" json:"region"`
	FiscalYear *int       `db:"fiscal_year" json:"fiscal_year"`
	PeriodType PeriodType `db:"period_type" json:"period_type"`
	ReportDate time.Time  `db:"report_date" json:"report_date"`

	// Balance sheet.
	TotalAssets             *int64 `db:"total_assets" json:"total_assets,omitempty"`
	TotalLiabilities        *int64 `db:"total_liabilities" json:"total_liabilities,omitempty"`
	TotalEquity             *int64 `db:"total_equity" json:"total_equity,omitempty"`
	CurrentAssets           *int64 `db:"current_assets" json:"current_assets,omitempty"`
	CurrentLiabilities      *int64 `db:"current_liabilities" json:"current_liabilities,omitempty"`
	Inventory               *int64 `db:"inventory" json:"inventory,omitempty"`
	AccountsReceivable      *int64 `db:"accounts_receivable" json:"accounts_receivable,omitempty"`
	PPAndE                  *int64 `db:"pp_and_e" json:"pp_and_e,omitempty"`
	AccumulatedDepreciation *int64 `db:"accumulated_depreciation" json:"accumulated_depreciation,omitempty"`
	Depreciation            *int64 `db:"depreciation" json:"depreciation,omitempty"`

	// Income statement.
	Revenue          *int64 `db:"revenue" json:"revenue,omitempty"`
	COGS             *int64 `db:"cogs" json:"cogs,omitempty"`
	GrossProfit      *int64 `db:"gross_profit" json:"gross_profit,omitempty"`
	OperatingProfit  *int64 `db:"operating_profit" json:"operating_profit,omitempty"`
	OperatingExpense *int64 `db:"operating_expense" json:"operating_expense,omitempty"`
	SGAExpense       *int64 `db:"sga_expense" json:"sga_expense,omitempty"`
	RDExpense        *int64 `db:"rd_expense" json:"rd_expense,omitempty"`
	NetIncome        *int64 `db:"net_income" json:"net_income,omitempty"`
	InterestIncome   *int64 `db:"interest_income" json:"interest_income,omitempty"`
	InterestExpense  *int64 `db:"interest_expense" json:"interest_expense,omitempty"`
	EBITDA           *int64 `db:"ebitda" json:"ebitda,omitempty"`

	// Cash flow statement.
	InvestingCF *int64 `db:"investing_cf" json:"investing_cf,omitempty"`
	FinancingCF *int64 `db:"financing_cf" json:"financing_cf,omitempty"`

	// Metrics / derived ratios. Must be finite or null; a non-finite value
	// (Inf/NaN) fails validation rather than being silently stored.
	SharesOutstanding *int64   `db:"shares_outstanding" json:"shares_outstanding,omitempty"`
	DividendPerShare  *float64 `db:"dividend_per_share" json:"dividend_per_share,omitempty"`
	PER               *float64 `db:"per" json:"per,omitempty"`
	PBR               *float64 `db:"pbr" json:"pbr,omitempty"`
	PSR               *float64 `db:"psr" json:"psr,omitempty"`
	ROE               *float64 `db:"roe" json:"roe,omitempty"`
	ROA               *float64 `db:"roa" json:"roa,omitempty"`
	DebtRatio         *float64 `db:"debt_ratio" json:"debt_ratio,omitempty"`
	EBITDAMargin      *float64 `db:"ebitda_margin" json:"ebitda_margin,omitempty"`
	NIM               *float64 `db:"nim" json:"nim,omitempty"`

	// Price snapshot, taken at ReportDate.
	ClosePrice *float64 `db:"close_price" json:"close_price,omitempty"`
	MarketCap  *int64   `db:"market_cap" json:"market_cap,omitempty"`

	// Provenance. DataSource is a short tag encoding provider + period code,
	// e.g. "DART-2024-11011", "pykrx", "yfinance". Always non-null.
	DataSource string `db:"data_source" json:"data_source"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Identity returns the four-tuple the store's unique key is built from.
func (f *FundamentalRecord) Identity() RecordIdentity {
	var year int
	if f.FiscalYear != nil {
		year = *f.FiscalYear
	}
	return RecordIdentity{
		Ticker:     f.Ticker,
		Region:     f.Region,
		FiscalYear: year,
		PeriodType: f.PeriodType,
	}
}

// RecordIdentity is the comparable form of FundamentalRecord's dedup key,
// usable as a map key by the orchestrator's in-memory plan and by tests.
type RecordIdentity struct {
	Ticker     string
	Region     Region
	FiscalYear int
	PeriodType PeriodType
}

func (r RecordIdentity) String() string {
	return string(r.Region) + ":" + r.Ticker + ":" + itoa(r.FiscalYear) + ":" + string(r.PeriodType)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EffectiveGrossProfit returns the reported gross profit when present,
// otherwise the revenue-minus-cogs derivation. It
// mirrors the read-side of the generated `gross_profit_derived` column so
// callers that assemble a FundamentalRecord from scratch (tests, adapters
// reading back a row) see the same value the store would.
func (f *FundamentalRecord) EffectiveGrossProfit() *int64 {
	if f.GrossProfit != nil {
		return f.GrossProfit
	}
	if f.Revenue == nil || f.COGS == nil {
		return nil
	}
	derived := *f.Revenue - *f.COGS
	return &derived
}
