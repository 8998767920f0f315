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
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/kfundamentals/backfill/model"
)

// globalFallbackStatement is the partial-statements-plus-ratios payload
// the lenient global aggregator source returns.
type globalFallbackStatement struct {
	Symbol       string  `json:"symbol"`
	FiscalYear   int     `json:"fiscalYear"`
	PeriodLabel  string  `json:"period"`
	Revenue      *int64  `json:"totalRevenue"`
	NetIncome    *int64  `json:"netIncome"`
	TotalAssets  *int64  `json:"totalAssets"`
	TotalEquity  *int64  `json:"totalStockholdersEquity"`
	EBITDA       *int64  `json:"ebitda"`
	PriceToBook  *float64 `json:"priceToBook"`
	TrailingPE   *float64 `json:"trailingPE"`
	PriceToSales *float64 `json:"priceToSalesTrailing12Months"`
}

// GlobalFallback is the lenient, any-region, partial-statement adapter
// ("yfinance"-style global aggregator). It is the lowest-provenance-rank
// adapter and the default for regions without a dedicated regulator
// integration.
type GlobalFallback struct {
	client  *resty.Client
	baseURL string
}

func NewGlobalFallback(baseURL string) *GlobalFallback {
	return &GlobalFallback{
		client:  resty.New().SetTimeout(45 * time.Second),
		baseURL: baseURL,
	}
}

func (g *GlobalFallback) Name() string               { return "yfinance" }
func (g *GlobalFallback) Rank() model.ProvenanceRank { return model.RankGlobalFallback }

func (g *GlobalFallback) Fetch(ctx context.Context, req FetchRequest) (Result, error) {
	if req.Ticker == "" {
		return Result{}, ErrMissingTicker
	}

	var stmt globalFallbackStatement
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": req.Ticker,
			"year":   itoaYear(req.FiscalYear),
			"period": periodLabel(req.PeriodType),
		}).
		SetResult(&stmt).
		Get(g.baseURL + "/v1/financials")

	if err != nil {
		log.Warn().Err(err).Str("ticker", req.Ticker).Msg("global fallback fetch transport error")
		return Err(ErrKindTransient), nil
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return Err(ErrKindThrottled), nil
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return Err(ErrKindAuthFailed), nil
	case resp.StatusCode() == http.StatusNotFound:
		return Empty(), nil
	case resp.StatusCode() >= 500:
		return Err(ErrKindTransient), nil
	case resp.StatusCode() != http.StatusOK:
		return Err(ErrKindMalformedResponse), nil
	}

	if stmt.Symbol == "" {
		return Empty(), nil
	}

	year := req.FiscalYear
	rec := &model.FundamentalRecord{
		Ticker:      req.Ticker,
		Region:      req.Region,
		FiscalYear:  &year,
		PeriodType:  req.PeriodType,
		ReportDate:  fiscalYearEnd(req.FiscalYear, req.PeriodType),
		DataSource:  "yfinance",
		Revenue:     stmt.Revenue,
		NetIncome:   stmt.NetIncome,
		TotalAssets: stmt.TotalAssets,
		TotalEquity: stmt.TotalEquity,
		EBITDA:      stmt.EBITDA,
		PBR:         stmt.PriceToBook,
		PER:         stmt.TrailingPE,
		PSR:         stmt.PriceToSales,
	}

	return Ok(rec), nil
}

func periodLabel(pt model.PeriodType) string {
	switch pt {
	case model.Annual:
		return "annual"
	case model.SemiAnnual:
		return "semiannual"
	case model.Q1, model.Q2, model.Q3:
		return "quarterly"
	default:
		return "annual"
	}
}
