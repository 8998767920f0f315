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

// marketHelperQuote is the snapshot payload the market-data helper source
// returns: ratios and a price snapshot, no full statements.
type marketHelperQuote struct {
	Ticker            string  `json:"ticker"`
	Date              string  `json:"date"`
	ClosePrice        float64 `json:"close"`
	MarketCap         int64   `json:"market_cap"`
	PER               float64 `json:"per"`
	PBR               float64 `json:"pbr"`
	DividendPerShare  float64 `json:"dps"`
	SharesOutstanding int64   `json:"shares_outstanding"`
}

// MarketHelper is the moderate-rate, ratios-and-price-only adapter
// ("pykrx"-style KRX quote snapshot source).
type MarketHelper struct {
	client  *resty.Client
	baseURL string
}

func NewMarketHelper(baseURL string) *MarketHelper {
	return &MarketHelper{
		client:  resty.New().SetTimeout(30 * time.Second),
		baseURL: baseURL,
	}
}

func (m *MarketHelper) Name() string               { return "pykrx" }
func (m *MarketHelper) Rank() model.ProvenanceRank { return model.RankMarketHelper }

func (m *MarketHelper) Fetch(ctx context.Context, req FetchRequest) (Result, error) {
	if req.Ticker == "" {
		return Result{}, ErrMissingTicker
	}

	var quote marketHelperQuote
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ticker": req.Ticker,
			"year":   itoaYear(req.FiscalYear),
		}).
		SetResult(&quote).
		Get(m.baseURL + "/quote")

	if err != nil {
		log.Warn().Err(err).Str("ticker", req.Ticker).Msg("market helper fetch transport error")
		return Err(ErrKindTransient), nil
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return Err(ErrKindThrottled), nil
	case resp.StatusCode() == http.StatusUnauthorized:
		return Err(ErrKindAuthFailed), nil
	case resp.StatusCode() == http.StatusNoContent, resp.StatusCode() == http.StatusNotFound:
		return Empty(), nil
	case resp.StatusCode() >= 500:
		return Err(ErrKindTransient), nil
	case resp.StatusCode() != http.StatusOK:
		return Err(ErrKindMalformedResponse), nil
	}

	if quote.Ticker == "" {
		return Empty(), nil
	}

	year := req.FiscalYear
	rec := &model.FundamentalRecord{
		Ticker:            req.Ticker,
		Region:            req.Region,
		FiscalYear:        &year,
		PeriodType:        req.PeriodType,
		ReportDate:        fiscalYearEnd(req.FiscalYear, req.PeriodType),
		DataSource:        "pykrx",
		ClosePrice:        floatPtrNonZero(quote.ClosePrice),
		MarketCap:         int64PtrNonZero(quote.MarketCap),
		PER:               floatPtrNonZero(quote.PER),
		PBR:               floatPtrNonZero(quote.PBR),
		DividendPerShare:  floatPtrNonZero(quote.DividendPerShare),
		SharesOutstanding: int64PtrNonZero(quote.SharesOutstanding),
	}

	return Ok(rec), nil
}

func itoaYear(year int) string {
	return fiscalYearEnd(year, model.Annual).Format("2006")
}

func floatPtrNonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func int64PtrNonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
