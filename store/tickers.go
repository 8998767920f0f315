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
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/kfundamentals/backfill/model"
)

type tickerRow struct {
	Symbol     string `db:"ticker"`
	Region     string `db:"region"`
	Name       string `db:"name"`
	SectorCode string `db:"sector_code"`
	Active     bool   `db:"active"`
	MarketCap  *int64 `db:"market_cap"`
}

func (r tickerRow) ticker() model.Ticker {
	return model.Ticker{
		Symbol:     r.Symbol,
		Region:     model.Region(r.Region),
		Name:       r.Name,
		SectorCode: r.SectorCode,
		Active:     r.Active,
		MarketCap:  r.MarketCap,
	}
}

// ActiveTickers backs `--all`: every active ticker registered for region.
func (s *Store) ActiveTickers(ctx context.Context, region model.Region) ([]model.Ticker, error) {
	var rows []tickerRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT ticker, region, name, sector_code, active, market_cap
		FROM tickers
		WHERE region = $1 AND active
		ORDER BY ticker`, string(region))
	if err != nil {
		return nil, classify(err)
	}
	return tickersOf(rows), nil
}

// TopTickers backs `--top <N>`: the N active tickers in region with the
// largest market_cap, nulls last (a ticker pending its first market-data
// snapshot is never preferred over one with a known capitalization).
func (s *Store) TopTickers(ctx context.Context, region model.Region, n int) ([]model.Ticker, error) {
	var rows []tickerRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT ticker, region, name, sector_code, active, market_cap
		FROM tickers
		WHERE region = $1 AND active
		ORDER BY market_cap DESC NULLS LAST
		LIMIT $2`, string(region), n)
	if err != nil {
		return nil, classify(err)
	}
	return tickersOf(rows), nil
}

func tickersOf(rows []tickerRow) []model.Ticker {
	out := make([]model.Ticker, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ticker())
	}
	return out
}
