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
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/kfundamentals/backfill/model"
)

// Outcome is the result of applying one record to the store.
type Outcome int

const (
	Inserted Outcome = iota
	Updated
	NoChange
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case NoChange:
		return "no_change"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Upsert writes record idempotently, resolving conflicts against any
// existing row with the same identity by provenance rank: higher rank
// replaces wholesale, equal rank merges field-by-field preferring the
// incoming value, lower rank only fills currently-null fields.
func (s *Store) Upsert(ctx context.Context, record *model.FundamentalRecord, rank model.ProvenanceRank) (Outcome, error) {
	if err := record.Validate(); err != nil {
		return Rejected, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return Rejected, classify(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return Rejected, classify(err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Error().Err(err).Msg("error rolling back upsert transaction")
		}
	}()

	existing, found, err := selectExisting(ctx, tx, record.Identity())
	if err != nil {
		return Rejected, classify(err)
	}

	var outcome Outcome
	var toWrite *model.FundamentalRecord
	var writeRank model.ProvenanceRank

	switch {
	case !found:
		outcome = Inserted
		toWrite = record
		writeRank = rank
	case rank > existing.rank:
		if identical(record, existing.record) {
			return NoChange, nil
		}
		outcome = Updated
		toWrite = record
		writeRank = rank
	case rank == existing.rank:
		merged, changed := mergeOverwrite(existing.record, record)
		if !changed {
			return NoChange, nil
		}
		outcome = Updated
		toWrite = merged
		writeRank = rank
	default: // rank < existing.rank: fill only currently-null fields
		merged, changed := mergeFill(existing.record, record)
		if !changed {
			return NoChange, nil
		}
		outcome = Updated
		toWrite = merged
		writeRank = existing.rank
	}

	if record.AlgebraMismatch() {
		log.Warn().Str("identity", record.Identity().String()).Msg("gross_profit does not match revenue-cogs within tolerance")
	}

	now := time.Now().UTC()
	toWrite.UpdatedAt = now
	if outcome == Inserted {
		toWrite.CreatedAt = now
	} else {
		toWrite.CreatedAt = existing.record.CreatedAt
	}

	if err := writeRecord(ctx, tx, toWrite, writeRank); err != nil {
		return Rejected, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Rejected, classify(err)
	}

	return outcome, nil
}

type existingRow struct {
	record *model.FundamentalRecord
	rank   model.ProvenanceRank
}

func selectExisting(ctx context.Context, tx pgx.Tx, id model.RecordIdentity) (existingRow, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT ticker, region, fiscal_year, period_type, report_date,
		       total_assets, total_liabilities, total_equity, current_assets, current_liabilities,
		       inventory, accounts_receivable, pp_and_e, accumulated_depreciation, depreciation,
		       revenue, cogs, gross_profit, operating_profit, operating_expense, sga_expense,
		       rd_expense, net_income, interest_income, interest_expense, ebitda,
		       investing_cf, financing_cf,
		       shares_outstanding, dividend_per_share, per, pbr, psr, roe, roa, debt_ratio, ebitda_margin, nim,
		       close_price, market_cap, data_source, provenance_rank, created_at, updated_at
		FROM fundamentals
		WHERE ticker = $1 AND region = $2
		  AND fiscal_year IS NOT DISTINCT FROM $3
		  AND period_type = $4
		FOR UPDATE`,
		id.Ticker, id.Region, nullableYear(id), id.PeriodType)

	var r model.FundamentalRecord
	var rank model.ProvenanceRank
	r.Ticker = id.Ticker
	r.Region = id.Region

	err := row.Scan(
		&r.Ticker, &r.Region, &r.FiscalYear, &r.PeriodType, &r.ReportDate,
		&r.TotalAssets, &r.TotalLiabilities, &r.TotalEquity, &r.CurrentAssets, &r.CurrentLiabilities,
		&r.Inventory, &r.AccountsReceivable, &r.PPAndE, &r.AccumulatedDepreciation, &r.Depreciation,
		&r.Revenue, &r.COGS, &r.GrossProfit, &r.OperatingProfit, &r.OperatingExpense, &r.SGAExpense,
		&r.RDExpense, &r.NetIncome, &r.InterestIncome, &r.InterestExpense, &r.EBITDA,
		&r.InvestingCF, &r.FinancingCF,
		&r.SharesOutstanding, &r.DividendPerShare, &r.PER, &r.PBR, &r.PSR, &r.ROE, &r.ROA, &r.DebtRatio, &r.EBITDAMargin, &r.NIM,
		&r.ClosePrice, &r.MarketCap, &r.DataSource, &rank, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return existingRow{}, false, nil
	}
	if err != nil {
		return existingRow{}, false, err
	}
	return existingRow{record: &r, rank: rank}, true, nil
}

func nullableYear(id model.RecordIdentity) *int {
	if id.PeriodType == model.Daily {
		return nil
	}
	year := id.FiscalYear
	return &year
}

func writeRecord(ctx context.Context, tx pgx.Tx, r *model.FundamentalRecord, rank model.ProvenanceRank) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO fundamentals (
			ticker, region, fiscal_year, period_type, report_date,
			total_assets, total_liabilities, total_equity, current_assets, current_liabilities,
			inventory, accounts_receivable, pp_and_e, accumulated_depreciation, depreciation,
			revenue, cogs, gross_profit, operating_profit, operating_expense, sga_expense,
			rd_expense, net_income, interest_income, interest_expense, ebitda,
			investing_cf, financing_cf,
			shares_outstanding, dividend_per_share, per, pbr, psr, roe, roa, debt_ratio, ebitda_margin, nim,
			close_price, market_cap, data_source, provenance_rank, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26,
			$27, $28,
			$29, $30, $31, $32, $33, $34, $35, $36, $37, $38,
			$39, $40, $41, $42, $43, $44
		)
		ON CONFLICT ON CONSTRAINT fundamentals_identity_key DO UPDATE SET
			report_date = EXCLUDED.report_date,
			total_assets = EXCLUDED.total_assets,
			total_liabilities = EXCLUDED.total_liabilities,
			total_equity = EXCLUDED.total_equity,
			current_assets = EXCLUDED.current_assets,
			current_liabilities = EXCLUDED.current_liabilities,
			inventory = EXCLUDED.inventory,
			accounts_receivable = EXCLUDED.accounts_receivable,
			pp_and_e = EXCLUDED.pp_and_e,
			accumulated_depreciation = EXCLUDED.accumulated_depreciation,
			depreciation = EXCLUDED.depreciation,
			revenue = EXCLUDED.revenue,
			cogs = EXCLUDED.cogs,
			gross_profit = EXCLUDED.gross_profit,
			operating_profit = EXCLUDED.operating_profit,
			operating_expense = EXCLUDED.operating_expense,
			sga_expense = EXCLUDED.sga_expense,
			rd_expense = EXCLUDED.rd_expense,
			net_income = EXCLUDED.net_income,
			interest_income = EXCLUDED.interest_income,
			interest_expense = EXCLUDED.interest_expense,
			ebitda = EXCLUDED.ebitda,
			investing_cf = EXCLUDED.investing_cf,
			financing_cf = EXCLUDED.financing_cf,
			shares_outstanding = EXCLUDED.shares_outstanding,
			dividend_per_share = EXCLUDED.dividend_per_share,
			per = EXCLUDED.per,
			pbr = EXCLUDED.pbr,
			psr = EXCLUDED.psr,
			roe = EXCLUDED.roe,
			roa = EXCLUDED.roa,
			debt_ratio = EXCLUDED.debt_ratio,
			ebitda_margin = EXCLUDED.ebitda_margin,
			nim = EXCLUDED.nim,
			close_price = EXCLUDED.close_price,
			market_cap = EXCLUDED.market_cap,
			data_source = EXCLUDED.data_source,
			provenance_rank = EXCLUDED.provenance_rank,
			updated_at = EXCLUDED.updated_at`,
		r.Ticker, r.Region, r.FiscalYear, r.PeriodType, r.ReportDate,
		r.TotalAssets, r.TotalLiabilities, r.TotalEquity, r.CurrentAssets, r.CurrentLiabilities,
		r.Inventory, r.AccountsReceivable, r.PPAndE, r.AccumulatedDepreciation, r.Depreciation,
		r.Revenue, r.COGS, r.GrossProfit, r.OperatingProfit, r.OperatingExpense, r.SGAExpense,
		r.RDExpense, r.NetIncome, r.InterestIncome, r.InterestExpense, r.EBITDA,
		r.InvestingCF, r.FinancingCF,
		r.SharesOutstanding, r.DividendPerShare, r.PER, r.PBR, r.PSR, r.ROE, r.ROA, r.DebtRatio, r.EBITDAMargin, r.NIM,
		r.ClosePrice, r.MarketCap, r.DataSource, rank, r.CreatedAt, r.UpdatedAt,
	)
	return err
}
