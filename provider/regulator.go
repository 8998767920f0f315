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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/kfundamentals/backfill/model"
)

// reportCode maps a DART-style filing code to the canonical period type
// it represents.
var reportCode = map[string]model.PeriodType{
	"11011": model.Annual,     // 사업보고서 (annual business report)
	"11012": model.SemiAnnual, // 반기보고서
	"11013": model.Q1,         // 1분기보고서
	"11014": model.Q3,         // 3분기보고서
}

// Regulator is the strict-rate, full-statement adapter for the KR
// regulator filing source (tagged "DART" in data_source). It is the
// highest-provenance-rank adapter: regulator filings win every conflict.
type Regulator struct {
	client    *resty.Client
	apiKey    string
	baseURL   string
	floorYear map[model.Region]int
}

// NewRegulator builds a Regulator adapter. floorYear lets callers tune the
// pre-cutover year below which the source is known to hold no filings per
// region without a code change.
func NewRegulator(apiKey, baseURL string, floorYear map[model.Region]int) *Regulator {
	if floorYear == nil {
		floorYear = map[model.Region]int{model.KR: 1999}
	}
	return &Regulator{
		client:    resty.New().SetTimeout(60 * time.Second),
		apiKey:    apiKey,
		baseURL:   baseURL,
		floorYear: floorYear,
	}
}

func (r *Regulator) Name() string               { return "DART" }
func (r *Regulator) Rank() model.ProvenanceRank { return model.RankRegulator }

func (r *Regulator) Fetch(ctx context.Context, req FetchRequest) (Result, error) {
	if req.Ticker == "" {
		return Result{}, ErrMissingTicker
	}

	if floor, ok := r.floorYear[req.Region]; ok && req.FiscalYear < floor {
		return Empty(), nil
	}

	code := periodTypeToReportCode(req.PeriodType)
	if code == "" {
		return Err(ErrKindMalformedResponse), nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"crtfc_key":  r.apiKey,
			"corp_code":  req.Ticker,
			"bsns_year":  fmt.Sprintf("%d", req.FiscalYear),
			"reprt_code": code,
		}).
		Get(r.baseURL + "/api/fnlttSinglAcntAll.json")

	if err != nil {
		log.Warn().Err(err).Str("ticker", req.Ticker).Msg("regulator fetch transport error")
		return Err(ErrKindTransient), nil
	}

	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return Err(ErrKindThrottled), nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return Err(ErrKindAuthFailed), nil
	case http.StatusNotFound:
		return Err(ErrKindNotFound), nil
	}
	if resp.StatusCode() >= 500 {
		return Err(ErrKindTransient), nil
	}
	if resp.StatusCode() != http.StatusOK {
		return Err(ErrKindMalformedResponse), nil
	}

	body := gjson.ParseBytes(resp.Body())
	status := body.Get("status").String()
	switch status {
	case "013": // DART's own "no data found" status
		return Empty(), nil
	case "020":
		return Err(ErrKindThrottled), nil
	case "":
		// fallthrough to parse
	case "000":
		// fallthrough to parse
	default:
		return Err(ErrKindMalformedResponse), nil
	}

	statements := body.Get("list")
	if !statements.Exists() || len(statements.Array()) == 0 {
		return Empty(), nil
	}

	record, err := r.parseStatement(req, statements, code)
	if err != nil {
		log.Warn().Err(err).Str("ticker", req.Ticker).Msg("regulator malformed statement")
		return Err(ErrKindMalformedResponse), nil
	}

	return Ok(record), nil
}

// parseStatement folds the array of single-account-item rows DART returns
// into one canonical record, indexing rows by account name and trying
// every label synonym per field before leaving it null.
func (r *Regulator) parseStatement(req FetchRequest, statements gjson.Result, reportCode string) (*model.FundamentalRecord, error) {
	bySJName := map[string]gjson.Result{}
	for _, item := range statements.Array() {
		label := item.Get("account_nm").String()
		bySJName[label] = item
	}

	flat := flattenBySJName(bySJName)

	rec := &model.FundamentalRecord{
		Ticker:     req.Ticker,
		Region:     req.Region,
		PeriodType: req.PeriodType,
		ReportDate: fiscalYearEnd(req.FiscalYear, req.PeriodType),
		DataSource: fmt.Sprintf("DART-%d-%s", req.FiscalYear, reportCode),
	}
	if req.PeriodType != model.Daily {
		year := req.FiscalYear
		rec.FiscalYear = &year
	}

	rec.TotalAssets = lookupInt64(flat, "total_assets")
	rec.TotalLiabilities = lookupInt64(flat, "total_liabilities")
	rec.TotalEquity = lookupInt64(flat, "total_equity")
	rec.CurrentAssets = lookupInt64(flat, "current_assets")
	rec.CurrentLiabilities = lookupInt64(flat, "current_liabilities")
	rec.Inventory = lookupInt64(flat, "inventory")
	rec.AccountsReceivable = lookupInt64(flat, "accounts_receivable")
	rec.PPAndE = lookupInt64(flat, "pp_and_e")
	rec.AccumulatedDepreciation = lookupInt64(flat, "accumulated_depreciation")
	rec.Depreciation = lookupInt64(flat, "depreciation")
	rec.Revenue = lookupInt64(flat, "revenue")
	rec.COGS = lookupInt64(flat, "cogs")
	rec.GrossProfit = lookupInt64(flat, "gross_profit")
	rec.OperatingProfit = lookupInt64(flat, "operating_profit")
	rec.OperatingExpense = lookupInt64(flat, "operating_expense")
	rec.SGAExpense = lookupInt64(flat, "sga_expense")
	rec.RDExpense = lookupInt64(flat, "rd_expense")
	rec.NetIncome = lookupInt64(flat, "net_income")
	rec.InterestIncome = lookupInt64(flat, "interest_income")
	rec.InterestExpense = lookupInt64(flat, "interest_expense")
	rec.SharesOutstanding = lookupInt64(flat, "shares_outstanding")

	return rec, nil
}

func flattenBySJName(bySJName map[string]gjson.Result) gjson.Result {
	obj := "{"
	first := true
	for label, item := range bySJName {
		if !first {
			obj += ","
		}
		first = false
		obj += fmt.Sprintf("%q:%s", label, item.Get("thstrm_amount").Raw)
	}
	obj += "}"
	return gjson.Parse(obj)
}

func periodTypeToReportCode(pt model.PeriodType) string {
	for code, mapped := range reportCode {
		if mapped == pt {
			return code
		}
	}
	return ""
}

func fiscalYearEnd(year int, pt model.PeriodType) time.Time {
	switch pt {
	case model.Annual:
		return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	case model.SemiAnnual:
		return time.Date(year, time.June, 30, 0, 0, 0, 0, time.UTC)
	case model.Q1:
		return time.Date(year, time.March, 31, 0, 0, 0, 0, time.UTC)
	case model.Q3:
		return time.Date(year, time.September, 30, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
}

// lookupInt64 pulls one canonical field out of the flattened statement.
// Filing amounts arrive as digit strings, sometimes thousands-separated,
// so commas are stripped before parsing.
func lookupInt64(statement gjson.Result, canonicalField string) *int64 {
	v, ok := lookupField(statement, canonicalField)
	if !ok || !v.Exists() {
		return nil
	}
	if v.Type == gjson.String {
		cleaned := strings.ReplaceAll(strings.TrimSpace(v.String()), ",", "")
		if cleaned == "" || cleaned == "-" {
			return nil
		}
		n, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	}
	n := v.Int()
	return &n
}
