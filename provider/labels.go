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

import "github.com/tidwall/gjson"

// labelSynonyms maps one canonical field name to every label the regulator
// source has used for it across annual and interim filing nomenclature,
// tried in order. Korean annual labels come first since they are the most
// common, followed by interim-report phrasing and the occasional English
// alias DART attaches for foreign-listed filers.
var labelSynonyms = map[string][]string{
	"total_assets":             {"자산총계", "총자산", "Total Assets"},
	"total_liabilities":        {"부채총계", "총부채", "Total Liabilities"},
	"total_equity":             {"자본총계", "Total Equity"},
	"current_assets":           {"유동자산"},
	"current_liabilities":      {"유동부채"},
	"inventory":                {"재고자산"},
	"accounts_receivable":      {"매출채권"},
	"pp_and_e":                 {"유형자산"},
	"accumulated_depreciation": {"감가상각누계액"},
	"depreciation":             {"감가상각비"},
	"revenue":                  {"매출액", "수익(매출액)", "영업수익"},
	"cogs":                     {"매출원가"},
	"gross_profit":             {"매출총이익"},
	"operating_profit":         {"영업이익", "영업이익(손실)"},
	"operating_expense":        {"판매비와관리비", "영업비용"},
	"sga_expense":              {"판매비와관리비"},
	"rd_expense":               {"연구개발비"},
	"net_income":               {"당기순이익", "당기순이익(손실)", "분기순이익", "반기순이익"},
	"interest_income":          {"이자수익"},
	"interest_expense":         {"이자비용"},
	"shares_outstanding":       {"발행주식총수"},
}

// lookupField returns the first non-empty value found under any known
// synonym for canonicalField within the gjson-parsed statement payload,
// and whether a synonym matched at all. Every synonym is tried before a
// canonical field is given up as null.
func lookupField(statement gjson.Result, canonicalField string) (gjson.Result, bool) {
	for _, label := range labelSynonyms[canonicalField] {
		if v := statement.Get(gjsonEscape(label)); v.Exists() && v.String() != "" {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// gjsonEscape quotes path components containing characters gjson's path
// syntax treats specially (., *, |, #, @); statement labels here are plain
// Korean/English words, but quoting defensively costs nothing.
func gjsonEscape(label string) string {
	for _, r := range label {
		switch r {
		case '.', '*', '|', '#', '@':
			return "\"" + label + "\""
		}
	}
	return label
}
