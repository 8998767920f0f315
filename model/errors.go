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

import "errors"

// Validation errors. The first four reject the write outright;
// ErrStatementAlgebraMismatch is advisory and never returned from
// Validate -- callers log it and proceed.
var (
	ErrIdentityMissing          = errors.New("model: ticker or region missing from record identity")
	ErrDataSourceMissing        = errors.New("model: data_source is required on every record")
	ErrPeriodYearInconsistent   = errors.New("model: fiscal_year must be set iff period_type is not DAILY")
	ErrNonFiniteRatio           = errors.New("model: ratio field is not finite")
	ErrStatementAlgebraMismatch = errors.New("model: gross_profit does not match revenue - cogs within tolerance")
)
