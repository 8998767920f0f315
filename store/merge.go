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
	"reflect"

	"github.com/kfundamentals/backfill/model"
)

// mergeable fields are every pointer-typed statement/ratio/price field on
// FundamentalRecord. Identity, ReportDate, DataSource and the timestamps
// are handled separately by the caller, so they are excluded here by
// walking only fields whose Go type is a pointer.

// mergeOverwrite implements the equal-rank merge: incoming
// non-null fields overwrite, incoming nulls preserve the stored value.
// Returns the merged record and whether any field actually changed.
func mergeOverwrite(stored, incoming *model.FundamentalRecord) (*model.FundamentalRecord, bool) {
	merged := *stored
	changed := false
	walkPointerFields(&merged, incoming, func(dst, src reflect.Value) {
		if !src.IsNil() {
			if !dst.IsNil() && reflect.DeepEqual(dst.Elem().Interface(), src.Elem().Interface()) {
				return
			}
			dst.Set(src)
			changed = true
		}
	})
	merged.DataSource = incoming.DataSource
	return &merged, changed
}

// mergeFill implements the lower-rank fill: incoming non-null
// fields are written only where the stored field is currently null.
// DataSource/provenance are NOT overwritten -- the stored, higher-ranked
// source's tag survives a lower-rank fill.
func mergeFill(stored, incoming *model.FundamentalRecord) (*model.FundamentalRecord, bool) {
	merged := *stored
	changed := false
	walkPointerFields(&merged, incoming, func(dst, src reflect.Value) {
		if dst.IsNil() && !src.IsNil() {
			dst.Set(src)
			changed = true
		}
	})
	return &merged, changed
}

// identical reports whether incoming carries no information the stored
// record doesn't already have at the same values -- used to short-circuit
// a higher-rank replace into NoChange when nothing would actually change.
func identical(incoming, stored *model.FundamentalRecord) bool {
	if incoming.DataSource != stored.DataSource {
		return false
	}
	same := true
	walkPointerFields(stored, incoming, func(dst, src reflect.Value) {
		if dst.IsNil() != src.IsNil() {
			same = false
			return
		}
		if !dst.IsNil() && !reflect.DeepEqual(dst.Elem().Interface(), src.Elem().Interface()) {
			same = false
		}
	})
	return same
}

// walkPointerFields calls fn(dstField, srcField) for every exported field
// of FundamentalRecord whose Go type is a pointer (every statement field,
// ratio, and price snapshot field -- see model.FundamentalRecord). dst must
// be addressable.
func walkPointerFields(dst, src *model.FundamentalRecord, fn func(dst, src reflect.Value)) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	t := dv.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Type.Kind() != reflect.Ptr {
			continue
		}
		fn(dv.Field(i), sv.Field(i))
	}
}
