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

import "errors"

// ErrKind classifies why an adapter's Fetch produced KindError. The
// classification drives the orchestrator's retry policy:
// Throttled/Transient are retryable, NotFound/MalformedResponse are
// terminal for the one unit, AuthFailed poisons the entire source.
type ErrKind int

const (
	ErrKindThrottled ErrKind = iota
	ErrKindTransient
	ErrKindNotFound
	ErrKindMalformedResponse
	ErrKindAuthFailed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindThrottled:
		return "throttled"
	case ErrKindTransient:
		return "transient"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindMalformedResponse:
		return "malformed_response"
	case ErrKindAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Retryable reports whether the orchestrator should reschedule the unit
// with backoff rather than marking it terminal.
func (k ErrKind) Retryable() bool {
	return k == ErrKindThrottled || k == ErrKindTransient
}

// PoisonsSource reports whether this failure should stop all further
// dispatch against the adapter's source for the remainder of the run.
func (k ErrKind) PoisonsSource() bool {
	return k == ErrKindAuthFailed
}

var (
	// ErrMissingTicker is a programmer-bug-class error (empty FetchRequest),
	// distinct from the provider-side ErrKind classification above.
	ErrMissingTicker = errors.New("provider: fetch request is missing a ticker")
)
