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
package orchestrator

import (
	"context"

	"github.com/kfundamentals/backfill/model"
	"github.com/kfundamentals/backfill/store"
)

// Filter narrows a freshly built plan against existing store state.
// force_refresh dispatches every unit regardless; the other modes skip any
// identity already present at a provenance rank at least as high as the
// best rank this run's configured sources could produce -- fetching again
// could not improve it.
func Filter(ctx context.Context, units []WorkUnit, engine store.Engine, mode Mode, bestAvailableRank model.ProvenanceRank) ([]WorkUnit, []WorkUnit, error) {
	if mode == ModeForceRefresh {
		return units, nil, nil
	}

	var toDispatch, skipped []WorkUnit
	for _, u := range units {
		rank, found, err := engine.ExistingRank(ctx, u.Identity())
		if err != nil {
			return nil, nil, err
		}
		if found && rank >= bestAvailableRank {
			skipped = append(skipped, u)
			continue
		}
		toDispatch = append(toDispatch, u)
	}
	return toDispatch, skipped, nil
}
