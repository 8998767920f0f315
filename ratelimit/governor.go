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

// Package ratelimit implements the per-source token bucket ("Rate
// Governor") that every outbound adapter request passes through before it
// is allowed to fire.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrSourceClosed is returned by Acquire once a source has been disabled
// mid-run. Callers stop dispatching against the source instead of waiting
// on a budget that will never grant again.
var ErrSourceClosed = errors.New("ratelimit: source disabled for the remainder of the run")

// Config describes one source's budget, mirroring the provider-published
// limits adapters are configured with (e.g. a strict regulator source vs a
// lenient global aggregator).
type Config struct {
	// Capacity is the token bucket's burst size. Zero disables the source:
	// Acquire never grants and blocks until ctx is done.
	Capacity int
	// RefillRate is how many tokens accrue per second.
	RefillRate float64
	// MinInterval is the minimum spacing enforced between any two grants
	// to this source, even when tokens have accumulated past Capacity.
	MinInterval time.Duration
}

// Governor hands out permits to call a named source, one per configured
// source, serialized FIFO the way x/time/rate already orders waiters on a
// single limiter.
type Governor struct {
	mu       sync.Mutex
	limiters map[string]*sourceLimiter
	configs  map[string]Config
}

type sourceLimiter struct {
	limiter     *rate.Limiter
	minInterval time.Duration
	mu          sync.Mutex
	lastGrant   time.Time
	disabled    bool // configured with zero capacity
	closed      bool // disabled mid-run (poisoned source)
}

// New builds a Governor from a per-source configuration map.
func New(configs map[string]Config) *Governor {
	g := &Governor{
		limiters: make(map[string]*sourceLimiter, len(configs)),
		configs:  configs,
	}
	for source, cfg := range configs {
		g.limiters[source] = newSourceLimiter(cfg)
	}
	return g
}

func newSourceLimiter(cfg Config) *sourceLimiter {
	if cfg.Capacity <= 0 {
		return &sourceLimiter{disabled: true}
	}
	return &sourceLimiter{
		limiter:     rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity),
		minInterval: cfg.MinInterval,
	}
}

// Acquire blocks until source is permitted to make one outbound request,
// or ctx is cancelled first (in which case no token is consumed). Unknown
// sources are treated as unthrottled -- wiring a new adapter without a
// configured budget is a configuration bug to be caught in review, not a
// reason to deadlock the run.
func (g *Governor) Acquire(ctx context.Context, source string) error {
	g.mu.Lock()
	sl, ok := g.limiters[source]
	g.mu.Unlock()
	if !ok {
		return nil
	}
	return sl.acquire(ctx)
}

func (sl *sourceLimiter) acquire(ctx context.Context) error {
	sl.mu.Lock()
	closed, disabled := sl.closed, sl.disabled
	sl.mu.Unlock()

	// A closed source fails fast so in-flight callers drain; a
	// zero-capacity source blocks, since it may only be waiting out a
	// configuration that a later run re-enables.
	if closed {
		return ErrSourceClosed
	}
	if disabled {
		<-ctx.Done()
		return ctx.Err()
	}

	if sl.minInterval <= 0 {
		return sl.limiter.Wait(ctx)
	}

	// The min_interval wait runs before a token is taken, so a caller
	// cancelled during either wait leaves the bucket untouched.
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if wait := sl.minInterval - time.Since(sl.lastGrant); wait > 0 && !sl.lastGrant.IsZero() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sl.limiter.Wait(ctx); err != nil {
		return err
	}
	sl.lastGrant = time.Now()
	return nil
}

// Disable marks a source as permanently unavailable for the remainder of
// the run, backing the orchestrator's treatment of an AuthFailed source:
// every subsequent Acquire for that source returns ErrSourceClosed
// instead of granting.
func (g *Governor) Disable(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sl, ok := g.limiters[source]; ok {
		sl.mu.Lock()
		sl.closed = true
		sl.mu.Unlock()
	} else {
		g.limiters[source] = &sourceLimiter{closed: true}
	}
}
