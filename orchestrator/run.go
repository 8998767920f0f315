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
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kfundamentals/backfill/model"
	"github.com/kfundamentals/backfill/provider"
	"github.com/kfundamentals/backfill/ratelimit"
	"github.com/kfundamentals/backfill/store"
)

// ErrInterrupted marks a run that ended because of a cancellation signal
// rather than completing its plan.
var ErrInterrupted = errors.New("orchestrator: interrupted")

// ErrCheckpointBroken marks a run aborted because two consecutive
// checkpoint flushes failed. One failure is tolerated (logged, run
// continues); a second in a row means progress can no longer be made
// durable and resuming would re-fetch arbitrary amounts of work.
var ErrCheckpointBroken = errors.New("orchestrator: checkpoint writes failing repeatedly")

// Source wraps one configured Adapter. It is dispatched, rate-limited and
// reported under Adapter.Name().
type Source struct {
	Adapter provider.Adapter
}

// Config is everything Run needs beyond the work plan itself.
type Config struct {
	Sources              []Source // priority order: first is primary
	Governor             *ratelimit.Governor
	Engine               store.Engine
	GlobalConcurrency    int
	PerSourceConcurrency map[string]int // default 1 if unset
	MaxAttempts          int            // default 3
	BackoffBase          time.Duration  // default 1s
	BackoffCap           time.Duration  // default 60s
	FetchTimeout         time.Duration  // default 60s
	Fallback             bool           // dispatch to next-priority source on terminal-not-found
	CheckpointPath       string
	CheckpointEveryN     int           // default 50
	CheckpointEveryT     time.Duration // default 30s
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c Config) backoffBase() time.Duration {
	if c.BackoffBase <= 0 {
		return time.Second
	}
	return c.BackoffBase
}

func (c Config) backoffCap() time.Duration {
	if c.BackoffCap <= 0 {
		return 60 * time.Second
	}
	return c.BackoffCap
}

func (c Config) fetchTimeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return 60 * time.Second
	}
	return c.FetchTimeout
}

func (c Config) checkpointEveryN() int {
	if c.CheckpointEveryN <= 0 {
		return 50
	}
	return c.CheckpointEveryN
}

func (c Config) checkpointEveryT() time.Duration {
	if c.CheckpointEveryT <= 0 {
		return 30 * time.Second
	}
	return c.CheckpointEveryT
}

// Orchestrator drives one backfill run to completion. It holds no network
// clients itself -- those belong to the Source Adapters wired in through
// Config -- only the scheduling, checkpointing, and bookkeeping machinery.
type Orchestrator struct {
	cfg   Config
	state *State

	poisoned sync.Map // source name -> struct{}

	completedSinceCheckpoint atomic.Int64
	sequence                 atomic.Int64
	lastCheckpoint           atomic.Value // time.Time
	checkpointFailures       atomic.Int32
	checkpointBroken         atomic.Bool
}

// New builds an Orchestrator. seed is a prior run's checkpoint attempts,
// or nil for a fresh run. Seeded units whose status is already OK are not
// re-dispatched: a restart picks up exactly where the checkpoint left off.
func New(cfg Config, seed []model.SourceAttempt) *Orchestrator {
	o := &Orchestrator{cfg: cfg, state: NewState(seed)}
	o.lastCheckpoint.Store(time.Now())
	return o
}

// MarkSkipped records units that the plan filter decided not to dispatch
// (already satisfied in the store at the best reachable provenance rank)
// so they still appear as SKIPPED in the run report.
func (o *Orchestrator) MarkSkipped(units []WorkUnit, source string) {
	for _, u := range units {
		o.state.Set(model.SourceAttempt{
			Source:     source,
			Ticker:     u.Ticker,
			Region:     u.Region,
			FiscalYear: u.FiscalYear,
			PeriodType: u.PeriodType,
			Status:     model.StatusSkipped,
		})
	}
}

// Run dispatches every unit in units with bounded concurrency, retrying
// transient adapter failures with exponential backoff, persisting
// successes through the Upsert Engine, and flushing a checkpoint every N
// completed units or T seconds. It returns when the plan is exhausted or
// ctx is cancelled; in-flight units observe cancellation at their next
// rate-governor wait, network call, or store write.
func (o *Orchestrator) Run(ctx context.Context, units []WorkUnit) error {
	if len(o.cfg.Sources) == 0 {
		return errors.New("orchestrator: no sources configured")
	}

	perSourceSem := make(map[string]chan struct{}, len(o.cfg.Sources))
	for _, src := range o.cfg.Sources {
		limit := 1
		if n, ok := o.cfg.PerSourceConcurrency[src.Adapter.Name()]; ok && n > 0 {
			limit = n
		}
		perSourceSem[src.Adapter.Name()] = make(chan struct{}, limit)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.GlobalConcurrency)

	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			return o.dispatch(gctx, unit, perSourceSem)
		})
	}

	err := g.Wait()

	if flushErr := o.flushCheckpoint(); flushErr != nil {
		log.Error().Err(flushErr).Msg("final checkpoint flush failed")
	}

	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return err
}

// dispatch runs the full acquire -> fetch -> upsert task body for one work
// unit, retrying on Throttled/Transient up to cfg.MaxAttempts, and falling
// through source priority on terminal-not-found when Fallback is enabled.
func (o *Orchestrator) dispatch(ctx context.Context, unit WorkUnit, sems map[string]chan struct{}) error {
	// A checkpoint-seeded unit that already finished on any source is not
	// re-fetched: a restarted run converges on the same store state as an
	// uninterrupted one without repeating completed work.
	for _, src := range o.cfg.Sources {
		key := model.AttemptKey{Source: src.Adapter.Name(), Ticker: unit.Ticker, Region: unit.Region, FiscalYear: unit.FiscalYear, PeriodType: unit.PeriodType}
		if o.state.Get(key).Status == model.StatusOK {
			return nil
		}
	}

	for _, src := range o.cfg.Sources {
		name := src.Adapter.Name()
		key := model.AttemptKey{Source: name, Ticker: unit.Ticker, Region: unit.Region, FiscalYear: unit.FiscalYear, PeriodType: unit.PeriodType}

		if o.isPoisoned(name) {
			o.state.Transition(key, model.StatusSkipped, "auth_failed")
			if !o.cfg.Fallback {
				return nil
			}
			continue
		}

		outcome, err := o.dispatchOneSource(ctx, unit, src, key, sems[name])
		if err != nil {
			return err
		}
		if o.checkpointBroken.Load() {
			return ErrCheckpointBroken
		}

		switch outcome {
		case unitOK:
			return nil
		case unitEmpty, unitNotFound:
			if !o.cfg.Fallback {
				return nil
			}
			continue // try next-priority source
		case unitPoisoned:
			o.poisonSource(name)
			if !o.cfg.Fallback {
				return nil
			}
			continue
		case unitRetryExhausted:
			return nil
		}
	}
	return nil
}

type dispatchOutcome int

const (
	unitOK dispatchOutcome = iota
	unitEmpty
	unitNotFound
	unitPoisoned
	unitRetryExhausted
)

// dispatchOneSource runs one source's acquire/fetch/retry loop for unit:
// wait for the per-source semaphore and rate budget, fetch with a hard
// timeout, then persist or classify the result.
func (o *Orchestrator) dispatchOneSource(ctx context.Context, unit WorkUnit, src Source, key model.AttemptKey, sem chan struct{}) (dispatchOutcome, error) {
	maxAttempts := o.cfg.maxAttempts()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return unitRetryExhausted, nil
		}

		o.state.Transition(key, model.StatusInProgress, "")

		if err := o.cfg.Governor.Acquire(ctx, src.Adapter.Name()); err != nil {
			<-sem
			// Either cancelled while waiting for rate budget, or the
			// source was poisoned while this task was queued behind it.
			if o.isPoisoned(src.Adapter.Name()) {
				o.state.Transition(key, model.StatusSkipped, "auth_failed")
			}
			return unitRetryExhausted, nil
		}
		if o.isPoisoned(src.Adapter.Name()) {
			// Granted after the source was poisoned while this task waited.
			<-sem
			o.state.Transition(key, model.StatusSkipped, "auth_failed")
			return unitRetryExhausted, nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.fetchTimeout())
		result, ferr := src.Adapter.Fetch(fetchCtx, provider.FetchRequest{
			Ticker:     unit.Ticker,
			Region:     unit.Region,
			FiscalYear: unit.FiscalYear,
			PeriodType: unit.PeriodType,
		})
		cancel()
		<-sem

		if ferr != nil {
			// Programmer-bug-class failure: treat as a terminal malformed
			// unit rather than crashing the whole run.
			o.state.Transition(key, model.StatusFailedFatal, "malformed_response")
			return unitNotFound, nil
		}

		switch result.Kind {
		case provider.KindOk:
			_, err := o.cfg.Engine.Upsert(ctx, result.Record, src.Adapter.Rank())
			switch {
			case err == nil:
				o.state.Transition(key, model.StatusOK, "")
				o.recordCompletion()
				return unitOK, nil
			case store.Fatal(err):
				// Schema mismatch: nothing further can succeed, abort the
				// entire run.
				return unitRetryExhausted, err
			case store.Retryable(err):
				if attempt == maxAttempts-1 {
					o.state.Transition(key, model.StatusFailedRetryable, "transient")
					o.recordCompletion()
					return unitRetryExhausted, nil
				}
				o.backoffSleep(ctx, attempt)
				continue
			default:
				// Validation rejection: retrying the same record cannot
				// make it valid, so the unit is terminal and counted as a
				// failure.
				o.state.Transition(key, model.StatusFailedFatal, "validation")
				o.recordCompletion()
				return unitNotFound, nil
			}

		case provider.KindEmpty:
			o.state.Transition(key, model.StatusSkipped, "empty")
			o.recordCompletion()
			return unitEmpty, nil

		case provider.KindError:
			switch result.ErrKind {
			case provider.ErrKindAuthFailed:
				o.state.Transition(key, model.StatusSkipped, "auth_failed")
				return unitPoisoned, nil
			case provider.ErrKindNotFound, provider.ErrKindMalformedResponse:
				o.state.Transition(key, model.StatusFailedFatal, result.ErrKind.String())
				o.recordCompletion()
				return unitNotFound, nil
			default: // Throttled, Transient
				if attempt == maxAttempts-1 {
					o.state.Transition(key, model.StatusFailedRetryable, result.ErrKind.String())
					o.recordCompletion()
					return unitRetryExhausted, nil
				}
				o.state.Transition(key, model.StatusPending, result.ErrKind.String())
				o.backoffSleep(ctx, attempt)
			}
		}
	}

	return unitRetryExhausted, nil
}

// backoffSleep waits base*2^attempt, capped, honoring cancellation.
func (o *Orchestrator) backoffSleep(ctx context.Context, attempt int) {
	wait := time.Duration(float64(o.cfg.backoffBase()) * math.Pow(2, float64(attempt)))
	if ceiling := o.cfg.backoffCap(); wait > ceiling {
		wait = ceiling
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// poisonSource marks a source unusable for the rest of the run: queued
// units for it become SKIPPED and its rate governor stops granting, so a
// racing task blocked in Acquire never fires a request the provider
// already rejected the credentials for.
func (o *Orchestrator) poisonSource(name string) {
	o.poisoned.Store(name, struct{}{})
	o.state.SkipAllPending(name)
	o.cfg.Governor.Disable(name)
}

func (o *Orchestrator) isPoisoned(source string) bool {
	_, ok := o.poisoned.Load(source)
	return ok
}

// recordCompletion bumps the completed-unit counter and flushes a
// checkpoint every N completions or every T seconds. One flush failure is
// logged and tolerated; two in a row flag the run for abort.
func (o *Orchestrator) recordCompletion() {
	n := o.completedSinceCheckpoint.Add(1)
	last, _ := o.lastCheckpoint.Load().(time.Time)
	if int(n) >= o.cfg.checkpointEveryN() || time.Since(last) >= o.cfg.checkpointEveryT() {
		if err := o.flushCheckpoint(); err != nil {
			log.Error().Err(err).Msg("checkpoint flush failed")
			if o.checkpointFailures.Add(1) >= 2 {
				o.checkpointBroken.Store(true)
			}
			return
		}
		o.checkpointFailures.Store(0)
		o.completedSinceCheckpoint.Store(0)
		o.lastCheckpoint.Store(time.Now())
	}
}

func (o *Orchestrator) flushCheckpoint() error {
	if o.cfg.CheckpointPath == "" {
		return nil
	}
	cp := Checkpoint{
		Sequence: int(o.sequence.Add(1)),
		Attempts: o.state.Snapshot(),
	}
	return WriteCheckpoint(o.cfg.CheckpointPath, cp)
}

// Snapshot exposes the current attempt table for report generation.
func (o *Orchestrator) Snapshot() []model.SourceAttempt {
	return o.state.Snapshot()
}

// AllSourcesPoisoned reports whether every configured source hit an
// AuthFailed result during the run, which the CLI maps to its own exit
// code so operators can tell a credentials problem from a partial run.
func (o *Orchestrator) AllSourcesPoisoned() bool {
	count := 0
	for _, src := range o.cfg.Sources {
		if o.isPoisoned(src.Adapter.Name()) {
			count++
		}
	}
	return count > 0 && count == len(o.cfg.Sources)
}

// NewRunID generates the run identifier persisted in run_history.
func NewRunID() uuid.UUID {
	return uuid.New()
}
