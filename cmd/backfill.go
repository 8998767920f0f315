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
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kfundamentals/backfill/model"
	"github.com/kfundamentals/backfill/orchestrator"
	"github.com/kfundamentals/backfill/provider"
	"github.com/kfundamentals/backfill/ratelimit"
	"github.com/kfundamentals/backfill/store"
)

type backfillFlags struct {
	tickers     []string
	top         int
	all         bool
	region      string
	start       int
	end         int
	sources     []string
	mode        string
	concurrency int
	rateLimit   float64
	checkpoint  string
	reportDir   string
	fallback    bool
	dryRun      bool
}

var bf backfillFlags

var backfillCmd = &cobra.Command{
	Use:          "run",
	Short:        "Backfill historical fundamentals for a ticker universe",
	RunE:         runBackfill,
	SilenceUsage: true,
}

// exitError carries the process exit code a finished (or failed) run maps
// to. runBackfill returns it instead of calling os.Exit inline so every
// deferred teardown -- the store pool, the signal context -- runs before
// Execute terminates the process.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func init() {
	rootCmd.AddCommand(backfillCmd)

	flags := backfillCmd.Flags()
	flags.StringSliceVar(&bf.tickers, "tickers", nil, "explicit ticker universe (mutually exclusive with --top/--all)")
	flags.IntVar(&bf.top, "top", 0, "backfill the top N tickers by market cap (mutually exclusive with --tickers/--all)")
	flags.BoolVar(&bf.all, "all", false, "backfill every active ticker in the region (mutually exclusive with --tickers/--top)")
	flags.StringVar(&bf.region, "region", "", "region code: KR, US, JP, CN, HK, VN")
	flags.IntVar(&bf.start, "start", 0, "fiscal year range start (inclusive)")
	flags.IntVar(&bf.end, "end", 0, "fiscal year range end (inclusive)")
	flags.StringSliceVar(&bf.sources, "sources", []string{"DART", "pykrx", "yfinance"}, "ordered provider priority list")
	flags.StringVar(&bf.mode, "mode", "incremental", "full | incremental | force-refresh")
	flags.IntVar(&bf.concurrency, "concurrency", 8, "global concurrency cap")
	flags.Float64Var(&bf.rateLimit, "rate-limit", 0, "override every configured source's min_interval, in seconds")
	flags.StringVar(&bf.checkpoint, "checkpoint", "./backfill.checkpoint.json", "checkpoint file location")
	flags.StringVar(&bf.reportDir, "report-dir", "./reports", "directory the run report is written to")
	flags.BoolVar(&bf.fallback, "fallback", false, "re-dispatch units the primary source had no data for through lower-priority sources")
	flags.BoolVar(&bf.dryRun, "dry-run", false, "plan only; no network calls, no writes")
}

// runBackfill assembles the providers, rate governor, store, and
// orchestrator from the flags above and drives one backfill run to
// completion, mapping its outcome to this command's exit-code contract:
// 0 success, 2 partial, 3 fatal store error, 4 auth failed on every
// source, 130 interrupted.
func runBackfill(cmd *cobra.Command, args []string) error {
	if err := validateSelection(bf); err != nil {
		return err
	}
	if err := promptMissing(&bf); err != nil {
		return err
	}

	region := model.Region(bf.region)
	if !region.Valid() {
		return fmt.Errorf("backfill: %q is not a supported region", bf.region)
	}

	mode, err := parseMode(bf.mode)
	if err != nil {
		return err
	}
	if bf.start <= 0 || bf.end < bf.start {
		return fmt.Errorf("backfill: invalid fiscal year range %d..%d", bf.start, bf.end)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := buildSources(bf.sources, bf.rateLimit)
	if err != nil {
		return err
	}

	storeURL := viper.GetString("store.url")
	if storeURL == "" {
		return errors.New("backfill: store.url is not configured (set STORE_URL or --store-url)")
	}
	st, err := store.New(ctx, storeURL)
	if err != nil {
		return &exitError{code: 3, msg: fmt.Sprintf("fatal store error: %v", err)}
	}
	defer st.Close()

	universe, err := resolveUniverse(ctx, st, bf, region)
	if err != nil {
		return err
	}

	units := orchestrator.BuildPlan(orchestrator.PlanParams{
		Tickers:   universe,
		Region:    region,
		StartYear: bf.start,
		EndYear:   bf.end,
	})

	bestRank := model.RankGlobalFallback
	for _, src := range sources.adapters {
		if src.Adapter.Rank() > bestRank {
			bestRank = src.Adapter.Rank()
		}
	}

	toDispatch, skipped, err := orchestrator.Filter(ctx, units, st, mode, bestRank)
	if err != nil {
		return &exitError{code: 3, msg: fmt.Sprintf("fatal store error: %v", err)}
	}

	if bf.dryRun {
		fmt.Printf("plan: %d units, %d to dispatch, %d already satisfied at rank >= %s\n",
			len(units), len(toDispatch), len(skipped), bestRank)
		return nil
	}

	if err := st.EnsurePartitions(ctx, bf.start, bf.end); err != nil {
		return &exitError{code: 3, msg: fmt.Sprintf("fatal store error: %v", err)}
	}

	seed, _, err := loadCheckpoint(bf.checkpoint)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable checkpoint, starting fresh")
	}

	runID := orchestrator.NewRunID()
	startedAt := time.Now().UTC()
	parameters := map[string]any{
		"region":      bf.region,
		"start":       bf.start,
		"end":         bf.end,
		"mode":        string(mode),
		"sources":     bf.sources,
		"concurrency": bf.concurrency,
	}
	parametersJSON, err := json.Marshal(parameters)
	if err != nil {
		return fmt.Errorf("backfill: encoding run parameters: %w", err)
	}
	if err := st.RecordRunStart(ctx, runID, startedAt, parametersJSON); err != nil {
		log.Warn().Err(err).Msg("could not record run start in run_history")
	}

	o := orchestrator.New(orchestrator.Config{
		Sources:           sources.adapters,
		Governor:          sources.governor,
		Engine:            st,
		GlobalConcurrency: bf.concurrency,
		CheckpointPath:    bf.checkpoint,
		Fallback:          bf.fallback,
	}, seed)
	o.MarkSkipped(skipped, sources.adapters[0].Adapter.Name())

	runErr := o.Run(ctx, toDispatch)

	duration := time.Since(startedAt)
	report := orchestrator.BuildReport(time.Now().UTC(), parameters, duration, o.Snapshot())
	reportPath, writeErr := report.Write(bf.reportDir)
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("could not write run report")
	}

	finishedAt := time.Now().UTC()
	if histErr := st.RecordRunFinish(ctx, runID, finishedAt,
		report.Statistics.TotalUnits, report.Statistics.SuccessfulUnits,
		report.Statistics.SkippedUnits, report.Statistics.FailedUnits, reportPath); histErr != nil {
		log.Warn().Err(histErr).Msg("could not record run finish in run_history")
	}

	st.LogPoolStats()
	printReportSummary(report, reportPath)

	return exitFor(runErr, o.AllSourcesPoisoned(), report.Statistics.FailedUnits)
}

// validateSelection enforces --tickers/--top/--all mutual exclusivity.
func validateSelection(f backfillFlags) error {
	selected := 0
	if len(f.tickers) > 0 {
		selected++
	}
	if f.top > 0 {
		selected++
	}
	if f.all {
		selected++
	}
	if selected != 1 {
		return errors.New("backfill: exactly one of --tickers, --top, or --all is required")
	}
	return nil
}

// promptMissing gathers required run parameters the user didn't supply as
// flags through an interactive form instead of failing with a usage error.
func promptMissing(f *backfillFlags) error {
	var fields []huh.Field
	if f.region == "" {
		fields = append(fields, huh.NewInput().Title("Region (KR, US, JP, CN, HK, VN):").Value(&f.region))
	}
	if f.start == 0 {
		fields = append(fields, huh.NewInput().Title("Start fiscal year:").Value(&startStr))
	}
	if f.end == 0 {
		fields = append(fields, huh.NewInput().Title("End fiscal year:").Value(&endStr))
	}
	if len(fields) == 0 {
		return nil
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return fmt.Errorf("backfill: gathering missing flags: %w", err)
	}
	if f.start == 0 {
		if _, err := fmt.Sscanf(startStr, "%d", &f.start); err != nil {
			return fmt.Errorf("backfill: invalid start year %q", startStr)
		}
	}
	if f.end == 0 {
		if _, err := fmt.Sscanf(endStr, "%d", &f.end); err != nil {
			return fmt.Errorf("backfill: invalid end year %q", endStr)
		}
	}
	return nil
}

// startStr/endStr back the huh prompts above, since huh.Input.Value needs
// a *string rather than an *int.
var startStr, endStr string

func parseMode(s string) (orchestrator.Mode, error) {
	switch s {
	case "full":
		return orchestrator.ModeFull, nil
	case "incremental":
		return orchestrator.ModeIncremental, nil
	case "force-refresh":
		return orchestrator.ModeForceRefresh, nil
	default:
		return "", fmt.Errorf("backfill: unknown mode %q", s)
	}
}

func resolveUniverse(ctx context.Context, st *store.Store, f backfillFlags, region model.Region) ([]string, error) {
	switch {
	case len(f.tickers) > 0:
		return f.tickers, nil
	case f.all:
		tickers, err := st.ActiveTickers(ctx, region)
		if err != nil {
			return nil, err
		}
		return symbolsOf(tickers), nil
	default: // f.top > 0
		tickers, err := st.TopTickers(ctx, region, f.top)
		if err != nil {
			return nil, err
		}
		return symbolsOf(tickers), nil
	}
}

func symbolsOf(tickers []model.Ticker) []string {
	symbols := make([]string, len(tickers))
	for i, t := range tickers {
		symbols[i] = t.Symbol
	}
	return symbols
}

func loadCheckpoint(path string) ([]model.SourceAttempt, bool, error) {
	cp, ok, err := orchestrator.ReadCheckpoint(path)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return cp.Attempts, true, nil
}

// exitFor maps a finished run's outcome to the command's exit codes:
// 130 interrupted, 3 fatal, 4 every source poisoned, 2 partial. The codes
// surface through Execute rather than an inline os.Exit so deferred
// resource teardown is never skipped.
func exitFor(runErr error, allPoisoned bool, failedUnits int) error {
	switch {
	case errors.Is(runErr, orchestrator.ErrInterrupted):
		return &exitError{code: 130, msg: "interrupted"}
	case runErr != nil:
		return &exitError{code: 3, msg: fmt.Sprintf("fatal error: %v", runErr)}
	case allPoisoned:
		return &exitError{code: 4, msg: "auth failed on every configured source"}
	case failedUnits > 0:
		return &exitError{code: 2, msg: fmt.Sprintf("partial: %d units failed", failedUnits)}
	}
	return nil
}

type sourceSet struct {
	adapters []orchestrator.Source
	governor *ratelimit.Governor
}

// buildSources constructs one Adapter per requested tag, in priority order,
// and a Governor configured with each provider's published request budget
// (strict regulator, moderate market helper, lenient fallback).
// rateLimitOverride, when non-zero, replaces every source's min_interval.
func buildSources(tags []string, rateLimitOverride float64) (sourceSet, error) {
	governorConfigs := map[string]ratelimit.Config{
		"DART":     {Capacity: 1, RefillRate: 1.0 / 36, MinInterval: 36 * time.Second},
		"pykrx":    {Capacity: 5, RefillRate: 1, MinInterval: time.Second},
		"yfinance": {Capacity: 10, RefillRate: 2},
	}
	if rateLimitOverride > 0 {
		for name, cfg := range governorConfigs {
			cfg.MinInterval = time.Duration(rateLimitOverride * float64(time.Second))
			governorConfigs[name] = cfg
		}
	}

	var adapters []orchestrator.Source
	for _, tag := range tags {
		adapter, err := buildAdapter(tag)
		if err != nil {
			return sourceSet{}, err
		}
		adapters = append(adapters, orchestrator.Source{Adapter: adapter})
	}
	if len(adapters) == 0 {
		return sourceSet{}, errors.New("backfill: --sources must name at least one adapter")
	}

	return sourceSet{adapters: adapters, governor: ratelimit.New(governorConfigs)}, nil
}

func buildAdapter(tag string) (provider.Adapter, error) {
	switch tag {
	case "DART":
		apiKey := viper.GetString("dart.api_key")
		baseURL := viper.GetString("dart.base_url")
		if baseURL == "" {
			baseURL = "https://opendart.fss.or.kr"
		}
		return provider.NewRegulator(apiKey, baseURL, nil), nil
	case "pykrx":
		baseURL := viper.GetString("pykrx.base_url")
		if baseURL == "" {
			baseURL = "http://localhost:8001"
		}
		return provider.NewMarketHelper(baseURL), nil
	case "yfinance":
		baseURL := viper.GetString("yfinance.base_url")
		if baseURL == "" {
			baseURL = "http://localhost:8002"
		}
		return provider.NewGlobalFallback(baseURL), nil
	default:
		return nil, fmt.Errorf("backfill: unknown source %q", tag)
	}
}
