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
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kfundamentals/backfill/model"
)

// sourceInfo describes one configured adapter for the `providers` listing.
// It is static metadata, not a live Adapter instance -- listing providers
// shouldn't require an API key to be configured.
type sourceInfo struct {
	tag         string
	rank        model.ProvenanceRank
	description string
}

var knownSources = []sourceInfo{
	{tag: "DART", rank: model.RankRegulator, description: "KR regulator filing source; full statement coverage, strict rate limit."},
	{tag: "pykrx", rank: model.RankMarketHelper, description: "KRX market-data helper; ratios and price snapshot only."},
	{tag: "yfinance", rank: model.RankGlobalFallback, description: "global aggregator fallback; partial statements, any region."},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured source adapters and their provenance rank",
	Run: func(cmd *cobra.Command, args []string) {
		header := lipgloss.NewStyle().Bold(true).Underline(true)
		tagStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

		fmt.Println(header.Render("Configured source adapters (priority = provenance rank)"))
		for _, s := range knownSources {
			fmt.Printf("\n%s  %s\n", tagStyle.Render(s.tag), s.rank)
			fmt.Printf("  %s\n", s.description)
		}
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
