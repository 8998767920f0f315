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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xeonx/timeago"

	"github.com/kfundamentals/backfill/store"
)

var infoRunLimit int

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List recent backfill runs recorded in run_history",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		storeURL := viper.GetString("store.url")
		if storeURL == "" {
			log.Fatal().Msg("store.url is not configured (set STORE_URL or --store-url)")
		}

		st, err := store.New(ctx, storeURL)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to store")
		}
		defer st.Close()

		runs, err := st.RecentRuns(ctx, infoRunLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list recent runs")
		}

		if len(runs) == 0 {
			fmt.Println("no runs recorded yet")
			return
		}

		for _, r := range runs {
			status := "running"
			if r.FinishedAt != nil {
				status = timeago.English.Format(*r.FinishedAt)
			}
			fmt.Printf("%s  started %s  finished %-20s total=%d ok=%d skipped=%d failed=%d  %s\n",
				r.RunID, timeago.English.Format(r.StartedAt), status,
				r.TotalUnits, r.SuccessfulUnits, r.SkippedUnits, r.FailedUnits, r.ReportPath)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().IntVar(&infoRunLimit, "limit", 10, "maximum number of runs to list")
}
