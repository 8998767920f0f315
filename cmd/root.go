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

// Package cmd wires the backfill engine's components (providers,
// ratelimit, store, orchestrator) behind a cobra/viper CLI.
package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// envReplacer maps a dotted viper key ("store.url") to its environment
// variable form ("STORE_URL").
var envReplacer = strings.NewReplacer(".", "_")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "backfill builds and maintains a historical fundamentals database",
	Long: `backfill is a command line utility for backfilling historical equity
fundamentals across KR, US, JP, CN, HK, and VN from multiple source
providers, reconciling them into a single canonical table by provenance
rank.

Each region's regulator filing source, market-data helper, and global
aggregator fallback are tried in priority order per ticker/fiscal-year, with
per-source rate limiting, retry with backoff, and resumable checkpointing so
a long-running backfill survives restarts.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd. Commands report their exit code through an
// exitError so os.Exit only fires here, after every deferred teardown
// inside the command has already run.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.backfill.toml)")
	rootCmd.PersistentFlags().String("store-url", "", "store connection string (env STORE_URL)")
	if err := viper.BindPFlag("store.url", rootCmd.PersistentFlags().Lookup("store-url")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for store-url failed")
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(".backfill")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
	_ = viper.BindEnv("store.url", "STORE_URL")

	if err := viper.ReadInConfig(); err == nil {
		log.Info().Str("ConfigFN", viper.ConfigFileUsed()).Msg("using config file")
	}
}
