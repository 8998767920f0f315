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
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kfundamentals/backfill/orchestrator"
)

// printReportSummary renders the finished run's statistics as a colorized
// terminal summary.
func printReportSummary(report orchestrator.Report, reportPath string) {
	p := message.NewPrinter(language.English)

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	fmt.Println(title.Render("Backfill run complete"))
	fmt.Println(label.Render("  finished ") + timeago.English.Format(report.Timestamp))
	fmt.Println(p.Sprintf("  %s total units, %s successful, %s skipped, %s failed",
		label.Render(fmt.Sprint(report.Statistics.TotalUnits)),
		ok.Render(fmt.Sprint(report.Statistics.SuccessfulUnits)),
		warn.Render(fmt.Sprint(report.Statistics.SkippedUnits)),
		bad.Render(fmt.Sprint(report.Statistics.FailedUnits))))
	fmt.Printf("  duration: %.1fs\n", report.Statistics.DurationSeconds)

	sources := make([]string, 0, len(report.Statistics.BySource))
	for source := range report.Statistics.BySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	if len(sources) > 0 {
		fmt.Println(label.Render("\n  by source:"))
		for _, source := range sources {
			h := report.Statistics.BySource[source]
			fmt.Printf("    %-10s ok=%-4d empty=%-4d throttled=%-4d transient=%-4d not_found=%-4d auth_failed=%-4d\n",
				source, h.OK, h.Empty, h.Throttled, h.Transient, h.NotFound, h.AuthFailed)
		}
	}

	if reportPath != "" {
		fmt.Println(strings.TrimSpace(label.Render("\n  report: " + reportPath)))
	}
}
