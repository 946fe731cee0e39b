// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains the command-line display of datasets, metrics and progress.
package commandline

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/leaflens/leaflens/pkg/metrics"
)

// FormatMetric renders a metric value with 4 decimal places.
func FormatMetric(value float64) string {
	return strconv.FormatFloat(value, 'f', 4, 64)
}

// ReportMetrics prints a table with the aggregate metrics of report, under the given title.
func ReportMetrics(w io.Writer, title string, report metrics.Report) {
	values := report.Map()
	table := NewTable([]string{"Metric", "Value"}, lipgloss.Right, lipgloss.Right)
	for _, key := range metrics.Keys {
		table.AddRow(false, key, FormatMetric(values[key]))
	}
	_, _ = fmt.Fprintln(w, TitleStyle.Render(title))
	_, _ = fmt.Fprintln(w, table.Render())
}

// ReportClassStats prints the per-class metrics, sorted by decreasing support.
// Classes with support but no correct prediction are highlighted.
func ReportClassStats(w io.Writer, stats []metrics.ClassStats) {
	stats = slices.Clone(stats)
	slices.SortStableFunc(stats, func(a, b metrics.ClassStats) int { return b.Support - a.Support })
	table := NewTable([]string{"Class", "Precision", "Recall", "F1", "Support"}, lipgloss.Left, lipgloss.Right)
	for _, s := range stats {
		table.AddRow(s.Support > 0 && s.TP == 0,
			s.Class, FormatMetric(s.Precision), FormatMetric(s.Recall), FormatMetric(s.F1),
			humanize.Comma(int64(s.Support)))
	}
	_, _ = fmt.Fprintln(w, TitleStyle.Render("Per-class metrics"))
	_, _ = fmt.Fprintln(w, table.Render())
}

// ReportCounts prints a two-column table of names and counts, in the order given.
func ReportCounts(w io.Writer, title string, header [2]string, names []string, counts map[string]int) {
	table := NewTable(header[:], lipgloss.Left, lipgloss.Right)
	var total int64
	for _, name := range names {
		table.AddRow(counts[name] == 0, name, humanize.Comma(int64(counts[name])))
		total += int64(counts[name])
	}
	table.AddRow(false, "total", humanize.Comma(total))
	_, _ = fmt.Fprintln(w, TitleStyle.Render(title))
	_, _ = fmt.Fprintln(w, table.Render())
}
