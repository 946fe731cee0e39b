// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/stat"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each update of the display, and it should return a name and the current value.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
var ProgressbarStyle = progressbar.ThemeASCII

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	statsBorderColor  = lipgloss.Color("#705090")
)

// maxUpdateFrequency is the time between updates to the display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// maxDurations kept to compute the median step duration.
const maxDurations = 1000

// ProgressBar displays the progress of an epoch over a loader, with a table of stats above the bar.
// Updates are drawn asynchronously, so a slow terminal doesn't slow down the loop.
//
// Add must be called from one goroutine.
type ProgressBar struct {
	bar            *progressbar.ProgressBar
	unit           string
	total          int
	count          int
	start, last    time.Time
	durations      []float64
	extraMetricFns []ExtraMetricFn

	out              io.Writer
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	numLinesPrinted  int
	updates          chan progressUpdate
	asyncUpdatesDone sync.WaitGroup
	finishOnce       sync.Once
}

type progressUpdate struct {
	amount int
	rows   [][2]string
}

// NewProgressBar creates and displays a progress bar for total items (-1 if unknown) of the given unit
// (e.g. "images"). The extraMetrics are displayed in the stats table at each update.
func NewProgressBar(description string, total int, unit string, extraMetrics ...ExtraMetricFn) *ProgressBar {
	out := os.Stdout
	pBar := &ProgressBar{
		unit:           unit,
		total:          total,
		extraMetricFns: extraMetrics,
		out:            out,
		termenv:        termenv.NewOutput(out),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		isFirstOutput:  true,
		updates:        make(chan progressUpdate, 100), // Large buffer so things are not blocked.
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(statsBorderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("[bold]%s[reset]", description)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(out),
	)
	pBar.start = time.Now()
	pBar.last = pBar.start
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawLoop()
	return pBar
}

// Add n processed items, for instance the size of a batch.
func (pBar *ProgressBar) Add(n int) {
	now := time.Now()
	pBar.durations = append(pBar.durations, now.Sub(pBar.last).Seconds())
	if len(pBar.durations) > maxDurations {
		pBar.durations = pBar.durations[len(pBar.durations)-maxDurations:]
	}
	pBar.last = now
	pBar.count += n

	processed := humanize.Comma(int64(pBar.count))
	if pBar.total >= 0 {
		processed = fmt.Sprintf("%s of %s", processed, humanize.Comma(int64(pBar.total)))
	}
	elapsed := now.Sub(pBar.start)
	rows := [][2]string{
		{"Processed " + pBar.unit, processed},
		{"Elapsed", FormatDuration(elapsed)},
		{"Median step duration", FormatDuration(medianDuration(pBar.durations))},
	}
	if elapsed > 0 {
		rows = append(rows, [2]string{pBar.unit + "/s", fmt.Sprintf("%.1f", float64(pBar.count)/elapsed.Seconds())})
	}
	pBar.updates <- progressUpdate{amount: n, rows: rows}
}

// drawLoop draws updates until the updates channel is closed.
func (pBar *ProgressBar) drawLoop() {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		numRows := 0
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
			numRows++
		}
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
			numRows++
		}

		// Move back over the previous table and bar, to overwrite them.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			pBar.termenv.CursorPrevLine(pBar.numLinesPrinted)
		}
		pBar.isFirstOutput = false
		// Table rows, its 2 borders and the bar line.
		pBar.numLinesPrinted = numRows + 3

		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount)
		_, _ = fmt.Fprintln(pBar.out)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// Finish waits for pending updates to be drawn, and completes the bar. It can be called more than once.
func (pBar *ProgressBar) Finish() {
	pBar.finishOnce.Do(func() {
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		_ = pBar.bar.Finish()
		pBar.termenv.ShowCursor()
		_, _ = fmt.Fprintln(pBar.out)
	})
}

// medianDuration of the durations given in seconds.
func medianDuration(durations []float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return time.Duration(median * float64(time.Second))
}

// FormatDuration pretty prints a duration keeping about 2 decimal places of its largest unit.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	case d >= time.Microsecond:
		return d.Round(10 * time.Nanosecond).String()
	default:
		return d.String()
	}
}
