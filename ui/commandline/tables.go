// Copyright 2023-2026 The LeafLens Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	// TitleStyle is used to print section titles before tables.
	TitleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
	tableBorderColor = lipgloss.Color("99")
)

// Table wraps a lipgloss table, with rows optionally highlighted in red.
type Table struct {
	*lgtable.Table
	count int
	reds  map[int]bool
}

// NewTable creates a table with alternating row styles.
// The alignments are given per column, and the last one is used for the remaining columns.
// If none is given, columns are left aligned.
func NewTable(headers []string, alignments ...lipgloss.Position) *Table {
	t := &Table{reds: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(tableBorderColor)).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case t.reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	if len(headers) > 0 {
		t.Headers(headers...)
	}
	return t
}

// AddRow appends a row, highlighted in red if isRed.
func (t *Table) AddRow(isRed bool, row ...string) *Table {
	if isRed {
		t.reds[t.count] = true
	}
	t.Table.Row(row...)
	t.count++
	return t
}

// NumRows returns the number of rows added with AddRow.
func (t *Table) NumRows() int { return t.count }
