package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerStyle  = lipgloss.NewStyle().Reverse(true).Padding(0, 2).Align(lipgloss.Center)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	faintStyle   = cellStyle.Faint(true)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	// warningStyle marks rows that need attention, e.g. a layer exported without its weights.
	warningStyle = cellStyle.Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"})
)

// summaryTable renders rows of the -summary output with alternating faint rows.
type summaryTable struct {
	*lgtable.Table

	// alignments per column: columns past the end use the last one.
	alignments []lipgloss.Position
	numRows    int
	warnings   map[int]bool
}

// newSummaryTable creates a table with the given column alignments. The header row is only
// rendered if headers are given.
func newSummaryTable(alignments []lipgloss.Position, headers ...string) *summaryTable {
	t := &summaryTable{alignments: alignments, warnings: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(t.styleOf)
	if len(headers) > 0 {
		t.Headers(headers...)
	}
	return t
}

// add appends a row.
func (t *summaryTable) add(cells ...string) {
	t.Row(cells...)
	t.numRows++
}

// addWarning appends a row rendered with warningStyle.
func (t *summaryTable) addWarning(cells ...string) {
	t.warnings[t.numRows] = true
	t.add(cells...)
}

// styleOf is the lgtable.StyleFunc of the table: data rows are indexed from 0 and the header is row -1.
func (t *summaryTable) styleOf(row, col int) lipgloss.Style {
	if row < 0 {
		return headerStyle
	}
	style := cellStyle
	switch {
	case t.warnings[row]:
		style = warningStyle
	case row%2 == 1:
		style = faintStyle
	}
	if len(t.alignments) == 0 {
		return style
	}
	return style.Align(t.alignments[min(col, len(t.alignments)-1)])
}
