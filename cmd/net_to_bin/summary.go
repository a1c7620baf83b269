package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/gomlx/netbin/pkg/exporter"
	"github.com/gomlx/netbin/pkg/layertypes"
)

func idsString(ids []int) string {
	parts := make([]string, len(ids))
	for ii, id := range ids {
		parts[ii] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

// printSummary of an export: overall numbers followed by one row per exported layer.
func printSummary(w io.Writer, m *model.Model, topologyPath, outputPath string, report *exporter.Report) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Summary"))
	table := newSummaryTable([]lipgloss.Position{lipgloss.Right, lipgloss.Left})
	table.add("network", m.Name)
	table.add("topology", topologyPath)
	table.add("output", outputPath)
	table.add("input", fmt.Sprintf("%d x %d x %d", report.Channels, report.Height, report.Width))
	table.add("# tensors", humanize.Comma(int64(report.NumBlobs)))
	table.add("# layers", humanize.Comma(int64(len(report.Layers))))
	table.add("# parameters", humanize.Comma(int64(m.NumParams())))
	table.add("# bytes", humanize.Bytes(uint64(report.Bytes)))
	_, _ = fmt.Fprintln(w, table.Render())

	_, _ = fmt.Fprintln(w, titleStyle.Render("Layers"))
	layers := newSummaryTable(
		[]lipgloss.Position{lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right},
		"#", "Name", "Type", "Code", "Bottoms", "Tops", "Params")
	for _, record := range report.Layers {
		cells := []string{fmt.Sprint(record.Index), record.Name, record.Type, fmt.Sprint(record.Code),
			idsString(record.Bottom), idsString(record.Top), humanize.Bytes(uint64(record.ParamBytes))}
		if layertypes.HasWeights(record.Type) && len(m.Layers[record.Index].Params) == 0 {
			layers.addWarning(cells...)
		} else {
			layers.add(cells...)
		}
	}
	_, _ = fmt.Fprintln(w, layers.Render())
}
