package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/knowledge-engine/errclass/internal/network"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func verdictStyle(verdict string) color.Style {
	switch verdict {
	case network.GoodFit:
		return color.New(color.FgGreen, color.OpBold)
	case network.Overfitting:
		return color.New(color.FgRed, color.OpBold)
	default:
		return color.New(color.FgYellow, color.OpBold)
	}
}

func printVerdict(w io.Writer, ratio float64) {
	verdict := network.Verdict(ratio)
	fmt.Fprintf(w, "Loss ratio (val/train): %.3f  %s\n", ratio, verdictStyle(verdict).Render(verdict))
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func printHistory(w io.Writer, h network.History) {
	table := newTable(w, "Epoch", "Loss", "Accuracy", "Val loss", "Val accuracy")
	for i := range h.Loss {
		row := []string{strconv.Itoa(i + 1), decimal(h.Loss[i]), percent(h.Accuracy[i]), "-", "-"}
		if i < len(h.ValLoss) {
			row[3] = decimal(h.ValLoss[i])
			row[4] = percent(h.ValAccuracy[i])
		}
		table.Append(row)
	}
	table.Render()
}
