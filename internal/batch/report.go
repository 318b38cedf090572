package batch

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table 以表格形式输出 run 的每张图结果。
func Table(run Run) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("run %s [%s]", shortID(run.ID), run.Status)
	tw.AppendHeader(table.Row{"Symbol", "Variant", "Status", "Curves", "Bars", "From", "Output / Error"})
	for _, it := range run.Items {
		from := "-"
		if !it.Threshold.IsZero() {
			from = it.Threshold.Format(time.DateOnly)
		}
		detail := it.Output
		if it.Error != "" {
			detail = it.Error
		}
		tw.AppendRow(table.Row{it.Symbol, it.Variant, it.Status, it.Curves, it.Bars, from, detail})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 80},
	})
	tw.AppendFooter(table.Row{"total", len(run.Items), "failed", run.Failed()})
	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
