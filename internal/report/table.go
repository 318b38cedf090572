package report

import (
	"fmt"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"avwap/internal/analysis/avwap"
	"avwap/internal/market"
)

// SeriesTable 以表格打印最后 limit 根 K 线的 OHLCV 与附加列（limit<=0 打印全部）。
// columns 为空时打印全部 VWAP 曲线。
func SeriesTable(s *market.Series, limit int, columns ...string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	if s.Symbol != "" {
		tw.SetTitle("%s %s", s.Symbol, s.Interval)
	}
	curves := columns
	if len(curves) == 0 {
		curves = avwap.CurveColumns(s)
	}
	header := table.Row{"Time", "Open", "High", "Low", "Close", "Volume"}
	for _, c := range curves {
		header = append(header, c)
	}
	tw.AppendHeader(header)

	cols := make([][]float64, len(curves))
	for i, c := range curves {
		if v, ok := s.Values(c); ok {
			cols[i] = v
		} else {
			cols[i] = nanColumn(s.Len())
		}
	}
	start := 0
	if limit > 0 && s.Len() > limit {
		start = s.Len() - limit
	}
	for i := start; i < s.Len(); i++ {
		b := s.Bar(i)
		row := table.Row{b.Time.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Volume}
		for j := range curves {
			row = append(row, cell(cols[j][i]))
		}
		tw.AppendRow(row)
	}
	configs := make([]table.ColumnConfig, 0, 5+len(curves))
	for n := 2; n <= 6+len(curves); n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	tw.AppendFooter(table.Row{"bars", s.Len()})
	return tw.Render()
}

func cell(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// RatioTable 打印最后 limit 个比值点（limit<=0 打印全部）。
func RatioTable(title string, points []market.RatioPoint, limit int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("%s", title)
	tw.AppendHeader(table.Row{"Date", "Ratio"})
	start := 0
	if limit > 0 && len(points) > limit {
		start = len(points) - limit
	}
	for _, p := range points[start:] {
		tw.AppendRow(table.Row{p.Time.Format(time.DateOnly), fmt.Sprintf("%.4f", p.Ratio)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	tw.AppendFooter(table.Row{"points", len(points)})
	return tw.Render()
}
