package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"avwap/internal/analysis/indicator"
	"avwap/internal/chart"
	"avwap/internal/market"
)

const (
	defaultWidth  = 1600
	defaultHeight = 900
)

// HTML 用 echarts 输出 K 线 + AVWAP 叠加 + 波段标记的单页 HTML。
type HTML struct {
	Width      int
	Height     int
	AssetsHost string
}

func (h HTML) size() (int, int) {
	w, ht := h.Width, h.Height
	if w <= 0 {
		w = defaultWidth
	}
	if ht <= 0 {
		ht = defaultHeight
	}
	return w, ht
}

func (h HTML) Render(_ context.Context, req chart.RenderRequest) error {
	if req.Output == "" {
		return fmt.Errorf("html render: empty output path")
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return err
	}
	f, err := os.Create(req.Output)
	if err != nil {
		return err
	}
	if err := h.Write(f, req); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write 把图表写入 w。
func (h HTML) Write(w io.Writer, req chart.RenderRequest) error {
	s := req.Result.Series
	if s.Len() == 0 {
		return fmt.Errorf("html render %s: %w", req.Title, market.ErrDataUnavailable)
	}
	width, height := h.size()
	labels := axisLabels(s)

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  req.Title,
			Width:      fmt.Sprintf("%dpx", width),
			Height:     fmt.Sprintf("%dpx", height),
			AssetsHost: h.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: req.Title, Subtitle: req.Result.Annotation}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 20}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	items := make([]opts.KlineData, s.Len())
	for i := 0; i < s.Len(); i++ {
		b := s.Bar(i)
		// echarts 顺序: open, close, low, high
		items[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}
	kline.SetXAxis(labels).AddSeries(s.Symbol, items,
		charts.WithMarkPointNameCoordItemOpts(swingMarks(s, labels)...),
	)

	for _, c := range req.Result.Curves {
		vals, ok := s.Values(c.Column)
		if !ok {
			continue
		}
		data := make([]opts.LineData, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				data[i] = opts.LineData{Value: "-"}
				continue
			}
			data[i] = opts.LineData{Value: v}
		}
		name := c.Column
		if !c.Anchor.IsZero() {
			name = fmt.Sprintf("%s %s", c.Column, c.Anchor.Format(time.DateOnly))
		}
		line := charts.NewLine()
		line.SetXAxis(labels).AddSeries(name, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), ConnectNulls: opts.Bool(false)}),
		)
		kline.Overlap(line)
	}
	return kline.Render(w)
}

func swingMarks(s *market.Series, labels []string) []opts.MarkPointNameCoordItem {
	var out []opts.MarkPointNameCoordItem
	highs, _ := s.Flags(indicator.ColumnSwingHigh)
	lows, _ := s.Flags(indicator.ColumnSwingLow)
	for i := range highs {
		if highs[i] {
			b := s.Bar(i)
			out = append(out, opts.MarkPointNameCoordItem{Name: "swing high", Coordinate: []interface{}{labels[i], b.High}, Value: "H"})
		}
	}
	for i := range lows {
		if lows[i] {
			b := s.Bar(i)
			out = append(out, opts.MarkPointNameCoordItem{Name: "swing low", Coordinate: []interface{}{labels[i], b.Low}, Value: "L"})
		}
	}
	return out
}

func axisLabels(s *market.Series) []string {
	layout := time.DateOnly
	if d, err := market.IntervalDuration(s.Interval); err == nil && d < 24*time.Hour {
		layout = "2006-01-02 15:04"
	}
	out := make([]string, s.Len())
	for i := range out {
		out[i] = s.Time(i).Format(layout)
	}
	return out
}
