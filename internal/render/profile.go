package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"avwap/internal/analysis/profile"
	"avwap/internal/chart"
)

var (
	barColor    = drawing.ColorFromHex("9aa5b1")
	regionColor = drawing.ColorFromHex("1f77b4")
)

// ProfilePNG 用 go-chart 输出分布柱状图。成交量分布写入 Output，
// 价格分布写入同目录的 <name>_price.png；价值区域内的柱子高亮。
type ProfilePNG struct {
	Width  int
	Height int
}

func (p ProfilePNG) RenderProfile(_ context.Context, req chart.ProfileRequest) error {
	if req.Output == "" {
		return fmt.Errorf("profile render: empty output path")
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return err
	}
	region := req.Profile.ValueRegion
	if err := p.writeFile(req.Output, req.Title+" volume profile", req.Profile.Volume, &region); err != nil {
		return err
	}
	pricePath := strings.TrimSuffix(req.Output, filepath.Ext(req.Output)) + "_price.png"
	return p.writeFile(pricePath, req.Title+" price profile", req.Profile.Price, nil)
}

func (p ProfilePNG) writeFile(path, title string, h profile.Histogram, region *profile.Region) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Write(f, title, h, region); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write 把直方图写成 PNG；region 为 nil 时不高亮。
func (p ProfilePNG) Write(w io.Writer, title string, h profile.Histogram, region *profile.Region) error {
	if len(h.Weights) == 0 {
		return fmt.Errorf("profile render %s: %w", title, profile.ErrEmptyHistogram)
	}
	width, height := p.Width, p.Height
	if width <= 0 {
		width = 1200
	}
	if height <= 0 {
		height = 600
	}
	maxW := 0.0
	bars := make([]gochart.Value, len(h.Weights))
	for i, wgt := range h.Weights {
		color := barColor
		if region != nil && region.Contains(i) {
			color = regionColor
		}
		bars[i] = gochart.Value{
			Value: wgt,
			Label: binLabel(h.Edges, i, len(h.Weights)),
			Style: gochart.Style{FillColor: color, StrokeColor: color},
		}
		if wgt > maxW {
			maxW = wgt
		}
	}
	if maxW == 0 {
		maxW = 1
	}
	graph := gochart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   max(2, (width-120)/len(bars)-2),
		BarSpacing: 2,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		YAxis:      gochart.YAxis{Range: &gochart.ContinuousRange{Min: 0, Max: maxW}},
		Bars:       bars,
	}
	return graph.Render(gochart.PNG, w)
}

// binLabel 稀疏地标注左边界，避免横轴文字重叠。
func binLabel(edges []float64, i, n int) string {
	step := max(1, n/10)
	if i%step != 0 || i >= len(edges) {
		return ""
	}
	return strconv.FormatFloat(edges[i], 'f', 2, 64)
}
