package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"avwap/internal/market"
)

// RatioPNG 把两条序列的收盘价比值画成折线图。
type RatioPNG struct {
	Width  int
	Height int
}

func (r RatioPNG) RenderFile(path, title string, points []market.RatioPoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Write(f, title, points); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r RatioPNG) Write(w io.Writer, title string, points []market.RatioPoint) error {
	if len(points) < 2 {
		return fmt.Errorf("ratio render %s: need at least 2 points, got %d", title, len(points))
	}
	width, height := r.Width, r.Height
	if width <= 0 {
		width = 1200
	}
	if height <= 0 {
		height = 600
	}
	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.Time, p.Ratio
	}
	graph := gochart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		XAxis:      gochart.XAxis{ValueFormatter: gochart.TimeDateValueFormatter},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    title,
				Style:   gochart.Style{StrokeColor: regionColor, StrokeWidth: 1.5},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	return graph.Render(gochart.PNG, w)
}
