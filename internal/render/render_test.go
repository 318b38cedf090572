package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avwap/internal/analysis/profile"
	"avwap/internal/chart"
	"avwap/internal/market"
)

func sampleResult(t *testing.T) chart.Result {
	t.Helper()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 40)
	for i := range bars {
		c := 100 + float64(i%10)
		if (i/10)%2 == 1 {
			c = 110 - float64(i%10)
		}
		bars[i] = market.Bar{Time: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000 + float64(i)}
	}
	s, err := market.NewSeries(market.Meta{Symbol: "KLAC", Interval: "1d"}, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	res, err := chart.Build(s, chart.Options{Anchors: []string{"2024-03-05", "2024-03-20"}, SwingMerge: chart.SwingMergeLast})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

func TestHTMLWrite(t *testing.T) {
	res := sampleResult(t)
	var buf bytes.Buffer
	if err := (HTML{AssetsHost: "http://localhost/assets/"}).Write(&buf, chart.RenderRequest{Title: "KLAC 1d", Result: res}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"KLAC 1d", "candlestick", "avwap_1 2024-03-05", "VWAPs last values", "http://localhost/assets/"} {
		if !strings.Contains(out, want) {
			t.Fatalf("HTML 缺少 %q", want)
		}
	}
}

func TestHTMLRenderCreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "klac.html")
	if err := (HTML{}).Render(context.Background(), chart.RenderRequest{Title: "KLAC", Output: out, Result: sampleResult(t)}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Fatalf("应生成非空文件, err=%v", err)
	}
	if err := (HTML{}).Render(context.Background(), chart.RenderRequest{Title: "empty"}); err == nil {
		t.Fatalf("空输出路径应报错")
	}
}

func TestProfilePNG(t *testing.T) {
	h := profile.Histogram{Edges: []float64{1, 2, 3, 4, 5}, Weights: []float64{1, 5, 9, 2}}
	var buf bytes.Buffer
	region := profile.Region{Low: 1, High: 2}
	if err := (ProfilePNG{Width: 400, Height: 300}).Write(&buf, "test", h, &region); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("输出不是 PNG")
	}
	if err := (ProfilePNG{}).Write(&buf, "empty", profile.Histogram{}, nil); !errors.Is(err, profile.ErrEmptyHistogram) {
		t.Fatalf("空直方图应返回 ErrEmptyHistogram, 实际=%v", err)
	}
}

func TestRenderProfileWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	p := profile.Profile{
		Volume:      profile.Histogram{Edges: []float64{1, 2, 3}, Weights: []float64{3, 4}},
		Price:       profile.Histogram{Edges: []float64{1, 2, 3, 4}, Weights: []float64{1, 0, 2}},
		ValueRegion: profile.Region{Low: 0, High: 1},
	}
	out := filepath.Join(dir, "klac.png")
	if err := (ProfilePNG{}).RenderProfile(context.Background(), chart.ProfileRequest{Title: "KLAC", Output: out, Profile: p}); err != nil {
		t.Fatalf("RenderProfile: %v", err)
	}
	for _, f := range []string{out, filepath.Join(dir, "klac_price.png")} {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("缺少 %s: %v", f, err)
		}
	}
}

type stubRenderer struct{ name string }

func (s *stubRenderer) Render(_ context.Context, req chart.RenderRequest) error {
	s.name = req.Output
	return nil
}

func TestByExtension(t *testing.T) {
	html, png := &stubRenderer{}, &stubRenderer{}
	r := ByExtension{HTML: html, PNG: png}
	_ = r.Render(context.Background(), chart.RenderRequest{Output: "a.HTML"})
	_ = r.Render(context.Background(), chart.RenderRequest{Output: "b.png"})
	if html.name != "a.HTML" || png.name != "b.png" {
		t.Fatalf("分派错误: html=%q png=%q", html.name, png.name)
	}
	if err := (ByExtension{}).Render(context.Background(), chart.RenderRequest{Output: "c.png"}); !errors.Is(err, chart.ErrNoRenderer) {
		t.Fatalf("缺少渲染器应返回 ErrNoRenderer, 实际=%v", err)
	}
}

func TestRatioPNG(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]market.RatioPoint, 30)
	for i := range points {
		points[i] = market.RatioPoint{Time: t0.AddDate(0, 0, i), Ratio: 1 + float64(i)/100}
	}
	path := filepath.Join(t.TempDir(), "ratio", "klac_lrcx.png")
	if err := (RatioPNG{}).RenderFile(path, "KLAC/LRCX", points); err != nil {
		t.Fatalf("RenderFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("应写出 PNG 文件, err=%v", err)
	}
	if err := (RatioPNG{}).Write(&bytes.Buffer{}, "one", points[:1]); err == nil {
		t.Fatalf("单点应报错")
	}
}
