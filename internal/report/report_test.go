package report

import (
	"math"
	"strings"
	"testing"
	"time"

	"avwap/internal/market"
)

func sample(t *testing.T) *market.Series {
	t.Helper()
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	s, err := market.NewSeries(market.Meta{Symbol: "KLAC", Interval: "1d"}, []market.Bar{
		{Time: t0, Open: 10, High: 11.5, Low: 9, Close: 11, Volume: 100},
		{Time: t0.AddDate(0, 0, 1), Open: 11, High: 12, Low: 10.25, Close: 11.75, Volume: 150},
	})
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s.WithValues("avwap_1", []float64{math.NaN(), 11.125}).WithFlags("is_swing_low", []bool{false, true})
}

func TestBuildSeriesCSV(t *testing.T) {
	got := BuildSeriesCSV(sample(t), CSVOptions{DateOnly: true, PricePrecision: PrecisionRaw})
	want := "Date,O,H,L,C,V,avwap_1,is_swing_low\n" +
		"2024-02-01,10,11.5,9,11,100,,0\n" +
		"2024-02-02,11,12,10.25,11.75,150,11.125,1\n"
	if got != want {
		t.Fatalf("CSV:\n期望 %q\n实际 %q", want, got)
	}
}

func TestBuildSeriesCSVAutoPrecision(t *testing.T) {
	s, _ := market.NewSeries(market.Meta{Symbol: "X"}, []market.Bar{
		{Time: time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), Open: 1234.56, High: 1240.04, Low: 1230, Close: 1235.55, Volume: 1},
	})
	got := BuildSeriesCSV(s, CSVOptions{PricePrecision: PrecisionAuto})
	if !strings.Contains(got, "2024-02-01 09:30,1234.6,1240,1230,1235.5,1") && !strings.Contains(got, "2024-02-01 09:30,1234.6,1240,1230,1235.6,1") {
		t.Fatalf("自动精度输出异常: %q", got)
	}
	if BuildSeriesCSV(nil, CSVOptions{}) != "" {
		t.Fatalf("空序列应返回空串")
	}
}

func TestSeriesTable(t *testing.T) {
	out := SeriesTable(sample(t), 1)
	for _, want := range []string{"KLAC 1d", "AVWAP_1", "11.12", "2024-02-02"} {
		if !strings.Contains(out, want) {
			t.Fatalf("表格缺少 %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "2024-02-01") {
		t.Fatalf("limit=1 时不应包含第一行:\n%s", out)
	}
}

func TestSeriesTableExplicitColumns(t *testing.T) {
	out := SeriesTable(sample(t), 0, "sma_5")
	if !strings.Contains(out, "SMA_5") || strings.Contains(out, "AVWAP_1") {
		t.Fatalf("应只打印指定列:\n%s", out)
	}
	if !strings.Contains(out, "2024-02-01") || !strings.Contains(out, " - ") {
		t.Fatalf("缺失列应显示为 -:\n%s", out)
	}
}

func TestRatioTable(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	points := []market.RatioPoint{{Time: t0, Ratio: 1.5}, {Time: t0.AddDate(0, 0, 1), Ratio: 1.25}}
	out := RatioTable("KLAC/LRCX", points, 1)
	if !strings.Contains(out, "1.2500") || strings.Contains(out, "1.5000") || !strings.Contains(out, "KLAC/LRCX") {
		t.Fatalf("比值表格异常:\n%s", out)
	}
}
