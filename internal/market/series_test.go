package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func dailyBars(closes ...float64) []Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar{Time: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return out
}

func TestNewSeriesRejectsUnorderedBars(t *testing.T) {
	bars := dailyBars(1, 2, 3)
	bars[2].Time = bars[1].Time
	if _, err := NewSeries(Meta{Symbol: "X"}, bars); !errors.Is(err, ErrInvalidSeries) {
		t.Fatalf("重复时间戳应返回 ErrInvalidSeries, 实际=%v", err)
	}
}

func TestSeriesCopyOnWrite(t *testing.T) {
	bars := dailyBars(1, 2, 3)
	s, err := NewSeries(Meta{Symbol: "X"}, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	bars[0].Close = 99
	if s.Bar(0).Close != 1 {
		t.Fatalf("调用方修改 bars 不应影响序列, 实际=%v", s.Bar(0).Close)
	}
	vals := []float64{1, 2, 3}
	withCol := s.WithValues("a", vals)
	vals[0] = 42
	if s.HasColumn("a") {
		t.Fatalf("WithValues 不应修改原序列")
	}
	got, _ := withCol.Values("a")
	if got[0] != 1 {
		t.Fatalf("WithValues 应拷贝输入, 实际=%v", got[0])
	}
	got[1] = 77
	again, _ := withCol.Values("a")
	if again[1] != 2 {
		t.Fatalf("Values 应返回拷贝, 实际=%v", again[1])
	}
	if cols := withCol.Without("a").Columns(); len(cols) != 0 {
		t.Fatalf("Without 后不应有派生列, 实际=%v", cols)
	}
}

func TestSeriesFromIsIdempotent(t *testing.T) {
	s, _ := NewSeries(Meta{Symbol: "X"}, dailyBars(1, 2, 3, 4, 5))
	s = s.WithValues("v", []float64{math.NaN(), 1, 2, 3, 4})
	cut := s.Time(2)
	once := s.From(cut)
	twice := once.From(cut)
	if once.Len() != 3 || twice.Len() != once.Len() {
		t.Fatalf("窗口截取应幂等, once=%d twice=%d", once.Len(), twice.Len())
	}
	v, _ := twice.Values("v")
	if v[0] != 2 {
		t.Fatalf("派生列应同步截取, 实际=%v", v[0])
	}
	if s.Len() != 5 {
		t.Fatalf("原序列长度不应变化, 实际=%d", s.Len())
	}
	if got := s.From(s.Time(4).Add(time.Hour)).Len(); got != 0 {
		t.Fatalf("阈值晚于所有 K 线时应为空, 实际=%d", got)
	}
}

func TestPeriodStart(t *testing.T) {
	end := time.Date(2024, 9, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		period string
		want   time.Time
	}{
		{"5d", end.AddDate(0, 0, -5)},
		{"1mo", end.AddDate(0, -1, 0)},
		{"2y", end.AddDate(-2, 0, 0)},
		{"ytd", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"max", time.Time{}},
	}
	for _, tc := range cases {
		got, err := PeriodStart(tc.period, end)
		if err != nil {
			t.Fatalf("%s: %v", tc.period, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: 期望 %s, 实际 %s", tc.period, tc.want, got)
		}
	}
	if _, err := PeriodStart("7x", end); err == nil {
		t.Fatalf("非法 period 应报错")
	}
}

func TestCloseRatioJoinsOnCommonTimes(t *testing.T) {
	a, _ := NewSeries(Meta{Symbol: "A"}, dailyBars(10, 20, 30, 40))
	bb := dailyBars(5, 10, 15)
	bb = append(bb[:1], bb[2:]...) // 去掉第二天
	b, _ := NewSeries(Meta{Symbol: "B"}, bb)
	pts, err := CloseRatio(a, b, time.Time{})
	if err != nil {
		t.Fatalf("CloseRatio: %v", err)
	}
	if len(pts) != 2 || pts[0].Ratio != 2 || pts[1].Ratio != 2 {
		t.Fatalf("比值异常: %+v", pts)
	}
	pts, err = CloseRatio(a, b, a.Time(2))
	if err != nil || len(pts) != 1 {
		t.Fatalf("cutoff 后应剩 1 个点, 实际=%+v err=%v", pts, err)
	}
}

func TestCheckIntegrityFindsGaps(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var bars []Bar
	for _, h := range []int{0, 1, 4, 5, 7} {
		bars = append(bars, Bar{Time: t0.Add(time.Duration(h) * time.Hour), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	s, err := NewSeries(Meta{}, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	r := CheckIntegrity(s, time.Hour)
	if r.Expected != 8 || r.Present != 5 || r.Complete() {
		t.Fatalf("统计错误: %+v", r)
	}
	if len(r.Gaps) != 2 || r.Gaps[0].Count != 2 || !r.Gaps[0].From.Equal(t0.Add(2*time.Hour)) || !r.Gaps[0].To.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("缺口错误: %+v", r.Gaps)
	}
	if r.Gaps[1].Count != 1 || !r.Gaps[1].From.Equal(t0.Add(6*time.Hour)) {
		t.Fatalf("第二个缺口错误: %+v", r.Gaps[1])
	}
	if !CheckIntegrity(s, 0).Complete() {
		t.Fatalf("步长非法时不应报告缺口")
	}
}
