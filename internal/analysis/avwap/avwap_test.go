package avwap

import (
	"errors"
	"math"
	"testing"
	"time"

	"avwap/internal/market"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseAnchorTokensMarker(t *testing.T) {
	set, threshold, err := ParseAnchorTokens([]string{"2024-01-01", "x2024-02-01", "2024-03-01"}, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseAnchorTokens: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("集合应包含 3 个锚点, 实际=%v", set.Sorted())
	}
	for _, d := range []string{"2024-01-01", "2024-02-01", "2024-03-01"} {
		if !set.Contains(day(d)) {
			t.Fatalf("集合缺少 %s", d)
		}
	}
	if threshold == nil || !threshold.Equal(day("2024-02-01")) {
		t.Fatalf("阈值应为 2024-02-01, 实际=%v", threshold)
	}
}

func TestParseAnchorTokensPolicies(t *testing.T) {
	tokens := []string{"x2024-03-01", "2024-01-01", "x2024-02-01", "2024-01-01"}
	cases := []struct {
		policy ThresholdPolicy
		want   string
	}{
		{LastMarkerWins, "2024-02-01"},
		{FirstMarkerWins, "2024-03-01"},
		{EarliestMarker, "2024-02-01"},
	}
	for _, tc := range cases {
		set, threshold, err := ParseAnchorTokens(tokens, ParseOptions{Policy: tc.policy})
		if err != nil {
			t.Fatalf("policy %d: %v", tc.policy, err)
		}
		if set.Len() != 3 {
			t.Fatalf("重复锚点应去重, 实际=%d", set.Len())
		}
		if !threshold.Equal(day(tc.want)) {
			t.Fatalf("policy %d: 期望 %s, 实际 %s", tc.policy, tc.want, threshold)
		}
	}
}

func TestParseAnchorTokensNoMarker(t *testing.T) {
	set, threshold, err := ParseAnchorTokens([]string{"2024-09-10 13:30:00", "2024-09-10T18:04:00Z"}, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseAnchorTokens: %v", err)
	}
	if threshold != nil {
		t.Fatalf("没有标记时阈值应为 nil, 实际=%v", threshold)
	}
	from, err := EffectiveThreshold(threshold, set)
	if err != nil || !from.Equal(time.Date(2024, 9, 10, 13, 30, 0, 0, time.UTC)) {
		t.Fatalf("默认阈值应为集合最小值, 实际=%v err=%v", from, err)
	}
}

func TestParseAnchorTokensErrors(t *testing.T) {
	if _, _, err := ParseAnchorTokens(nil, ParseOptions{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("空列表应返回 ErrEmptyInput, 实际=%v", err)
	}
	_, _, err := ParseAnchorTokens([]string{"2024-01-01", "x-not-a-date"}, ParseOptions{})
	var perr *ParseError
	if !errors.As(err, &perr) || !errors.Is(err, ErrParse) {
		t.Fatalf("非法日期应返回 ParseError, 实际=%v", err)
	}
	if perr.Token != "x-not-a-date" {
		t.Fatalf("ParseError 应携带原始 token, 实际=%q", perr.Token)
	}
}

func testSeries(t *testing.T) *market.Series {
	t.Helper()
	bars := []market.Bar{
		{Time: day("2024-01-01"), Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Time: day("2024-01-02"), Open: 11, High: 13, Low: 10, Close: 12, Volume: 200},
		{Time: day("2024-01-03"), Open: 12, High: 14, Low: 11, Close: 13, Volume: 0},
		{Time: day("2024-01-04"), Open: 13, High: 15, Low: 12, Close: 14, Volume: 300},
		{Time: day("2024-01-05"), Open: 14, High: 16, Low: 13, Close: 15, Volume: 400},
	}
	s, err := market.NewSeries(market.Meta{Symbol: "TEST", Interval: "1d"}, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func TestComputeAnchoredVWAPs(t *testing.T) {
	s := testSeries(t)
	anchors := NewAnchorSet(day("2024-01-04"), day("2024-01-01"))
	out, curves := ComputeAnchoredVWAPs(s, anchors)
	if len(curves) != 2 || !curves[0].Anchor.Equal(day("2024-01-01")) || curves[0].Column != "avwap_1" {
		t.Fatalf("曲线应按锚点时间编号, 实际=%+v", curves)
	}

	// 锚点等于首根 K 线：等价于普通累计 VWAP
	whole, _ := out.Values("avwap_1")
	var pv, v float64
	for i := 0; i < s.Len(); i++ {
		b := s.Bar(i)
		pv += b.Typical() * b.Volume
		v += b.Volume
		if math.Abs(whole[i]-pv/v) > 1e-12 {
			t.Fatalf("avwap_1[%d] 期望 %v, 实际 %v", i, pv/v, whole[i])
		}
	}

	late, _ := out.Values("avwap_2")
	for i := 0; i < 3; i++ {
		if !math.IsNaN(late[i]) {
			t.Fatalf("锚点之前应为 NaN, avwap_2[%d]=%v", i, late[i])
		}
	}
	if late[3] != s.Bar(3).Typical() {
		t.Fatalf("锚点当根应等于典型价 %v, 实际 %v", s.Bar(3).Typical(), late[3])
	}
	if s.HasColumn("avwap_1") {
		t.Fatalf("输入序列不应被修改")
	}
}

func TestComputeAnchoredVWAPsZeroVolume(t *testing.T) {
	s := testSeries(t)
	out, _ := ComputeAnchoredVWAPs(s, NewAnchorSet(day("2024-01-03")))
	vals, _ := out.Values("avwap_1")
	if !math.IsNaN(vals[2]) {
		t.Fatalf("累计成交量为 0 时应为 NaN, 实际=%v", vals[2])
	}
	if vals[3] != s.Bar(3).Typical() {
		t.Fatalf("后续成交量恢复后应有值, 实际=%v", vals[3])
	}
}

func TestComputeAnchoredVWAPsAnchorOutsideRange(t *testing.T) {
	s := testSeries(t)
	out, curves := ComputeAnchoredVWAPs(s, NewAnchorSet(day("2023-06-01"), day("2025-01-01")))
	early, _ := out.Values(curves[0].Column)
	if math.IsNaN(early[0]) {
		t.Fatalf("早于序列的锚点应从首根开始累计")
	}
	late, _ := out.Values(curves[1].Column)
	for i, v := range late {
		if !math.IsNaN(v) {
			t.Fatalf("晚于序列的锚点应全为 NaN, [%d]=%v", i, v)
		}
	}
}

func TestWindow(t *testing.T) {
	s := testSeries(t)
	set, threshold, err := ParseAnchorTokens([]string{"2024-01-02", "x2024-01-03"}, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseAnchorTokens: %v", err)
	}
	out, from, err := Window(s, threshold, set)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if !from.Equal(day("2024-01-03")) || out.Len() != 3 {
		t.Fatalf("窗口应从 2024-01-03 开始, from=%s len=%d", from, out.Len())
	}
	again, _, _ := Window(out, threshold, set)
	if again.Len() != out.Len() {
		t.Fatalf("重复截取不应再删除行")
	}
	if _, _, err := Window(s, nil, AnchorSet{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("空集合且无阈值应返回 ErrEmptyInput, 实际=%v", err)
	}
}
