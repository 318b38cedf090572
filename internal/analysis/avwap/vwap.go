package avwap

import (
	"fmt"
	"math"
	"strings"
	"time"

	"avwap/internal/market"
)

// CurvePrefix 是锚定 VWAP 列名前缀，第 k 条曲线为 avwap_k（k 从 1 开始）。
const CurvePrefix = "avwap_"

func CurveColumn(k int) string { return fmt.Sprintf("%s%d", CurvePrefix, k) }

// Curve 记录曲线与锚点的对应关系。
type Curve struct {
	Anchor time.Time `json:"anchor"`
	Column string    `json:"column"`
}

// ComputeAnchoredVWAPs 为每个锚点追加一列累计 VWAP。
// 锚点先按时间排序再编号，曲线编号与锚点的对应关系稳定。
// 锚点之前的值为 NaN；累计成交量为 0 时同样为 NaN。
func ComputeAnchoredVWAPs(s *market.Series, anchors AnchorSet) (*market.Series, []Curve) {
	sorted := anchors.Sorted()
	curves := make([]Curve, 0, len(sorted))
	out := s
	for i, a := range sorted {
		col := CurveColumn(i + 1)
		out = out.WithValues(col, anchoredVWAP(s, s.Index(a)))
		curves = append(curves, Curve{Anchor: a, Column: col})
	}
	return out, curves
}

func anchoredVWAP(s *market.Series, start int) []float64 {
	out := make([]float64, s.Len())
	for i := 0; i < start && i < len(out); i++ {
		out[i] = math.NaN()
	}
	var cumPV, cumV float64
	for i := start; i < s.Len(); i++ {
		b := s.Bar(i)
		cumPV += b.Typical() * b.Volume
		cumV += b.Volume
		if cumV == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumV
	}
	return out
}

// EffectiveThreshold 返回窗口下限：解析得到的阈值，否则锚点集合最小值。
func EffectiveThreshold(threshold *time.Time, anchors AnchorSet) (time.Time, error) {
	if threshold != nil {
		return threshold.UTC(), nil
	}
	return anchors.Min()
}

// Window 把序列截取到窗口下限（含）之后。
func Window(s *market.Series, threshold *time.Time, anchors AnchorSet) (*market.Series, time.Time, error) {
	from, err := EffectiveThreshold(threshold, anchors)
	if err != nil {
		return nil, time.Time{}, err
	}
	return s.From(from), from, nil
}

// CurveColumns 返回序列中的 VWAP 列名，保持添加顺序。
func CurveColumns(s *market.Series) []string {
	var out []string
	for _, c := range s.Columns() {
		if strings.HasPrefix(c, CurvePrefix) {
			out = append(out, c)
		}
	}
	return out
}
