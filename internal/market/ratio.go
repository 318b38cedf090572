package market

import (
	"fmt"
	"time"
)

// RatioPoint 是两条序列同一时间点的收盘价比值。
type RatioPoint struct {
	Time  time.Time `json:"time"`
	Ratio float64   `json:"ratio"`
}

// CloseRatio 按共同时间戳合并两条序列，返回 a.Close / b.Close。
// cutoff 非零时只保留 >= cutoff 的点；b 收盘价为 0 的点被跳过。
func CloseRatio(a, b *Series, cutoff time.Time) ([]RatioPoint, error) {
	if a.Len() == 0 || b.Len() == 0 {
		return nil, fmt.Errorf("close ratio: both series must be non-empty")
	}
	out := make([]RatioPoint, 0, min(a.Len(), b.Len()))
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		ta, tb := a.Time(i), b.Time(j)
		switch {
		case ta.Before(tb):
			i++
		case tb.Before(ta):
			j++
		default:
			if (cutoff.IsZero() || !ta.Before(cutoff)) && b.Bar(j).Close != 0 {
				out = append(out, RatioPoint{Time: ta, Ratio: a.Bar(i).Close / b.Bar(j).Close})
			}
			i++
			j++
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("close ratio %s/%s: %w", a.Symbol, b.Symbol, ErrDataUnavailable)
	}
	return out, nil
}
