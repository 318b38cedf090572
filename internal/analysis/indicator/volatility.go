package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"avwap/internal/market"
)

// ComputeVolatility 追加 ATR 列（列名见 VolatilitySettings.Column）。
//
// 第 t 根 K 线使用的是第 t-1 根的真实波幅，保证当根不使用开盘时尚未知道的信息；
// 因此前 Window 根为 NaN。真实波幅与结果均保留两位小数。
func ComputeVolatility(s *market.Series, cfg VolatilitySettings) *market.Series {
	cfg = NormalizeVolatilitySettings(cfg)
	vals := volatilitySeries(s.Highs(), s.Lows(), s.Closes(), cfg)
	return s.WithValues(cfg.Column(), vals)
}

func trueRange(highs, lows, closes []float64) []float64 {
	if len(closes) == 0 {
		return nil
	}
	tr := talib.TRange(highs, lows, closes)
	tr[0] = math.Abs(highs[0] - lows[0])
	for i := range tr {
		tr[i] = round2(tr[i])
	}
	return tr
}

func volatilitySeries(highs, lows, closes []float64, cfg VolatilitySettings) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if n == 0 {
		return out
	}
	tr := trueRange(highs, lows, closes)
	window := cfg.Window
	switch cfg.Mode {
	case Exponential:
		alpha := 2 / float64(window+1)
		var ewm float64
		for t := 1; t < n; t++ {
			x := tr[t-1]
			if t == 1 {
				ewm = x
			} else {
				ewm = alpha*x + (1-alpha)*ewm
			}
			if t >= window {
				out[t] = round2(ewm)
			}
		}
	default:
		// 平移后的输入是 tr[0..n-2]，至少要凑满一个窗口
		if n-1 < window {
			return out
		}
		sma := talib.Sma(tr[:n-1], window)
		for t := window; t < n; t++ {
			out[t] = round2(sma[t-1])
		}
	}
	return out
}
