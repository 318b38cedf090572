package indicator

import (
	"time"

	"avwap/internal/market"
)

type swingMode int

const (
	seekingMin swingMode = iota
	seekingMax
)

type swingCandidate struct {
	mode  swingMode
	idx   int
	price float64
}

// DetectSwingExtrema 追加 is_swing_high / is_swing_low 两列。
// ATR 列缺失时先按 cfg.Volatility 计算。
func DetectSwingExtrema(s *market.Series, cfg SwingSettings) *market.Series {
	cfg = NormalizeSwingSettings(cfg)
	col := cfg.Volatility.Column()
	if !s.HasColumn(col) {
		s = ComputeVolatility(s, cfg.Volatility)
	}
	vol, _ := s.Values(col)
	highs, lows := detectSwings(s.Closes(), vol, cfg.Multiplier)
	return s.WithFlags(ColumnSwingHigh, highs).WithFlags(ColumnSwingLow, lows)
}

// detectSwings 按收盘价运行候选状态机：延伸候选用 >=/<=，确认用严格 >。
// 波动率为 NaN 时不会确认任何候选。序列首根作为种子候选被确认时只翻转方向、
// 不打标记（它之前没有任何价格，无法成为拐点）；末尾未确认的候选也不打标记。
func detectSwings(closes, vol []float64, multiplier float64) (highs, lows []bool) {
	n := len(closes)
	highs = make([]bool, n)
	lows = make([]bool, n)
	if n == 0 {
		return highs, lows
	}
	cand := swingCandidate{mode: seekingMin, idx: 0, price: closes[0]}
	for i := 0; i < n; i++ {
		c := closes[i]
		threshold := vol[i] * multiplier
		switch cand.mode {
		case seekingMax:
			if c >= cand.price {
				cand.idx, cand.price = i, c
			} else if cand.price-c > threshold {
				if cand.idx > 0 {
					highs[cand.idx] = true
				}
				cand = swingCandidate{mode: seekingMin, idx: i, price: c}
			}
		default:
			if c <= cand.price {
				cand.idx, cand.price = i, c
			} else if c-cand.price > threshold {
				if cand.idx > 0 {
					lows[cand.idx] = true
				}
				cand = swingCandidate{mode: seekingMax, idx: i, price: c}
			}
		}
	}
	return highs, lows
}

// SwingTimes 返回已确认的波段高点与低点时间（升序）。
func SwingTimes(s *market.Series) (highs, lows []time.Time) {
	hf, _ := s.Flags(ColumnSwingHigh)
	lf, _ := s.Flags(ColumnSwingLow)
	for i := range hf {
		if hf[i] {
			highs = append(highs, s.Time(i))
		}
		if lf[i] {
			lows = append(lows, s.Time(i))
		}
	}
	return highs, lows
}
