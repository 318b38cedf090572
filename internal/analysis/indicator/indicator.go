package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultVolatilityWindow 是 ATR 平滑窗口。
	DefaultVolatilityWindow = 14
	// DefaultSwingMultiplier 是确认波段所需的反向幅度（ATR 倍数）。
	DefaultSwingMultiplier = 2.0

	ColumnSwingHigh = "is_swing_high"
	ColumnSwingLow  = "is_swing_low"
)

// VolatilityMode 选择 ATR 的平滑方式。
type VolatilityMode int

const (
	Simple VolatilityMode = iota
	Exponential
)

func (m VolatilityMode) String() string {
	if m == Exponential {
		return "exponential"
	}
	return "simple"
}

// ParseVolatilityMode 接受 simple|sma|exponential|ema|ewm，空串视为 simple。
func ParseVolatilityMode(s string) (VolatilityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple", "sma":
		return Simple, nil
	case "exponential", "ema", "ewm":
		return Exponential, nil
	default:
		return Simple, fmt.Errorf("unknown volatility mode %q", s)
	}
}

type VolatilitySettings struct {
	Window int            `json:"window,omitempty"`
	Mode   VolatilityMode `json:"mode,omitempty"`
}

// Column 返回 ATR 列名，例如 atr_14。
func (s VolatilitySettings) Column() string {
	return VolatilityColumn(NormalizeVolatilitySettings(s).Window)
}

func VolatilityColumn(window int) string {
	return fmt.Sprintf("atr_%d", window)
}

func NormalizeVolatilitySettings(in VolatilitySettings) VolatilitySettings {
	out := in
	if out.Window <= 0 {
		out.Window = DefaultVolatilityWindow
	}
	return out
}

type SwingSettings struct {
	Multiplier float64            `json:"multiplier,omitempty"`
	Volatility VolatilitySettings `json:"volatility"`
}

func NormalizeSwingSettings(in SwingSettings) SwingSettings {
	out := in
	if out.Multiplier <= 0 {
		out.Multiplier = DefaultSwingMultiplier
	}
	out.Volatility = NormalizeVolatilitySettings(out.Volatility)
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// round2 使用银行家舍入保留两位小数，非有限值原样返回。
func round2(v float64) float64 {
	if !isFinite(v) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(2).InexactFloat64()
}

// LastValid 返回最后一个有限值。
func LastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if isFinite(series[i]) {
			return series[i], true
		}
	}
	return math.NaN(), false
}
