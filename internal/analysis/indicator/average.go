package indicator

import (
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"

	"avwap/internal/market"
)

func SMAColumn(period int) string { return fmt.Sprintf("sma_%d", period) }

// ComputeSMA 追加收盘价简单均线列 sma_<period>，前 period-1 根为 NaN。
func ComputeSMA(s *market.Series, period int) (*market.Series, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma period must be positive, got %d", period)
	}
	n := s.Len()
	out := nanSeries(n)
	if n >= period {
		sma := talib.Sma(s.Closes(), period)
		for i := period - 1; i < n; i++ {
			out[i] = sma[i]
		}
	}
	return s.WithValues(SMAColumn(period), out), nil
}

// FiveDayBars 返回五个交易日（6.5 小时/天）对应的 K 线数量。
func FiveDayBars(interval string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "15m":
		return 130, nil
	case "30m":
		return 65, nil
	default:
		return 0, fmt.Errorf("five-day average needs 15m or 30m interval, got %q", interval)
	}
}
