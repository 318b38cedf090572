package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	fchart "github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/shopspring/decimal"

	"avwap/internal/logger"
	"avwap/internal/market"
)

var supportedIntervals = map[string]struct{}{
	"1m": {}, "2m": {}, "5m": {}, "15m": {}, "30m": {}, "60m": {}, "90m": {}, "1h": {},
	"1d": {}, "5d": {}, "1wk": {}, "1mo": {}, "3mo": {},
}

// Source 通过 Yahoo Finance chart 接口拉取 K 线。
type Source struct {
	// IncludeExt 为 true 时包含盘前盘后。
	IncludeExt bool
	now        func() time.Time
}

func New() *Source {
	return &Source{now: time.Now}
}

func (s *Source) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if _, ok := supportedIntervals[interval]; !ok {
		return nil, fmt.Errorf("yahoo: unsupported interval %q", interval)
	}
	end := s.now().UTC()
	start, err := market.PeriodStart(period, end)
	if err != nil {
		return nil, err
	}
	params := &fchart.Params{
		Symbol:     symbol,
		Interval:   datetime.Interval(interval),
		IncludeExt: s.IncludeExt,
		End:        datetime.New(&end),
	}
	if !start.IsZero() {
		params.Start = datetime.New(&start)
	}
	logger.Debugf("[yahoo] chart %s period=%s interval=%s", symbol, period, interval)

	iter := fchart.Get(params)
	var bars []market.Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b, ok := convertBar(iter.Bar()); ok {
			bars = append(bars, b)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, market.Unavailable("yahoo", symbol, period, interval)
	}
	return market.NewSeries(market.Meta{Symbol: symbol, Period: period, Interval: interval}, dedupe(bars))
}

// convertBar 丢弃收盘价缺失的 K 线（Yahoo 对停牌时段返回空值）。
func convertBar(b *finance.ChartBar) (market.Bar, bool) {
	if b == nil || b.Close.IsZero() {
		return market.Bar{}, false
	}
	return market.Bar{
		Time:   time.Unix(int64(b.Timestamp), 0).UTC(),
		Open:   toFloat(b.Open),
		High:   toFloat(b.High),
		Low:    toFloat(b.Low),
		Close:  toFloat(b.Close),
		Volume: float64(b.Volume),
	}, true
}

// dedupe 去掉时间不递增的 K 线；盘中最后一根偶尔与上一根时间戳重复。
func dedupe(bars []market.Bar) []market.Bar {
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && !b.Time.After(out[n-1].Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
