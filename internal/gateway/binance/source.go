package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"avwap/internal/logger"
	"avwap/internal/market"
)

const maxPageLimit = 1000

// Source 实现了 market.Source，按页拉取 Binance 现货 K 线。
type Source struct {
	cfg    Config
	client *binance.Client
	now    func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.SecretKey)
	client.BaseURL = strings.TrimRight(final.RESTBaseURL, "/")
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client, now: time.Now}, nil
}

func (s *Source) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	pair := s.Pair(symbol)
	if pair == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	iv, err := Interval(interval)
	if err != nil {
		return nil, err
	}
	end := s.now().UTC()
	start, err := market.PeriodStart(period, end)
	if err != nil {
		return nil, err
	}

	var bars []market.Bar
	cursor := start.UnixMilli()
	for {
		svc := s.client.NewKlinesService().Symbol(pair).Interval(iv).Limit(s.cfg.PageLimit).EndTime(end.UnixMilli())
		if cursor > 0 {
			svc = svc.StartTime(cursor)
		}
		logger.Debugf("[binance] klines %s %s start=%d", pair, iv, cursor)
		page, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", pair, err)
		}
		for _, k := range page {
			if k == nil {
				continue
			}
			bars = append(bars, market.Bar{
				Time:   time.UnixMilli(k.OpenTime).UTC(),
				Open:   parseFloat(k.Open),
				High:   parseFloat(k.High),
				Low:    parseFloat(k.Low),
				Close:  parseFloat(k.Close),
				Volume: parseFloat(k.Volume),
			})
		}
		if len(page) < s.cfg.PageLimit || len(page) == 0 {
			break
		}
		next := page[len(page)-1].OpenTime + 1
		if next <= cursor {
			break
		}
		cursor = next
	}
	if len(bars) == 0 {
		return nil, market.Unavailable("binance", pair, period, interval)
	}
	series, err := market.NewSeries(market.Meta{Symbol: pair, Period: period, Interval: interval}, bars)
	if err != nil {
		return nil, err
	}
	if step, err := market.IntervalDuration(interval); err == nil && step < 7*24*time.Hour {
		if report := market.CheckIntegrity(series, step); !report.Complete() {
			logger.Warnf("[binance] %s %s 缺失 %d 段 K 线, 首段 %s ~ %s", pair, interval, len(report.Gaps),
				report.Gaps[0].From.Format(time.DateTime), report.Gaps[0].To.Format(time.DateTime))
		}
	}
	return series, nil
}

// Pair 把代码规整为交易对，例如 "btc-usd" -> "BTCUSDT"。
func (s *Source) Pair(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	sym = strings.NewReplacer("-", "", "/", "", "_", "").Replace(sym)
	if quote := strings.ToUpper(s.cfg.QuoteAsset); strings.HasSuffix(sym, "USD") && quote != "USD" && strings.HasPrefix(quote, "USD") {
		sym = strings.TrimSuffix(sym, "USD") + quote
	}
	return sym
}

// Interval 把 Yahoo 风格的周期换成 Binance 周期。
func Interval(interval string) (string, error) {
	iv := strings.TrimSpace(interval)
	switch iv {
	case "1m", "3m", "5m", "15m", "30m", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M":
		return iv, nil
	case "60m", "1h":
		return "1h", nil
	case "1wk":
		return "1w", nil
	case "1mo":
		return "1M", nil
	default:
		return "", fmt.Errorf("binance: unsupported interval %q", interval)
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
