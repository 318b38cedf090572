package market

import (
	"fmt"
	"strings"
	"time"
)

// PeriodMax 表示不限制起点。
const PeriodMax = "max"

// PeriodStart 把 1d/5d/1mo/3mo/6mo/1y/2y/5y/10y/ytd/max 转为相对 end 的起点。
// max 返回零值时间。
func PeriodStart(period string, end time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	end = end.UTC()
	switch p {
	case "", PeriodMax:
		return time.Time{}, nil
	case "ytd":
		return time.Date(end.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	var n int
	var unit string
	if _, err := fmt.Sscanf(p, "%d%s", &n, &unit); err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	switch unit {
	case "d":
		return end.AddDate(0, 0, -n), nil
	case "wk":
		return end.AddDate(0, 0, -7*n), nil
	case "mo":
		return end.AddDate(0, -n, 0), nil
	case "y":
		return end.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
}

// IntervalDuration 解析 1m/5m/15m/30m/60m/90m/1h/4h/1d/5d/1wk/1mo 等粒度。
func IntervalDuration(interval string) (time.Duration, error) {
	iv := strings.ToLower(strings.TrimSpace(interval))
	var n int
	var unit string
	if _, err := fmt.Sscanf(iv, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch unit {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "wk", "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case "mo":
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
}
