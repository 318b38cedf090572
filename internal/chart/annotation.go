package chart

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"avwap/internal/analysis/avwap"
	"avwap/internal/market"
)

// DefaultAnnotation 输出各 VWAP 曲线最后值（升序）、最后收盘价，
// 存在 ATR 列时附带其最后值；序列带备注时另起一行追加。
// 最后值为 NaN 的曲线不参与展示。
func DefaultAnnotation(s *market.Series) string {
	var lasts []float64
	for _, col := range avwap.CurveColumns(s) {
		v, ok := s.LastValue(col)
		if !ok || math.IsNaN(v) {
			continue
		}
		lasts = append(lasts, v)
	}
	sort.Float64s(lasts)
	parts := make([]string, len(lasts))
	for i, v := range lasts {
		parts[i] = formatValue(v)
	}

	var b strings.Builder
	b.WriteString("VWAPs last values: [")
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("]")
	if n := s.Len(); n > 0 {
		b.WriteString("; Closed last: ")
		b.WriteString(formatValue(s.Bar(n - 1).Close))
	}
	if col, ok := volatilityColumn(s); ok {
		if v, _ := s.LastValue(col); !math.IsNaN(v) {
			b.WriteString("; ")
			b.WriteString(strings.ToUpper(col))
			b.WriteString(" last: ")
			b.WriteString(formatValue(v))
		}
	}
	if note := strings.TrimSpace(s.Note); note != "" {
		b.WriteString("\n")
		b.WriteString(note)
	}
	return b.String()
}

// PlainAnnotation 只输出 VWAP 最后值和最后收盘价。
func PlainAnnotation(s *market.Series) string {
	return DefaultAnnotation(s.Without(atrColumns(s)...).WithMeta(market.Meta{Symbol: s.Symbol, Interval: s.Interval, Period: s.Period}))
}

func volatilityColumn(s *market.Series) (string, bool) {
	cols := atrColumns(s)
	if len(cols) == 0 {
		return "", false
	}
	return cols[0], true
}

func atrColumns(s *market.Series) []string {
	var out []string
	for _, c := range s.Columns() {
		if strings.HasPrefix(c, "atr_") {
			out = append(out, c)
		}
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
