package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"avwap/internal/market"
)

// CSVOptions 控制 CSV 数据行的时间格式与精度。
type CSVOptions struct {
	DateOnly       bool
	Location       *time.Location
	PricePrecision int
}

const (
	// PrecisionAuto 根据 K 线价格区间自动决定精度。
	PrecisionAuto = math.MinInt32
	// PrecisionRaw 表示保留原始精度（等价于 strconv.FormatFloat(..., -1, 64)）
	PrecisionRaw = -1
)

// BuildSeriesCSV 生成 CSV 文本，首行为列头，OHLCV 之后依次是派生列。
// NaN 输出为空单元格，布尔列输出 1/0。
func BuildSeriesCSV(s *market.Series, opts CSVOptions) string {
	if s.Len() == 0 {
		return ""
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	precision := opts.PricePrecision
	if precision == PrecisionAuto {
		precision = autoPrecision(s)
	}
	header := "Time"
	layout := "2006-01-02 15:04"
	if opts.DateOnly {
		header = "Date"
		layout = time.DateOnly
	}
	cols := s.Columns()
	values := make([][]float64, len(cols))
	flags := make([][]bool, len(cols))
	for i, c := range cols {
		if v, ok := s.Values(c); ok {
			values[i] = v
		} else {
			flags[i], _ = s.Flags(c)
		}
	}

	var b strings.Builder
	b.WriteString(header + ",O,H,L,C,V")
	for _, c := range cols {
		b.WriteByte(',')
		b.WriteString(c)
	}
	b.WriteByte('\n')
	for i := 0; i < s.Len(); i++ {
		bar := s.Bar(i)
		b.WriteString(bar.Time.In(loc).Format(layout))
		for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			b.WriteByte(',')
			b.WriteString(formatPrice(v, precision))
		}
		b.WriteByte(',')
		b.WriteString(formatPlainFloat(bar.Volume))
		for j := range cols {
			b.WriteByte(',')
			switch {
			case values[j] != nil:
				if !math.IsNaN(values[j][i]) {
					b.WriteString(formatPrice(values[j][i], precision))
				}
			case flags[j] != nil:
				if flags[j][i] {
					b.WriteByte('1')
				} else {
					b.WriteByte('0')
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func autoPrecision(s *market.Series) int {
	maxVal := 0.0
	for i := 0; i < s.Len(); i++ {
		bar := s.Bar(i)
		for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			abs := math.Abs(v)
			if abs > maxVal {
				maxVal = abs
			}
		}
	}
	switch {
	case maxVal >= 1000:
		return 1
	case maxVal >= 100:
		return 2
	default:
		return PrecisionRaw
	}
}

func formatPrice(value float64, precision int) string {
	if precision == PrecisionRaw {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if precision > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func formatPlainFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
