package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidSeries 表示 K 线序列的时间戳不是严格递增。
var ErrInvalidSeries = errors.New("series timestamps must be strictly increasing")

// Bar 是一根 OHLCV K 线，时间统一为 UTC。
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Typical 返回 (O+H+L+C)/4。
func (b Bar) Typical() float64 {
	return (b.Open + b.High + b.Low + b.Close) / 4
}

// Meta 描述序列来源，渲染标题与注释会用到。
type Meta struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period,omitempty"`
	Interval string `json:"interval"`
	Note     string `json:"note,omitempty"`
}

// Series 是按时间升序排列的 K 线序列，附带派生列。
// 所有变换都返回新的 Series，调用方持有的数据不会被修改；
// 派生列中 NaN 表示该位置未定义。
type Series struct {
	Meta
	bars   []Bar
	values map[string][]float64
	flags  map[string][]bool
	order  []string
}

// NewSeries 拷贝 bars 并校验时间严格递增。
func NewSeries(meta Meta, bars []Bar) (*Series, error) {
	out := make([]Bar, len(bars))
	for i, b := range bars {
		b.Time = b.Time.UTC()
		if i > 0 && !b.Time.After(out[i-1].Time) {
			return nil, fmt.Errorf("%w: bar %d at %s after %s", ErrInvalidSeries, i, b.Time.Format(time.RFC3339), out[i-1].Time.Format(time.RFC3339))
		}
		out[i] = b
	}
	return &Series{
		Meta:   meta,
		bars:   out,
		values: make(map[string][]float64),
		flags:  make(map[string][]bool),
	}, nil
}

// WithMeta 返回替换了元信息的新序列。
func (s *Series) WithMeta(meta Meta) *Series {
	out := s.clone()
	out.Meta = meta
	return out
}

// Len 返回 K 线数量，nil 安全。
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bars)
}

// Bar 返回第 i 根 K 线。
func (s *Series) Bar(i int) Bar { return s.bars[i] }

// Bars 返回拷贝
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Time 返回第 i 根 K 线的时间。
func (s *Series) Time(i int) time.Time { return s.bars[i].Time }

func (s *Series) Times() []time.Time {
	out := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Time
	}
	return out
}

func (s *Series) Opens() []float64   { return s.extract(func(b Bar) float64 { return b.Open }) }
func (s *Series) Highs() []float64   { return s.extract(func(b Bar) float64 { return b.High }) }
func (s *Series) Lows() []float64    { return s.extract(func(b Bar) float64 { return b.Low }) }
func (s *Series) Closes() []float64  { return s.extract(func(b Bar) float64 { return b.Close }) }
func (s *Series) Volumes() []float64 { return s.extract(func(b Bar) float64 { return b.Volume }) }

func (s *Series) extract(field func(Bar) float64) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = field(b)
	}
	return out
}

// Columns 返回派生列名，按添加顺序。
func (s *Series) Columns() []string {
	return append([]string(nil), s.order...)
}

func (s *Series) HasColumn(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.values[name]; ok {
		return true
	}
	_, ok := s.flags[name]
	return ok
}

// Values 返回数值列的拷贝。
func (s *Series) Values(name string) ([]float64, bool) {
	col, ok := s.values[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}

// Flags 返回布尔列的拷贝。
func (s *Series) Flags(name string) ([]bool, bool) {
	col, ok := s.flags[name]
	if !ok {
		return nil, false
	}
	return append([]bool(nil), col...), true
}

// LastValue 返回数值列最后一个值（可能为 NaN）。
func (s *Series) LastValue(name string) (float64, bool) {
	col, ok := s.values[name]
	if !ok || len(col) == 0 {
		return math.NaN(), false
	}
	return col[len(col)-1], true
}

// WithValues 返回追加（或替换）了数值列的新序列。
// vals 长度必须与 K 线数量一致，否则 panic。
func (s *Series) WithValues(name string, vals []float64) *Series {
	if len(vals) != len(s.bars) {
		panic(fmt.Sprintf("market: column %q has %d values for %d bars", name, len(vals), len(s.bars)))
	}
	out := s.clone()
	if !out.HasColumn(name) {
		out.order = append(out.order, name)
	}
	delete(out.flags, name)
	out.values[name] = append([]float64(nil), vals...)
	return out
}

// WithFlags 返回追加（或替换）了布尔列的新序列。
func (s *Series) WithFlags(name string, flags []bool) *Series {
	if len(flags) != len(s.bars) {
		panic(fmt.Sprintf("market: column %q has %d flags for %d bars", name, len(flags), len(s.bars)))
	}
	out := s.clone()
	if !out.HasColumn(name) {
		out.order = append(out.order, name)
	}
	delete(out.values, name)
	out.flags[name] = append([]bool(nil), flags...)
	return out
}

// Without 返回去掉指定派生列的新序列。
func (s *Series) Without(names ...string) *Series {
	out := s.clone()
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
		delete(out.values, n)
		delete(out.flags, n)
	}
	kept := out.order[:0:0]
	for _, n := range out.order {
		if _, ok := drop[n]; !ok {
			kept = append(kept, n)
		}
	}
	out.order = kept
	return out
}

// Index 返回第一根时间 >= t 的 K 线下标，不存在时返回 Len()。
func (s *Series) Index(t time.Time) int {
	return sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Time.Before(t)
	})
}

// From 截取时间 >= t 的部分。对同一 t 重复截取结果不变。
func (s *Series) From(t time.Time) *Series {
	start := s.Index(t)
	out := s.clone()
	out.bars = s.bars[start:]
	for k, col := range s.values {
		out.values[k] = col[start:]
	}
	for k, col := range s.flags {
		out.flags[k] = col[start:]
	}
	return out
}

// clone 共享底层切片：切片只在构造时写入，之后只读。
func (s *Series) clone() *Series {
	out := &Series{
		Meta:   s.Meta,
		bars:   s.bars,
		values: make(map[string][]float64, len(s.values)),
		flags:  make(map[string][]bool, len(s.flags)),
		order:  append([]string(nil), s.order...),
	}
	for k, v := range s.values {
		out.values[k] = v
	}
	for k, v := range s.flags {
		out.flags[k] = v
	}
	return out
}
