package avwap

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMarker 标记显示窗口下限的锚点前缀，例如 "x2024-08-03"。
const DefaultMarker = "x"

// ThresholdPolicy 决定多个带标记的 token 时取哪一个作为窗口下限。
type ThresholdPolicy int

const (
	// LastMarkerWins 按扫描顺序最后一个带标记的 token 生效。
	LastMarkerWins ThresholdPolicy = iota
	FirstMarkerWins
	// EarliestMarker 取所有带标记 token 中最早的时间。
	EarliestMarker
)

func ParseThresholdPolicy(s string) (ThresholdPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return LastMarkerWins, nil
	case "first":
		return FirstMarkerWins, nil
	case "earliest", "min":
		return EarliestMarker, nil
	default:
		return LastMarkerWins, fmt.Errorf("unknown threshold policy %q", s)
	}
}

type ParseOptions struct {
	Marker   string
	Policy   ThresholdPolicy
	Location *time.Location
}

func (o ParseOptions) withDefaults() ParseOptions {
	out := o
	if out.Marker == "" {
		out.Marker = DefaultMarker
	}
	if out.Location == nil {
		out.Location = time.UTC
	}
	return out
}

// AnchorToken 是解析后的单个 token。
type AnchorToken struct {
	Time      time.Time
	Exclusion bool
}

// AnchorSet 是去重后的锚点集合，按 UnixNano 判等。
type AnchorSet struct {
	items map[int64]time.Time
}

func NewAnchorSet(times ...time.Time) AnchorSet {
	s := AnchorSet{items: make(map[int64]time.Time, len(times))}
	for _, t := range times {
		s.Add(t)
	}
	return s
}

func (s *AnchorSet) Add(t time.Time) {
	if s.items == nil {
		s.items = make(map[int64]time.Time)
	}
	t = t.UTC()
	s.items[t.UnixNano()] = t
}

func (s AnchorSet) Contains(t time.Time) bool {
	_, ok := s.items[t.UnixNano()]
	return ok
}

func (s AnchorSet) Len() int { return len(s.items) }

// Sorted 返回按时间升序的锚点，曲线编号以此为准。
func (s AnchorSet) Sorted() []time.Time {
	out := make([]time.Time, 0, len(s.items))
	for _, t := range s.items {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Min 返回最早的锚点；集合为空时返回 ErrEmptyInput。
func (s AnchorSet) Min() (time.Time, error) {
	sorted := s.Sorted()
	if len(sorted) == 0 {
		return time.Time{}, ErrEmptyInput
	}
	return sorted[0], nil
}

// Union 返回两个集合的并集。
func (s AnchorSet) Union(other AnchorSet) AnchorSet {
	out := NewAnchorSet(s.Sorted()...)
	for _, t := range other.items {
		out.Add(t)
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"20060102",
}

// ParseTime 解析常见的日期/时间写法；不带时区的按 loc 解释，结果统一为 UTC。
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	if v != "" {
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, v, loc); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, &ParseError{Token: raw}
}

// ParseToken 去掉标记前缀并解析时间。
func ParseToken(raw string, opts ParseOptions) (AnchorToken, error) {
	opts = opts.withDefaults()
	v := strings.TrimSpace(raw)
	tok := AnchorToken{}
	if rest, ok := strings.CutPrefix(v, opts.Marker); ok {
		tok.Exclusion = true
		v = rest
	}
	t, err := ParseTime(v, opts.Location)
	if err != nil {
		return AnchorToken{}, &ParseError{Token: raw}
	}
	tok.Time = t
	return tok, nil
}

// ParseAnchorTokens 解析锚点列表，返回去重后的锚点集合与可选的窗口下限。
// 带标记的 token 同样进入集合。没有标记时下限为 nil，由调用方取集合最小值。
func ParseAnchorTokens(tokens []string, opts ParseOptions) (AnchorSet, *time.Time, error) {
	if len(tokens) == 0 {
		return AnchorSet{}, nil, ErrEmptyInput
	}
	parsed := make([]AnchorToken, 0, len(tokens))
	for _, raw := range tokens {
		tok, err := ParseToken(raw, opts)
		if err != nil {
			return AnchorSet{}, nil, err
		}
		parsed = append(parsed, tok)
	}
	return Resolve(parsed, opts.Policy)
}

// Resolve 把已解析的 token 合并为集合与窗口下限。
func Resolve(tokens []AnchorToken, policy ThresholdPolicy) (AnchorSet, *time.Time, error) {
	if len(tokens) == 0 {
		return AnchorSet{}, nil, ErrEmptyInput
	}
	set := NewAnchorSet()
	var threshold *time.Time
	for _, tok := range tokens {
		set.Add(tok.Time)
		if !tok.Exclusion {
			continue
		}
		t := tok.Time
		switch {
		case threshold == nil:
			threshold = &t
		case policy == LastMarkerWins:
			threshold = &t
		case policy == EarliestMarker && t.Before(*threshold):
			threshold = &t
		}
	}
	return set, threshold, nil
}
