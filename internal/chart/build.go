package chart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"avwap/internal/analysis/avwap"
	"avwap/internal/analysis/indicator"
	"avwap/internal/market"
)

// SwingMerge 决定检测到的波段极值如何并入锚点集合。
type SwingMerge int

const (
	SwingMergeNone SwingMerge = iota
	// SwingMergeLast 只并入最后一个波段低点和最后一个波段高点。
	SwingMergeLast
	SwingMergeAll
)

func (m SwingMerge) String() string {
	switch m {
	case SwingMergeLast:
		return "last"
	case SwingMergeAll:
		return "all"
	default:
		return "none"
	}
}

func ParseSwingMerge(s string) (SwingMerge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "false":
		return SwingMergeNone, nil
	case "last", "true", "on":
		return SwingMergeLast, nil
	case "all":
		return SwingMergeAll, nil
	default:
		return SwingMergeNone, fmt.Errorf("unknown swing merge mode %q", s)
	}
}

// AnnotationFunc 根据最终序列生成图上注释，不得修改序列。
type AnnotationFunc func(*market.Series) string

type Options struct {
	Anchors    []string
	Parse      avwap.ParseOptions
	Swing      indicator.SwingSettings
	SwingMerge SwingMerge
	Annotation AnnotationFunc

	ProfileBins         int
	ValueRegionFraction float64
}

// Result 是编排结果，Series 已截取到窗口下限之后。
type Result struct {
	Series     *market.Series `json:"-"`
	Anchors    []time.Time    `json:"anchors"`
	Threshold  time.Time      `json:"threshold"`
	Curves     []avwap.Curve  `json:"curves"`
	SwingHighs []time.Time    `json:"swing_highs,omitempty"`
	SwingLows  []time.Time    `json:"swing_lows,omitempty"`
	Annotation string         `json:"annotation"`
}

// Build 依次执行：波动率 -> 波段检测 -> 锚点解析 -> 波段并入 -> VWAP -> 窗口截取 -> 注释。
// 未并入波段时锚点列表不能为空；窗口下限默认取并入后的最小锚点。
func Build(s *market.Series, opts Options) (Result, error) {
	if s.Len() == 0 {
		return Result{}, fmt.Errorf("build %s: empty series: %w", s.Symbol, avwap.ErrEmptyInput)
	}
	swing := indicator.NormalizeSwingSettings(opts.Swing)
	work := indicator.ComputeVolatility(s, swing.Volatility)
	work = indicator.DetectSwingExtrema(work, swing)
	highs, lows := indicator.SwingTimes(work)

	anchors := avwap.NewAnchorSet()
	var threshold *time.Time
	if len(opts.Anchors) > 0 || opts.SwingMerge == SwingMergeNone {
		set, th, err := avwap.ParseAnchorTokens(opts.Anchors, opts.Parse)
		if err != nil {
			return Result{}, fmt.Errorf("build %s: %w", s.Symbol, err)
		}
		anchors, threshold = set, th
	}
	anchors = anchors.Union(swingAnchors(highs, lows, opts.SwingMerge))
	if anchors.Len() == 0 {
		return Result{}, fmt.Errorf("build %s: no anchors and no confirmed swings: %w", s.Symbol, avwap.ErrEmptyInput)
	}

	work, curves := avwap.ComputeAnchoredVWAPs(work, anchors)
	final, from, err := avwap.Window(work, threshold, anchors)
	if err != nil {
		return Result{}, fmt.Errorf("build %s: %w", s.Symbol, err)
	}
	annotate := opts.Annotation
	if annotate == nil {
		annotate = DefaultAnnotation
	}
	return Result{
		Series:     final,
		Anchors:    anchors.Sorted(),
		Threshold:  from,
		Curves:     curves,
		SwingHighs: highs,
		SwingLows:  lows,
		Annotation: annotate(final),
	}, nil
}

func swingAnchors(highs, lows []time.Time, mode SwingMerge) avwap.AnchorSet {
	out := avwap.NewAnchorSet()
	switch mode {
	case SwingMergeLast:
		if len(lows) > 0 {
			out.Add(lows[len(lows)-1])
		}
		if len(highs) > 0 {
			out.Add(highs[len(highs)-1])
		}
	case SwingMergeAll:
		for _, t := range highs {
			out.Add(t)
		}
		for _, t := range lows {
			out.Add(t)
		}
	}
	return out
}

// IsInputError 判断错误是否来自调用方输入（锚点为空或无法解析）。
func IsInputError(err error) bool {
	return errors.Is(err, avwap.ErrEmptyInput) || errors.Is(err, avwap.ErrParse)
}
