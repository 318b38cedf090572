package profile

import (
	"fmt"
	"math"

	"avwap/internal/market"
)

// DefaultBins 是价格轴的分割数。
const DefaultBins = 50

// Histogram 是按价格分箱的分布，len(Edges) == len(Weights)+1。
type Histogram struct {
	Edges   []float64 `json:"edges"`
	Weights []float64 `json:"weights"`
}

// LinearEdges 在 [lo, hi] 上生成 n 个等距边界（含两端）。
func LinearEdges(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo, hi}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

// Bucket 按 edges 分箱，最后一个分箱右闭；weights 为 nil 时每个值计 1。
// 落在范围外的值被忽略。
func Bucket(values, weights, edges []float64) Histogram {
	h := Histogram{Edges: append([]float64(nil), edges...)}
	if len(edges) < 2 {
		return h
	}
	h.Weights = make([]float64, len(edges)-1)
	lo, hi := edges[0], edges[len(edges)-1]
	for i, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		idx := searchEdge(edges, v)
		h.Weights[idx] += w
	}
	return h
}

// searchEdge 返回 v 所在分箱：edges[i] <= v < edges[i+1]，最右端归入最后一箱。
func searchEdge(edges []float64, v float64) int {
	lo, hi := 0, len(edges)-2
	if v >= edges[len(edges)-1] {
		return hi
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if edges[mid] <= v {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Profile 汇总成交量分布、价格分布与价值区域。
type Profile struct {
	Volume      Histogram `json:"volume"`
	Price       Histogram `json:"price"`
	ValueRegion Region    `json:"value_region"`
}

// Build 计算成交量分布（收盘价按成交量加权，边界从最低价到最高价共 bins 个）
// 与价格分布（收盘价计数，bins 个等宽分箱），并在成交量分布上定位价值区域。
func Build(s *market.Series, bins int, fraction float64) (Profile, error) {
	if s.Len() == 0 {
		return Profile{}, fmt.Errorf("profile %s: %w", s.Symbol, market.ErrDataUnavailable)
	}
	if bins < 2 {
		bins = DefaultBins
	}
	closes := s.Closes()
	lows, highs := s.Lows(), s.Highs()
	lo, hi := minOf(lows), maxOf(highs)
	volume := Bucket(closes, s.Volumes(), LinearEdges(lo, hi, bins))

	cLo, cHi := minOf(closes), maxOf(closes)
	if cLo == cHi {
		cLo, cHi = cLo-0.5, cHi+0.5
	}
	price := Bucket(closes, nil, LinearEdges(cLo, cHi, bins+1))

	region, err := LocateValueRegion(volume.Weights, fraction)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Volume: volume, Price: price, ValueRegion: region}, nil
}

func minOf(vals []float64) float64 {
	out := math.Inf(1)
	for _, v := range vals {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(vals []float64) float64 {
	out := math.Inf(-1)
	for _, v := range vals {
		out = math.Max(out, v)
	}
	return out
}
