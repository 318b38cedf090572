package profile

import (
	"errors"
	"fmt"
)

// DefaultValueRegionFraction 是价值区域覆盖的成交量占比。
const DefaultValueRegionFraction = 0.7

// ErrEmptyHistogram 表示直方图没有任何分箱。
var ErrEmptyHistogram = errors.New("empty histogram")

// Region 是闭区间 [Low, High] 的分箱下标。
type Region struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (r Region) Contains(i int) bool { return i >= r.Low && i <= r.High }

// LocateValueRegion 从直方图两端交替剔除分箱，直到剩余权重不超过 fraction*总量。
//
// 每一步优先剔除"已剔除量较少"的一侧，相等时先剔除底部。若该侧下一个分箱会让剩余
// 权重跌破目标，则改为剔除另一侧；两侧都不能再剔除时停止，所以区域内权重始终 >= 目标。
// 总权重为 0 时返回整个范围。fraction 不在 (0,1) 内时使用 DefaultValueRegionFraction。
func LocateValueRegion(hist []float64, fraction float64) (Region, error) {
	n := len(hist)
	if n == 0 {
		return Region{}, ErrEmptyHistogram
	}
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultValueRegionFraction
	}
	var total float64
	for i, w := range hist {
		if w < 0 {
			return Region{}, fmt.Errorf("histogram bin %d has negative weight %v", i, w)
		}
		total += w
	}
	region := Region{Low: 0, High: n - 1}
	if total <= 0 {
		return region, nil
	}
	target := total * fraction
	remaining := total
	var fromBottom, fromTop float64
	trimBottom := func() bool {
		w := hist[region.Low]
		if remaining-w < target {
			return false
		}
		fromBottom += w
		remaining -= w
		region.Low++
		return true
	}
	trimTop := func() bool {
		w := hist[region.High]
		if remaining-w < target {
			return false
		}
		fromTop += w
		remaining -= w
		region.High--
		return true
	}
	for remaining > target && region.Low < region.High {
		var ok bool
		if fromBottom <= fromTop {
			ok = trimBottom() || trimTop()
		} else {
			ok = trimTop() || trimBottom()
		}
		if !ok {
			break
		}
	}
	return region, nil
}
