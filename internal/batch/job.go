package batch

import (
	"time"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

const (
	// VariantYearStart 自定义锚点 + 年初锚点。
	VariantYearStart = "year_start"
	// VariantCustom 只用自定义锚点。
	VariantCustom = "custom"
)

// Item 记录一张图的绘制结果。
type Item struct {
	Symbol    string        `json:"symbol"`
	Variant   string        `json:"variant"`
	Output    string        `json:"output"`
	Status    string        `json:"status"`
	Curves    int           `json:"curves"`
	Bars      int           `json:"bars"`
	Threshold time.Time     `json:"threshold"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Run 是一次批量绘制的汇总。
type Run struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Items      []Item    `json:"items"`
	Warnings   []string  `json:"warnings"`
}

func (r *Run) copy() Run {
	if r == nil {
		return Run{}
	}
	out := *r
	out.Items = append([]Item{}, r.Items...)
	out.Warnings = append([]string{}, r.Warnings...)
	return out
}

// Failed 返回失败的条目数。
func (r Run) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (r *Run) finish(at time.Time) {
	r.FinishedAt = at
	failed := r.Failed()
	switch {
	case len(r.Items) == 0 || failed == 0:
		r.Status = StatusDone
	case failed == len(r.Items):
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
}
