package market

import "time"

// Gap 表示缺失的连续 K 线区间（按预期开盘时间）。
type Gap struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Count int       `json:"count"`
}

// IntegrityReport 描述序列相对固定步长的覆盖情况。
type IntegrityReport struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Expected int       `json:"expected"`
	Present  int       `json:"present"`
	Gaps     []Gap     `json:"gaps"`
}

func (r IntegrityReport) Complete() bool { return len(r.Gaps) == 0 }

// CheckIntegrity 以 step 为步长从首根扫描到末根，列出缺失区间。
// 只适用于连续交易的市场；股票日线的周末和节假日会被计为缺口。
func CheckIntegrity(s *Series, step time.Duration) IntegrityReport {
	var report IntegrityReport
	if s.Len() == 0 || step <= 0 {
		return report
	}
	report.Start = s.Time(0)
	report.End = s.Time(s.Len() - 1)
	report.Present = s.Len()
	report.Expected = int(report.End.Sub(report.Start)/step) + 1

	for i := 1; i < s.Len(); i++ {
		prev, cur := s.Time(i-1), s.Time(i)
		missing := int(cur.Sub(prev)/step) - 1
		if missing <= 0 {
			continue
		}
		report.Gaps = append(report.Gaps, Gap{
			From:  prev.Add(step),
			To:    prev.Add(time.Duration(missing) * step),
			Count: missing,
		})
	}
	return report
}
