package batch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"avwap/internal/analysis/avwap"
	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/market"
)

type fakeDrawer struct {
	mu      sync.Mutex
	fetches map[string]int
	jobs    []chart.Job
	failOn  map[string]error
}

func newFakeDrawer() *fakeDrawer {
	return &fakeDrawer{fetches: map[string]int{}, failOn: map[string]error{}}
}

func (f *fakeDrawer) Fetch(_ context.Context, job chart.Job) (*market.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[job.Symbol]++
	if err := f.failOn[job.Symbol]; err != nil {
		return nil, err
	}
	bars := []market.Bar{{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}
	return market.NewSeries(market.Meta{Symbol: job.Symbol}, bars)
}

func (f *fakeDrawer) DrawSeries(_ context.Context, job chart.Job, series *market.Series) (chart.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if len(job.Options.Anchors) == 0 {
		return chart.Result{}, errors.New("no anchors")
	}
	return chart.Result{Series: series, Curves: make([]avwap.Curve, len(job.Options.Anchors)), Threshold: series.Time(0)}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Tickers = []config.Ticker{
		{Symbol: "KLAC", Note: "earnings", Anchors: []string{"2024-04-19"}},
		{Symbol: "NVDA"},
		{Symbol: "DEAD", Anchors: []string{"2024-01-02"}},
		{Symbol: "BTC-USD", Interval: "1h", Period: "3mo", SwingMerge: "all"},
	}
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, d Drawer) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, d)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	r.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestPlanBuildsTwoCharts(t *testing.T) {
	cfg := testConfig(t)
	r := newTestRunner(t, cfg, newFakeDrawer())
	jobs, err := r.Plan(cfg.Tickers[0])
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("应生成 2 张图, 实际=%d", len(jobs))
	}
	if got := jobs[0].Options.Anchors; len(got) != 2 || got[1] != "2024-01-01" {
		t.Fatalf("第一张应追加年初锚点, 实际=%v", got)
	}
	if got := jobs[1].Options.Anchors; len(got) != 1 || got[0] != "2024-04-19" {
		t.Fatalf("第二张只用自定义锚点, 实际=%v", got)
	}
	if cfg.Tickers[0].Anchors[0] != "2024-04-19" || len(cfg.Tickers[0].Anchors) != 1 {
		t.Fatalf("Plan 不应修改配置: %v", cfg.Tickers[0].Anchors)
	}
	if filepath.Base(jobs[0].Output) != "daily_KLAC_1.png" || filepath.Base(jobs[1].Output) != "daily_KLAC_2.png" {
		t.Fatalf("输出文件名错误: %s %s", jobs[0].Output, jobs[1].Output)
	}
	for _, j := range jobs {
		if j.Options.SwingMerge != chart.SwingMergeLast || j.Note != "earnings" {
			t.Fatalf("批量任务应并入波段并带备注: %+v", j)
		}
		if j.Period != market.PeriodMax {
			t.Fatalf("批量默认应拉取全部历史, 实际 period=%q", j.Period)
		}
	}

	btc, _ := r.Plan(cfg.Tickers[3])
	if btc[0].Options.SwingMerge != chart.SwingMergeAll || filepath.Base(btc[0].Output) != "1h_BTC-USD_1.png" || btc[0].Period != "3mo" {
		t.Fatalf("ticker 覆盖未生效: %+v", btc[0])
	}

	cfg.Defaults.YearStartChart = false
	if jobs, _ := r.Plan(cfg.Tickers[0]); len(jobs) != 1 || filepath.Base(jobs[0].Output) != "daily_KLAC_1.png" {
		t.Fatalf("关闭年初图后只应有 1 张: %+v", jobs)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDrawer()
	d.failOn["DEAD"] = market.Unavailable("fake", "DEAD", "1y", "1d")
	r := newTestRunner(t, cfg, d)

	run, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.ID == "" || run.Status != StatusPartial {
		t.Fatalf("状态应为 partial, 实际=%+v", run)
	}
	if len(run.Items) != 8 {
		t.Fatalf("4 个 ticker 应有 8 条记录, 实际=%d", len(run.Items))
	}
	// DEAD 拉取失败 2 条；NVDA 无自定义锚点的第二张失败 1 条；BTC-USD 同理 1 条
	if run.Failed() != 4 {
		t.Fatalf("失败数应为 4, 实际=%d: %+v", run.Failed(), run.Items)
	}
	for sym, n := range d.fetches {
		if n != 1 {
			t.Fatalf("%s 应只拉取一次, 实际=%d", sym, n)
		}
	}
	if got, ok := r.Snapshot(run.ID); !ok || len(got.Items) != 8 {
		t.Fatalf("Snapshot 应返回同一 run")
	}
	if last, ok := r.Last(); !ok || last.ID != run.ID {
		t.Fatalf("Last 应返回最近的 run")
	}
	if table := Table(run); !strings.Contains(table, "KLAC") || !strings.Contains(table, "returned no bars") {
		t.Fatalf("报表缺少内容:\n%s", table)
	}
}

func TestRunSelectsSymbols(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDrawer()
	r := newTestRunner(t, cfg, d)
	run, err := r.Run(context.Background(), "klac")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(run.Items) != 2 || run.Status != StatusDone {
		t.Fatalf("只应绘制 KLAC: %+v", run)
	}
	if _, err := r.Run(context.Background(), "MSFT"); err == nil {
		t.Fatalf("未配置的 ticker 应报错")
	}
	if len(r.Runs()) != 1 {
		t.Fatalf("未执行的 run 不应记录")
	}
}

func TestRunCanceled(t *testing.T) {
	cfg := testConfig(t)
	r := newTestRunner(t, cfg, newFakeDrawer())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled, 实际=%v", err)
	}
	if len(run.Items) != 0 || len(run.Warnings) != len(cfg.Tickers) {
		t.Fatalf("取消后不应绘制: %+v", run)
	}
}
