package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/logger"
	"avwap/internal/market"
)

// Drawer 是批量任务依赖的绘图服务。
type Drawer interface {
	Fetch(ctx context.Context, job chart.Job) (*market.Series, error)
	DrawSeries(ctx context.Context, job chart.Job, series *market.Series) (chart.Result, error)
}

// Runner 对任务文件中的每个 ticker 画两张图：带年初锚点、只带自定义锚点。
// 单个 ticker 失败只记录在 Run 中，不影响其它 ticker。
type Runner struct {
	cfg    *config.Config
	drawer Drawer
	now    func() time.Time

	mu   sync.RWMutex
	runs map[string]*Run
	last string
}

func NewRunner(cfg *config.Config, drawer Drawer) (*Runner, error) {
	if cfg == nil || drawer == nil {
		return nil, errors.New("batch: config 和 drawer 不能为空")
	}
	return &Runner{cfg: cfg, drawer: drawer, now: time.Now, runs: make(map[string]*Run)}, nil
}

// Plan 把 ticker 展开为绘图任务，同一 ticker 的任务相邻。
func (r *Runner) Plan(t config.Ticker) ([]chart.Job, error) {
	opts, err := r.cfg.ChartOptions(t)
	if err != nil {
		return nil, err
	}
	if opts.SwingMerge == chart.SwingMergeNone {
		opts.SwingMerge = chart.SwingMergeLast
	}
	base := chart.Job{
		Symbol:   t.Symbol,
		Period:   r.cfg.BatchPeriodFor(t),
		Interval: r.cfg.IntervalFor(t),
		Note:     t.Note,
		Title:    fmt.Sprintf("%s %s", t.Symbol, r.cfg.IntervalFor(t)),
	}
	var jobs []chart.Job
	if r.cfg.Defaults.YearStartChart {
		j := base
		j.Options = opts
		j.Options.Anchors = append(append([]string(nil), opts.Anchors...), YearStart(r.now()))
		j.Output = r.outputPath(t.Symbol, base.Interval, 1)
		jobs = append(jobs, j)
	}
	j := base
	j.Options = opts
	j.Output = r.outputPath(t.Symbol, base.Interval, len(jobs)+1)
	jobs = append(jobs, j)
	return jobs, nil
}

// YearStart 返回 now 所在年份的 1 月 1 日（锚点会落在当年第一根 K 线）。
func YearStart(now time.Time) string {
	return fmt.Sprintf("%04d-01-01", now.Year())
}

func (r *Runner) outputPath(symbol, interval string, n int) string {
	name := fmt.Sprintf("%s_%s_%d.%s", prefixFor(interval), sanitize(symbol), n, r.cfg.Output.Format)
	return filepath.Join(r.cfg.Output.Dir, name)
}

func prefixFor(interval string) string {
	if interval == "1d" {
		return "daily"
	}
	return sanitize(interval)
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-").Replace(s)
}

// Run 执行一次批量绘制，symbols 为空时绘制全部 ticker。
// 只有 ctx 取消或 symbols 含未知代码时返回错误。
func (r *Runner) Run(ctx context.Context, symbols ...string) (Run, error) {
	tickers, err := r.selectTickers(symbols)
	if err != nil {
		return Run{}, err
	}
	run := &Run{ID: uuid.New().String(), Status: StatusRunning, StartedAt: r.now()}
	r.mu.Lock()
	r.runs[run.ID] = run
	r.last = run.ID
	r.mu.Unlock()
	logger.Infof("[batch] run %s 开始, tickers=%d", run.ID, len(tickers))

	results := make([][]Item, len(tickers))
	var g errgroup.Group
	g.SetLimit(r.cfg.Defaults.Concurrency)
	for i, t := range tickers {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Infof("[batch] %s (%d/%d)", t.Symbol, i+1, len(tickers))
			results[i] = r.drawTicker(ctx, t)
			return nil
		})
	}
	waitErr := g.Wait()

	r.mu.Lock()
	for i, items := range results {
		if items == nil {
			run.Warnings = append(run.Warnings, fmt.Sprintf("%s: 未执行", tickers[i].Symbol))
			continue
		}
		run.Items = append(run.Items, items...)
	}
	run.finish(r.now())
	snapshot := run.copy()
	r.mu.Unlock()

	logger.Infof("[batch] run %s %s: %d 张, 失败 %d, 用时 %s", run.ID, snapshot.Status, len(snapshot.Items), snapshot.Failed(),
		snapshot.FinishedAt.Sub(snapshot.StartedAt).Round(time.Millisecond))
	if waitErr != nil {
		return snapshot, waitErr
	}
	return snapshot, nil
}

func (r *Runner) drawTicker(ctx context.Context, t config.Ticker) []Item {
	jobs, err := r.Plan(t)
	if err != nil {
		logger.Warnf("[batch] %s 参数错误: %v", t.Symbol, err)
		return []Item{{Symbol: t.Symbol, Status: StatusFailed, Error: err.Error()}}
	}
	items := make([]Item, len(jobs))
	for i, job := range jobs {
		items[i] = Item{Symbol: job.Symbol, Variant: variantOf(len(jobs), i), Output: job.Output, Status: StatusPending}
	}
	series, err := r.drawer.Fetch(ctx, jobs[0])
	if err != nil {
		logger.Warnf("[batch] %s 拉取失败: %v", t.Symbol, err)
		for i := range items {
			items[i].Status = StatusFailed
			items[i].Error = err.Error()
		}
		return items
	}
	for i, job := range jobs {
		start := r.now()
		res, err := r.drawer.DrawSeries(ctx, job, series)
		items[i].Duration = r.now().Sub(start)
		if err != nil {
			logger.Warnf("[batch] %s %s 绘制失败: %v", job.Symbol, items[i].Variant, err)
			items[i].Status = StatusFailed
			items[i].Error = err.Error()
			continue
		}
		items[i].Status = StatusDone
		items[i].Curves = len(res.Curves)
		items[i].Bars = res.Series.Len()
		items[i].Threshold = res.Threshold
	}
	return items
}

func variantOf(total, i int) string {
	if total > 1 && i == 0 {
		return VariantYearStart
	}
	return VariantCustom
}

func (r *Runner) selectTickers(symbols []string) ([]config.Ticker, error) {
	if len(symbols) == 0 {
		return append([]config.Ticker(nil), r.cfg.Tickers...), nil
	}
	out := make([]config.Ticker, 0, len(symbols))
	var missing []string
	for _, sym := range symbols {
		t, ok := r.cfg.Ticker(sym)
		if !ok {
			missing = append(missing, sym)
			continue
		}
		out = append(out, t)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("batch: 未配置的 ticker: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Snapshot 返回指定 run 的副本。
func (r *Runner) Snapshot(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return run.copy(), true
}

// Last 返回最近一次 run。
func (r *Runner) Last() (Run, bool) {
	r.mu.RLock()
	id := r.last
	r.mu.RUnlock()
	if id == "" {
		return Run{}, false
	}
	return r.Snapshot(id)
}

// Runs 按开始时间倒序返回全部 run。
func (r *Runner) Runs() []Run {
	r.mu.RLock()
	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.copy())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
