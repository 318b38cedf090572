package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avwap/internal/analysis/avwap"
	"avwap/internal/analysis/indicator"
	"avwap/internal/batch"
	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/logger"
	"avwap/internal/market"
	"avwap/internal/render"
	"avwap/internal/report"
	"avwap/internal/transport/http/charts"
	"avwap/internal/transport/http/server"
	"avwap/internal/transport/http/tickers"
)

const (
	defaultConfigPath    = "avwap.toml"
	defaultServeCacheTTL = "5m"
)

// app 汇总各命令共用的配置、数据源与渲染器。
type app struct {
	cfg      *config.Config
	svc      *chart.Service
	renderer chart.Renderer
	html     render.HTML
	close    func()
}

// newApp 加载配置后依次执行 tune，再组装数据源。
func newApp(ctx context.Context, configPath string, tune ...func(*config.Config)) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	for _, fn := range tune {
		fn(cfg)
	}
	logger.SetLevel(cfg.Log.Level)
	src, closer, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	html := render.HTML{Width: cfg.Output.Width, Height: cfg.Output.Height, AssetsHost: cfg.Output.AssetsHost}
	renderer := render.ByExtension{
		HTML: html,
		PNG:  render.Screenshot{HTML: html, ExecPath: cfg.Output.ChromePath},
	}
	svc := chart.NewService(chart.ServiceParams{
		Source:          src,
		Renderer:        renderer,
		ProfileRenderer: render.ProfilePNG{Width: cfg.Output.Width, Height: cfg.Output.Height},
	})
	return &app{cfg: cfg, svc: svc, renderer: renderer, html: html, close: closer}, nil
}

func (a *app) output(name string) string {
	return filepath.Join(a.cfg.Output.Dir, name+"."+a.cfg.Output.Format)
}

// tickerFlags 是单代码命令共用的参数，未指定的字段取任务文件中的设置。
type tickerFlags struct {
	config   string
	symbol   string
	period   string
	interval string
	out      string
}

func (f *tickerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", defaultConfigPath, "任务文件 (toml/yaml)")
	fs.StringVar(&f.symbol, "symbol", "", "代码，也可作为第一个位置参数")
	fs.StringVar(&f.period, "period", "", "数据范围，如 1y/6mo/max")
	fs.StringVar(&f.interval, "interval", "", "K 线粒度，如 1d/1h/15m")
	fs.StringVar(&f.out, "out", "", "输出文件，扩展名决定格式")
}

func (f *tickerFlags) resolve(cfg *config.Config, fs *flag.FlagSet) (config.Ticker, error) {
	sym := f.symbol
	if sym == "" && fs.NArg() > 0 {
		sym = fs.Arg(0)
	}
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if sym == "" {
		return config.Ticker{}, errors.New("缺少 -symbol")
	}
	t, ok := cfg.Ticker(sym)
	if !ok {
		t = config.Ticker{Symbol: sym}
	}
	t.Symbol = sym
	if f.period != "" {
		t.Period = f.period
	}
	if f.interval != "" {
		t.Interval = f.interval
	}
	return t, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runDraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("draw", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "任务文件 (toml/yaml)")
	_ = fs.Parse(args)

	a, err := newApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	if len(a.cfg.Tickers) == 0 {
		return fmt.Errorf("%s 中没有 ticker，先运行 avwap init", *cfgPath)
	}
	runner, err := batch.NewRunner(a.cfg, a.svc)
	if err != nil {
		return err
	}
	run, err := runner.Run(ctx, fs.Args()...)
	fmt.Println(batch.Table(run))
	if err != nil {
		return err
	}
	if run.Status == batch.StatusFailed {
		return fmt.Errorf("run %s 全部失败", run.ID)
	}
	return nil
}

func runChart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	var tf tickerFlags
	tf.register(fs)
	anchors := fs.String("anchors", "", "逗号分隔的锚点，x 前缀表示窗口下限，如 2024-04-19,x2024-08-05")
	merge := fs.String("merge", "", "波段并入: none|last|all")
	note := fs.String("note", "", "追加到注释的备注")
	printRows := fs.Int("print", 0, "打印最后 N 行")
	csvPath := fs.String("csv", "", "同时导出 CSV")
	_ = fs.Parse(args)

	a, err := newApp(ctx, tf.config)
	if err != nil {
		return err
	}
	defer a.close()
	t, err := tf.resolve(a.cfg, fs)
	if err != nil {
		return err
	}
	if *anchors != "" {
		t.Anchors = splitList(*anchors)
	}
	if *merge != "" {
		t.SwingMerge = *merge
	}
	if *note != "" {
		t.Note = *note
	}
	opts, err := a.cfg.ChartOptions(t)
	if err != nil {
		return err
	}
	job := chart.Job{
		Symbol:   t.Symbol,
		Period:   a.cfg.PeriodFor(t),
		Interval: a.cfg.IntervalFor(t),
		Note:     t.Note,
		Output:   tf.out,
		Options:  opts,
	}
	if job.Output == "" {
		job.Output = a.output(fmt.Sprintf("%s_%s", t.Symbol, job.Interval))
	}
	res, err := a.svc.Draw(ctx, job)
	if err != nil {
		return err
	}
	fmt.Println(res.Annotation)
	if *printRows > 0 {
		fmt.Println(report.SeriesTable(res.Series, *printRows))
	}
	if *csvPath != "" {
		text := report.BuildSeriesCSV(res.Series, report.CSVOptions{DateOnly: job.Interval == "1d", PricePrecision: report.PrecisionAuto})
		if err := os.WriteFile(*csvPath, []byte(text), 0o644); err != nil {
			return err
		}
		logger.Infof("[main] CSV -> %s", *csvPath)
	}
	return nil
}

func runProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	var tf tickerFlags
	tf.register(fs)
	bins := fs.Int("bins", 0, "价格分箱数，默认取任务文件")
	fraction := fs.Float64("fraction", 0, "价值区域占比 (0,1)，默认取任务文件")
	_ = fs.Parse(args)

	a, err := newApp(ctx, tf.config)
	if err != nil {
		return err
	}
	defer a.close()
	t, err := tf.resolve(a.cfg, fs)
	if err != nil {
		return err
	}
	opts, err := a.cfg.ChartOptions(t)
	if err != nil {
		return err
	}
	if *bins > 0 {
		opts.ProfileBins = *bins
	}
	if *fraction > 0 {
		opts.ValueRegionFraction = *fraction
	}
	out := tf.out
	if out == "" {
		out = filepath.Join(a.cfg.Output.Dir, fmt.Sprintf("profile_%s.png", t.Symbol))
	}
	p, err := a.svc.DrawProfile(ctx, chart.Job{
		Symbol:   t.Symbol,
		Period:   a.cfg.PeriodFor(t),
		Interval: a.cfg.IntervalFor(t),
		Output:   out,
		Options:  opts,
	})
	if err != nil {
		return err
	}
	r := p.ValueRegion
	fmt.Printf("%s value region: %.2f - %.2f (bins %d..%d)\n",
		t.Symbol, p.Volume.Edges[r.Low], p.Volume.Edges[r.High+1], r.Low, r.High)
	return nil
}

func runRatio(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ratio", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "任务文件 (toml/yaml)")
	first := fs.String("a", "", "分子代码")
	second := fs.String("b", "", "分母代码")
	period := fs.String("period", market.PeriodMax, "数据范围")
	interval := fs.String("interval", "1d", "K 线粒度")
	cutoff := fs.String("cutoff", "", "只保留该日期之后的点")
	out := fs.String("out", "", "输出 PNG")
	printRows := fs.Int("print", 10, "打印最后 N 个点")
	_ = fs.Parse(args)

	symA, symB := strings.ToUpper(strings.TrimSpace(*first)), strings.ToUpper(strings.TrimSpace(*second))
	if symA == "" || symB == "" {
		return errors.New("需要 -a 和 -b")
	}
	var from time.Time
	if *cutoff != "" {
		t, err := avwap.ParseTime(*cutoff, time.UTC)
		if err != nil {
			return err
		}
		from = t
	}
	a, err := newApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	sa, err := a.svc.Fetch(ctx, chart.Job{Symbol: symA, Period: *period, Interval: *interval})
	if err != nil {
		return err
	}
	sb, err := a.svc.Fetch(ctx, chart.Job{Symbol: symB, Period: *period, Interval: *interval})
	if err != nil {
		return err
	}
	points, err := market.CloseRatio(sa, sb, from)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s-%s Close-Close Ratio", symA, symB)
	if !from.IsZero() {
		title += ", Min Date " + from.Format(time.DateOnly)
	}
	path := *out
	if path == "" {
		path = filepath.Join(a.cfg.Output.Dir, fmt.Sprintf("ratio_%s_%s.png", symA, symB))
	}
	if err := (render.RatioPNG{Width: a.cfg.Output.Width, Height: a.cfg.Output.Height}).RenderFile(path, title, points); err != nil {
		return err
	}
	fmt.Println(report.RatioTable(title, points, *printRows))
	logger.Infof("[main] ratio -> %s", path)
	return nil
}

func runAvg5(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("avg5", flag.ExitOnError)
	var tf tickerFlags
	tf.register(fs)
	printRows := fs.Int("print", 0, "打印最后 N 行")
	_ = fs.Parse(args)
	if tf.interval == "" {
		tf.interval = "15m"
	}
	if tf.period == "" {
		tf.period = "1mo"
	}
	n, err := indicator.FiveDayBars(tf.interval)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, tf.config)
	if err != nil {
		return err
	}
	defer a.close()
	t, err := tf.resolve(a.cfg, fs)
	if err != nil {
		return err
	}
	series, err := a.svc.Fetch(ctx, chart.Job{Symbol: t.Symbol, Period: t.Period, Interval: t.Interval})
	if err != nil {
		return err
	}
	withMA, err := indicator.ComputeSMA(series, n)
	if err != nil {
		return err
	}
	col := indicator.SMAColumn(n)
	last, _ := withMA.LastValue(col)
	title := fmt.Sprintf("%s, interval %s, MA last %.2f", t.Symbol, t.Interval, last)
	out := tf.out
	if out == "" {
		out = a.output("5_d_avg_" + t.Symbol)
	}
	req := chart.RenderRequest{
		Title:  title,
		Output: out,
		Result: chart.Result{Series: withMA, Curves: []avwap.Curve{{Column: col}}},
	}
	if err := a.renderer.Render(ctx, req); err != nil {
		return err
	}
	fmt.Println(title)
	if *printRows > 0 {
		fmt.Println(report.SeriesTable(withMA, *printRows, col))
	}
	logger.Infof("[main] avg5 -> %s", out)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "任务文件 (toml/yaml)")
	addr := fs.String("addr", "", "监听地址，默认取任务文件")
	_ = fs.Parse(args)

	w := config.NewWriter(*cfgPath)
	if _, err := os.Stat(*cfgPath); os.IsNotExist(err) {
		if err := w.Write(config.Default()); err != nil {
			return err
		}
		logger.Warnf("[main] %s 不存在，已创建空任务文件", *cfgPath)
	}
	a, err := newApp(ctx, *cfgPath, func(cfg *config.Config) {
		if *addr != "" {
			cfg.Server.Addr = *addr
		}
		if cfg.Source.CacheTTL == "" {
			cfg.Source.CacheTTL = defaultServeCacheTTL
		}
	})
	if err != nil {
		return err
	}
	defer a.close()
	runner, err := batch.NewRunner(a.cfg, a.svc)
	if err != nil {
		return err
	}
	cr, err := charts.NewRouter(charts.Params{Config: a.cfg, Service: a.svc, HTML: a.html, Writer: w, Runner: runner})
	if err != nil {
		return err
	}
	parse := avwap.ParseOptions{Marker: a.cfg.Defaults.Marker}
	srv, err := server.New(server.Config{Addr: a.cfg.Server.Addr, Charts: cr, Tickers: tickers.NewRouter(w, parse)})
	if err != nil {
		return err
	}
	logger.Infof("[main] HTTP 服务监听 %s", a.cfg.Server.Addr)
	return srv.Start(ctx)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	out := fs.String("out", defaultConfigPath, "写出的任务文件 (.toml/.yaml)")
	force := fs.Bool("force", false, "覆盖已有文件（旧文件进入 backups/）")
	_ = fs.Parse(args)

	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s 已存在，使用 -force 覆盖", *out)
	}
	if err := config.NewWriter(*out).Write(config.Example()); err != nil {
		return err
	}
	fmt.Printf("已写出 %s\n", *out)
	return nil
}
