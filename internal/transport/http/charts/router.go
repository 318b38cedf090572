package charts

import (
	"bytes"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"avwap/internal/batch"
	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/logger"
	"avwap/internal/market"
	"avwap/internal/render"
	"avwap/internal/report"
)

// Router 提供按需绘图与批量任务接口。
type Router struct {
	cfg    *config.Config
	writer *config.Writer
	svc    *chart.Service
	html   render.HTML
	runner *batch.Runner
}

type Params struct {
	Config  *config.Config
	Service *chart.Service
	HTML    render.HTML
	// Writer 非空时每次请求从任务文件读取最新的 ticker 设置。
	Writer *config.Writer
	// Runner 为空时不注册批量接口。
	Runner *batch.Runner
}

func NewRouter(p Params) (*Router, error) {
	if p.Config == nil || p.Service == nil {
		return nil, errors.New("charts: config 和 service 不能为空")
	}
	return &Router{cfg: p.Config, writer: p.Writer, svc: p.Service, html: p.HTML, runner: p.Runner}, nil
}

// Register 注册 /api 下的 JSON 接口与根路由下的 HTML 页面。
func (r *Router) Register(api *gin.RouterGroup, pages *gin.RouterGroup) {
	if api != nil {
		api.GET("/chart/:symbol", r.handleChart)
		api.GET("/profile/:symbol", r.handleProfile)
		api.GET("/csv/:symbol", r.handleCSV)
		api.GET("/gaps/:symbol", r.handleGaps)
		if r.runner != nil {
			api.POST("/batch", r.handleBatch)
			api.GET("/batch/runs", r.handleRuns)
			api.GET("/batch/runs/:id", r.handleRun)
		}
	}
	if pages != nil {
		pages.GET("/chart/:symbol", r.handleChartPage)
	}
}

// ChartResponse 是 /api/chart 的返回体。
type ChartResponse struct {
	Symbol     string             `json:"symbol"`
	Interval   string             `json:"interval"`
	Period     string             `json:"period"`
	Bars       int                `json:"bars"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	LastClose  float64            `json:"last_close"`
	LastValues map[string]float64 `json:"last_values"`
	chart.Result
}

// jobFromRequest 以任务文件中的 ticker 为底，query 中的 anchors/period/interval/merge 覆盖。
func (r *Router) jobFromRequest(c *gin.Context) (chart.Job, error) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return chart.Job{}, errors.New("缺少 symbol")
	}
	t, ok := r.lookup(symbol)
	if !ok {
		t = config.Ticker{Symbol: symbol}
	}
	if raw := c.QueryArray("anchor"); len(raw) > 0 {
		t.Anchors = raw
	}
	if raw := c.Query("anchors"); raw != "" {
		t.Anchors = strings.Split(raw, ",")
	}
	if v := c.Query("period"); v != "" {
		t.Period = v
	}
	if v := c.Query("interval"); v != "" {
		t.Interval = v
	}
	if v, ok := c.GetQuery("merge"); ok {
		t.SwingMerge = v
		if v == "" {
			t.SwingMerge = "none"
		}
	}
	opts, err := r.cfg.ChartOptions(t)
	if err != nil {
		return chart.Job{}, err
	}
	return chart.Job{
		Symbol:   symbol,
		Period:   r.cfg.PeriodFor(t),
		Interval: r.cfg.IntervalFor(t),
		Note:     t.Note,
		Options:  opts,
	}, nil
}

func (r *Router) lookup(symbol string) (config.Ticker, bool) {
	if r.writer != nil {
		if fresh, err := r.writer.Read(); err == nil {
			return fresh.Ticker(symbol)
		}
	}
	return r.cfg.Ticker(symbol)
}

func (r *Router) handleChart(c *gin.Context) {
	job, err := r.jobFromRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := r.svc.Prepare(c.Request.Context(), job)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(job, res))
}

func toResponse(job chart.Job, res chart.Result) ChartResponse {
	s := res.Series
	out := ChartResponse{
		Symbol:     job.Symbol,
		Interval:   job.Interval,
		Period:     job.Period,
		Bars:       s.Len(),
		LastValues: make(map[string]float64, len(res.Curves)),
		Result:     res,
	}
	if s.Len() > 0 {
		out.From = s.Time(0)
		out.To = s.Time(s.Len() - 1)
		out.LastClose = s.Bar(s.Len() - 1).Close
	}
	for _, curve := range res.Curves {
		if v, ok := s.LastValue(curve.Column); ok && !math.IsNaN(v) {
			out.LastValues[curve.Column] = v
		}
	}
	return out
}

func (r *Router) handleChartPage(c *gin.Context) {
	job, err := r.jobFromRequest(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	res, err := r.svc.Prepare(c.Request.Context(), job)
	if err != nil {
		c.String(statusOf(err), err.Error())
		return
	}
	var buf bytes.Buffer
	req := chart.RenderRequest{Title: job.Symbol + " " + job.Interval, Result: res}
	if err := r.html.Write(&buf, req); err != nil {
		logger.Errorf("[chart-api] render %s failed: %v", job.Symbol, err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (r *Router) handleProfile(c *gin.Context) {
	job, err := r.jobFromRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := r.svc.Profile(c.Request.Context(), job)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	lo, hi := p.Volume.Edges[p.ValueRegion.Low], p.Volume.Edges[p.ValueRegion.High+1]
	c.JSON(http.StatusOK, gin.H{"symbol": job.Symbol, "profile": p, "value_price_low": lo, "value_price_high": hi})
}

func (r *Router) handleCSV(c *gin.Context) {
	job, err := r.jobFromRequest(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	res, err := r.svc.Prepare(c.Request.Context(), job)
	if err != nil {
		c.String(statusOf(err), err.Error())
		return
	}
	text := report.BuildSeriesCSV(res.Series, report.CSVOptions{DateOnly: job.Interval == "1d", PricePrecision: report.PrecisionAuto})
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(text))
}

func (r *Router) handleGaps(c *gin.Context) {
	job, err := r.jobFromRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	step, err := market.IntervalDuration(job.Interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	series, err := r.svc.Fetch(c.Request.Context(), job)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": job.Symbol, "interval": job.Interval, "report": market.CheckIntegrity(series, step)})
}

func (r *Router) handleBatch(c *gin.Context) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
			return
		}
	}
	run, err := r.runner.Run(c.Request.Context(), req.Symbols...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "run": run})
		return
	}
	logger.Infof("[chart-api] batch %s triggered by %s", run.ID, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (r *Router) handleRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": r.runner.Runs()})
}

func (r *Router) handleRun(c *gin.Context) {
	run, ok := r.runner.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, market.ErrDataUnavailable):
		return http.StatusNotFound
	case chart.IsInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
