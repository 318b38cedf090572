package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"avwap/internal/analysis/avwap"
	"avwap/internal/batch"
	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/market"
	"avwap/internal/render"
	"avwap/internal/transport/http/charts"
	"avwap/internal/transport/http/tickers"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// vSeries 先跌 20 天、再涨 15 天、再跌 10 天，确认低点在第 20 根、高点在第 35 根。
func vSeries() *market.Series {
	var closes []float64
	for i := 0; i <= 20; i++ {
		closes = append(closes, 100-float64(i))
	}
	for i := 21; i <= 35; i++ {
		closes = append(closes, 80+float64(i-20))
	}
	for i := 36; i <= 45; i++ {
		closes = append(closes, 95-float64(i-35))
	}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Time: t0.AddDate(0, 0, i), Open: c, High: c + 0.25, Low: c - 0.25, Close: c, Volume: 1000}
	}
	s, _ := market.NewSeries(market.Meta{Symbol: "TEST", Interval: "1d"}, bars)
	return s
}

type nopRenderer struct {
	mu   sync.Mutex
	reqs []chart.RenderRequest
}

func (n *nopRenderer) Render(_ context.Context, req chart.RenderRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	return nil
}

func newTestServer(t *testing.T) (*HTTPServer, *nopRenderer) {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Tickers = []config.Ticker{{Symbol: "TEST", Note: "watch", Anchors: []string{"2024-01-05"}}}

	path := filepath.Join(t.TempDir(), "jobs.toml")
	w := config.NewWriter(path)
	if err := w.Write(cfg); err != nil {
		t.Fatalf("写入任务文件失败: %v", err)
	}

	src := market.SourceFunc(func(_ context.Context, symbol, period, interval string) (*market.Series, error) {
		if symbol != "TEST" {
			return nil, market.Unavailable("fake", symbol, period, interval)
		}
		return vSeries(), nil
	})
	rr := &nopRenderer{}
	svc := chart.NewService(chart.ServiceParams{Source: src, Renderer: rr})
	runner, err := batch.NewRunner(cfg, svc)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	cr, err := charts.NewRouter(charts.Params{Config: cfg, Service: svc, HTML: render.HTML{AssetsHost: "/assets/"}, Writer: w, Runner: runner})
	if err != nil {
		t.Fatalf("charts.NewRouter: %v", err)
	}
	srv, err := New(Config{Charts: cr, Tickers: tickers.NewRouter(w, avwap.ParseOptions{})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, rr
}

func do(t *testing.T, srv *HTTPServer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, rec.Body.String())
	}
}

func TestHealthAndIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz 状态码=%d", rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "AVWAP charts") {
		t.Fatalf("首页异常: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/static/style.css", ""); rec.Code != http.StatusOK {
		t.Fatalf("静态资源状态码=%d", rec.Code)
	}
}

func TestChartEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/chart/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp charts.ChartResponse
	decode(t, rec, &resp)
	if resp.Symbol != "TEST" || len(resp.Curves) != 3 || resp.LastClose != 85 {
		t.Fatalf("响应异常: symbol=%s curves=%d close=%v", resp.Symbol, len(resp.Curves), resp.LastClose)
	}
	if !resp.Threshold.Equal(t0.AddDate(0, 0, 4)) || resp.Bars != 42 {
		t.Fatalf("窗口异常: from=%s bars=%d", resp.Threshold, resp.Bars)
	}
	if len(resp.LastValues) != 3 || !strings.HasSuffix(resp.Annotation, "\nwatch") {
		t.Fatalf("末值/注释异常: %v %q", resp.LastValues, resp.Annotation)
	}

	rec = do(t, srv, http.MethodGet, "/api/chart/TEST?anchors=2024-01-11&merge=", "")
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || len(resp.Curves) != 1 {
		t.Fatalf("query 覆盖锚点失败: %d curves=%d", rec.Code, len(resp.Curves))
	}
}

func TestChartEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []struct {
		target string
		code   int
	}{
		{"/api/chart/TEST?anchors=someday&merge=", http.StatusBadRequest},
		{"/api/chart/TEST?merge=sometimes", http.StatusBadRequest},
		{"/api/chart/NONE", http.StatusNotFound},
		{"/api/gaps/TEST?interval=weird", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := do(t, srv, http.MethodGet, tc.target, ""); rec.Code != tc.code {
			t.Fatalf("%s: 期望 %d, 实际 %d body=%s", tc.target, tc.code, rec.Code, rec.Body.String())
		}
	}
}

func TestChartPageProfileCSVAndGaps(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/chart/TEST", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "candlestick") {
		t.Fatalf("HTML 页面异常: %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("Content-Type=%s", rec.Header().Get("Content-Type"))
	}

	rec = do(t, srv, http.MethodGet, "/api/profile/TEST", "")
	var prof struct {
		Low  float64 `json:"value_price_low"`
		High float64 `json:"value_price_high"`
	}
	decode(t, rec, &prof)
	if rec.Code != http.StatusOK || !(prof.Low < prof.High) {
		t.Fatalf("分布异常: %d %+v", rec.Code, prof)
	}

	rec = do(t, srv, http.MethodGet, "/api/csv/TEST", "")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if rec.Code != http.StatusOK || !strings.HasPrefix(lines[0], "Date,") || len(lines) != 43 {
		t.Fatalf("CSV 异常: %d 行数=%d 表头=%s", rec.Code, len(lines), lines[0])
	}

	rec = do(t, srv, http.MethodGet, "/api/gaps/TEST", "")
	var gaps struct {
		Report market.IntegrityReport `json:"report"`
	}
	decode(t, rec, &gaps)
	if rec.Code != http.StatusOK || !gaps.Report.Complete() || gaps.Report.Present != 46 {
		t.Fatalf("缺口报告异常: %+v", gaps.Report)
	}
}

func TestTickerCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodPut, "/api/tickers/amd", `{"note":"ai","anchors":["2024-04-19"," x2024-08-05 "]}`); rec.Code != http.StatusOK {
		t.Fatalf("新增失败: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(t, srv, http.MethodGet, "/api/tickers/AMD", "")
	var got config.Ticker
	decode(t, rec, &got)
	if got.Symbol != "AMD" || got.Note != "ai" || len(got.Anchors) != 2 || got.Anchors[1] != "x2024-08-05" {
		t.Fatalf("读取结果异常: %+v", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/tickers", "")
	var list struct {
		Tickers []config.Ticker `json:"tickers"`
	}
	decode(t, rec, &list)
	if len(list.Tickers) != 2 || list.Tickers[0].Symbol != "AMD" {
		t.Fatalf("列表应按代码排序: %+v", list.Tickers)
	}

	if rec := do(t, srv, http.MethodPut, "/api/tickers/amd", `{"anchors":["not-a-date"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("非法锚点应返回 400, 实际=%d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/tickers/amd", ""); rec.Code != http.StatusOK {
		t.Fatalf("删除失败: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/tickers/amd", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("重复删除应返回 404, 实际=%d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/tickers/amd", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("删除后应返回 404, 实际=%d", rec.Code)
	}
}

func TestBatchEndpoints(t *testing.T) {
	srv, rr := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/batch", `{"symbols":["test"]}`)
	var resp struct {
		Run batch.Run `json:"run"`
	}
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Run.Status != batch.StatusDone || len(resp.Run.Items) != 2 {
		t.Fatalf("批量执行异常: %d %+v", rec.Code, resp.Run)
	}
	if len(rr.reqs) != 2 {
		t.Fatalf("应渲染 2 张图, 实际=%d", len(rr.reqs))
	}
	if rec := do(t, srv, http.MethodGet, "/api/batch/runs/"+resp.Run.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("查询 run 失败: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/batch/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("未知 run 应返回 404, 实际=%d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/batch", `{"symbols":["MSFT"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("未配置的 ticker 应返回 400, 实际=%d", rec.Code)
	}
}

func TestChartUsesUpdatedTicker(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodPut, "/api/tickers/test", `{"anchors":["2024-01-11"],"swing_merge":"none"}`); rec.Code != http.StatusOK {
		t.Fatalf("更新失败: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(t, srv, http.MethodGet, "/api/chart/TEST", "")
	var resp charts.ChartResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || len(resp.Curves) != 1 || !resp.Threshold.Equal(t0.AddDate(0, 0, 10)) {
		t.Fatalf("应使用更新后的锚点: %d curves=%d from=%s", rec.Code, len(resp.Curves), resp.Threshold)
	}
	if resp.Annotation != strings.TrimSpace(resp.Annotation) || strings.Contains(resp.Annotation, "watch") {
		t.Fatalf("备注已被清空, 注释不应再带备注: %q", resp.Annotation)
	}
}
