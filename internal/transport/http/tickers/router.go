package tickers

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"avwap/internal/analysis/avwap"
	"avwap/internal/chart"
	"avwap/internal/config"
	"avwap/internal/logger"
)

// Router 维护任务文件中的 ticker 列表。
type Router struct {
	writer *config.Writer
	parse  avwap.ParseOptions
}

// NewRouter 创建 ticker 接口，parse 用于写入前校验锚点。
func NewRouter(w *config.Writer, parse avwap.ParseOptions) *Router {
	return &Router{writer: w, parse: parse}
}

// Register registers the ticker API routes
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("", r.handleList)
	group.GET("/:symbol", r.handleGet)
	group.PUT("/:symbol", r.handleUpsert)
	group.DELETE("/:symbol", r.handleDelete)
}

// TickerRequest is the request body for creating or replacing a ticker
type TickerRequest struct {
	Note       string   `json:"note"`
	Anchors    []string `json:"anchors"`
	Period     string   `json:"period,omitempty"`
	Interval   string   `json:"interval,omitempty"`
	SwingMerge string   `json:"swing_merge,omitempty"`
}

func (r *Router) handleList(c *gin.Context) {
	cfg, err := r.writer.Read()
	if err != nil {
		logger.Errorf("[ticker-api] list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	list := append([]config.Ticker(nil), cfg.Tickers...)
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
	c.JSON(http.StatusOK, gin.H{"tickers": list})
}

func (r *Router) handleGet(c *gin.Context) {
	cfg, err := r.writer.Read()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	t, ok := cfg.Ticker(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticker 不存在"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (r *Router) handleUpsert(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	var req TickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	t := config.Ticker{
		Symbol:     symbol,
		Note:       strings.TrimSpace(req.Note),
		Anchors:    trimAll(req.Anchors),
		Period:     strings.TrimSpace(req.Period),
		Interval:   strings.TrimSpace(req.Interval),
		SwingMerge: strings.TrimSpace(req.SwingMerge),
	}
	if err := r.validate(t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.writer.UpsertTicker(t); err != nil {
		logger.Errorf("[ticker-api] upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[ticker-api] ticker '%s' saved by %s", symbol, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true, "ticker": t})
}

func (r *Router) handleDelete(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := r.writer.DeleteTicker(symbol); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[ticker-api] ticker '%s' deleted by %s", strings.ToUpper(symbol), c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// validate 在写入前检查锚点与合并模式能否解析。
func (r *Router) validate(t config.Ticker) error {
	if t.Symbol == "" {
		return errors.New("symbol 不能为空")
	}
	if _, err := chart.ParseSwingMerge(t.SwingMerge); err != nil {
		return err
	}
	if len(t.Anchors) == 0 {
		return nil
	}
	_, _, err := avwap.ParseAnchorTokens(t.Anchors, r.parse)
	return err
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
