package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"avwap/internal/transport/http/charts"
	"avwap/internal/transport/http/server/ui"
	"avwap/internal/transport/http/tickers"
)

// HTTPServer 提供 Gin 接口：按需绘图、批量任务与 ticker 维护。
type HTTPServer struct {
	addr      string
	router    *gin.Engine
	indexHTML []byte
}

type Config struct {
	Addr    string
	Charts  *charts.Router
	Tickers *tickers.Router
}

func New(cfg Config) (*HTTPServer, error) {
	if cfg.Charts == nil {
		return nil, errors.New("charts router 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	files, err := ui.Files()
	if err != nil {
		return nil, fmt.Errorf("加载前端静态资源失败: %w", err)
	}
	indexHTML, err := fs.ReadFile(files, ui.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("加载前端首页失败: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.StaticFS("/static", http.FS(files))

	s := &HTTPServer{addr: cfg.Addr, router: router, indexHTML: indexHTML}
	router.GET("/", s.handleIndex)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := router.Group("/api")
	cfg.Charts.Register(api, router.Group(""))
	if cfg.Tickers != nil {
		cfg.Tickers.Register(api.Group("/tickers"))
	}
	return s, nil
}

// Handler 返回路由，便于测试。
func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.indexHTML)
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
