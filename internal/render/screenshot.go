package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"avwap/internal/chart"
	"avwap/internal/logger"
)

// Screenshot 先输出 echarts HTML，再用无头 Chrome 截图为 PNG。
// 输出扩展名为 .jpg/.jpeg 时按 JPEG 截图，其余为 PNG。
type Screenshot struct {
	HTML     HTML
	ExecPath string
	// Settle 等待 echarts 动画结束的时间。
	Settle  time.Duration
	Timeout time.Duration
	// KeepHTML 为 true 时保留中间 HTML 文件。
	KeepHTML bool
}

func (s Screenshot) Render(ctx context.Context, req chart.RenderRequest) error {
	if req.Output == "" {
		return fmt.Errorf("png render: empty output path")
	}
	htmlPath := strings.TrimSuffix(req.Output, filepath.Ext(req.Output)) + ".html"
	htmlReq := req
	htmlReq.Output = htmlPath
	if err := s.HTML.Render(ctx, htmlReq); err != nil {
		return err
	}
	if !s.KeepHTML {
		defer os.Remove(htmlPath)
	}
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}
	quality := 100
	switch strings.ToLower(filepath.Ext(req.Output)) {
	case ".jpg", ".jpeg":
		quality = 90
	}
	buf, err := s.capture(ctx, "file://"+abs, quality)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", req.Title, err)
	}
	return os.WriteFile(req.Output, buf, 0o644)
}

// capture 截取整页；quality 为 100 时输出 PNG，否则 JPEG。
func (s Screenshot) capture(ctx context.Context, url string, quality int) ([]byte, error) {
	width, height := s.HTML.size()
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	settle := s.Settle
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(width+40, height+40))
	if s.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.ExecPath))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var buf []byte
	start := time.Now()
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
		chromedp.FullScreenshot(&buf, quality),
	); err != nil {
		return nil, err
	}
	logger.Debugf("[render] screenshot %s %d bytes (%s)", url, len(buf), time.Since(start).Round(time.Millisecond))
	return buf, nil
}

// ByExtension 按输出文件扩展名选择渲染器：.html 走 HTML，其余走 PNG。
type ByExtension struct {
	HTML chart.Renderer
	PNG  chart.Renderer
}

func (r ByExtension) Render(ctx context.Context, req chart.RenderRequest) error {
	next := r.PNG
	if strings.EqualFold(filepath.Ext(req.Output), ".html") {
		next = r.HTML
	}
	if next == nil {
		return fmt.Errorf("no renderer for %q: %w", req.Output, chart.ErrNoRenderer)
	}
	return next.Render(ctx, req)
}
