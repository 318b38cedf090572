package ui

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFilesServesPageAndStyle(t *testing.T) {
	files, err := Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	page, err := fs.ReadFile(files, IndexFile)
	if err != nil {
		t.Fatalf("读取首页失败: %v", err)
	}
	if !strings.Contains(string(page), "/api/tickers") {
		t.Fatalf("首页应请求 ticker 列表")
	}
	if _, err := fs.Stat(files, "style.css"); err != nil {
		t.Fatalf("缺少样式文件: %v", err)
	}
}
