package ui

import (
	"embed"
	"io/fs"
)

//go:embed static/index.html static/style.css
var static embed.FS

// IndexFile 是首页在 Files() 中的路径。
const IndexFile = "index.html"

// Files 返回首页与样式文件，路径不带 static/ 前缀。
func Files() (fs.FS, error) {
	return fs.Sub(static, "static")
}
