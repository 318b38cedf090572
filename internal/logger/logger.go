// Package logger 提供全局的分级日志，printf 风格。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar)
	base  = newHandlerLogger(os.Stderr)
)

func newHandlerLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel 将 debug|info|warn|error 转为 slog.Level，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 调整全局日志级别。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// SetOutput 替换输出目标（测试中常用 bytes.Buffer）。
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newHandlerLogger(w)
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debugf(format string, args ...any) { get().Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { get().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { get().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { get().Error(fmt.Sprintf(format, args...)) }
