package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const keepBackups = 10

// Writer 负责读写任务文件，写入前备份并以临时文件替换的方式落盘。
type Writer struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Path returns the path to the job file
func (w *Writer) Path() string {
	return w.path
}

// Read 读取当前文件内容（不应用环境变量覆盖）。
func (w *Writer) Read() (*Config, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", filepath.Base(w.path), err)
	}
	cfg, err := Decode(data, FormatOf(w.path))
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", filepath.Base(w.path), err)
	}
	return cfg, nil
}

// Write 备份旧文件后原子写入。
func (w *Writer) Write(cfg *Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.backup(); err != nil {
		return fmt.Errorf("备份失败: %w", err)
	}
	data, err := Encode(cfg, FormatOf(w.path))
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换配置文件失败: %w", err)
	}
	return nil
}

func (w *Writer) backupPrefix() string {
	base := filepath.Base(w.path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_"
}

func (w *Writer) backup() error {
	src, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	backupDir := filepath.Join(filepath.Dir(w.path), "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}
	timestamp := w.now().Format("20060102_150405.000")
	backupPath := filepath.Join(backupDir, w.backupPrefix()+timestamp+filepath.Ext(w.path))
	dst, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	w.cleanOldBackups(keepBackups)
	return nil
}

// Backups 返回备份文件列表（按时间升序）。
func (w *Writer) Backups() []string {
	dir := filepath.Join(filepath.Dir(w.path), "backups")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	prefix, ext := w.backupPrefix(), filepath.Ext(w.path)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ext) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

func (w *Writer) cleanOldBackups(keep int) {
	backups := w.Backups()
	if len(backups) <= keep {
		return
	}
	for i := 0; i < len(backups)-keep; i++ {
		os.Remove(backups[i])
	}
}

// UpsertTicker 新增或替换同名 ticker。
func (w *Writer) UpsertTicker(t Ticker) error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Symbol == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	cfg, err := w.Read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range cfg.Tickers {
		if strings.EqualFold(cfg.Tickers[i].Symbol, t.Symbol) {
			cfg.Tickers[i] = t
			replaced = true
		}
	}
	if !replaced {
		cfg.Tickers = append(cfg.Tickers, t)
	}
	return w.Write(cfg)
}

// DeleteTicker 删除 ticker，不存在时报错。
func (w *Writer) DeleteTicker(symbol string) error {
	cfg, err := w.Read()
	if err != nil {
		return err
	}
	kept := cfg.Tickers[:0]
	for _, t := range cfg.Tickers {
		if !strings.EqualFold(t.Symbol, symbol) {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(cfg.Tickers) {
		return fmt.Errorf("ticker '%s' 不存在", symbol)
	}
	cfg.Tickers = kept
	return w.Write(cfg)
}
