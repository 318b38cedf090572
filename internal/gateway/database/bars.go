package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"avwap/internal/logger"
	"avwap/internal/market"
)

// BarStore 把 K 线持久化到 SQLite，同时实现 market.Source。
type BarStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）数据库文件并建表。
func Open(ctx context.Context, path string) (*BarStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path 不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite 单连接写入，避免 database is locked
	db.SetMaxOpenConns(1)
	s := &BarStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *BarStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BarStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("bar store 未初始化")
	}
	return db, nil
}

// SaveSeries 按 (symbol, interval, ts) 覆盖写入序列中的全部 K 线。
func (s *BarStore) SaveSeries(ctx context.Context, series *market.Series) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	sym := normalizeSymbol(series.Symbol)
	if sym == "" {
		return 0, fmt.Errorf("symbol 不能为空")
	}
	iv := strings.TrimSpace(series.Interval)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO bars (symbol, interval, ts, open, high, low, close, volume, fetched_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, interval, ts) DO UPDATE SET
            open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
            volume=excluded.volume, fetched_at=excluded.fetched_at`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	now := s.now().UnixMilli()
	for i := 0; i < series.Len(); i++ {
		b := series.Bar(i)
		if _, err := stmt.ExecContext(ctx, sym, iv, b.Time.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume, now); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return series.Len(), nil
}

// Fetch 读取 period 范围内的 K 线，实现 market.Source。
func (s *BarStore) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	sym := normalizeSymbol(symbol)
	iv := strings.TrimSpace(interval)
	start, err := market.PeriodStart(period, s.now())
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
        SELECT ts, open, high, low, close, volume
        FROM bars
        WHERE symbol=? AND interval=? AND ts>=?
        ORDER BY ts ASC`, sym, iv, startMillis(start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bars []market.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, market.Unavailable("sqlite", sym, period, interval)
	}
	series, err := market.NewSeries(market.Meta{Symbol: sym, Period: period, Interval: iv}, bars)
	if err != nil {
		return nil, err
	}
	if note, err := s.Note(ctx, sym); err == nil && note != "" {
		meta := series.Meta
		meta.Note = note
		series = series.WithMeta(meta)
	}
	return series, nil
}

// SetNote 保存代码的备注，绘图时追加到注释。
func (s *BarStore) SetNote(ctx context.Context, symbol, note string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO notes (symbol, note, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(symbol) DO UPDATE SET note=excluded.note, updated_at=excluded.updated_at`,
		sym, strings.TrimSpace(note), s.now().UnixMilli())
	return err
}

func (s *BarStore) Note(ctx context.Context, symbol string) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	var note string
	err = db.QueryRowContext(ctx, `SELECT note FROM notes WHERE symbol=?`, normalizeSymbol(symbol)).Scan(&note)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return note, err
}

// CachingSource 先查本地库，缺失时回源并写回。
type CachingSource struct {
	Store    *BarStore
	Upstream market.Source
}

func (c CachingSource) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	if c.Upstream == nil {
		return c.Store.Fetch(ctx, symbol, period, interval)
	}
	series, err := c.Upstream.Fetch(ctx, symbol, period, interval)
	if err != nil {
		cached, cacheErr := c.Store.Fetch(ctx, symbol, period, interval)
		if cacheErr != nil {
			return nil, err
		}
		logger.Warnf("[sqlite] %s 回源失败，使用本地缓存 %d 根: %v", symbol, cached.Len(), err)
		return cached, nil
	}
	meta := series.Meta
	meta.Symbol = normalizeSymbol(symbol)
	if n, err := c.Store.SaveSeries(ctx, series.WithMeta(meta)); err != nil {
		logger.Warnf("[sqlite] 缓存 %s 失败: %v", symbol, err)
	} else {
		logger.Debugf("[sqlite] 缓存 %s %s %d 根", symbol, interval, n)
	}
	return series, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func startMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
