package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"avwap/internal/logger"
	"avwap/internal/market"
)

// MemoryKlineStore 按 symbol+interval 在内存中保存 K 线，同时满足 market.Source。
type MemoryKlineStore struct {
	mu    sync.RWMutex
	data  map[string][]market.Bar
	meta  map[string]market.Meta
	stamp map[string]time.Time
	now   func() time.Time
}

func NewMemoryKlineStore() *MemoryKlineStore {
	return &MemoryKlineStore{
		data:  make(map[string][]market.Bar),
		meta:  make(map[string]market.Meta),
		stamp: make(map[string]time.Time),
		now:   time.Now,
	}
}

func key(symbol, interval string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "@" + strings.TrimSpace(interval)
}

// Put 追加并裁剪
func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, bars []market.Bar, max int) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	if len(bars) == 0 {
		return nil
	}
	if max <= 0 {
		max = 5000
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, interval)
	cur := s.data[k]
	for _, b := range bars {
		b.Time = b.Time.UTC()
		n := len(cur)
		if n > 0 && !b.Time.After(cur[n-1].Time) {
			if b.Time.Equal(cur[n-1].Time) {
				// 同一根 K 线的增量更新，覆盖末尾而非重复追加。
				cur[n-1] = b
			}
			continue
		}
		cur = append(cur, b)
	}
	if len(cur) > max {
		cur = cur[len(cur)-max:]
	}
	s.data[k] = cur
	return nil
}

// Set 全量替换指定 symbol+interval 的序列
func (s *MemoryKlineStore) Set(ctx context.Context, series *market.Series) error {
	if series.Symbol == "" || series.Interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(series.Symbol, series.Interval)
	s.data[k] = series.Bars()
	s.meta[k] = series.Meta
	s.stamp[k] = s.now()
	return nil
}

// Fresh 判断 ttl 内是否 Set 过覆盖 period 的序列。
func (s *MemoryKlineStore) Fresh(symbol, period, interval string, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := key(symbol, interval)
	at, ok := s.stamp[k]
	if !ok || s.now().Sub(at) > ttl {
		return false
	}
	have := s.meta[k].Period
	return have == period || have == market.PeriodMax
}

// Get 返回拷贝
func (s *MemoryKlineStore) Get(ctx context.Context, symbol, interval string) ([]market.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	out := make([]market.Bar, len(cur))
	copy(out, cur)
	return out, nil
}

// Fetch 实现 market.Source。period 相对最后一根 K 线计算，便于离线数据复现。
func (s *MemoryKlineStore) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	s.mu.RLock()
	k := key(symbol, interval)
	cur := s.data[k]
	meta := s.meta[k]
	s.mu.RUnlock()
	if len(cur) == 0 {
		return nil, market.Unavailable("memory", symbol, period, interval)
	}
	if meta.Symbol == "" {
		meta = market.Meta{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: interval}
	}
	meta.Period = period
	return sliceByPeriod(cur, meta, "memory")
}

func sliceByPeriod(bars []market.Bar, meta market.Meta, source string) (*market.Series, error) {
	start, err := market.PeriodStart(meta.Period, bars[len(bars)-1].Time)
	if err != nil {
		return nil, err
	}
	series, err := market.NewSeries(meta, bars)
	if err != nil {
		return nil, err
	}
	out := series.From(start)
	if out.Len() == 0 {
		return nil, market.Unavailable(source, meta.Symbol, meta.Period, meta.Interval)
	}
	return out, nil
}

// CachedSource 在进程内缓存回源结果，TTL 内的重复请求直接读内存。
type CachedSource struct {
	Upstream market.Source
	Cache    *MemoryKlineStore
	TTL      time.Duration
}

func (c CachedSource) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	if c.TTL > 0 && c.Cache.Fresh(symbol, period, interval, c.TTL) {
		if series, err := c.Cache.Fetch(ctx, symbol, period, interval); err == nil {
			logger.Debugf("[memory] 命中 %s %s %s", symbol, period, interval)
			return series, nil
		}
	}
	series, err := c.Upstream.Fetch(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	meta := series.Meta
	meta.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	meta.Interval = interval
	meta.Period = period
	if err := c.Cache.Set(ctx, series.WithMeta(meta)); err != nil {
		logger.Warnf("[memory] 缓存 %s 失败: %v", symbol, err)
	}
	return series, nil
}
