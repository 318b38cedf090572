package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"avwap/internal/config"
	"avwap/internal/gateway/binance"
	"avwap/internal/gateway/database"
	"avwap/internal/gateway/yahoo"
	"avwap/internal/logger"
	"avwap/internal/market"
	"avwap/internal/store"
)

// buildSource 按配置组装数据源：基础源 -> 可选 sqlite 缓存 -> 可选文件另存 -> 可选内存缓存。
// 返回的 closer 负责关闭 sqlite。
func buildSource(ctx context.Context, cfg *config.Config) (market.Source, func(), error) {
	closer := func() {}
	var src market.Source
	switch cfg.Source.Kind {
	case "yahoo":
		src = yahoo.New()
	case "binance":
		b, err := binance.New(binance.Config{
			RESTBaseURL: cfg.Source.BinanceBaseURL,
			APIKey:      os.Getenv("BINANCE_API_KEY"),
			SecretKey:   os.Getenv("BINANCE_SECRET_KEY"),
		})
		if err != nil {
			return nil, closer, err
		}
		src = b
	case "file":
		format := store.NewFormat(cfg.Source.FileFormat)
		if format == nil {
			return nil, closer, fmt.Errorf("不支持的文件格式: %s", cfg.Source.FileFormat)
		}
		logger.Infof("[source] 读取 %s 下的 %s 文件", cfg.Source.FileDir, format.Extension())
		src = store.FileSource{Dir: cfg.Source.FileDir, Format: format}
	case "sqlite":
		db, err := database.Open(ctx, cfg.Source.SQLitePath)
		if err != nil {
			return nil, closer, err
		}
		logger.Infof("[source] 读取 sqlite %s", cfg.Source.SQLitePath)
		src = db
		closer = func() { _ = db.Close() }
	default:
		return nil, closer, fmt.Errorf("不支持的数据源: %s", cfg.Source.Kind)
	}

	// sqlite 作为基础源时本身就是缓存
	if cfg.Source.SQLitePath != "" && cfg.Source.Kind != "sqlite" {
		db, err := database.Open(ctx, cfg.Source.SQLitePath)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { _ = db.Close() }
		src = database.CachingSource{Store: db, Upstream: src}
		logger.Infof("[source] %s 回源结果缓存到 %s", cfg.Source.Kind, cfg.Source.SQLitePath)
	}
	// 文件源不回写同格式的自身文件
	if cfg.Source.SaveFormat != "" && !(cfg.Source.Kind == "file" && sameFormat(cfg.Source.SaveFormat, cfg.Source.FileFormat)) {
		format := store.NewFormat(cfg.Source.SaveFormat)
		if format == nil {
			closer()
			return nil, func() {}, fmt.Errorf("不支持的另存格式: %s", cfg.Source.SaveFormat)
		}
		src = store.SavingSource{Upstream: src, Files: store.FileSource{Dir: cfg.Source.FileDir, Format: format}}
	}
	if cfg.Source.CacheTTL != "" {
		ttl, err := time.ParseDuration(cfg.Source.CacheTTL)
		if err != nil {
			closer()
			return nil, func() {}, err
		}
		src = store.CachedSource{Upstream: src, Cache: store.NewMemoryKlineStore(), TTL: ttl}
		logger.Infof("[source] 内存缓存 %s", ttl)
	}
	return src, closer, nil
}

func sameFormat(a, b string) bool {
	fa, fb := store.NewFormat(a), store.NewFormat(b)
	return fa != nil && fb != nil && fa.Extension() == fb.Extension()
}
