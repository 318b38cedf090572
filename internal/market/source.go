package market

import (
	"context"
	"errors"
	"fmt"
)

// ErrDataUnavailable 表示数据源在给定 period/interval 下没有返回任何 K 线。
var ErrDataUnavailable = errors.New("data unavailable")

// Source 统一对接外部行情供应商。
type Source interface {
	// Fetch 拉取 symbol 在 period 范围内、按 interval 聚合的 K 线，按时间升序返回。
	// 结果为空时返回包装了 ErrDataUnavailable 的错误。
	Fetch(ctx context.Context, symbol, period, interval string) (*Series, error)
}

// SourceFunc 让普通函数满足 Source。
type SourceFunc func(ctx context.Context, symbol, period, interval string) (*Series, error)

func (f SourceFunc) Fetch(ctx context.Context, symbol, period, interval string) (*Series, error) {
	return f(ctx, symbol, period, interval)
}

// Unavailable 构造统一格式的 ErrDataUnavailable。
func Unavailable(source, symbol, period, interval string) error {
	return fmt.Errorf("%s returned no bars for %s (period=%s interval=%s), maybe period/interval mismatch: %w",
		source, symbol, period, interval, ErrDataUnavailable)
}
