package binance

import "time"

// Config 描述 Binance Source 运行所需的参数。
type Config struct {
	RESTBaseURL string
	APIKey      string
	SecretKey   string
	// QuoteAsset 用于把 "BTC-USD" 这类代码换成交易对，默认 USDT。
	QuoteAsset  string
	PageLimit   int
	HTTPTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	if out.PageLimit <= 0 || out.PageLimit > maxPageLimit {
		out.PageLimit = maxPageLimit
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	return out
}
