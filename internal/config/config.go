package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"avwap/internal/analysis/avwap"
	"avwap/internal/analysis/indicator"
	"avwap/internal/analysis/profile"
	"avwap/internal/chart"
	"avwap/internal/market"
)

// Config 是绘图任务文件（TOML 或 YAML，按扩展名区分）。
type Config struct {
	Log      LogConfig    `toml:"log" yaml:"log"`
	Source   SourceConfig `toml:"source" yaml:"source"`
	Output   OutputConfig `toml:"output" yaml:"output"`
	Server   ServerConfig `toml:"server" yaml:"server"`
	Defaults Defaults     `toml:"defaults" yaml:"defaults"`
	Tickers  []Ticker     `toml:"tickers" yaml:"tickers"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// SourceConfig 选择数据源：yahoo | binance | sqlite | file。
// SQLitePath 非空且 Kind 不是 sqlite 时，sqlite 作为回源缓存。
type SourceConfig struct {
	Kind           string `toml:"kind" yaml:"kind"`
	BinanceBaseURL string `toml:"binance_base_url,omitempty" yaml:"binance_base_url,omitempty"`
	SQLitePath     string `toml:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	FileDir        string `toml:"file_dir,omitempty" yaml:"file_dir,omitempty"`
	FileFormat     string `toml:"file_format,omitempty" yaml:"file_format,omitempty"`
	// SaveFormat 非空时把回源数据另存到 FileDir。
	SaveFormat string `toml:"save_format,omitempty" yaml:"save_format,omitempty"`
	// CacheTTL 非空时在进程内缓存回源结果，如 "5m"。
	CacheTTL string `toml:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

type OutputConfig struct {
	Dir        string `toml:"dir" yaml:"dir"`
	Format     string `toml:"format" yaml:"format"`
	Width      int    `toml:"width,omitempty" yaml:"width,omitempty"`
	Height     int    `toml:"height,omitempty" yaml:"height,omitempty"`
	AssetsHost string `toml:"assets_host,omitempty" yaml:"assets_host,omitempty"`
	ChromePath string `toml:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`
}

type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Defaults 是所有 ticker 共用的参数，ticker 可覆盖 period/interval/swing_merge。
type Defaults struct {
	Period           string  `toml:"period" yaml:"period"`
	Interval         string  `toml:"interval" yaml:"interval"`
	SwingMerge       string  `toml:"swing_merge" yaml:"swing_merge"`
	SwingMultiplier  float64 `toml:"swing_multiplier,omitempty" yaml:"swing_multiplier,omitempty"`
	VolatilityWindow int     `toml:"volatility_window,omitempty" yaml:"volatility_window,omitempty"`
	VolatilityMode   string  `toml:"volatility_mode,omitempty" yaml:"volatility_mode,omitempty"`
	ThresholdPolicy  string  `toml:"threshold_policy,omitempty" yaml:"threshold_policy,omitempty"`
	Marker           string  `toml:"marker,omitempty" yaml:"marker,omitempty"`
	ProfileBins      int     `toml:"profile_bins,omitempty" yaml:"profile_bins,omitempty"`
	ValueRegion      float64 `toml:"value_region,omitempty" yaml:"value_region,omitempty"`
	// BatchPeriod 是每日批量的数据范围，ticker 设置了 period 时以 ticker 为准。
	BatchPeriod string `toml:"batch_period,omitempty" yaml:"batch_period,omitempty"`
	// YearStartChart 为 true 时每日批量多画一张带年初锚点的图。
	YearStartChart bool `toml:"year_start_chart" yaml:"year_start_chart"`
	Concurrency    int  `toml:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

type Ticker struct {
	Symbol     string   `toml:"symbol" yaml:"symbol" json:"symbol"`
	Note       string   `toml:"note,omitempty" yaml:"note,omitempty" json:"note,omitempty"`
	Anchors    []string `toml:"anchors,omitempty" yaml:"anchors,omitempty" json:"anchors,omitempty"`
	Period     string   `toml:"period,omitempty" yaml:"period,omitempty" json:"period,omitempty"`
	Interval   string   `toml:"interval,omitempty" yaml:"interval,omitempty" json:"interval,omitempty"`
	SwingMerge string   `toml:"swing_merge,omitempty" yaml:"swing_merge,omitempty" json:"swing_merge,omitempty"`
}

// Load 读取任务文件；同目录存在 .env 时先加载，再应用 AVWAP_* 环境变量覆盖。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	cfg, err := Decode(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault 文件不存在时返回默认配置（仍加载 .env 并应用环境变量）。
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := loadDotEnv(path); err != nil {
			return nil, err
		}
		cfg := &Config{Defaults: Defaults{YearStartChart: true}}
		cfg.applyEnv()
		cfg.normalize()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// loadDotEnv 加载任务文件同目录的 .env，已存在的环境变量不被覆盖。
func loadDotEnv(path string) error {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", envPath, err)
	}
	return nil
}

// FormatOf 按扩展名返回 "yaml" 或 "toml"。
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

func Decode(data []byte, format string) (*Config, error) {
	var cfg Config
	var err error
	if format == "yaml" {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Encode(cfg *Config, format string) ([]byte, error) {
	if format == "yaml" {
		return yaml.Marshal(cfg)
	}
	return toml.Marshal(cfg)
}

// Default 返回全部取默认值的配置。
func Default() *Config {
	cfg := &Config{Defaults: Defaults{YearStartChart: true}}
	cfg.normalize()
	return cfg
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnvString("AVWAP_LOG_LEVEL", c.Log.Level)
	c.Source.Kind = getEnvString("AVWAP_SOURCE", c.Source.Kind)
	c.Source.BinanceBaseURL = getEnvString("AVWAP_BINANCE_BASE_URL", c.Source.BinanceBaseURL)
	c.Source.SQLitePath = getEnvString("AVWAP_SQLITE_PATH", c.Source.SQLitePath)
	c.Source.CacheTTL = getEnvString("AVWAP_CACHE_TTL", c.Source.CacheTTL)
	c.Output.Dir = getEnvString("AVWAP_OUTPUT_DIR", c.Output.Dir)
	c.Output.ChromePath = getEnvString("AVWAP_CHROME_PATH", c.Output.ChromePath)
	c.Server.Addr = getEnvString("AVWAP_ADDR", c.Server.Addr)
	c.Defaults.Concurrency = getEnvInt("AVWAP_CONCURRENCY", c.Defaults.Concurrency)
}

func (c *Config) normalize() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = "yahoo"
	}
	if c.Source.FileFormat == "" {
		c.Source.FileFormat = "csv"
	}
	if c.Source.FileDir == "" {
		c.Source.FileDir = "data"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "charts"
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = "png"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	d := &c.Defaults
	if d.Period == "" {
		d.Period = "1y"
	}
	if d.Interval == "" {
		d.Interval = "1d"
	}
	if d.BatchPeriod == "" {
		d.BatchPeriod = market.PeriodMax
	}
	if d.SwingMerge == "" {
		d.SwingMerge = "last"
	}
	if d.ProfileBins <= 0 {
		d.ProfileBins = profile.DefaultBins
	}
	if d.ValueRegion <= 0 || d.ValueRegion >= 1 {
		d.ValueRegion = profile.DefaultValueRegionFraction
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	for i := range c.Tickers {
		c.Tickers[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Tickers[i].Symbol))
	}
}

// Validate 检查数据源、输出格式与 ticker 列表。
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "yahoo", "binance", "sqlite", "file":
	default:
		errs = append(errs, fmt.Errorf("source.kind 不支持: %q", c.Source.Kind))
	}
	switch c.Output.Format {
	case "png", "jpg", "html":
	default:
		errs = append(errs, fmt.Errorf("output.format 不支持: %q", c.Output.Format))
	}
	if c.Source.Kind == "sqlite" && c.Source.SQLitePath == "" {
		errs = append(errs, errors.New("source.kind=sqlite 需要 sqlite_path"))
	}
	if c.Source.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Source.CacheTTL); err != nil {
			errs = append(errs, fmt.Errorf("source.cache_ttl 非法: %w", err))
		}
	}
	seen := make(map[string]struct{}, len(c.Tickers))
	for i, t := range c.Tickers {
		if t.Symbol == "" {
			errs = append(errs, fmt.Errorf("tickers[%d]: symbol 不能为空", i))
			continue
		}
		if _, dup := seen[t.Symbol]; dup {
			errs = append(errs, fmt.Errorf("tickers[%d]: %s 重复", i, t.Symbol))
		}
		seen[t.Symbol] = struct{}{}
		if _, err := c.ChartOptions(t); err != nil {
			errs = append(errs, fmt.Errorf("tickers[%d] %s: %w", i, t.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// Ticker 按代码查找（大小写不敏感）。
func (c *Config) Ticker(symbol string) (Ticker, bool) {
	symbol = strings.TrimSpace(symbol)
	for _, t := range c.Tickers {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Ticker{}, false
}

// BatchPeriodFor 返回每日批量使用的 period。
func (c *Config) BatchPeriodFor(t Ticker) string {
	if t.Period != "" {
		return t.Period
	}
	return c.Defaults.BatchPeriod
}

// PeriodFor 返回 ticker 的 period，未设置时取默认值。
func (c *Config) PeriodFor(t Ticker) string {
	if t.Period != "" {
		return t.Period
	}
	return c.Defaults.Period
}

func (c *Config) IntervalFor(t Ticker) string {
	if t.Interval != "" {
		return t.Interval
	}
	return c.Defaults.Interval
}

// ChartOptions 把默认值与 ticker 设置合成为编排参数。
func (c *Config) ChartOptions(t Ticker) (chart.Options, error) {
	d := c.Defaults
	mergeRaw := d.SwingMerge
	if t.SwingMerge != "" {
		mergeRaw = t.SwingMerge
	}
	merge, err := chart.ParseSwingMerge(mergeRaw)
	if err != nil {
		return chart.Options{}, err
	}
	mode, err := indicator.ParseVolatilityMode(d.VolatilityMode)
	if err != nil {
		return chart.Options{}, err
	}
	policy, err := avwap.ParseThresholdPolicy(d.ThresholdPolicy)
	if err != nil {
		return chart.Options{}, err
	}
	return chart.Options{
		Anchors: append([]string(nil), t.Anchors...),
		Parse:   avwap.ParseOptions{Marker: d.Marker, Policy: policy},
		Swing: indicator.SwingSettings{
			Multiplier: d.SwingMultiplier,
			Volatility: indicator.VolatilitySettings{Window: d.VolatilityWindow, Mode: mode},
		},
		SwingMerge:          merge,
		ProfileBins:         d.ProfileBins,
		ValueRegionFraction: d.ValueRegion,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Example 返回 init 子命令写出的示例任务文件。
func Example() *Config {
	cfg := Default()
	cfg.Tickers = []Ticker{
		{Symbol: "KLAC", Note: "earnings 2024-10-30", Anchors: []string{"2024-04-19", "x2024-08-05"}},
		{Symbol: "NVDA", Anchors: []string{"2024-02-21", "2024-08-07"}},
		{Symbol: "BTC-USD", Interval: "1h", Period: "3mo", Anchors: []string{"2024-09-06"}},
	}
	return cfg
}
