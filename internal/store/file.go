package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"avwap/internal/market"
)

// Record 是落盘用的 K 线 DTO（CSV/JSON/Parquet 共用），时间为毫秒。
type Record struct {
	Timestamp int64   `json:"t" parquet:"t"`
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    float64 `json:"v" parquet:"v"`
}

func toRecords(bars []market.Bar) []Record {
	out := make([]Record, len(bars))
	for i, b := range bars {
		out[i] = Record{Timestamp: b.Time.UnixMilli(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

func fromRecords(recs []Record) []market.Bar {
	out := make([]market.Bar, len(recs))
	for i, r := range recs {
		out[i] = market.Bar{Time: time.UnixMilli(r.Timestamp).UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	}
	return out
}

// Format 是一种落盘格式。
type Format interface {
	Save(recs []Record, path string) error
	Load(path string) ([]Record, error)
	Extension() string
}

// NewFormat 按名称返回格式实现（csv, parquet, json），不支持时返回 nil。
func NewFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return CSVFormat{}
	case "parquet":
		return ParquetFormat{}
	case "json":
		return JSONFormat{}
	default:
		return nil
	}
}

// CSVFormat 表头 t,o,h,l,c,v。
type CSVFormat struct{}

func (CSVFormat) Extension() string { return "csv" }

func (CSVFormat) Save(recs []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"t", "o", "h", "l", "c", "v"}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write([]string{
			strconv.FormatInt(r.Timestamp, 10),
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			floatStr(r.Volume),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (CSVFormat) Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	var out []Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, rec)
	}
}

func parseRow(row []string) (Record, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return Record{}, err
	}
	vals := make([]float64, 5)
	for i := range vals {
		if vals[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64); err != nil {
			return Record{}, err
		}
	}
	return Record{Timestamp: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// JSONFormat 保存为缩进的 JSON 数组。
type JSONFormat struct{}

func (JSONFormat) Extension() string { return "json" }

func (JSONFormat) Save(recs []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func (JSONFormat) Load(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

type ParquetFormat struct{}

func (ParquetFormat) Extension() string { return "parquet" }

func (ParquetFormat) Save(recs []Record, path string) error {
	return parquet.WriteFile(path, recs)
}

func (ParquetFormat) Load(path string) ([]Record, error) {
	return parquet.ReadFile[Record](path)
}

// FileSource 从目录读取 <SYMBOL>_<interval>.<ext> 文件，实现 market.Source。
// period 相对文件中最后一根 K 线计算。
type FileSource struct {
	Dir    string
	Format Format
}

func (f FileSource) Path(symbol, interval string) string {
	name := fmt.Sprintf("%s_%s.%s", strings.ToUpper(strings.TrimSpace(symbol)), strings.TrimSpace(interval), f.Format.Extension())
	return filepath.Join(f.Dir, name)
}

func (f FileSource) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	if f.Format == nil {
		return nil, fmt.Errorf("file source: format not configured")
	}
	path := f.Path(symbol, interval)
	recs, err := f.Format.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, market.Unavailable("file", symbol, period, interval))
		}
		return nil, err
	}
	if len(recs) == 0 {
		return nil, market.Unavailable("file", symbol, period, interval)
	}
	meta := market.Meta{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Period: period, Interval: interval}
	return sliceByPeriod(fromRecords(recs), meta, "file")
}

// Save 把序列写入 Path(symbol, interval)，返回文件路径。
func (f FileSource) Save(series *market.Series) (string, error) {
	if f.Format == nil {
		return "", fmt.Errorf("file source: format not configured")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}
	path := f.Path(series.Symbol, series.Interval)
	return path, f.Format.Save(toRecords(series.Bars()), path)
}

// SavingSource 在回源成功后把序列另存为文件。
type SavingSource struct {
	Upstream market.Source
	Files    FileSource
}

func (s SavingSource) Fetch(ctx context.Context, symbol, period, interval string) (*market.Series, error) {
	series, err := s.Upstream.Fetch(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	meta := series.Meta
	meta.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := s.Files.Save(series.WithMeta(meta)); err != nil {
		return nil, fmt.Errorf("save %s: %w", symbol, err)
	}
	return series, nil
}
