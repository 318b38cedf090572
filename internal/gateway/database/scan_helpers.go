package database

import (
	"database/sql"
	"time"

	"avwap/internal/market"
)

// scanBar 读取一行 K 线；volume 为 NULL 时按 0 处理。
func scanBar(rows *sql.Rows) (market.Bar, error) {
	var (
		ts  int64
		b   market.Bar
		vol sql.NullFloat64
	)
	if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
		return market.Bar{}, err
	}
	b.Time = time.UnixMilli(ts).UTC()
	if vol.Valid {
		b.Volume = vol.Float64
	}
	return b, nil
}
