package database

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bars (
        symbol   TEXT    NOT NULL,
        interval TEXT    NOT NULL,
        ts       INTEGER NOT NULL,
        open     REAL    NOT NULL,
        high     REAL    NOT NULL,
        low      REAL    NOT NULL,
        close    REAL    NOT NULL,
        volume   REAL,
        PRIMARY KEY (symbol, interval, ts)
    )`,
	`CREATE TABLE IF NOT EXISTS notes (
        symbol     TEXT PRIMARY KEY,
        note       TEXT NOT NULL,
        updated_at INTEGER NOT NULL
    )`,
}

// migrate 建表并补齐后加的列（幂等）。
func (s *BarStore) migrate(ctx context.Context) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	columns := []string{
		"ALTER TABLE bars ADD COLUMN fetched_at INTEGER DEFAULT 0",
	}
	for _, q := range columns {
		if _, err := db.ExecContext(ctx, q); err != nil {
			// 忽略已存在错误
			continue
		}
	}
	return nil
}
