package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sent_articles (
	id TEXT PRIMARY KEY,
	title TEXT,
	link TEXT,
	category TEXT,
	sent_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sent_articles_sent_at ON sent_articles(sent_at);
`

// OpenSQLite opens (and creates) the ledger database at path. Use ":memory:"
// for a throwaway ledger.
func OpenSQLite(path string) (*SQLLedger, error) {
	if path == "" {
		path = "news_cache.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLLedger{
		db:      db,
		dialect: BackendSQLite,
		isSentQ: `SELECT 1 FROM sent_articles WHERE id = ?`,
		markQ:   `INSERT OR IGNORE INTO sent_articles (id, title, link, category, sent_at) VALUES (?, ?, ?, ?, ?)`,
		recentQ: `SELECT id, title, link, category, sent_at FROM sent_articles ORDER BY sent_at DESC LIMIT ?`,
	}, nil
}
