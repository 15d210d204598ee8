package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sent_articles (
	id VARCHAR(64) PRIMARY KEY,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	category VARCHAR(50),
	sent_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sent_articles_sent_at ON sent_articles(sent_at);
`

// OpenPostgres connects to dsn and makes sure the ledger table exists.
func OpenPostgres(ctx context.Context, dsn string) (*SQLLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	slog.Info("✅ PostgreSQL ledger connected")

	return &SQLLedger{
		db:      db,
		dialect: BackendPostgres,
		isSentQ: `SELECT 1 FROM sent_articles WHERE id = $1`,
		markQ:   `INSERT INTO sent_articles (id, title, link, category, sent_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		recentQ: `SELECT id, title, link, category, sent_at FROM sent_articles ORDER BY sent_at DESC LIMIT $1`,
	}, nil
}
