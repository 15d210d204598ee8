package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLLedger is the sent_articles table shared by the sqlite and postgres
// backends. Only the statements differ.
type SQLLedger struct {
	db      *sql.DB
	dialect string
	isSentQ string
	markQ   string
	recentQ string
}

func (l *SQLLedger) IsSent(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, l.isSentQ, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s ledger lookup: %w", l.dialect, err)
	}
	return true, nil
}

func (l *SQLLedger) MarkSent(ctx context.Context, fingerprint, title, link, category string) error {
	if _, err := l.db.ExecContext(ctx, l.markQ, fingerprint, title, link, category, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s ledger insert: %w", l.dialect, err)
	}
	return nil
}

// Recent returns the most recently delivered items, newest first.
func (l *SQLLedger) Recent(ctx context.Context, limit int) ([]SentItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, l.recentQ, limit)
	if err != nil {
		return nil, fmt.Errorf("%s ledger query: %w", l.dialect, err)
	}
	defer rows.Close()

	var items []SentItem
	for rows.Next() {
		var it SentItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Link, &it.Category, &it.SentAt); err != nil {
			return nil, fmt.Errorf("%s ledger scan: %w", l.dialect, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (l *SQLLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
