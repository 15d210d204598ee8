// Package storage persists the sent-ledger: which fingerprints have already
// been delivered.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Ledger backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// Ledger records delivered items. MarkSent is idempotent: marking the same
// fingerprint twice keeps the first record.
type Ledger interface {
	IsSent(ctx context.Context, fingerprint string) (bool, error)
	MarkSent(ctx context.Context, fingerprint, title, link, category string) error
	Close() error
}

// SentItem is one ledger record.
type SentItem struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Link     string    `json:"link"`
	Category string    `json:"category"`
	SentAt   time.Time `json:"sent_at"`
}

// Options selects and configures a backend.
type Options struct {
	Backend string // sqlite (default), postgres or file
	Path    string // sqlite database file or JSON file
	DSN     string // postgres connection string
}

// Open returns the ledger for opts.Backend.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case BackendFile:
		return OpenFile(opts.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}
