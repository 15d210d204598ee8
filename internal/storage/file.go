package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLedger keeps the ledger as a JSON array on disk. It suits single
// process deployments without a database.
type FileLedger struct {
	path  string
	mu    sync.RWMutex
	items map[string]SentItem
}

// OpenFile loads the ledger at path; a missing or empty file is an empty
// ledger.
func OpenFile(path string) (*FileLedger, error) {
	if path == "" {
		path = "sent_articles.json"
	}
	l := &FileLedger{path: path, items: make(map[string]SentItem)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	var items []SentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	for _, it := range items {
		l.items[it.ID] = it
	}
	return l, nil
}

func (l *FileLedger) IsSent(_ context.Context, fingerprint string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.items[fingerprint]
	return ok, nil
}

// MarkSent records the item and rewrites the file.
func (l *FileLedger) MarkSent(_ context.Context, fingerprint, title, link, category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[fingerprint]; ok {
		return nil
	}
	l.items[fingerprint] = SentItem{
		ID:       fingerprint,
		Title:    title,
		Link:     link,
		Category: category,
		SentAt:   time.Now().UTC(),
	}
	if err := l.save(); err != nil {
		delete(l.items, fingerprint)
		return err
	}
	return nil
}

// save writes to a temp file next to the ledger and renames it over.
// Callers hold the lock.
func (l *FileLedger) save() error {
	items := make([]SentItem, 0, len(l.items))
	for _, it := range l.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SentAt.Before(items[j].SentAt) })

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	return nil
}

// Len returns the number of recorded items.
func (l *FileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *FileLedger) Close() error { return nil }
