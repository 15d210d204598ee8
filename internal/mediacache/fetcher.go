package mediacache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/deusflow/albumnews/internal/news"
)

// Cache request outcomes reported to the observer.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultFailed = "failed"
)

const (
	imageTimeout = 60 * time.Second
	videoTimeout = 120 * time.Second
)

// StatusError is a non-200 media response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("media download %s: HTTP %d", e.URL, e.Code)
}

// Fetcher downloads media into a Store. Concurrent calls for the same key
// share one download.
type Fetcher struct {
	store     Store
	http      *http.Client
	userAgent string
	group     singleflight.Group
	logger    *slog.Logger

	// Observe, when set, receives ResultHit, ResultMiss or ResultFailed once
	// per FetchToCache call.
	Observe func(result string)
}

// NewFetcher creates a Fetcher. A nil client means http.DefaultClient.
func NewFetcher(store Store, client *http.Client, userAgent string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{store: store, http: client, userAgent: userAgent, logger: logger}
}

// FetchToCache returns the cached file for key, downloading url first when
// the key is not cached yet. Any failure returns false.
func (f *Fetcher) FetchToCache(ctx context.Context, url, key string, isVideo bool, ceiling int64) (news.LocalFile, bool) {
	if lf, ok := f.store.Lookup(key); ok {
		f.logger.Debug("cache hit", "key", key, "path", lf.Path)
		f.observe(ResultHit)
		return lf, true
	}

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		if lf, ok := f.store.Lookup(key); ok {
			return lf, nil
		}
		return f.download(ctx, url, key, isVideo, ceiling)
	})
	if err != nil {
		f.logger.Debug("⚠️ media download failed", "url", url, "key", key, "error", err)
		f.observe(ResultFailed)
		return news.LocalFile{}, false
	}
	lf := v.(news.LocalFile)
	f.logger.Debug("downloaded", "key", key, "path", lf.Path)
	f.observe(ResultMiss)
	return lf, true
}

func (f *Fetcher) download(ctx context.Context, url, key string, isVideo bool, ceiling int64) (news.LocalFile, error) {
	timeout, kind := imageTimeout, news.Image
	if isVideo {
		timeout, kind = videoTimeout, news.Video
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return news.LocalFile{}, fmt.Errorf("error building request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return news.LocalFile{}, fmt.Errorf("error downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return news.LocalFile{}, &StatusError{URL: url, Code: resp.StatusCode}
	}
	if ceiling > 0 && resp.ContentLength > ceiling {
		return news.LocalFile{}, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}
	return f.store.Put(key, kind, resp.Header.Get("Content-Type"), resp.Body, ceiling)
}

func (f *Fetcher) observe(result string) {
	if f.Observe != nil {
		f.Observe(result)
	}
}
