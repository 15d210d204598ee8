package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/albumnews/internal/batch"
	"github.com/deusflow/albumnews/internal/linkdecode"
	"github.com/deusflow/albumnews/internal/media"
	"github.com/deusflow/albumnews/internal/mediacache"
	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/resolver"
	"github.com/deusflow/albumnews/internal/rss"
	"github.com/deusflow/albumnews/internal/scraper"
	"github.com/deusflow/albumnews/internal/storage"
	"github.com/deusflow/albumnews/internal/telegram"
	"github.com/deusflow/albumnews/internal/testutil"
)

const (
	aggHost   = "news.example-aggregator.com"
	pubHost   = "realpub.example.com"
	imgHost   = "img.realpub.example.com"
	videoHost = "video.example-cdn.com"
)

type fakeFeeds struct {
	mu      sync.Mutex
	entries map[string][]news.Entry
	calls   int
}

func (f *fakeFeeds) Fetch(_ context.Context, cat rss.Category, _ time.Duration) []news.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.entries[cat.Name]
}

type sent struct {
	method string
	media  []telegram.Media
}

type fakeSender struct {
	mu        sync.Mutex
	calls     []sent
	failGroup bool
}

func (s *fakeSender) SendMessage(context.Context, string, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sent{method: "message"})
	return nil
}

func (s *fakeSender) SendMedia(_ context.Context, m telegram.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sent{method: "media", media: []telegram.Media{m}})
	return nil
}

func (s *fakeSender) SendMediaGroup(_ context.Context, items []telegram.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sent{method: "group", media: items})
	if s.failGroup {
		return errors.New("telegram: 429 Too Many Requests")
	}
	return nil
}

func (s *fakeSender) mediaCalls() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, c := range s.calls {
		if c.method != "message" {
			out = append(out, c)
		}
	}
	return out
}

// newMux fakes the aggregator, the publisher and its image CDN. The
// aggregator page for /articles/<slug> links to https://realpub.example.com/<slug>;
// that page declares og:image https://img.realpub.example.com/<slug>.jpg
// unless the slug starts with "bare".
func newMux() *testutil.HostMux {
	mux := testutil.NewHostMux()
	mux.Handle(aggHost, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="https://%s/%s">story</a></body></html>`, pubHost, path.Base(r.URL.Path))
	})
	mux.Handle(pubHost, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		slug := path.Base(r.URL.Path)
		if strings.HasPrefix(slug, "bare") {
			fmt.Fprint(w, `<html><head><title>no image</title></head></html>`)
			return
		}
		fmt.Fprintf(w, `<html><head><meta property="og:image" content="https://%s/%s.jpg"></head></html>`, imgHost, slug)
	})
	mux.Handle(imgHost, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff\xe0 fake jpeg"))
	})
	mux.Handle(videoHost, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

type fixture struct {
	mux    *testutil.HostMux
	feeds  *fakeFeeds
	sender *fakeSender
	ledger *storage.SQLLedger
	store  *mediacache.DiskStore
	p      *Pipeline
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mux := newMux()
	client := scraper.NewWithHTTPClient(mux.Client(), "test-agent")

	store, err := mediacache.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ledger, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	f := &fixture{
		mux:    mux,
		feeds:  &fakeFeeds{entries: map[string][]news.Entry{}},
		sender: &fakeSender{},
		ledger: ledger,
		store:  store,
	}
	if opts.Categories == nil {
		opts.Categories = []rss.Category{{Name: "finance", Queries: []string{"markets"}}}
	}
	if opts.OGBudget == 0 {
		opts.OGBudget = 10
	}
	opts.MediaOnly = true
	opts.Retention = 7 * 24 * time.Hour

	agg := linkdecode.Hosts{aggHost}
	f.p = New(Deps{
		Feeds:     f.feeds,
		Resolver:  resolver.New(linkdecode.New(agg, ""), agg, client, nil),
		Locator:   media.NewLocator(client, media.Options{ScrapeOG: true}, nil),
		Fetcher:   mediacache.NewFetcher(store, mux.Client(), "test-agent", nil),
		Store:     store,
		Ledger:    ledger,
		Assembler: batch.New(f.sender, nil, nil, nil, batch.Options{Numbering: true, Summary: true}, nil),
	}, opts, nil)
	return f
}

func aggEntry(title, slug string) news.Entry {
	return news.Entry{
		Title:     title,
		Link:      "https://" + aggHost + "/articles/" + slug,
		Published: time.Now().Add(-10 * time.Minute),
		Source:    "Wire",
	}
}

func (f *fixture) isSent(t *testing.T, e news.Entry) bool {
	t.Helper()
	ok, err := f.ledger.IsSent(context.Background(), news.Fingerprint(e.Title, e.Link))
	require.NoError(t, err)
	return ok
}

func TestPass_MarketsRally(t *testing.T) {
	f := newFixture(t, Options{})
	e := aggEntry("Markets rally", "markets-rally")
	f.feeds.entries["finance"] = []news.Entry{e}

	assert.Equal(t, 1, f.p.Pass(context.Background(), time.Hour))

	assert.Equal(t, 1, f.mux.Hits(aggHost))
	assert.Equal(t, 1, f.mux.Hits(pubHost), "one OG scrape")

	calls := f.sender.mediaCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "media", calls[0].method)
	fp := news.Fingerprint(e.Title, e.Link)
	assert.Equal(t, filepath.Join(f.store.Root(), "images", fp+"-og.jpg"), calls[0].media[0].Path)
	assert.True(t, f.isSent(t, e))
}

func TestPass_LedgerMarkedIsNeverReprocessed(t *testing.T) {
	f := newFixture(t, Options{})
	e := aggEntry("Markets rally", "markets-rally")
	f.feeds.entries["finance"] = []news.Entry{e}

	f.p.Pass(context.Background(), time.Hour)
	hits := f.mux.Hits(aggHost) + f.mux.Hits(pubHost) + f.mux.Hits(imgHost)
	calls := len(f.sender.calls)

	assert.Zero(t, f.p.Pass(context.Background(), time.Hour))
	assert.Equal(t, hits, f.mux.Hits(aggHost)+f.mux.Hits(pubHost)+f.mux.Hits(imgHost))
	assert.Len(t, f.sender.calls, calls)
}

func TestPass_NoMediaDropped(t *testing.T) {
	f := newFixture(t, Options{})
	e := aggEntry("Quiet day", "bare-quiet")
	f.feeds.entries["finance"] = []news.Entry{e}

	assert.Zero(t, f.p.Pass(context.Background(), time.Hour))
	assert.Empty(t, f.sender.calls, "no header without deliverable items")
	assert.False(t, f.isSent(t, e))
}

func TestPass_VideoFailureFallsBackToImage(t *testing.T) {
	f := newFixture(t, Options{})
	e := aggEntry("Clip of the day", "clip")
	e.Attachments = []news.Attachment{
		{URL: "https://" + videoHost + "/clip.mp4", Type: "video/mp4"},
		{URL: "https://" + imgHost + "/thumb.jpg", Type: "image/jpeg"},
	}
	f.feeds.entries["finance"] = []news.Entry{e}

	assert.Equal(t, 1, f.p.Pass(context.Background(), time.Hour))
	assert.Zero(t, f.mux.Hits(pubHost), "native media needs no scrape")

	calls := f.sender.mediaCalls()
	require.Len(t, calls, 1)
	fp := news.Fingerprint(e.Title, e.Link)
	assert.Equal(t, fp+"-img.jpg", filepath.Base(calls[0].media[0].Path))
}

func TestPass_NativeImageFailureTriesPublisherOnce(t *testing.T) {
	f := newFixture(t, Options{})
	e := aggEntry("Broken thumb", "recovered")
	e.Attachments = []news.Attachment{{URL: "https://" + imgHost + "/broken.jpg", Type: "image/jpeg"}}
	f.feeds.entries["finance"] = []news.Entry{e}

	assert.Equal(t, 1, f.p.Pass(context.Background(), time.Hour))
	assert.Equal(t, 1, f.mux.Hits(pubHost))

	calls := f.sender.mediaCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, news.Fingerprint(e.Title, e.Link)+"-og.jpg", filepath.Base(calls[0].media[0].Path))
}

func TestPass_BudgetSharedAcrossCategories(t *testing.T) {
	f := newFixture(t, Options{
		OGBudget: 1,
		Categories: []rss.Category{
			{Name: "sea", Queries: []string{"q"}},
			{Name: "war", Queries: []string{"q"}},
		},
	})
	first := aggEntry("One", "one")
	second := aggEntry("Two", "two")
	f.feeds.entries["sea"] = []news.Entry{first}
	f.feeds.entries["war"] = []news.Entry{second}

	assert.Equal(t, 1, f.p.Pass(context.Background(), time.Hour))
	assert.Equal(t, 1, f.mux.Hits(pubHost))
	assert.True(t, f.isSent(t, first))
	assert.False(t, f.isSent(t, second))

	// A new pass gets a fresh budget.
	assert.Equal(t, 1, f.p.Pass(context.Background(), time.Hour))
	assert.True(t, f.isSent(t, second))
}

func TestPass_FailedGroupLeavesLedgerUnmarked(t *testing.T) {
	f := newFixture(t, Options{})
	f.sender.failGroup = true
	a, b := aggEntry("Alpha", "alpha"), aggEntry("Beta", "beta")
	f.feeds.entries["finance"] = []news.Entry{a, b}

	assert.Zero(t, f.p.Pass(context.Background(), time.Hour))
	assert.False(t, f.isSent(t, a))
	assert.False(t, f.isSent(t, b))

	// Media stays cached, so the retry next pass downloads nothing new.
	imgHits := f.mux.Hits(imgHost)
	f.sender.failGroup = false
	assert.Equal(t, 2, f.p.Pass(context.Background(), time.Hour))
	assert.Equal(t, imgHits, f.mux.Hits(imgHost))
	assert.True(t, f.isSent(t, a))
	assert.True(t, f.isSent(t, b))
}

func TestPass_CancelledStopsBeforeCategories(t *testing.T) {
	f := newFixture(t, Options{})
	f.feeds.entries["finance"] = []news.Entry{aggEntry("Markets rally", "markets-rally")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, f.p.Pass(ctx, time.Hour))
	assert.Zero(t, f.feeds.calls)
}

func TestRunRealtime_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- f.p.RunRealtime(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("realtime loop did not stop")
	}
}

func TestRunDigest_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{DigestHour: 9, Location: time.UTC})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, f.p.RunDigest(ctx))
	assert.Zero(t, f.feeds.calls)
}

func TestNextDigest(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)

	before := time.Date(2024, 5, 1, 0, 30, 0, 0, time.UTC) // 08:30 local
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, loc), NextDigest(before, 9, 0, loc))

	exact := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC) // 09:00 local
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, loc), NextDigest(exact, 9, 0, loc))
}
