// Package app drives ingestion passes: fetch, ledger filter, resolve, locate
// media, cache, deliver and mark.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/albumnews/internal/batch"
	"github.com/deusflow/albumnews/internal/media"
	"github.com/deusflow/albumnews/internal/mediacache"
	"github.com/deusflow/albumnews/internal/metrics"
	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/ratelimit"
	"github.com/deusflow/albumnews/internal/resolver"
	"github.com/deusflow/albumnews/internal/rss"
	"github.com/deusflow/albumnews/internal/storage"
)

// DigestLookback is the entry window of a daily digest pass.
const DigestLookback = 24 * time.Hour

// Feeds yields the entries of one category.
type Feeds interface {
	Fetch(ctx context.Context, cat rss.Category, lookback time.Duration) []news.Entry
}

// Deps are the pipeline stages.
type Deps struct {
	Feeds     Feeds
	Resolver  *resolver.Resolver
	Locator   *media.Locator
	Fetcher   *mediacache.Fetcher
	Store     mediacache.Store
	Ledger    storage.Ledger
	Assembler *batch.Assembler
}

// Options tune a pipeline.
type Options struct {
	Categories      []rss.Category
	Lookback        time.Duration // realtime window
	Interval        time.Duration // realtime period
	DigestHour      int
	DigestMinute    int
	Location        *time.Location
	OGBudget        int // publisher scrapes per pass
	MediaOnly       bool
	FollowRedirects bool
	ImageMaxBytes   int64
	VideoMaxBytes   int64
	Retention       time.Duration
}

// Pipeline runs ingestion passes. One pass runs sequentially.
type Pipeline struct {
	Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Deps: deps, opts: opts, logger: logger, now: time.Now}
}

// Pass runs every category once and returns how many items were delivered.
// Cancelling ctx stops the pass before the next category; the category in
// progress runs to completion.
func (p *Pipeline) Pass(ctx context.Context, lookback time.Duration) int {
	start := p.now()
	work := context.WithoutCancel(ctx)
	metrics.Global.StartPass()
	p.sweep()

	budget := ratelimit.NewBudget(p.opts.OGBudget)
	delivered := 0
	for _, cat := range p.opts.Categories {
		if ctx.Err() != nil {
			p.logger.Info("pass interrupted", "before", cat.Name)
			break
		}
		delivered += p.category(work, cat, lookback, budget)
	}

	elapsed := p.now().Sub(start)
	metrics.Global.RecordPass(elapsed, delivered)
	p.logger.Info("✅ pass finished", "delivered", delivered, "og_spent", budget.Spent(), "duration", elapsed.Round(time.Millisecond))
	return delivered
}

func (p *Pipeline) sweep() {
	if p.Store == nil || p.opts.Retention <= 0 {
		return
	}
	n, err := p.Store.Sweep(p.opts.Retention)
	if n > 0 {
		metrics.SweepRemovedTotal.Add(float64(n))
		p.logger.Info("🧹 cache swept", "removed", n)
	}
	if err != nil {
		p.logger.Warn("⚠️ cache sweep incomplete", "error", err)
	}
}

func (p *Pipeline) category(ctx context.Context, cat rss.Category, lookback time.Duration, budget *ratelimit.Budget) int {
	entries := p.Feeds.Fetch(ctx, cat, lookback)
	if len(entries) == 0 {
		p.logger.Debug("no entries", "category", cat.Name)
		return 0
	}

	var ready []*news.Item
	for _, e := range entries {
		if it, ok := p.prepare(ctx, e, cat.Name, budget); ok {
			ready = append(ready, it)
		}
	}
	if len(ready) == 0 {
		return 0
	}

	delivered := p.Assembler.AssembleAndSend(ctx, ready, cat.Name)
	marked := 0
	for _, it := range ready {
		if !delivered[it.Fingerprint] {
			metrics.RecordItem(cat.Name, metrics.OutcomeUnmarked)
			continue
		}
		if err := p.Ledger.MarkSent(ctx, it.Fingerprint, it.Title, it.Link, cat.Name); err != nil {
			p.logger.Error("❌ ledger write failed after delivery", "title", it.Title, "error", err)
			metrics.RecordItem(cat.Name, metrics.OutcomeLedgerFailed)
			metrics.Global.SetError(err.Error())
			continue
		}
		metrics.RecordItem(cat.Name, metrics.OutcomeMarked)
		marked++
	}
	p.logger.Info("category done", "category", cat.Name, "entries", len(entries), "ready", len(ready), "marked", marked)
	return len(delivered)
}

// prepare moves one entry through ledger check, resolution, media location
// and caching. ok is false when the item ends here.
func (p *Pipeline) prepare(ctx context.Context, e news.Entry, category string, budget *ratelimit.Budget) (*news.Item, bool) {
	it := news.NewItem(e)

	sent, err := p.Ledger.IsSent(ctx, it.Fingerprint)
	if err != nil {
		p.logger.Warn("⚠️ ledger read failed, skipping", "title", e.Title, "error", err)
	}
	if sent || err != nil {
		metrics.RecordItem(category, metrics.OutcomeSkipped)
		return nil, false
	}

	it.CanonicalLink = p.Resolver.Resolve(ctx, e)
	if p.opts.FollowRedirects && p.Resolver.IsAggregator(it.CanonicalLink) {
		it.CanonicalLink = p.Resolver.FirmUp(ctx, it.CanonicalLink)
	}

	ref, found := p.Locator.Locate(ctx, e, it.CanonicalLink, budget)
	if found {
		it.Media = &ref
	} else if p.opts.MediaOnly {
		p.logger.Debug("skip no-media", "title", e.Title)
		metrics.RecordItem(category, metrics.OutcomeNoMedia)
		return nil, false
	}

	lf, ok := p.cache(ctx, it, budget)
	if !ok {
		p.logger.Debug("still no media, drop", "title", e.Title)
		metrics.RecordItem(category, metrics.OutcomeCacheFailed)
		return nil, false
	}
	it.Local = &lf
	return it, true
}

// cache stores the item's media locally: the video under "<fp>-vid", else the
// image under "<fp>-og" or "<fp>-img". When the feed's own media fails to
// download, one more publisher scrape is tried under the same budget.
func (p *Pipeline) cache(ctx context.Context, it *news.Item, budget *ratelimit.Budget) (news.LocalFile, bool) {
	fp := it.Fingerprint
	img, vid := p.Locator.Native(it.Entry)

	if it.Media != nil {
		ref := *it.Media
		if ref.Kind == news.Video {
			if lf, ok := p.Fetcher.FetchToCache(ctx, ref.URL, fp+"-vid", true, p.opts.VideoMaxBytes); ok {
				return lf, true
			}
		} else {
			img = ref.URL
		}
		key := fp + "-img"
		if ref.FromOG {
			key = fp + "-og"
		}
		if img != "" {
			if lf, ok := p.Fetcher.FetchToCache(ctx, img, key, false, p.opts.ImageMaxBytes); ok {
				return lf, true
			}
		}
	}

	// Without native media the locator already spent its scrape.
	if img == "" && vid == "" {
		return news.LocalFile{}, false
	}
	og, ok := p.Locator.ScrapeOG(ctx, it.CanonicalLink, budget)
	if !ok {
		return news.LocalFile{}, false
	}
	it.Media = &news.MediaRef{Kind: news.Image, URL: og, FromOG: true}
	return p.Fetcher.FetchToCache(ctx, og, fp+"-og", false, p.opts.ImageMaxBytes)
}

// RunRealtime runs a pass every Interval until ctx is cancelled.
func (p *Pipeline) RunRealtime(ctx context.Context) error {
	p.logger.Info("realtime mode", "interval", p.opts.Interval, "lookback", p.opts.Lookback)
	for {
		p.Pass(ctx, p.opts.Lookback)

		t := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			p.logger.Info("realtime loop stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunDigest runs one pass a day at DigestHour:DigestMinute local time until
// ctx is cancelled.
func (p *Pipeline) RunDigest(ctx context.Context) error {
	for {
		next := NextDigest(p.now(), p.opts.DigestHour, p.opts.DigestMinute, p.opts.Location)
		p.logger.Info("digest scheduled", "at", next.Format("2006-01-02 15:04 MST"))

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			p.logger.Info("digest loop stopped")
			return nil
		case <-t.C:
		}
		p.Pass(ctx, DigestLookback)
	}
}

// NextDigest returns the first hour:minute in loc strictly after now.
func NextDigest(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
