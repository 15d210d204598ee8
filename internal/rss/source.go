// Package rss fetches per-category search feeds and turns their items into
// news entries.
package rss

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	gorss "github.com/mmcdole/gofeed/rss"

	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/retry"
)

// DefaultSearchBase is the aggregator's search feed endpoint.
const DefaultSearchBase = "https://news.google.com/rss/search"

// Options configures a Source.
type Options struct {
	SearchBase string // empty means DefaultSearchBase
	Lang       string // hl
	Geo        string // gl
	CEID       string // ceid
	MaxItems   int    // per category, 0 = no cap
	UserAgent  string
	Timeout    time.Duration
	Retry      retry.Config
}

// Source reads search feeds.
type Source struct {
	opts   Options
	parser *gofeed.Parser
	logger *slog.Logger
	now    func() time.Time
}

// NewSource creates a Source.
func NewSource(opts Options, logger *slog.Logger) *Source {
	if opts.SearchBase == "" {
		opts.SearchBase = DefaultSearchBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := gofeed.NewParser()
	p.UserAgent = opts.UserAgent
	p.Client = &http.Client{Timeout: opts.Timeout}
	p.RSSTranslator = &sourceTranslator{}
	return &Source{opts: opts, parser: p, logger: logger, now: time.Now}
}

// SearchURL builds the feed URL for one query.
func (s *Source) SearchURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	if s.opts.Lang != "" {
		v.Set("hl", s.opts.Lang)
	}
	if s.opts.Geo != "" {
		v.Set("gl", s.opts.Geo)
	}
	if s.opts.CEID != "" {
		v.Set("ceid", s.opts.CEID)
	}
	return s.opts.SearchBase + "?" + v.Encode()
}

// Fetch returns the entries of every query of cat published within lookback,
// deduplicated by (title, link), newest first and capped at MaxItems. A query
// that fails is logged and skipped.
func (s *Source) Fetch(ctx context.Context, cat Category, lookback time.Duration) []news.Entry {
	cutoff := s.now().Add(-lookback)
	var all []news.Entry

	for _, q := range cat.Queries {
		u := s.SearchURL(q)
		var feed *gofeed.Feed
		err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
			var err error
			feed, err = s.parser.ParseURLWithContext(u, ctx)
			return err
		})
		if err != nil {
			s.logger.Warn("⚠️ feed fetch failed", "category", cat.Name, "query", q, "error", err)
			continue
		}

		kept := 0
		for _, item := range feed.Items {
			e, ok := s.Convert(item)
			if !ok || e.Published.Before(cutoff) {
				continue
			}
			e.Category = cat.Name
			all = append(all, e)
			kept++
		}
		s.logger.Debug("feed loaded", "category", cat.Name, "query", q, "items", len(feed.Items), "kept", kept)
	}

	return selectEntries(all, s.opts.MaxItems)
}

func selectEntries(entries []news.Entry, max int) []news.Entry {
	type key struct{ title, link string }
	seen := make(map[key]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		k := key{e.Title, e.Link}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Published.After(out[j].Published) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// Convert maps a feed item to an entry. Items without title or link are
// rejected.
func (s *Source) Convert(item *gofeed.Item) (news.Entry, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return news.Entry{}, false
	}

	e := news.Entry{
		Title:     title,
		Link:      link,
		Summary:   item.Description,
		Published: s.published(item),
		Source:    sourceLabel(item),
	}
	if e.Summary == "" {
		e.Summary = item.Content
	}
	e.Links = append(e.Links, link)
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" && l != link {
			e.Links = append(e.Links, l)
		}
	}
	e.Attachments = attachments(item)
	return e, true
}

func (s *Source) published(item *gofeed.Item) time.Time {
	for _, t := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if t != nil {
			return t.UTC()
		}
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return s.now().UTC()
}

func sourceLabel(item *gofeed.Item) string {
	if v := strings.TrimSpace(item.Custom[customSource]); v != "" {
		return v
	}
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// attachments collects media:content, media:thumbnail (also inside
// media:group), enclosures and the item image, in that order.
func attachments(item *gofeed.Item) []news.Attachment {
	var out []news.Attachment
	seen := map[string]bool{}
	add := func(u, t string) {
		if u = strings.TrimSpace(u); u != "" && !seen[u] {
			seen[u] = true
			out = append(out, news.Attachment{URL: u, Type: t})
		}
	}

	var fromMedia func(m map[string][]ext.Extension)
	fromMedia = func(m map[string][]ext.Extension) {
		for _, name := range []string{"content", "thumbnail"} {
			for _, x := range m[name] {
				u := x.Attrs["url"]
				if u == "" {
					u = x.Attrs["href"]
				}
				add(u, x.Attrs["type"])
			}
		}
		for _, g := range m["group"] {
			fromMedia(g.Children)
		}
	}
	if media, ok := item.Extensions["media"]; ok {
		fromMedia(media)
	}
	for _, enc := range item.Enclosures {
		if enc != nil {
			add(enc.URL, enc.Type)
		}
	}
	if item.Image != nil {
		add(item.Image.URL, "")
	}
	return out
}

const customSource = "source"

// sourceTranslator keeps the RSS <source> element, which the universal item
// drops, in Item.Custom.
type sourceTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *sourceTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultRSSTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	rf, ok := feed.(*gorss.Feed)
	if !ok {
		return out, nil
	}
	for i, it := range rf.Items {
		if i >= len(out.Items) || it.Source == nil || it.Source.Title == "" {
			continue
		}
		if out.Items[i].Custom == nil {
			out.Items[i].Custom = map[string]string{}
		}
		out.Items[i].Custom[customSource] = it.Source.Title
	}
	return out, nil
}
