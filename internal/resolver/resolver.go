// Package resolver turns aggregator entries into canonical publisher links,
// escalating from static decoding to live page inspection.
package resolver

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/albumnews/internal/linkdecode"
	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/scraper"
)

var (
	jsonURLRe = regexp.MustCompile(`"url"\s*:\s*"([^"]+)"`)
	bareURLRe = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

var assetExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".css": true, ".js": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
}

var assetDirs = map[string]bool{
	"css": true, "js": true, "image": true, "images": true, "static": true, "assets": true,
}

// Resolver finds the canonical link of an entry.
type Resolver struct {
	decoder *linkdecode.Decoder
	assets  linkdecode.Hosts
	client  *scraper.Client
	logger  *slog.Logger
}

// New creates a Resolver. assets lists hosts (aggregator and CDN family) whose
// links are never publisher articles; nil means linkdecode.DefaultAssetHosts.
func New(decoder *linkdecode.Decoder, assets linkdecode.Hosts, client *scraper.Client, logger *slog.Logger) *Resolver {
	if len(assets) == 0 {
		assets = linkdecode.DefaultAssetHosts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{decoder: decoder, assets: assets, client: client, logger: logger}
}

// IsAggregator reports whether link still points at the aggregator.
func (r *Resolver) IsAggregator(link string) bool {
	return r.decoder.Aggregator().MatchURL(link)
}

// Resolve returns the best known publisher URL for e. It never fails: when
// every strategy comes up empty the aggregator link is returned.
func (r *Resolver) Resolve(ctx context.Context, e news.Entry) string {
	if got, ok := r.decoder.Decode(e); ok && !r.IsAggregator(got) {
		r.logger.Debug("resolved statically", "title", e.Title, "link", got)
		return got
	}

	for _, c := range append([]string{e.Link}, e.Links...) {
		if c == "" || !r.IsAggregator(c) {
			continue
		}
		if got, ok := r.FromAggregatorPage(ctx, c); ok {
			r.logger.Debug("resolved from aggregator page", "title", e.Title, "link", got)
			return got
		}
	}

	if e.Link != "" && !r.IsAggregator(e.Link) {
		return e.Link
	}
	for _, c := range e.Links {
		if c != "" && !r.IsAggregator(c) {
			return c
		}
	}
	return e.Link
}

// FromAggregatorPage fetches an aggregator page and looks for the first
// external article link: document anchors first, then JSON "url" fields, then
// any bare http(s) substring.
func (r *Resolver) FromAggregatorPage(ctx context.Context, link string) (string, bool) {
	page, err := r.client.GetHTML(ctx, link)
	if err != nil {
		r.logger.Debug("⚠️ aggregator page fetch failed", "link", link, "error", err)
		return "", false
	}

	if doc, err := page.Document(); err == nil {
		var found string
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href := page.Resolve(s.AttrOr("href", ""))
			if r.validExternal(href) {
				found = href
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}

	text := page.Text()
	for _, m := range jsonURLRe.FindAllStringSubmatch(text, -1) {
		u := strings.ReplaceAll(m[1], `\/`, "/")
		if r.validExternal(u) {
			return u, true
		}
	}
	for _, m := range bareURLRe.FindAllString(strings.ReplaceAll(text, `\/`, "/"), -1) {
		if r.validExternal(m) {
			return m, true
		}
	}
	return "", false
}

// FirmUp follows redirects from link and prefers the page's declared
// canonical address (link rel=canonical, then og:url) over the redirect
// target. Any failure returns the best link known so far.
func (r *Resolver) FirmUp(ctx context.Context, link string) string {
	if link == "" {
		return link
	}
	page, err := r.client.GetHTML(ctx, link)
	if page == nil {
		r.logger.Debug("⚠️ firm-up fetch failed", "link", link, "error", err)
		return link
	}
	final := page.URL
	if final == "" {
		final = link
	}
	if err != nil {
		return final
	}
	doc, err := page.Document()
	if err != nil {
		return final
	}

	doc.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
			if rel == "canonical" {
				if u := scraper.Join(final, s.AttrOr("href", "")); linkdecode.IsHTTP(u) {
					final = u
				}
				return false
			}
		}
		return true
	})
	if og := scraper.MetaContent(doc, `meta[property="og:url"]`); og != "" {
		if u := scraper.Join(final, og); linkdecode.IsHTTP(u) {
			final = u
		}
	}
	return final
}

// validExternal reports whether u can be a publisher article link.
func (r *Resolver) validExternal(u string) bool {
	u = strings.ReplaceAll(u, `\/`, "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}
	p, err := url.Parse(u)
	if err != nil || p.Hostname() == "" {
		return false
	}
	if r.assets.Match(p.Hostname()) {
		return false
	}
	return !looksLikeAsset(p.Path)
}

func looksLikeAsset(p string) bool {
	p = strings.ToLower(p)
	if assetExts[path.Ext(p)] {
		return true
	}
	first := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)[0]
	return assetDirs[first]
}
