// Package media picks the one image or video that goes out with an item.
package media

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/albumnews/internal/linkdecode"
	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/ratelimit"
	"github.com/deusflow/albumnews/internal/scraper"
)

var videoExtRe = regexp.MustCompile(`(?i)\.(mp4|mov|m4v|webm)(\?|#|$)`)

// DefaultPlaceholderHosts serve generic aggregator thumbnails.
var DefaultPlaceholderHosts = linkdecode.Hosts{
	"encrypted-tbn0.gstatic.com",
	"tbn0.gstatic.com",
	"gstatic.com",
	"news.google.com",
	"news.googleusercontent.com",
	"lh3.googleusercontent.com",
	"lh4.googleusercontent.com",
	"lh5.googleusercontent.com",
	"lh6.googleusercontent.com",
	"gnews.google.com",
	"googleusercontent.com",
}

var ogSelectors = []string{
	`meta[property="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
}

// ScrapeResult is reported once per OG scrape attempt.
type ScrapeResult string

const (
	ScrapeFound   ScrapeResult = "found"
	ScrapeMissing ScrapeResult = "missing"
	ScrapeFailed  ScrapeResult = "failed"
	ScrapeSkipped ScrapeResult = "skipped"
)

// Options configures a Locator.
type Options struct {
	Placeholders linkdecode.Hosts // nil means DefaultPlaceholderHosts
	ScrapeOG     bool
	// OnScrape, when set, observes every scrape attempt.
	OnScrape func(ScrapeResult)
}

// Locator finds media for an entry from the feed first, then from the
// publisher page metadata.
type Locator struct {
	client       *scraper.Client
	placeholders linkdecode.Hosts
	scrapeOG     bool
	onScrape     func(ScrapeResult)
	logger       *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(client *scraper.Client, opts Options, logger *slog.Logger) *Locator {
	if opts.Placeholders == nil {
		opts.Placeholders = DefaultPlaceholderHosts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		client:       client,
		placeholders: opts.Placeholders,
		scrapeOG:     opts.ScrapeOG,
		onScrape:     opts.OnScrape,
		logger:       logger,
	}
}

// IsPlaceholder reports whether u is served by a placeholder thumbnail host.
func (l *Locator) IsPlaceholder(u string) bool {
	return l.placeholders.MatchURL(u)
}

// Native returns the first usable image and video declared by the entry
// itself. Placeholder images are already dropped.
func (l *Locator) Native(e news.Entry) (image, video string) {
	var imgs, vids []string
	for _, a := range e.Attachments {
		if a.URL == "" {
			continue
		}
		t := strings.ToLower(a.Type)
		switch {
		case strings.HasPrefix(t, "video") || videoExtRe.MatchString(a.URL):
			vids = append(vids, a.URL)
		case t == "" || strings.HasPrefix(t, "image"):
			imgs = append(imgs, a.URL)
		}
	}
	imgs = append(imgs, summaryImages(e.Summary)...)

	image = firstUsable(imgs)
	if image != "" && l.IsPlaceholder(image) {
		l.logger.Debug("dropping placeholder image", "url", image)
		image = ""
	}
	return image, firstUsable(vids)
}

// Locate returns the media for an entry, preferring video over image. When
// the feed offers nothing usable it spends one budget unit on an OG scrape of
// canonical.
func (l *Locator) Locate(ctx context.Context, e news.Entry, canonical string, budget *ratelimit.Budget) (news.MediaRef, bool) {
	img, vid := l.Native(e)
	if vid != "" {
		return news.MediaRef{Kind: news.Video, URL: vid}, true
	}
	if img != "" {
		return news.MediaRef{Kind: news.Image, URL: img}, true
	}
	if og, ok := l.ScrapeOG(ctx, canonical, budget); ok {
		return news.MediaRef{Kind: news.Image, URL: og, FromOG: true}, true
	}
	return news.MediaRef{}, false
}

// ScrapeOG fetches link and reads its Open Graph or Twitter card image. It
// takes one unit from budget before the request, so a failed fetch still
// costs. Nothing is fetched when scraping is disabled or the budget is spent.
func (l *Locator) ScrapeOG(ctx context.Context, link string, budget *ratelimit.Budget) (string, bool) {
	if !l.scrapeOG || !linkdecode.IsHTTP(link) {
		return "", false
	}
	if !budget.Take() {
		l.report(ScrapeSkipped)
		return "", false
	}

	page, err := l.client.GetHTML(ctx, link)
	if err != nil {
		l.logger.Debug("⚠️ og scrape failed", "link", link, "error", err)
		l.report(ScrapeFailed)
		return "", false
	}
	doc, err := page.Document()
	if err != nil {
		l.report(ScrapeFailed)
		return "", false
	}
	img := page.Resolve(scraper.MetaContent(doc, ogSelectors...))
	if !linkdecode.IsHTTP(img) || l.IsPlaceholder(img) {
		l.report(ScrapeMissing)
		return "", false
	}
	l.logger.Debug("og:image found", "link", link, "image", img)
	l.report(ScrapeFound)
	return img, true
}

func (l *Locator) report(r ScrapeResult) {
	if l.onScrape != nil {
		l.onScrape(r)
	}
}

func summaryImages(summary string) []string {
	if !strings.Contains(strings.ToLower(summary), "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(summary))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.AttrOr("src", "")))
	})
	return out
}

func firstUsable(urls []string) string {
	for _, u := range urls {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
	}
	return ""
}
