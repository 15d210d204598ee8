// Package scraper fetches publisher and aggregator pages over HTTP and hands
// them out as goquery documents.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is sent when no client identifier is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122 Safari/537.36"

// maxPageBytes caps how much of a page is read into memory.
const maxPageBytes = 4 << 20

var (
	// ErrNotHTML is returned when a page answered with a non-HTML content type.
	ErrNotHTML = errors.New("response is not text/html")
	// ErrStatus is returned for any non-200 answer.
	ErrStatus = errors.New("unexpected HTTP status")
)

// Page is a fetched HTML document.
type Page struct {
	URL         string // final URL after redirects
	ContentType string
	Body        []byte

	doc *goquery.Document
}

// Document parses the body once and caches the result.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	p.doc = doc
	return doc, nil
}

// Text returns the raw document text.
func (p *Page) Text() string { return string(p.Body) }

// Resolve turns a possibly relative reference into an absolute URL against
// the page address. It returns "" when ref cannot be parsed.
func (p *Page) Resolve(ref string) string {
	return Join(p.URL, ref)
}

// Join resolves ref against base.
func Join(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

// Client issues timed GET requests with a fixed client identifier.
type Client struct {
	http      *http.Client
	userAgent string
}

// New creates a client. A zero timeout means 8 seconds.
func New(userAgent string, timeout time.Duration) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// NewWithHTTPClient wraps an existing http.Client, mostly for tests.
func NewWithHTTPClient(hc *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{http: hc, userAgent: userAgent}
}

// UserAgent returns the configured client identifier.
func (c *Client) UserAgent() string { return c.userAgent }

// HTTPClient exposes the underlying client so other downloaders share the
// same transport.
func (c *Client) HTTPClient() *http.Client { return c.http }

// NewRequest builds a GET request carrying the client identifier.
func (c *Client) NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// GetHTML fetches rawURL and returns it as a Page when the answer is a 200
// text/html response. On ErrStatus and ErrNotHTML the returned Page is still
// non-nil and carries the final URL, with an empty body.
func (c *Client) GetHTML(ctx context.Context, rawURL string) (*Page, error) {
	req, err := c.NewRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	page := &Page{URL: rawURL, ContentType: resp.Header.Get("Content-Type")}
	if resp.Request != nil && resp.Request.URL != nil {
		page.URL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		return page, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(page.ContentType), "text/html") {
		return page, fmt.Errorf("%w: %q", ErrNotHTML, page.ContentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return page, fmt.Errorf("error reading page: %w", err)
	}
	page.Body = body
	return page, nil
}

// MetaContent returns the first non-empty content attribute among the given
// meta selectors.
func MetaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
		if v != "" {
			return v
		}
	}
	return ""
}
