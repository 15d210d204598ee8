// Package linkdecode recovers publisher URLs from aggregator feed entries
// without touching the network.
package linkdecode

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/albumnews/internal/news"
)

// DefaultMarker precedes the encoded article token in aggregator paths.
const DefaultMarker = "/articles/"

const (
	minTokenRun = 16
	maxTokenRun = 200
)

// Strategy extracts a candidate publisher URL from an entry.
type Strategy func(e news.Entry) (string, bool)

// First returns a strategy that runs the given ones in order and stops at the
// first hit.
func First(strategies ...Strategy) Strategy {
	return func(e news.Entry) (string, bool) {
		for _, s := range strategies {
			if u, ok := s(e); ok {
				return u, true
			}
		}
		return "", false
	}
}

// Decoder applies the static heuristics in a fixed order: direct link, query
// parameter, base64 path token, summary hyperlink.
type Decoder struct {
	aggregator Hosts
	marker     string

	// decodeToken is swapped in tests to count scans.
	decodeToken func(token string) (string, bool)
	cascade     Strategy
}

// New builds a Decoder. Empty arguments fall back to the defaults.
func New(aggregator Hosts, marker string) *Decoder {
	if len(aggregator) == 0 {
		aggregator = DefaultAggregator
	}
	if marker == "" {
		marker = DefaultMarker
	}
	d := &Decoder{aggregator: aggregator, marker: marker, decodeToken: scanToken}
	d.cascade = First(d.DirectLink, d.QueryParam, d.Base64Token, d.SummaryLink)
	return d
}

// Aggregator returns the aggregator host family used by the decoder.
func (d *Decoder) Aggregator() Hosts { return d.aggregator }

// Decode returns the first candidate publisher URL, or false when every
// strategy came up empty.
func (d *Decoder) Decode(e news.Entry) (string, bool) {
	return d.cascade(e)
}

// DirectLink returns the first entry link that is already off-aggregator.
func (d *Decoder) DirectLink(e news.Entry) (string, bool) {
	for _, c := range candidates(e) {
		if IsHTTP(c) && !d.aggregator.MatchURL(c) {
			return c, true
		}
	}
	return "", false
}

// QueryParam looks for a query parameter carrying an absolute URL, preferring
// one named "url" and otherwise taking parameters in the order they appear.
func (d *Decoder) QueryParam(e news.Entry) (string, bool) {
	for _, c := range candidates(e) {
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		params := orderedParams(u.RawQuery)
		for _, p := range params {
			if p.key != "url" {
				continue
			}
			if v, ok := absoluteParam(p.value); ok {
				return v, true
			}
		}
		for _, p := range params {
			if p.key == "url" {
				continue
			}
			if v, ok := absoluteParam(p.value); ok {
				return v, true
			}
		}
	}
	return "", false
}

type param struct{ key, value string }

// orderedParams splits a raw query into decoded pairs, keeping their order.
// Pairs that fail to unescape are skipped.
func orderedParams(raw string) []param {
	var out []param
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" || strings.Contains(pair, ";") {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out = append(out, param{key: key, value: value})
	}
	return out
}

func absoluteParam(v string) (string, bool) {
	if strings.HasPrefix(v, "http") && IsHTTP(v) {
		return v, true
	}
	return "", false
}

// Base64Token decodes the URL-safe base64 token following the marker.
func (d *Decoder) Base64Token(e news.Entry) (string, bool) {
	for _, c := range candidates(e) {
		if !d.aggregator.MatchURL(c) {
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		idx := strings.Index(u.Path, d.marker)
		if idx < 0 {
			continue
		}
		token := u.Path[idx+len(d.marker):]
		if slash := strings.IndexByte(token, '/'); slash >= 0 {
			token = token[:slash]
		}
		if token == "" {
			continue
		}
		if got, ok := d.decodeToken(token); ok {
			return got, true
		}
	}
	return "", false
}

// SummaryLink returns the first off-aggregator hyperlink in the summary HTML.
func (d *Decoder) SummaryLink(e news.Entry) (string, bool) {
	if strings.TrimSpace(e.Summary) == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.Summary))
	if err != nil {
		return "", false
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasPrefix(href, "http") && IsHTTP(href) && !d.aggregator.MatchURL(href) {
			found = href
			return false
		}
		return true
	})
	return found, found != ""
}

func candidates(e news.Entry) []string {
	out := make([]string, 0, len(e.Links)+1)
	seen := make(map[string]bool, len(e.Links)+1)
	for _, l := range append([]string{e.Link}, e.Links...) {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// scanToken tries the whole token first, then every base64 run inside it.
// Starts are scanned left to right; for each start the longest run wins, so a
// hit carries the full URL rather than its first few characters.
func scanToken(token string) (string, bool) {
	if got, ok := tryBase64HTTP(token); ok {
		return got, true
	}
	n := len(token)
	for i := 0; i+minTokenRun <= n; i++ {
		end := i
		limit := i + maxTokenRun
		if limit > n {
			limit = n
		}
		for end < limit && isBase64URLChar(token[end]) {
			end++
		}
		for j := end; j >= i+minTokenRun; j-- {
			if got, ok := tryBase64HTTP(token[i:j]); ok {
				return got, true
			}
		}
	}
	return "", false
}

// tryBase64HTTP pads s, decodes it as URL-safe base64 and accepts the result
// only when it is text starting with "http". Trailing binary is cut off.
func tryBase64HTTP(s string) (string, bool) {
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	if len(raw) < 4 || string(raw[:4]) != "http" {
		return "", false
	}
	end := 0
	for end < len(raw) && raw[end] > 0x20 && raw[end] < 0x7f {
		end++
	}
	txt := string(raw[:end])
	if !IsHTTP(txt) || !strings.Contains(HostOf(txt), ".") {
		return "", false
	}
	return txt, true
}

func isBase64URLChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
