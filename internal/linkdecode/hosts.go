package linkdecode

import (
	"net/url"
	"strings"
)

// Hosts is a host family. An entry ending in "." ("news.google.") matches any
// host containing it; any other entry matches itself and its subdomains.
type Hosts []string

var (
	// DefaultAggregator is the aggregator's own domain family.
	DefaultAggregator = Hosts{"news.google."}

	// DefaultAssetHosts covers the aggregator plus the CDN and font hosts its
	// pages reference. Links on these hosts are never publisher articles.
	DefaultAssetHosts = Hosts{
		"news.google.",
		"google.com",
		"googleapis.com",
		"gstatic.com",
		"googleusercontent.com",
	}
)

// ParseHosts splits a comma separated list, dropping blanks.
func ParseHosts(list string) Hosts {
	var out Hosts
	for _, h := range strings.Split(list, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Match reports whether host belongs to the family.
func (hs Hosts) Match(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, h := range hs {
		if h == "" {
			continue
		}
		if strings.HasSuffix(h, ".") {
			if strings.Contains(host, h) {
				return true
			}
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// MatchURL reports whether raw parses to a URL whose host is in the family.
func (hs Hosts) MatchURL(raw string) bool {
	return hs.Match(HostOf(raw))
}

// HostOf returns the lowercased host of an absolute http(s) URL, or "".
func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsHTTP reports whether raw is an absolute http(s) URL with a host.
func IsHTTP(raw string) bool {
	return HostOf(raw) != ""
}
