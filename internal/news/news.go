// Package news holds the item types that flow through one ingestion pass.
package news

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// MediaKind tells the delivery surface how to present a media file.
type MediaKind string

const (
	Image MediaKind = "image"
	Video MediaKind = "video"
)

// Attachment is a media URL declared by the feed itself (media:content,
// media:thumbnail, enclosure or the item image).
type Attachment struct {
	URL  string
	Type string // declared MIME type, may be empty
}

// Entry is one raw feed entry. It is produced per pass and never persisted.
type Entry struct {
	Title     string
	Link      string   // aggregator link as published by the feed
	Links     []string // alternate links; Link is always first when set
	Summary   string   // description, may contain inline HTML
	Published time.Time
	Source    string
	Category  string

	Attachments []Attachment
}

// MediaRef is the single media candidate picked for an item.
type MediaRef struct {
	Kind MediaKind
	URL  string
	// FromOG marks an image found by scraping publisher metadata; it is cached
	// under a different key than a feed-declared image.
	FromOG bool
}

// LocalFile is a media file that already sits in the local cache.
type LocalFile struct {
	Path string
	Kind MediaKind
}

// Item is an Entry moving through resolution, media location and caching.
type Item struct {
	Entry

	Fingerprint   string
	CanonicalLink string
	Media         *MediaRef
	Local         *LocalFile
}

// NewItem wraps an entry and computes its fingerprint once.
func NewItem(e Entry) *Item {
	return &Item{
		Entry:         e,
		Fingerprint:   Fingerprint(e.Title, e.Link),
		CanonicalLink: e.Link,
	}
}

// BestLink returns the canonical link, or the aggregator link when resolution
// never produced one.
func (it *Item) BestLink() string {
	if it.CanonicalLink != "" {
		return it.CanonicalLink
	}
	return it.Link
}

// Fingerprint is the dedup key of an entry: hex SHA-1 over "title|link".
func Fingerprint(title, link string) string {
	h := sha1.New()
	h.Write([]byte(title + "|" + link))
	return hex.EncodeToString(h.Sum(nil))
}
