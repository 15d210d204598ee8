// Package mediacache keeps downloaded media on local disk keyed by item
// fingerprint and purpose, so one file is fetched at most once.
package mediacache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/deusflow/albumnews/internal/news"
)

var (
	// ErrHTMLResponse is returned when a media URL answered with a web page.
	ErrHTMLResponse = errors.New("media response is an HTML page")
	// ErrTooLarge is returned when a download crosses its size ceiling.
	ErrTooLarge = errors.New("media exceeds size ceiling")
)

const (
	imagesDir = "images"
	videosDir = "videos"
	partExt   = ".part"
	sniffLen  = 3072
)

// Store is a key-value view of the media cache.
type Store interface {
	// Lookup returns the cached file for key, in any kind directory.
	Lookup(key string) (news.LocalFile, bool)
	// Put stores r under key. kind is used when contentType says neither
	// image nor video. A ceiling <= 0 means no limit.
	Put(key string, kind news.MediaKind, contentType string, r io.Reader, ceiling int64) (news.LocalFile, error)
	// Sweep deletes every file last modified more than olderThan ago.
	Sweep(olderThan time.Duration) (int, error)
}

// DiskStore lays files out as <root>/images/<key>.<ext> and
// <root>/videos/<key>.<ext>.
type DiskStore struct {
	root string
	now  func() time.Time
}

// NewDiskStore creates the kind directories under root.
func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving cache dir: %w", err)
	}
	for _, d := range []string{imagesDir, videosDir} {
		if err := os.MkdirAll(filepath.Join(abs, d), 0o755); err != nil {
			return nil, fmt.Errorf("error creating cache dir: %w", err)
		}
	}
	return &DiskStore{root: abs, now: time.Now}, nil
}

// Root returns the absolute cache root.
func (s *DiskStore) Root() string { return s.root }

func kindDir(kind news.MediaKind) string {
	if kind == news.Video {
		return videosDir
	}
	return imagesDir
}

func (s *DiskStore) Lookup(key string) (news.LocalFile, bool) {
	for _, kind := range []news.MediaKind{news.Video, news.Image} {
		dir := filepath.Join(s.root, kindDir(kind))
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasSuffix(name, partExt) {
				continue
			}
			if !strings.HasPrefix(name, key+".") && !strings.HasPrefix(name, key+"_") {
				continue
			}
			info, err := e.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
			return news.LocalFile{Path: filepath.Join(dir, name), Kind: kind}, true
		}
	}
	return news.LocalFile{}, false
}

func (s *DiskStore) Put(key string, kind news.MediaKind, contentType string, r io.Reader, ceiling int64) (news.LocalFile, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	ct := normalizeType(contentType)
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		head, _ := br.Peek(sniffLen)
		ct = normalizeType(mimetype.Detect(head).String())
	}
	if ct == "text/html" || ct == "application/xhtml+xml" {
		return news.LocalFile{}, ErrHTMLResponse
	}

	switch {
	case strings.HasPrefix(ct, "video/"):
		kind = news.Video
	case strings.HasPrefix(ct, "image/"):
		kind = news.Image
	}

	dir := filepath.Join(s.root, kindDir(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return news.LocalFile{}, fmt.Errorf("error creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+key+"-*"+partExt)
	if err != nil {
		return news.LocalFile{}, fmt.Errorf("error creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	src := io.Reader(br)
	if ceiling > 0 {
		src = io.LimitReader(br, ceiling+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return news.LocalFile{}, fmt.Errorf("error writing media: %w", err)
	}
	if ceiling > 0 && n > ceiling {
		return news.LocalFile{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, ceiling)
	}
	if n == 0 {
		return news.LocalFile{}, errors.New("empty media body")
	}

	final := filepath.Join(dir, key+extFor(ct, kind))
	if err := os.Rename(tmpName, final); err != nil {
		return news.LocalFile{}, fmt.Errorf("error moving media into place: %w", err)
	}
	return news.LocalFile{Path: final, Kind: kind}, nil
}

func (s *DiskStore) Sweep(olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, d := range []string{imagesDir, videosDir} {
		dir := filepath.Join(s.root, d)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					errs = append(errs, err)
					continue
				}
				removed++
			}
		}
	}
	return removed, errors.Join(errs...)
}

func normalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func extFor(ct string, kind news.MediaKind) string {
	if kind == news.Video {
		switch {
		case strings.Contains(ct, "webm"):
			return ".webm"
		case strings.Contains(ct, "quicktime"), strings.Contains(ct, "mov"):
			return ".mov"
		default:
			return ".mp4"
		}
	}
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "webp"):
		return ".webp"
	case strings.Contains(ct, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
