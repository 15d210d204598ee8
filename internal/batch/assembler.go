// Package batch turns cached items into category messages: a header, media
// groups of at most ten, a summary list and an optional advertisement.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/albumnews/internal/ads"
	"github.com/deusflow/albumnews/internal/news"
	"github.com/deusflow/albumnews/internal/ratelimit"
	"github.com/deusflow/albumnews/internal/telegram"
	"github.com/deusflow/albumnews/internal/translate"
)

// Delivery kinds reported to the observer.
const (
	KindHeader  = "header"
	KindSingle  = "single"
	KindGroup   = "group"
	KindSummary = "summary"
	KindAd      = "ad"
)

// Sender is the delivery surface.
type Sender interface {
	SendMessage(ctx context.Context, html string, disablePreview bool) error
	SendMedia(ctx context.Context, m telegram.Media) error
	SendMediaGroup(ctx context.Context, items []telegram.Media) error
}

// Options shapes the messages.
type Options struct {
	GroupSize int // 0 or above the surface cap means telegram.MaxGroupSize
	Numbering bool
	Bilingual bool
	Summary   bool
	Location  *time.Location // nil means UTC
}

// Assembler sends one category's items.
type Assembler struct {
	sender Sender
	tr     translate.Translator
	ads    ads.Source
	pacer  *ratelimit.Pacer
	opts   Options
	logger *slog.Logger

	// Observe, when set, is told the outcome of every delivery call.
	Observe func(kind string, err error)
}

// New creates an Assembler. tr, adSource and pacer may be nil.
func New(sender Sender, tr translate.Translator, adSource ads.Source, pacer *ratelimit.Pacer, opts Options, logger *slog.Logger) *Assembler {
	if opts.GroupSize <= 0 || opts.GroupSize > telegram.MaxGroupSize {
		opts.GroupSize = telegram.MaxGroupSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if adSource == nil {
		adSource = ads.None{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{sender: sender, tr: tr, ads: adSource, pacer: pacer, opts: opts, logger: logger}
}

// AssembleAndSend delivers items (each must carry a local file) and returns
// the fingerprints whose delivery was confirmed. A failed group credits none
// of its members; a failed single send only drops that item.
func (a *Assembler) AssembleAndSend(ctx context.Context, items []*news.Item, category string) map[string]bool {
	delivered := make(map[string]bool)
	var ready []*news.Item
	for _, it := range items {
		if it.Local != nil && it.Local.Path != "" {
			ready = append(ready, it)
		}
	}
	if len(ready) == 0 {
		return delivered
	}

	a.send(ctx, KindHeader, func() error { return a.sender.SendMessage(ctx, Header(category), true) })

	for start := 0; start < len(ready); start += a.opts.GroupSize {
		end := start + a.opts.GroupSize
		if end > len(ready) {
			end = len(ready)
		}
		a.flush(ctx, ready[start:end], delivered)
	}

	if len(delivered) == 0 {
		a.logger.Warn("⚠️ nothing delivered", "category", category, "attempted", len(ready))
		return delivered
	}
	a.logger.Info("✅ category delivered", "category", category, "delivered", len(delivered), "attempted", len(ready))

	if a.opts.Summary {
		a.send(ctx, KindSummary, func() error { return a.sender.SendMessage(ctx, a.Summary(ctx, ready), true) })
	}
	if html, noPreview, ok := a.ads.AdFor(ctx, category); ok {
		a.send(ctx, KindAd, func() error { return a.sender.SendMessage(ctx, html, noPreview) })
	}
	return delivered
}

func (a *Assembler) flush(ctx context.Context, group []*news.Item, delivered map[string]bool) {
	if len(group) == 1 {
		it := group[0]
		m := telegram.Media{Kind: it.Local.Kind, Path: it.Local.Path, Caption: a.Caption(ctx, 1, it)}
		if a.send(ctx, KindSingle, func() error { return a.sender.SendMedia(ctx, m) }) {
			delivered[it.Fingerprint] = true
		}
		return
	}

	media := make([]telegram.Media, 0, len(group))
	for i, it := range group {
		media = append(media, telegram.Media{Kind: it.Local.Kind, Path: it.Local.Path, Caption: a.Caption(ctx, i+1, it)})
	}
	if a.send(ctx, KindGroup, func() error { return a.sender.SendMediaGroup(ctx, media) }) {
		for _, it := range group {
			delivered[it.Fingerprint] = true
		}
	}
}

// send paces and runs one delivery call. It reports whether the call
// succeeded.
func (a *Assembler) send(ctx context.Context, kind string, call func() error) bool {
	if err := a.pacer.Wait(ctx); err != nil {
		a.observe(kind, err)
		return false
	}
	err := call()
	a.observe(kind, err)
	if err != nil {
		a.logger.Warn("⚠️ delivery failed", "kind", kind, "error", err)
		return false
	}
	return true
}

func (a *Assembler) observe(kind string, err error) {
	if a.Observe != nil {
		a.Observe(kind, err)
	}
}
