package batch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/albumnews/internal/news"
)

const (
	maxCaption      = 950
	maxBilingualRow = 300
	maxTitle        = 600
	maxSummaryTitle = 120
	maxSummaryEN    = 140
)

type categoryLabel struct{ icon, zh, en string }

var categoryLabels = map[string]categoryLabel{
	"sea":     {"🌏", "东南亚", "Southeast Asia"},
	"finance": {"💹", "财经", "Finance"},
	"war":     {"⚔️", "战争", "War"},
}

// truncate cuts s to n characters, ending with "…" when shortened.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func esc(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// Header renders the category banner.
func Header(category string) string {
	l, ok := categoryLabels[category]
	if !ok {
		l = categoryLabel{"🗞️", category, category}
	}
	return fmt.Sprintf("%s <b>%s · %s</b>\n<code>%s</code>", l.icon, esc(l.zh), esc(l.en), strings.Repeat("─", 32))
}

// titles returns the display title and, when bilingual and different, the
// original English one.
func (a *Assembler) titles(ctx context.Context, it *news.Item) (main, en string) {
	main = it.Title
	if a.opts.Bilingual && a.tr != nil {
		if tr := strings.TrimSpace(a.tr.Translate(ctx, it.Title)); tr != "" {
			main = tr
		}
	}
	if a.opts.Bilingual && strings.TrimSpace(main) != strings.TrimSpace(it.Title) {
		en = it.Title
	}
	return main, en
}

func (a *Assembler) localTime(t time.Time) string {
	return t.In(a.opts.Location).Format("2006-01-02 15:04")
}

func sourceSuffix(it *news.Item) string {
	if it.Source == "" {
		return ""
	}
	return " · 📰 " + esc(it.Source)
}

// Caption renders the media caption for the idx-th member of a group. Fields
// are bounded by their visible length before escaping, so a cut never lands
// inside markup.
func (a *Assembler) Caption(ctx context.Context, idx int, it *news.Item) string {
	prefix := ""
	if a.opts.Numbering {
		prefix = fmt.Sprintf("%d. ", idx)
	}
	main, en := a.titles(ctx, it)
	stamp := "\n🕒 " + a.localTime(it.Published)

	var text string
	var visible int
	if en != "" {
		main, en = truncate(main, maxBilingualRow), truncate(en, maxBilingualRow)
		text = fmt.Sprintf("%s<b>%s</b>\n<i>EN:</i> %s", prefix, esc(main), esc(en))
		visible = runeLen(prefix) + runeLen(main) + runeLen("\nEN: ") + runeLen(en)
	} else {
		main = truncate(main, maxTitle)
		text = fmt.Sprintf("%s<b>%s</b>", prefix, esc(main))
		visible = runeLen(prefix) + runeLen(main)
	}
	text += stamp
	visible += runeLen(stamp)

	if it.Source != "" {
		const sep = " · 📰 "
		if room := maxCaption - visible - runeLen(sep); room > 0 {
			text += sep + esc(truncate(it.Source, room))
		}
	}
	return text
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// Summary renders the numbered list of every attempted item with its
// canonical link.
func (a *Assembler) Summary(ctx context.Context, items []*news.Item) string {
	lines := []string{"🗞️ <b>本次推送列表</b>", "<code>" + strings.Repeat("─", 16) + "</code>"}
	for i, it := range items {
		main, en := a.titles(ctx, it)
		lines = append(lines, fmt.Sprintf("%d. <a href=\"%s\"><b>%s</b></a>\n   🕒 %s%s",
			i+1, html.EscapeString(it.BestLink()), esc(truncate(main, maxSummaryTitle)), a.localTime(it.Published), sourceSuffix(it)))
		if en != "" {
			lines = append(lines, "   <i>EN:</i> "+esc(truncate(en, maxSummaryEN)))
		}
	}
	return strings.Join(lines, "\n")
}
