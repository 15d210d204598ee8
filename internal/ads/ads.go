// Package ads supplies the advertisement text appended after a category's
// deliveries.
package ads

import (
	"context"
	"strings"
)

// GlobalScope is the fallback scope used when a category has no own text.
const GlobalScope = "global"

// Source returns the advertisement for a category. ok is false when ads are
// disabled or there is no text.
type Source interface {
	AdFor(ctx context.Context, category string) (html string, disablePreview bool, ok bool)
}

// Static serves advertisements from configuration.
type Static struct {
	Enabled        bool
	DisablePreview bool
	Default        string
	// Scopes maps a category name, or GlobalScope, to its advertisement.
	Scopes map[string]string
}

// AdFor looks up the category text, then the global text, then Default.
func (s Static) AdFor(_ context.Context, category string) (string, bool, bool) {
	if !s.Enabled {
		return "", false, false
	}
	for _, scope := range []string{category, GlobalScope} {
		if v := strings.TrimSpace(s.Scopes[scope]); v != "" {
			return v, s.DisablePreview, true
		}
	}
	if v := strings.TrimSpace(s.Default); v != "" {
		return v, s.DisablePreview, true
	}
	return "", false, false
}

// None never returns an advertisement.
type None struct{}

func (None) AdFor(context.Context, string) (string, bool, bool) { return "", false, false }
