package ads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := Static{
		Enabled:        true,
		DisablePreview: true,
		Default:        "default ad",
		Scopes:         map[string]string{"war": "war ad", GlobalScope: "global ad"},
	}

	html, noPreview, ok := s.AdFor(ctx, "war")
	assert.True(t, ok)
	assert.True(t, noPreview)
	assert.Equal(t, "war ad", html)

	html, _, ok = s.AdFor(ctx, "sea")
	assert.True(t, ok)
	assert.Equal(t, "global ad", html)

	s.Scopes = nil
	html, _, ok = s.AdFor(ctx, "sea")
	assert.True(t, ok)
	assert.Equal(t, "default ad", html)

	s.Default = "   "
	_, _, ok = s.AdFor(ctx, "sea")
	assert.False(t, ok)

	s = Static{Enabled: false, Default: "x"}
	_, _, ok = s.AdFor(ctx, "sea")
	assert.False(t, ok)

	_, _, ok = None{}.AdFor(ctx, "sea")
	assert.False(t, ok)
}
