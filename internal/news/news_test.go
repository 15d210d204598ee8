package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("Markets rally", "https://news.example-aggregator.com/articles/CBMi")
	b := Fingerprint("Markets rally", "https://news.example-aggregator.com/articles/CBMi")
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestFingerprint_KnownValue(t *testing.T) {
	// sha1("a|b")
	assert.Equal(t, "9abe6de24a871364bf412a1c301698b5ed30dbb7", Fingerprint("a", "b"))
}

func TestFingerprint_DistinguishesTitleAndLink(t *testing.T) {
	assert.NotEqual(t, Fingerprint("a", "b"), Fingerprint("b", "a"))
	assert.NotEqual(t, Fingerprint("title", "https://x/1"), Fingerprint("title", "https://x/2"))
}

func TestNewItem_DefaultsCanonicalToLink(t *testing.T) {
	it := NewItem(Entry{Title: "t", Link: "https://agg/1"})
	assert.Equal(t, Fingerprint("t", "https://agg/1"), it.Fingerprint)
	assert.Equal(t, "https://agg/1", it.BestLink())

	it.CanonicalLink = ""
	assert.Equal(t, "https://agg/1", it.BestLink())
}
