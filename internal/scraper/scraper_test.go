package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTML(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><meta property="og:image" content="/img.jpg"></head></html>`))
		case "/redirect":
			http.Redirect(w, r, "/page", http.StatusFound)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New("albumnews-test/1.0", time.Second)
	ctx := context.Background()

	page, err := c.GetHTML(ctx, srv.URL+"/redirect")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/page", page.URL)
	assert.Equal(t, "albumnews-test/1.0", gotUA)

	doc, err := page.Document()
	require.NoError(t, err)
	assert.Equal(t, "/img.jpg", MetaContent(doc, `meta[property="og:url"]`, `meta[property="og:image"]`))
	assert.Equal(t, srv.URL+"/img.jpg", page.Resolve("/img.jpg"))

	page, err = c.GetHTML(ctx, srv.URL+"/json")
	assert.True(t, errors.Is(err, ErrNotHTML))
	require.NotNil(t, page)
	assert.Empty(t, page.Body)

	_, err = c.GetHTML(ctx, srv.URL+"/missing")
	assert.True(t, errors.Is(err, ErrStatus))
}

func TestGetHTML_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("", 50*time.Millisecond)
	_, err := c.GetHTML(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, DefaultUserAgent, c.UserAgent())
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "https://a.example.com/x/y", Join("https://a.example.com/x/", "y"))
	assert.Equal(t, "https://b.example.com/z", Join("https://a.example.com/x/", "https://b.example.com/z"))
	assert.Empty(t, Join("https://a.example.com", "  "))
}
