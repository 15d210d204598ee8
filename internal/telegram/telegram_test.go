package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/albumnews/internal/news"
)

type recorded struct {
	path   string
	fields map[string]string
	files  map[string]string // form name -> file content
	json   map[string]interface{}
}

type callLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *callLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.calls...)
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *callLog) {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{path: r.URL.Path, fields: map[string]string{}, files: map[string]string{}}
		if r.Header.Get("Content-Type") == "application/json" {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec.json))
		} else {
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				return
			}
			for k, v := range r.MultipartForm.Value {
				rec.fields[k] = v[0]
			}
			for k, fh := range r.MultipartForm.File {
				f, err := fh[0].Open()
				if !assert.NoError(t, err) {
					return
				}
				b, _ := io.ReadAll(f)
				f.Close()
				rec.files[k] = string(b)
			}
		}
		log.mu.Lock()
		log.calls = append(log.calls, rec)
		log.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func tempFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestSendMessage(t *testing.T) {
	srv, log := newServer(t, http.StatusOK, `{"ok":true}`)
	c := New(srv.URL, "TOKEN", "@chan", nil)

	require.NoError(t, c.SendMessage(context.Background(), "<b>hi</b>", true))
	calls := log.all()
	require.Len(t, calls, 1)
	got := calls[0]
	assert.Equal(t, "/botTOKEN/sendMessage", got.path)
	assert.Equal(t, "@chan", got.json["chat_id"])
	assert.Equal(t, "<b>hi</b>", got.json["text"])
	assert.Equal(t, "HTML", got.json["parse_mode"])
	assert.Equal(t, true, got.json["disable_web_page_preview"])
}

func TestSendMedia_PhotoAndVideo(t *testing.T) {
	srv, log := newServer(t, http.StatusOK, `{"ok":true,"result":{}}`)
	c := New(srv.URL, "TOKEN", "42", nil)
	ctx := context.Background()

	require.NoError(t, c.SendMedia(ctx, Media{Kind: news.Image, Path: tempFile(t, "a.jpg", "IMG"), Caption: "cap"}))
	require.NoError(t, c.SendMedia(ctx, Media{Kind: news.Video, Path: tempFile(t, "v.mp4", "VID"), Caption: "vcap"}))

	calls := log.all()
	require.Len(t, calls, 2)
	photo, video := calls[0], calls[1]
	assert.Equal(t, "/botTOKEN/sendPhoto", photo.path)
	assert.Equal(t, "42", photo.fields["chat_id"])
	assert.Equal(t, "cap", photo.fields["caption"])
	assert.Equal(t, "HTML", photo.fields["parse_mode"])
	assert.Equal(t, "IMG", photo.files["photo"])

	assert.Equal(t, "/botTOKEN/sendVideo", video.path)
	assert.Equal(t, "VID", video.files["video"])
}

func TestSendMediaGroup(t *testing.T) {
	srv, log := newServer(t, http.StatusOK, `{"ok":true,"result":[]}`)
	c := New(srv.URL, "TOKEN", "42", nil)

	err := c.SendMediaGroup(context.Background(), []Media{
		{Kind: news.Image, Path: tempFile(t, "a.jpg", "A"), Caption: "1. first"},
		{Kind: news.Video, Path: tempFile(t, "b.mp4", "B"), Caption: "2. second"},
	})
	require.NoError(t, err)
	calls := log.all()
	require.Len(t, calls, 1)
	got := calls[0]
	assert.Equal(t, "/botTOKEN/sendMediaGroup", got.path)

	var media []inputMedia
	require.NoError(t, json.Unmarshal([]byte(got.fields["media"]), &media))
	assert.Equal(t, []inputMedia{
		{Type: "photo", Media: "attach://file1", Caption: "1. first", ParseMode: "HTML"},
		{Type: "video", Media: "attach://file2", Caption: "2. second", ParseMode: "HTML"},
	}, media)
	assert.Equal(t, map[string]string{"file1": "A", "file2": "B"}, got.files)
}

func TestSendMediaGroup_SizeBounds(t *testing.T) {
	c := New("http://unused.invalid", "T", "1", nil)
	assert.Error(t, c.SendMediaGroup(context.Background(), []Media{{Path: "x"}}))
	assert.Error(t, c.SendMediaGroup(context.Background(), make([]Media, 11)))
}

func TestAPIError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: wrong file"}`)
	c := New(srv.URL, "TOKEN", "42", nil)

	err := c.SendMedia(context.Background(), Media{Kind: news.Image, Path: tempFile(t, "a.jpg", "IMG")})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendPhoto", apiErr.Method)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Bad Request: wrong file", apiErr.Description)
}

func TestMissingFile(t *testing.T) {
	srv, log := newServer(t, http.StatusOK, `{"ok":true}`)
	c := New(srv.URL, "TOKEN", "42", nil)

	err := c.SendMedia(context.Background(), Media{Kind: news.Image, Path: filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Error(t, err)
	assert.Empty(t, log.all())
}
