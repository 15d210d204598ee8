// Package telegram is a small Bot API client for text, single media and
// media group messages. Media is always uploaded from local files.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/deusflow/albumnews/internal/news"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// MaxGroupSize is the largest media group the API accepts.
const MaxGroupSize = 10

// APIError is returned when the API rejects a call.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Media is one local file with its caption.
type Media struct {
	Kind    news.MediaKind
	Path    string
	Caption string // HTML
}

// Client talks to one chat.
type Client struct {
	base   string
	token  string
	chatID string
	http   *http.Client
	logger *slog.Logger
}

// New creates a client. An empty base means DefaultAPIBase.
func New(base, token, chatID string, logger *slog.Logger) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
}

// SendMessage sends an HTML text message.
func (c *Client) SendMessage(ctx context.Context, html string, disablePreview bool) error {
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     html,
		"parse_mode":               "HTML",
		"disable_web_page_preview": disablePreview,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "sendMessage")
}

// SendMedia uploads one photo or video with its caption.
func (c *Client) SendMedia(ctx context.Context, m Media) error {
	method, field := "sendPhoto", "photo"
	if m.Kind == news.Video {
		method, field = "sendVideo", "video"
	}
	fields := map[string]string{
		"chat_id":    c.chatID,
		"caption":    m.Caption,
		"parse_mode": "HTML",
	}
	if m.Kind == news.Video {
		fields["supports_streaming"] = "true"
	}
	return c.upload(ctx, method, fields, map[string]string{field: m.Path})
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMediaGroup uploads 2 to 10 files as one album. The call succeeds or
// fails as a whole.
func (c *Client) SendMediaGroup(ctx context.Context, items []Media) error {
	if len(items) < 2 || len(items) > MaxGroupSize {
		return fmt.Errorf("media group needs 2 to %d items, got %d", MaxGroupSize, len(items))
	}
	group := make([]inputMedia, 0, len(items))
	files := make(map[string]string, len(items))
	for i, m := range items {
		name := fmt.Sprintf("file%d", i+1)
		kind := "photo"
		if m.Kind == news.Video {
			kind = "video"
		}
		group = append(group, inputMedia{
			Type:      kind,
			Media:     "attach://" + name,
			Caption:   m.Caption,
			ParseMode: "HTML",
		})
		files[name] = m.Path
	}
	media, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}
	return c.upload(ctx, "sendMediaGroup", map[string]string{
		"chat_id": c.chatID,
		"media":   string(media),
	}, files)
}

// upload streams a multipart request so large files never sit in memory.
func (c *Client) upload(ctx context.Context, method string, fields, files map[string]string) error {
	for _, p := range files {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("error opening upload: %w", err)
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, fields, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, method)
}

func writeParts(mw *multipart.Writer, fields, files map[string]string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for name, path := range files {
		if err := writeFile(mw, name, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, filepath.Base(path)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ar apiResponse
	_ = json.Unmarshal(body, &ar)
	if resp.StatusCode != http.StatusOK || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = strings.TrimSpace(string(body))
		}
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}
	c.logger.Debug("telegram call ok", "method", method)
	return nil
}
