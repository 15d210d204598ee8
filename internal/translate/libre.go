package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Libre calls a LibreTranslate instance.
type Libre struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewLibre(endpoint, apiKey string, timeout time.Duration) *Libre {
	return &Libre{endpoint: endpoint, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

func (l *Libre) Name() string { return ProviderLibre }

func (l *Libre) Translate(ctx context.Context, text, target string) (string, error) {
	form := url.Values{}
	form.Set("q", text)
	form.Set("source", "auto")
	// LibreTranslate uses bare language codes
	form.Set("target", strings.SplitN(strings.ToLower(target), "-", 2)[0])
	form.Set("format", "text")
	if l.apiKey != "" {
		form.Set("api_key", l.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("libretranslate returned status: %d", resp.StatusCode)
	}
	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	return out.TranslatedText, nil
}
