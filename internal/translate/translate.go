// Package translate produces the secondary-language line of captions. Every
// provider degrades to the input text on failure.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/albumnews/internal/cache"
)

// Providers.
const (
	ProviderNone   = "none"
	ProviderGoogle = "google"
	ProviderLibre  = "libre"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const maxInputChars = 4000

// Translator renders text in the configured target language. It returns text
// unchanged when translation is unavailable.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Backend is one translation service.
type Backend interface {
	Name() string
	Translate(ctx context.Context, text, target string) (string, error)
}

// None is the identity translator.
type None struct{}

func (None) Translate(_ context.Context, text string) string { return text }

// Memo wraps a Backend with result memoisation. Failed translations are
// memoised as the input so a dead backend is asked once per text.
type Memo struct {
	backend Backend
	target  string
	cache   *cache.Cache[string]
	ttl     time.Duration
	logger  *slog.Logger
}

// NewMemo creates a memoising translator for target.
func NewMemo(backend Backend, target string, ttl time.Duration, logger *slog.Logger) *Memo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memo{
		backend: backend,
		target:  target,
		cache:   cache.New[string](time.Hour),
		ttl:     ttl,
		logger:  logger,
	}
}

func (m *Memo) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	key := cache.Key(m.backend.Name(), m.target, text)
	if out, ok := m.cache.Get(key); ok {
		return out
	}

	in := text
	if r := []rune(in); len(r) > maxInputChars {
		in = string(r[:maxInputChars])
	}
	out, err := m.backend.Translate(ctx, in, m.target)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		m.logger.Debug("⚠️ translation failed, keeping original", "provider", m.backend.Name(), "error", err)
		out = text
	}
	m.cache.Set(key, out, m.ttl)
	return out
}

// Close releases the memo janitor.
func (m *Memo) Close() { m.cache.Close() }

// Options selects a provider.
type Options struct {
	Provider    string
	Target      string // e.g. zh-CN
	OpenAIKey   string
	OpenAIModel string
	LibreURL    string
	LibreKey    string
	Timeout     time.Duration
	// Gemini is built by the caller since it owns a client connection.
	Gemini Backend
}

// ErrNoBackend is returned when the chosen provider has nothing to run on.
var ErrNoBackend = errors.New("translation provider not configured")

// New builds the translator for opts.Provider.
func New(opts Options, logger *slog.Logger) (Translator, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	var b Backend
	switch strings.ToLower(opts.Provider) {
	case "", ProviderNone:
		return None{}, nil
	case ProviderGoogle:
		b = NewGoogle("", opts.Timeout)
	case ProviderLibre:
		if opts.LibreURL == "" {
			return nil, fmt.Errorf("%w: libre needs LIBRE_TRANSLATE_URL", ErrNoBackend)
		}
		b = NewLibre(opts.LibreURL, opts.LibreKey, opts.Timeout)
	case ProviderOpenAI:
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("%w: openai needs OPENAI_API_KEY", ErrNoBackend)
		}
		b = NewOpenAI(opts.OpenAIKey, opts.OpenAIModel, "")
	case ProviderGemini:
		if opts.Gemini == nil {
			return nil, fmt.Errorf("%w: gemini client missing", ErrNoBackend)
		}
		b = opts.Gemini
	default:
		return nil, fmt.Errorf("unknown translation provider %q", opts.Provider)
	}
	return NewMemo(b, opts.Target, 0, logger), nil
}

// LanguageName maps a language code to the English name used in prompts.
func LanguageName(code string) string {
	switch strings.ToLower(code) {
	case "zh", "zh-cn", "zh-hans":
		return "Simplified Chinese"
	case "zh-tw", "zh-hant":
		return "Traditional Chinese"
	case "en":
		return "English"
	case "uk":
		return "Ukrainian"
	case "da":
		return "Danish"
	default:
		return code
	}
}
