// Package config loads the bot configuration from flags and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jessevdk/go-flags"

	"github.com/deusflow/albumnews/internal/linkdecode"
	"github.com/deusflow/albumnews/internal/media"
	"github.com/deusflow/albumnews/internal/rss"
	"github.com/deusflow/albumnews/internal/scraper"
	"github.com/deusflow/albumnews/internal/storage"
	"github.com/deusflow/albumnews/internal/translate"
)

// Run modes.
const (
	ModeRealtime = "realtime"
	ModeDigest   = "digest"
)

// ErrMissingCredential is returned by Validate when a required secret is unset.
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	// Scheduling
	Mode            string `long:"mode" env:"MODE" default:"realtime" description:"Run mode: realtime or digest"`
	IntervalMinutes int    `long:"interval" env:"INTERVAL_MINUTES" default:"60" description:"Minutes between realtime passes"`
	LookbackMinutes int    `long:"lookback" env:"LOOKBACK_MINUTES" default:"0" description:"Entry age window in minutes (0 = max(2*interval, 60))"`
	DigestTime      string `long:"digest-time" env:"DIGEST_TIME" default:"09:00" description:"Daily digest time HH:MM in the local time zone"`
	LocalTZ         string `long:"tz" env:"LOCAL_TZ" default:"Asia/Shanghai" description:"Time zone for captions and the digest clock"`

	// Feeds
	NewsLang       string `long:"news-lang" env:"NEWS_LANG" default:"en-US" description:"Search feed hl parameter"`
	NewsGeo        string `long:"news-geo" env:"NEWS_GEO" default:"US" description:"Search feed gl parameter"`
	NewsCEID       string `long:"news-ceid" env:"NEWS_CEID" default:"US:en" description:"Search feed ceid parameter"`
	CategoriesFile string `long:"categories" env:"CATEGORIES_FILE" description:"YAML category file (built-in categories when empty)"`
	MaxItems       int    `long:"max-items" env:"MAX_ITEMS_PER_PUSH" default:"6" description:"Maximum items per category and pass"`
	FeedRetries    int    `long:"feed-retries" env:"FEED_RETRY_ATTEMPTS" default:"2" description:"Attempts per feed query"`

	// Media
	MediaOnly         bool   `long:"media-only" env:"MEDIA_ONLY" description:"Drop items without cached media"`
	ScrapeOG          bool   `long:"og-scrape" env:"ENABLE_OG_SCRAPE" description:"Scrape publisher pages for og:image"`
	MaxOGPerCycle     int    `long:"og-budget" env:"MAX_OG_FETCH_PER_CYCLE" default:"60" description:"Publisher page scrapes per pass"`
	OGTimeoutSeconds  int    `long:"og-timeout" env:"OG_FETCH_TIMEOUT" default:"8" description:"Publisher page timeout in seconds"`
	FollowRedirects   bool   `long:"follow-redirects" env:"FOLLOW_REDIRECTS_FOR_MEDIA" description:"Firm up aggregator links before media work"`
	UserAgent         string `long:"user-agent" env:"USER_AGENT" description:"HTTP client identifier"`
	ImageMaxBytes     int64  `long:"image-max-bytes" env:"IMAGE_MAX_BYTES" default:"0" description:"Image size ceiling (0 = none)"`
	VideoMaxBytes     int64  `long:"video-max-bytes" env:"VIDEO_MAX_BYTES" default:"0" description:"Video size ceiling (0 = none)"`
	DataDir           string `long:"data-dir" env:"DATA_DIR" default:"data" description:"Media cache root"`
	RetentionDays     int    `long:"retention-days" env:"MEDIA_RETENTION_DAYS" default:"7" description:"Days a cached file is kept"`
	PlaceholderDomain string `long:"placeholder-domains" env:"PLACEHOLDER_IMAGE_DOMAINS" description:"Comma separated thumbnail hosts to ignore"`

	// Delivery
	TelegramToken    string `long:"telegram-token" env:"TELEGRAM_BOT_TOKEN" description:"Bot token"`
	TelegramChatID   string `long:"telegram-chat" env:"TELEGRAM_CHAT_ID" description:"Target chat id"`
	TelegramAPIBase  string `long:"telegram-api" env:"TELEGRAM_API_BASE" default:"https://api.telegram.org" description:"Bot API base URL"`
	SendIntervalMS   int    `long:"send-interval" env:"SEND_INTERVAL_MS" default:"600" description:"Milliseconds between delivery calls"`
	SummaryBelow     bool   `long:"summary" env:"ALBUM_SUMMARY_BELOW" description:"Send a summary list after each category"`
	CaptionNumbering bool   `long:"numbering" env:"ALBUM_CAPTION_NUMBERING" description:"Prefix captions with their position"`

	// Ledger
	LedgerBackend string `long:"ledger" env:"LEDGER_BACKEND" default:"sqlite" description:"Ledger backend: sqlite, postgres or file"`
	DBPath        string `long:"db-path" env:"DB_PATH" default:"news_cache.db" description:"sqlite database or JSON ledger file"`
	DatabaseURL   string `long:"database-url" env:"DATABASE_URL" description:"PostgreSQL connection string"`

	// Translation
	Bilingual         bool   `long:"bilingual" env:"BILINGUAL" description:"Show translated titles with the English line"`
	TranslateProvider string `long:"translate-provider" env:"TRANSLATE_PROVIDER" default:"google" description:"none, google, libre, openai or gemini"`
	TranslateTarget   string `long:"translate-target" env:"TRANSLATE_TARGET" default:"zh-CN" description:"Target language code"`
	GeminiAPIKey      string `long:"gemini-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel       string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-1.5-flash" description:"Gemini model"`
	OpenAIKey         string `long:"openai-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	OpenAIModel       string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"OpenAI model"`
	LibreURL          string `long:"libre-url" env:"LIBRE_TRANSLATE_URL" description:"LibreTranslate endpoint"`
	LibreKey          string `long:"libre-key" env:"LIBRE_TRANSLATE_API_KEY" description:"LibreTranslate API key"`

	// Advertisement
	AdEnabled      bool   `long:"ad" env:"AD_ENABLED" description:"Append the advertisement after delivered categories"`
	AdDefaultHTML  string `long:"ad-html" env:"AD_DEFAULT_HTML" description:"Advertisement HTML"`
	AdNoWebPreview bool   `long:"ad-no-preview" env:"AD_DISABLE_WEB_PREVIEW" description:"Disable link preview on the advertisement"`

	// Monitoring and logging
	Monitoring     bool   `long:"monitoring" env:"ENABLE_HTTP_MONITORING" description:"Serve /metrics and /health"`
	MonitoringPort string `long:"monitoring-port" env:"MONITORING_PORT" default:"8080" description:"Monitoring HTTP port"`
	Debug          bool   `long:"debug" env:"DEBUG" description:"Shortcut for --log-level=debug"`
	LogLevel       string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	LogFormat      string `long:"log-format" env:"LOG_FORMAT" default:"text" description:"text or json"`
}

// Load parses args (without the program name) and the environment. A help
// request surfaces as a *flags.Error of type flags.ErrHelp.
func Load(args []string) (*Config, error) {
	// Switches that are on unless the environment says "false". go-flags
	// leaves a preset field alone when no flag, default or variable sets it.
	cfg := &Config{
		MediaOnly:        true,
		ScrapeOG:         true,
		FollowRedirects:  true,
		SummaryBelow:     true,
		CaptionNumbering: true,
		Bilingual:        true,
		AdEnabled:        true,
	}

	parser := flags.NewParser(cfg, flags.Default&^flags.PrintErrors)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = scraper.DefaultUserAgent
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required", ErrMissingCredential)
	}
	if c.TelegramChatID == "" {
		return fmt.Errorf("%w: TELEGRAM_CHAT_ID is required", ErrMissingCredential)
	}
	if c.Mode != ModeRealtime && c.Mode != ModeDigest {
		return fmt.Errorf("MODE must be %q or %q", ModeRealtime, ModeDigest)
	}
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("INTERVAL_MINUTES must be positive")
	}
	if _, _, err := c.DigestClock(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.LedgerBackend {
	case storage.BackendSQLite, storage.BackendFile:
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres ledger", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	if c.Bilingual {
		switch strings.ToLower(c.TranslateProvider) {
		case translate.ProviderGemini:
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("%w: GEMINI_API_KEY is required for gemini translation", ErrMissingCredential)
			}
		case translate.ProviderOpenAI:
			if c.OpenAIKey == "" {
				return fmt.Errorf("%w: OPENAI_API_KEY is required for openai translation", ErrMissingCredential)
			}
		case translate.ProviderLibre:
			if c.LibreURL == "" {
				return fmt.Errorf("%w: LIBRE_TRANSLATE_URL is required for libre translation", ErrMissingCredential)
			}
		case "", translate.ProviderNone, translate.ProviderGoogle:
		default:
			return fmt.Errorf("unknown TRANSLATE_PROVIDER %q", c.TranslateProvider)
		}
	}
	return nil
}

// Interval is the realtime pass period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Lookback is the realtime entry age window.
func (c *Config) Lookback() time.Duration {
	if c.LookbackMinutes > 0 {
		return time.Duration(c.LookbackMinutes) * time.Minute
	}
	lb := 2 * c.Interval()
	if lb < time.Hour {
		lb = time.Hour
	}
	return lb
}

// DigestClock parses DigestTime.
func (c *Config) DigestClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DigestTime))
	if err != nil {
		return 0, 0, fmt.Errorf("DIGEST_TIME %q is not HH:MM", c.DigestTime)
	}
	return t.Hour(), t.Minute(), nil
}

// Location loads LocalTZ.
func (c *Config) Location() (*time.Location, error) {
	if c.LocalTZ == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.LocalTZ)
	if err != nil {
		return nil, fmt.Errorf("LOCAL_TZ %q: %w", c.LocalTZ, err)
	}
	return loc, nil
}

// PlaceholderHosts returns the configured thumbnail hosts or the defaults.
func (c *Config) PlaceholderHosts() linkdecode.Hosts {
	if hs := linkdecode.ParseHosts(c.PlaceholderDomain); len(hs) > 0 {
		return hs
	}
	return media.DefaultPlaceholderHosts
}

// Categories returns the categories from CategoriesFile or the built-in set.
func (c *Config) Categories() ([]rss.Category, error) {
	if c.CategoriesFile == "" {
		return rss.DefaultCategories(), nil
	}
	return rss.LoadCategories(c.CategoriesFile)
}

// Retention is how long cached media is kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
