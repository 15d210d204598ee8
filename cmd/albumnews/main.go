package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/albumnews/internal/ads"
	"github.com/deusflow/albumnews/internal/app"
	"github.com/deusflow/albumnews/internal/batch"
	"github.com/deusflow/albumnews/internal/config"
	"github.com/deusflow/albumnews/internal/gemini"
	"github.com/deusflow/albumnews/internal/linkdecode"
	"github.com/deusflow/albumnews/internal/logger"
	"github.com/deusflow/albumnews/internal/media"
	"github.com/deusflow/albumnews/internal/mediacache"
	"github.com/deusflow/albumnews/internal/metrics"
	"github.com/deusflow/albumnews/internal/ratelimit"
	"github.com/deusflow/albumnews/internal/resolver"
	"github.com/deusflow/albumnews/internal/retry"
	"github.com/deusflow/albumnews/internal/rss"
	"github.com/deusflow/albumnews/internal/scraper"
	"github.com/deusflow/albumnews/internal/storage"
	"github.com/deusflow/albumnews/internal/telegram"
	"github.com/deusflow/albumnews/internal/translate"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return
		}
		log.Fatalf("configuration error: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("❌ fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	categories, err := cfg.Categories()
	if err != nil {
		return fmt.Errorf("error loading categories: %w", err)
	}

	ledger, err := storage.Open(ctx, storage.Options{Backend: cfg.LedgerBackend, Path: cfg.DBPath, DSN: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("error opening ledger: %w", err)
	}
	defer ledger.Close()

	store, err := mediacache.NewDiskStore(cfg.DataDir)
	if err != nil {
		return err
	}

	tr, closeTr, err := newTranslator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTr()

	page := scraper.New(cfg.UserAgent, time.Duration(cfg.OGTimeoutSeconds)*time.Second)
	fetcher := mediacache.NewFetcher(store, &http.Client{}, cfg.UserAgent, logger.Logger)
	fetcher.Observe = metrics.RecordCache

	assembler := batch.New(
		telegram.New(cfg.TelegramAPIBase, cfg.TelegramToken, cfg.TelegramChatID, logger.Logger),
		tr,
		ads.Static{Enabled: cfg.AdEnabled, DisablePreview: cfg.AdNoWebPreview, Default: cfg.AdDefaultHTML},
		ratelimit.NewPacer(time.Duration(cfg.SendIntervalMS)*time.Millisecond),
		batch.Options{
			Numbering: cfg.CaptionNumbering,
			Bilingual: cfg.Bilingual,
			Summary:   cfg.SummaryBelow,
			Location:  loc,
		},
		logger.Logger,
	)
	assembler.Observe = metrics.RecordDelivery

	feeds := rss.NewSource(rss.Options{
		Lang:      cfg.NewsLang,
		Geo:       cfg.NewsGeo,
		CEID:      cfg.NewsCEID,
		MaxItems:  cfg.MaxItems,
		UserAgent: cfg.UserAgent,
		Retry:     retry.Config{MaxAttempts: cfg.FeedRetries, Delay: 2 * time.Second, Backoff: true},
	}, logger.Logger)
	locator := media.NewLocator(page, media.Options{
		Placeholders: cfg.PlaceholderHosts(),
		ScrapeOG:     cfg.ScrapeOG,
		OnScrape:     func(r media.ScrapeResult) { metrics.RecordScrape(string(r)) },
	}, logger.Logger)

	hour, minute, _ := cfg.DigestClock()
	pipeline := app.New(app.Deps{
		Feeds:     feeds,
		Resolver:  resolver.New(linkdecode.New(nil, ""), linkdecode.DefaultAssetHosts, page, logger.Logger),
		Locator:   locator,
		Fetcher:   fetcher,
		Store:     store,
		Ledger:    ledger,
		Assembler: assembler,
	}, app.Options{
		Categories:      categories,
		Lookback:        cfg.Lookback(),
		Interval:        cfg.Interval(),
		DigestHour:      hour,
		DigestMinute:    minute,
		Location:        loc,
		OGBudget:        cfg.MaxOGPerCycle,
		MediaOnly:       cfg.MediaOnly,
		FollowRedirects: cfg.FollowRedirects,
		ImageMaxBytes:   cfg.ImageMaxBytes,
		VideoMaxBytes:   cfg.VideoMaxBytes,
		Retention:       cfg.Retention(),
	}, logger.Logger)

	if cfg.Monitoring {
		srv := startMonitoringServer(cfg.MonitoringPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("🚀 albumnews started", "mode", cfg.Mode, "categories", len(categories), "ledger", cfg.LedgerBackend, "cache", store.Root())
	if cfg.Mode == config.ModeDigest {
		return pipeline.RunDigest(ctx)
	}
	return pipeline.RunRealtime(ctx)
}

// newTranslator returns the caption translator and its cleanup.
func newTranslator(ctx context.Context, cfg *config.Config) (translate.Translator, func(), error) {
	if !cfg.Bilingual {
		return translate.None{}, func() {}, nil
	}

	opts := translate.Options{
		Provider:    cfg.TranslateProvider,
		Target:      cfg.TranslateTarget,
		OpenAIKey:   cfg.OpenAIKey,
		OpenAIModel: cfg.OpenAIModel,
		LibreURL:    cfg.LibreURL,
		LibreKey:    cfg.LibreKey,
	}
	cleanup := func() {}
	if cfg.TranslateProvider == translate.ProviderGemini {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		opts.Gemini = client
		cleanup = client.Close
	}

	tr, err := translate.New(opts, logger.Logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if m, ok := tr.(*translate.Memo); ok {
		prev := cleanup
		cleanup = func() { m.Close(); prev() }
	}
	logger.Info("🌐 translation enabled", "provider", cfg.TranslateProvider, "target", cfg.TranslateTarget)
	return tr, cleanup, nil
}

func startMonitoringServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", metrics.Global.HealthHandler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting monitoring server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Monitoring server error", "error", err)
		}
	}()
	return srv
}
