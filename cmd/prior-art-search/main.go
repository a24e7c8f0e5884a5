package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/config"
	"github.com/joelkehle/priorart-assistant/internal/jobs"
	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/operator"
	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
	"github.com/joelkehle/priorart-assistant/internal/priorartsearch"
	"github.com/joelkehle/priorart-assistant/internal/specdraft"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

const serviceName = "prior-art-search"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment")
	addr := flag.String("addr", "", "Listen address (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.New("info", "console").Fatal("config_invalid", zap.Error(err))
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Fatal("tracing_setup_failed", zap.Error(err))
	}
	metrics := telemetry.NewMetrics()

	if cfg.AnthropicAPIKey == "" {
		logger.Warn("anthropic_api_key_missing", zap.String("effect", "every model call will fail with a config failure"))
	}
	if cfg.SerpAPIKey == "" {
		logger.Warn("serpapi_key_missing", zap.String("effect", "searches will fail and reports will list no patents"))
	}

	gateway := llm.NewGateway(llm.Config{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.LLMModel,
		Timeout:   cfg.LLMTimeout,
		BaseDelay: cfg.RetryBaseDelay,
	}, logger.Named("llm"), metrics)

	var searcher patentsearch.Searcher = patentsearch.NewClient(patentsearch.ClientConfig{
		APIKey:          cfg.SerpAPIKey,
		BaseURL:         cfg.SearchBaseURL,
		DocumentBaseURL: cfg.DocumentBaseURL,
		BaseDelay:       cfg.RetryBaseDelay,
		HTTPClient:      &http.Client{Timeout: cfg.SearchTimeout},
	}, logger.Named("search"), metrics)
	if cfg.SearchCachePath != "" {
		cached, err := patentsearch.NewCachedSearcher(cfg.SearchCachePath, cfg.SearchCacheTTL, searcher, logger.Named("search_cache"))
		if err != nil {
			logger.Fatal("search_cache_open_failed", zap.String("path", cfg.SearchCachePath), zap.Error(err))
		}
		defer cached.Close()
		searcher = cached
	}
	fetcher := patentsearch.NewFetcher(cfg.DocumentBaseURL, &http.Client{Timeout: cfg.FetchTimeout}, logger.Named("fetch"), metrics)

	pipeline := priorartsearch.NewPipeline(gateway, searcher, fetcher, priorartsearch.Options{
		Concurrency:  cfg.SearchConcurrency,
		PageSize:     cfg.SearchPageSize,
		MaxShortlist: cfg.MaxShortlist,
	}, logger.Named("pipeline"), metrics)
	drafter := specdraft.NewDrafter(gateway, logger.Named("specdraft"))

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()
	runner := jobs.NewRunner(store, priorartsearch.UnexpectedErrorReport, logger.Named("jobs"), metrics)

	handler := operator.NewServer(runner, pipeline, drafter, operator.Options{
		WebDir:         cfg.WebDir,
		MetricsHandler: metrics.Handler(),
		PDFRenderer:    operator.NewChromiumPDFRenderer(cfg.WebDir),
	}, logger.Named("http"))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("model", gateway.ModelName()),
		zap.String("job_store", cfg.JobStore),
		zap.Bool("search_cache", cfg.SearchCachePath != ""),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server_failed", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := runner.Wait(drainCtx); err != nil {
		logger.Warn("jobs_still_running_at_shutdown", zap.Error(err))
	}
	if err := shutdownTracing(drainCtx); err != nil {
		logger.Warn("tracing_shutdown_failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobs.Store, func()) {
	if cfg.JobStore != "redis" {
		return jobs.NewMemoryStore(), func() {}
	}
	store := jobs.NewRedisStore(jobs.NewRedisClient(cfg.RedisAddr), cfg.JobTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("redis_unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return store, func() { _ = store.Close() }
}
