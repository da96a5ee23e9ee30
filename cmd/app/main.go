package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"storyloom/internal/config"
	"storyloom/internal/domain/ports/adapter"
	aiAdapters "storyloom/internal/infra/adapters/ai"
	videoAdapters "storyloom/internal/infra/adapters/video"
	pg "storyloom/internal/infra/db/postgres"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
	"storyloom/internal/infra/notify"
	red "storyloom/internal/infra/redis"
	"storyloom/internal/infra/security"
	"storyloom/internal/infra/storage"
	"storyloom/internal/infra/web"
	"storyloom/internal/infra/worker"
	"storyloom/internal/usecase"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting story generation worker")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pg.NewPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer dbPool.Close()
	go reportPoolStats(ctx, dbPool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes, falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(dbPool, encSvc)
	seqRepo := pg.NewSequenceRepo(dbPool, encSvc)
	chapterRepo := pg.NewChapterRepo(dbPool)
	quoteRepo := pg.NewQuoteRepo(dbPool)

	// ---- Generation stack ----
	var gen adapter.GenerationService
	var embedder adapter.Embedder
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode: using the no-op generation adapter")
		limited := aiAdapters.NewLimitedAI(
			aiAdapters.NewRetryingAI(aiAdapters.NewNoopAIAdapter(), cfg.AI.MaxAttempts, 0),
			cfg.AI.ConcurrentLimit,
		)
		gen, embedder = limited, limited
	} else {
		openAI, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIConfig{
			APIKey:          cfg.AI.OpenAIKey,
			BaseURL:         cfg.AI.BaseURL,
			TextModel:       cfg.AI.TextModel,
			StructuredModel: cfg.AI.StructuredModel,
			EmbeddingModel:  cfg.AI.EmbeddingModel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("openai")
		}
		limited := aiAdapters.NewLimitedAI(
			aiAdapters.NewRetryingAI(openAI, cfg.AI.MaxAttempts, 0),
			cfg.AI.ConcurrentLimit,
		)
		gen, embedder = limited, limited
	}

	var videoGen adapter.VideoGenerator
	if cfg.Video.GeminiKey != "" {
		videoGen, err = videoAdapters.NewVeoAdapter(ctx, cfg.Video.GeminiKey, cfg.Video.Model, cfg.Video.PollInterval)
		if err != nil {
			logger.Fatal().Err(err).Msg("veo")
		}
	} else {
		logger.Warn().Msg("video.gemini_key not set, video jobs will fail")
	}

	assetStore, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("asset store")
	}

	var notifier adapter.CompletionNotifier
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout, logger)
	}

	// ---- Engines and use cases ----
	outlineEngine := usecase.NewOutlineEngine(seqRepo, gen, logger)
	contentEngine := usecase.NewContentEngine(chapterRepo, gen, logger)
	metadataEngine := usecase.NewMetadataEngine(seqRepo, gen, embedder, logger)
	videoEngine := usecase.NewVideoEngine(quoteRepo, seqRepo, gen, videoGen, assetStore, &usecase.VideoRenderOptions{
		DurationSeconds: cfg.Video.DurationSeconds,
		FPS:             cfg.Video.FPS,
		AspectRatio:     cfg.Video.AspectRatio,
		Resolution:      cfg.Video.Resolution,
	}, logger)

	retryUC := usecase.NewRetryUseCase(jobRepo, chapterRepo, seqRepo, quoteRepo, logger)
	statsUC := usecase.NewStatsUseCase(jobRepo, logger)

	// ---- Worker loop ----
	sink := usecase.NewJobProgressSink(jobRepo, logger)
	processor := worker.NewJobProcessor(
		jobRepo, seqRepo, chapterRepo, quoteRepo,
		outlineEngine, contentEngine, metadataEngine, videoEngine,
		sink, notifier, logger,
	)
	workerPool := worker.NewPool(cfg.Worker.Concurrency, logger)
	workerPool.Start(ctx)
	poller := worker.NewPoller(
		jobRepo, chapterRepo, processor, workerPool,
		cfg.Worker.PollInterval, cfg.Worker.BatchSize, cfg.Worker.SweepInterval,
		logger,
	)
	go poller.Run(ctx)

	// ---- Ops HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	server := web.NewServer(cfg.Web.Port, statsUC, retryUC, rateLimiter, auth, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("ops server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown")
	}

	// In-flight jobs run to completion; the grace period bounds how long we
	// wait before abandoning them to the next startup's orphan sweep.
	drained := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("shutdown grace elapsed with jobs still in flight")
	}
	logger.Info().Msg("stopped")
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
