// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/config"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/domain/ports/repository"
	aiAdapters "market-genome/internal/infra/adapters/ai"
	"market-genome/internal/infra/adapters/collector"
	"market-genome/internal/infra/adapters/notify"
	"market-genome/internal/infra/adapters/report"
	"market-genome/internal/infra/api"
	pg "market-genome/internal/infra/db/postgres"
	"market-genome/internal/infra/logging"
	"market-genome/internal/infra/memory"
	"market-genome/internal/infra/metrics"
	red "market-genome/internal/infra/redis"
	"market-genome/internal/infra/sched"
	"market-genome/internal/infra/security"
	"market-genome/internal/infra/storage"
	"market-genome/internal/infra/worker"
	"market-genome/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("market genome stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting market genome")

	// ---- Redis (optional) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer c.Close()
		redisClient = c
	}

	// ---- Encryption ----
	var sealer *security.Sealer
	if cfg.Security.EncryptionKey != "" {
		s, err := security.NewSealer(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		sealer = s
	}

	// ---- Artifact storage ----
	var (
		store    adapter.ArtifactStore
		filesDir string
	)
	switch cfg.Storage.Driver {
	case "s3":
		s, err := storage.NewS3Store(storage.S3Config{
			Endpoint:   cfg.Storage.S3Endpoint,
			Region:     cfg.Storage.S3Region,
			AccessKey:  cfg.Storage.S3AccessKey,
			SecretKey:  cfg.Storage.S3SecretKey,
			Bucket:     cfg.Storage.S3Bucket,
			UseSSL:     cfg.Storage.S3UseSSL,
			PresignTTL: cfg.Storage.PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("s3 storage: %w", err)
		}
		store = s
	default:
		s, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Server.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("local storage: %w", err)
		}
		store, filesDir = s, s.Dir()
	}

	// ---- AI backend ----
	ai, err := buildAI(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	// ---- Pipeline collaborators ----
	webCollector := collector.NewWebCollector(collector.Options{
		UserAgent:      cfg.Collector.UserAgent,
		Timeout:        cfg.Collector.Timeout,
		RequestsPerSec: cfg.Collector.RequestsPerSec,
		MaxBodyBytes:   cfg.Collector.MaxBodyBytes,
	}, logger)
	renderer := report.NewPDFRenderer(store, logger)
	notifier, err := buildNotifier(cfg, store, logger)
	if err != nil {
		return err
	}
	stages := usecase.DefaultStages(usecase.PipelineDeps{
		Collector: webCollector,
		Analyzer:  usecase.NewAnalyzer(ai, cfg.AI.DefaultModel),
		Renderer:  renderer,
		Notifier:  notifier,
		Logger:    logger,
	})

	// ---- Job store ----
	jobs, purger, closeJobs, err := buildJobRepo(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeJobs()

	pool := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	pool.Start(runCtx)

	genomeUC := usecase.NewGenomeUseCase(jobs, pool, stages, notifier, store, usecase.GenomeOptions{
		StageTimeout:  cfg.Pipeline.StageTimeout,
		NotifyTimeout: cfg.SMTP.Timeout,
	}, logger)

	// ---- Chat ----
	var archive repository.ConversationArchive = storage.NewConversationArchive(store, sealer)
	if cfg.Storage.ArchiveStore == "redis" && redisClient != nil {
		archive = red.NewConversationArchive(redisClient, cfg.Jobs.TTL, sealer)
	}
	memLimiter := memory.NewRateLimiter()
	var limiter usecase.MessageLimiter = memLimiter
	if redisClient != nil {
		limiter = red.NewRateLimiter(redisClient)
	}
	chatUC := usecase.NewChatUseCase(memory.NewChatSessionRepo(), archive, ai, genomeUC, limiter, usecase.ChatOptions{
		Model:          cfg.AI.DefaultModel,
		HistoryWindow:  cfg.Chat.HistoryWindow,
		ContextTokens:  cfg.Chat.ContextTokens,
		HandlerTimeout: cfg.Chat.HandlerTimeout,
		RateLimit:      cfg.Chat.RateLimit,
		RateWindow:     cfg.Chat.RateWindow,
	}, logger)

	// ---- Scheduler ----
	var locker sched.Locker
	if cfg.Scheduler.DistributedLock && redisClient != nil {
		locker = red.NewLocker(redisClient)
	}
	scheduler := sched.NewScheduler(locker, cfg.Scheduler.TaskTimeout, logger)
	if err := scheduler.Add(cfg.Scheduler.SessionSweepCron, "session_sweep",
		sched.SessionSweep(chatUC, memLimiter, cfg.Chat.IdleTimeout)); err != nil {
		return err
	}
	if purger != nil {
		if err := scheduler.Add(cfg.Scheduler.JobPurgeCron, "job_purge", sched.JobPurge(purger, cfg.Jobs.TTL)); err != nil {
			return err
		}
	}
	scheduler.Start()

	// ---- HTTP ----
	srv := api.NewServer(genomeUC, chatUC,
		api.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
		api.Options{FilesDir: filesDir, RequestTimeout: cfg.Server.RequestTimeout, Version: version},
		logger)
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case runErr = <-errc:
		logger.Error().Err(runErr).Msg("http server failed")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	scheduler.Stop()
	stopRuns()
	pool.Stop()
	logger.Info().Msg("bye")
	return runErr
}

// buildAI wires every configured provider behind the model router, a
// concurrency cap and retries.
func buildAI(ctx context.Context, cfg *config.Config, store adapter.ArtifactStore, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	if cfg.AI.Provider == "noop" {
		logger.Warn().Msg("AI provider is noop; analyses will be placeholders")
		return aiAdapters.NewNoopAIAdapter(logger), nil
	}

	providers := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIOptions{
			APIKey:       cfg.AI.OpenAIKey,
			BaseURL:      cfg.AI.OpenAIBaseURL,
			DefaultModel: modelFor(cfg, "openai"),
			ImageModel:   cfg.AI.ImageModel,
			MaxTokens:    cfg.AI.MaxTokens,
			Temperature:  cfg.AI.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = a
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, aiAdapters.GeminiOptions{
			APIKey:       cfg.AI.GeminiKey,
			BaseURL:      cfg.AI.GeminiURL,
			DefaultModel: modelFor(cfg, "gemini"),
			MaxTokens:    cfg.AI.MaxTokens,
			Temperature:  cfg.AI.Temperature,
			Images:       store,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = a
	}
	if cfg.AI.AnthropicKey != "" {
		a, err := aiAdapters.NewAnthropicAdapter(cfg.AI.AnthropicKey, modelFor(cfg, "anthropic"), cfg.AI.MaxTokens, cfg.AI.Temperature)
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		providers["anthropic"] = a
	}

	router := aiAdapters.NewRouter(cfg.AI.Provider, cfg.AI.ImageProvider, providers, cfg.AI.ModelProviders)
	backend := aiAdapters.NewBackend(router, cfg.AI.Provider, aiAdapters.RetryPolicy{
		MaxAttempts: cfg.AI.Retry.MaxAttempts,
		BaseDelay:   cfg.AI.Retry.BaseDelay,
		MaxDelay:    cfg.AI.Retry.MaxDelay,
		Timeout:     cfg.AI.Timeout,
	}, cfg.AI.ConcurrentLimit, logger)
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	logger.Info().Strs("providers", names).Str("default", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("AI backend ready")
	return backend, nil
}

// modelFor keeps the configured default model on the default provider;
// other providers fall back to their own defaults.
func modelFor(cfg *config.Config, provider string) string {
	if provider == cfg.AI.Provider {
		return cfg.AI.DefaultModel
	}
	return ""
}

func buildNotifier(cfg *config.Config, store adapter.ArtifactStore, logger *zerolog.Logger) (adapter.Notifier, error) {
	var primary adapter.Notifier
	if cfg.SMTP.Host != "" {
		primary = notify.NewMailNotifier(notify.SMTPOptions{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
			Timeout:   cfg.SMTP.Timeout,
		}, store, logger)
	} else {
		logger.Warn().Msg("smtp.host not set; reports will not be emailed")
		primary = notify.NewNoopNotifier(logger)
	}
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return primary, nil
	}
	tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	return notify.NewFanout(primary, logger, tg), nil
}

// buildJobRepo returns the job store, an optional purger for stores without
// native expiry, and a close func.
func buildJobRepo(ctx context.Context, cfg *config.Config, redisClient *red.Client, logger *zerolog.Logger) (repository.GenomeJobRepository, sched.JobPurger, func(), error) {
	switch cfg.Jobs.Store {
	case "redis":
		if redisClient == nil {
			return nil, nil, nil, errors.New("jobs.store=redis needs redis.url")
		}
		return red.NewGenomeJobRepo(redisClient, cfg.Jobs.TTL), nil, func() {}, nil
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		repo := pg.NewGenomeJobRepo(pool, pg.NewTxManager(pool))
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		var jobs repository.GenomeJobRepository = repo
		if redisClient != nil {
			jobs = pg.NewJobRepoCacheDecorator(repo, redisClient, cfg.Redis.TTL, logger)
		}
		return jobs, repo, pool.Close, nil
	default:
		repo, err := memory.NewGenomeJobRepo(cfg.Jobs.Retention)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, func() {}, nil
	}
}
