package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/auspexhq/insight-api/internal/alerting"
	"github.com/auspexhq/insight-api/internal/config"
	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/engine"
	"github.com/auspexhq/insight-api/internal/orchestrator"
	"github.com/auspexhq/insight-api/internal/platform/gemini"
	"github.com/auspexhq/insight-api/internal/platform/openai"
	"github.com/auspexhq/insight-api/internal/platform/postgres"
	"github.com/auspexhq/insight-api/internal/platform/rediscache"
	"github.com/auspexhq/insight-api/internal/queue"
	"github.com/auspexhq/insight-api/internal/service"
	"github.com/auspexhq/insight-api/internal/service/auth"
	"github.com/auspexhq/insight-api/internal/store"
	"github.com/auspexhq/insight-api/internal/worker"
)

// application holds the wired dependency graph for one server process.
type application struct {
	config         *config.Config
	logger         *slog.Logger
	db             *sql.DB
	taskQueue      *queue.InMemoryQueue
	jwtService     auth.JWTService
	insightService service.InsightService
}

// newApplication builds the full dependency graph: database, stores,
// engines, orchestrator, alerting, worker, queue, and services. The
// queue is started here; callers own cleanup.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	jobStore := postgres.NewPostgresJobStore(db, log)
	taskStore := postgres.NewPostgresTaskMetadataStore(db, log)
	insightStore := postgres.NewPostgresInsightStore(db, log)
	txRunner := store.NewDBTxRunner(db)

	registry, err := setupEngines(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up engines: %w", err)
	}

	orch, err := orchestrator.NewOrchestrator(log, registry, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to set up orchestrator: %w", err)
	}

	notifier, err := setupAlerting(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up alerting: %w", err)
	}

	invalidator, err := setupCache(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up cache invalidation: %w", err)
	}

	processor, err := worker.NewInsightProcessor(worker.ProcessorParams{
		Logger:    log,
		Jobs:      jobStore,
		Tasks:     taskStore,
		Insights:  insightStore,
		TxRunner:  txRunner,
		Generator: orch,
		Alerts:    notifier,
		Cache:     invalidator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up worker: %w", err)
	}

	taskQueue := queue.NewInMemoryQueue(processor, queue.InMemoryQueueConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
	}, log)

	retry := domain.RetryPolicy{
		MaxAttempts:       cfg.Task.MaxAttempts,
		MinBackoffSeconds: cfg.Task.MinBackoffSeconds,
		MaxBackoffSeconds: cfg.Task.MaxBackoffSeconds,
	}

	dispatcher, err := queue.NewDispatcher(taskQueue, taskStore, retry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up dispatcher: %w", err)
	}

	insightService, err := service.NewInsightService(service.InsightServiceParams{
		Jobs:       jobStore,
		Tasks:      taskStore,
		Insights:   insightStore,
		TxRunner:   txRunner,
		Dispatcher: dispatcher,
		Engines:    engineSnapshots(cfg),
		Retry:      retry,
		DailyLimit: cfg.Admission.DailyJobLimit,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up insight service: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT service: %w", err)
	}

	taskQueue.Start()

	return &application{
		config:         cfg,
		logger:         log,
		db:             db,
		taskQueue:      taskQueue,
		jwtService:     jwtService,
		insightService: insightService,
	}, nil
}

// setupEngines builds the provider registry for the configured engine
// pair. Both configured providers must resolve to an implementation.
func setupEngines(cfg *config.Config, log *slog.Logger) (*engine.Registry, error) {
	engines := make([]engine.Engine, 0, 2)
	for _, engCfg := range []config.EngineConfig{cfg.Engines.Primary, cfg.Engines.Secondary} {
		switch engCfg.Provider {
		case "gemini":
			// The genai client resolves transport settings at
			// construction; a background context is fine here.
			eng, err := gemini.NewGeminiEngine(context.Background(), log, engCfg.APIKey)
			if err != nil {
				return nil, fmt.Errorf("engine %s: %w", engCfg.ID, err)
			}
			engines = append(engines, eng)
		case "openai":
			eng, err := openai.NewOpenAIEngine(log, engCfg.APIKey, engCfg.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("engine %s: %w", engCfg.ID, err)
			}
			engines = append(engines, eng)
		default:
			return nil, fmt.Errorf("unsupported engine provider %q", engCfg.Provider)
		}
	}
	return engine.NewRegistry(engines...), nil
}

// engineSnapshots converts the configured engine pair into the domain
// snapshot admitted jobs carry. API keys deliberately stay behind in
// the config.
func engineSnapshots(cfg *config.Config) []domain.EngineConfig {
	configs := make([]domain.EngineConfig, 0, 2)
	for _, engCfg := range []config.EngineConfig{cfg.Engines.Primary, cfg.Engines.Secondary} {
		configs = append(configs, domain.EngineConfig{
			ID:                  engCfg.ID,
			Provider:            engCfg.Provider,
			Model:               engCfg.Model,
			TimeoutSeconds:      engCfg.TimeoutSeconds,
			Temperature:         engCfg.Temperature,
			MaxOutputTokens:     engCfg.MaxOutputTokens,
			PromptCostPer1K:     engCfg.PromptCostPer1K,
			CompletionCostPer1K: engCfg.CompletionCostPer1K,
		})
	}
	return configs
}

// setupAlerting builds the dead-letter notifier: always the log sink,
// plus the webhook sink when one is configured.
func setupAlerting(cfg *config.Config, log *slog.Logger) (*alerting.Notifier, error) {
	logSink, err := alerting.NewLogSink(log)
	if err != nil {
		return nil, err
	}

	sinks := []alerting.Sink{logSink}
	if cfg.Alerting.WebhookURL != "" {
		webhookSink, err := alerting.NewWebhookSink(log, cfg.Alerting.WebhookURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, webhookSink)
	}

	return alerting.NewNotifier(log, sinks...)
}

// setupCache builds the downstream cache invalidator, or nil when no
// Redis address is configured. Invalidation is best-effort either way.
func setupCache(cfg *config.Config, log *slog.Logger) (worker.CacheInvalidator, error) {
	if cfg.Cache.RedisAddr == "" {
		log.Info("cache invalidation disabled, no redis address configured")
		return nil, nil
	}

	client := rediscache.NewClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	return rediscache.NewInvalidator(client, time.Duration(cfg.Cache.TimeoutSeconds)*time.Second, log)
}

// cleanup releases process resources in reverse dependency order: stop
// delivering tasks first, then close the database.
func (app *application) cleanup() {
	if app.taskQueue != nil {
		app.taskQueue.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
}
