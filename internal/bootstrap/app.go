// Package bootstrap handles application initialization and lifecycle
// management for the curator service.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/curator/internal/ai"
	"github.com/jonesrussell/north-cloud/curator/internal/config"
	"github.com/jonesrussell/north-cloud/curator/internal/database"
	"github.com/jonesrussell/north-cloud/curator/internal/digest"
	"github.com/jonesrussell/north-cloud/curator/internal/events"
	"github.com/jonesrussell/north-cloud/curator/internal/fetcher"
	"github.com/jonesrussell/north-cloud/curator/internal/logger"
	"github.com/jonesrussell/north-cloud/curator/internal/metrics"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
	"github.com/jonesrussell/north-cloud/curator/internal/scheduler"
	"github.com/jonesrussell/north-cloud/curator/internal/scorer"
	"github.com/jonesrussell/north-cloud/curator/internal/tasks"
)

const version = "dev"

// Start initializes and runs the curator service until SIGINT or SIGTERM.
func Start() error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: Setup database
	db, err := SetupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Failed to close database", logger.Error(closeErr))
		}
	}()

	// Operator tunables stored in the database win over file/env config.
	ApplyStoreOverrides(cfg, database.NewSysConfigRepository(db.DB()), log)

	// Phase 3: Setup event publisher (optional)
	publisher := SetupEventPublisher(cfg, log)
	defer func() { _ = publisher.Close() }()

	// Phase 4: Build the pipeline and run until shutdown
	m := metrics.New()
	server := SetupOpsServer(cfg, m, log)

	app := buildApp(cfg, db, publisher, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Shutdown signal received", logger.String("signal", sig.String()))

	cancel()
	app.stop()
	ShutdownOpsServer(server, log)

	log.Info("Curator stopped")
	return nil
}

// app holds the running pipeline components.
type app struct {
	scheduler *scheduler.Scheduler
	worker    *tasks.Worker
	scorer    *scorer.Scorer
	cron      *cron.Cron
	log       logger.Logger
}

func buildApp(
	cfg *config.Config,
	db *database.DB,
	publisher *events.Publisher,
	m *metrics.Metrics,
	log logger.Logger,
) *app {
	sqlDB := db.DB()
	sourceRepo := database.NewSourceRepository(sqlDB)
	contentRepo := database.NewContentRepository(sqlDB)
	tagRepo := database.NewTagRepository(sqlDB)
	taskRepo := database.NewTaskRepository(sqlDB)
	digestRepo := database.NewDigestRepository(sqlDB)
	sysRepo := database.NewSysConfigRepository(sqlDB)

	var invoker ai.Invoker
	if cfg.AI.Enabled {
		invoker = ai.NewAnthropicInvoker(cfg.AI.APIKey, cfg.AI.Model, log)
	}

	registry := fetcher.NewRegistry()
	client := &http.Client{Timeout: cfg.Scheduler.FetchTimeout}
	registry.Register(models.SourceTypeRSS, fetcher.NewRSSFetcher(client))
	registry.Register(models.SourceTypeAPI, fetcher.NewAPIFetcher(client))
	registry.Register(models.SourceTypeManual, fetcher.NewManualFetcher())
	if invoker != nil {
		registry.Register(models.SourceTypeAIQuery, fetcher.NewAIQueryFetcher(invoker))
	}

	orchestrator := tasks.NewOrchestrator(taskRepo)

	var worker *tasks.Worker
	var taskSvc scorer.TaskService
	if invoker != nil {
		worker = tasks.NewWorker(taskRepo, invoker, m, cfg.Tasks, log)
		taskSvc = orchestrator
	}

	var summarizer digest.Summarizer = &digest.HeadlineSummarizer{}
	if invoker != nil {
		summarizer = &digest.TaskSummarizer{
			Tasks:    orchestrator,
			Fallback: summarizer,
			AIWait:   cfg.Digest.AIWaitTimeout,
		}
	}
	builder := digest.New(contentRepo, digestRepo, summarizer, publisher, m, cfg.Digest, log)

	a := &app{
		scheduler: scheduler.New(sourceRepo, contentRepo, registry, sysRepo, publisher, m, cfg.Scheduler, log),
		worker:    worker,
		scorer:    scorer.New(contentRepo, sourceRepo, tagRepo, taskSvc, m, cfg.Scorer, log),
		cron:      cron.New(),
		log:       log,
	}

	if _, err := a.cron.AddFunc(cfg.Digest.Cron, func() {
		if _, buildErr := builder.BuildYesterday(context.Background()); buildErr != nil {
			log.Error("Digest build failed", logger.Error(buildErr))
		}
	}); err != nil {
		log.Error("Invalid digest cron expression, digest schedule disabled",
			logger.String("cron", cfg.Digest.Cron), logger.Error(err))
	}

	return a
}

func (a *app) start(ctx context.Context) {
	a.scheduler.Start(ctx)
	if a.worker != nil {
		a.worker.Start(ctx)
	}
	a.scorer.Start(ctx)
	a.cron.Start()
}

// stop halts components in pipeline order and waits for in-flight work.
func (a *app) stop() {
	a.scheduler.Stop()
	if a.worker != nil {
		a.worker.Stop()
	}
	a.scorer.Stop()
	<-a.cron.Stop().Done()
}
