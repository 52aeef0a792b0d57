// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-workflow/internal/api"
	"loan-workflow/internal/common/aws"
	"loan-workflow/internal/common/camunda"
	"loan-workflow/internal/common/config"
	"loan-workflow/internal/common/database"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/observability"
	"loan-workflow/internal/events"
	"loan-workflow/internal/pipeline"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/scheduler"
	"loan-workflow/internal/search"
	"loan-workflow/internal/service"
)

const shutdownTimeout = 30 * time.Second

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		bootLog.Fatal("logger init failed", zap.Error(err))
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting loan workflow service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	obs, err := observability.New(cfg.Observability)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			zapLog.Warn("observability shutdown failed", zap.Error(err))
		}
	}()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.EnsureSchema {
		if err := repository.EnsureSchema(ctx, pg.DB); err != nil {
			zapLog.Fatal("schema setup failed", zap.Error(err))
		}
		zapLog.Info("Loan schema ensured")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.ReadinessCheck{
		"postgres": pg.Ping,
		"redis":    redis.Ping,
	}

	// --- Init Elasticsearch (optional) ---
	var indexer *search.TranscriptIndexer
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = search.NewTranscriptIndexer(esClient.Client, cfg.Database.Elasticsearch.TranscriptIndex, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Warn("transcript index not created", zap.Error(err))
		}
		checks["elasticsearch"] = esClient.Ping
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init notification channels ---
	awsClients, err := aws.NewClients(ctx, cfg.Integrations.AWS)
	if err != nil {
		zapLog.Fatal("aws clients failed", zap.Error(err))
	}

	// --- Init RabbitMQ (optional) ---
	var publisher *events.Publisher
	if cfg.Integrations.RabbitMQ.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			publisher, err = events.NewPublisher(cfg.Integrations.RabbitMQ.URL, cfg.Integrations.RabbitMQ.Exchange, log)
			return err
		}, 10, 2*time.Second, zapLog, "RabbitMQ connection")
		if err != nil {
			zapLog.Fatal("rabbitmq failed after retries", zap.Error(err))
		}
		defer publisher.Close()
		zapLog.Info("RabbitMQ connected successfully")
	}

	// --- Workflow ---
	pc := pipelineConfig(cfg)
	p, err := pipeline.New(pc, collaborators(cfg, pc, pg, redis, log), log, nil)
	if err != nil {
		zapLog.Fatal("workflow engine init failed", zap.Error(err))
	}
	repo := repository.NewPostgresRepository(pg.DB)
	notifier := newNotifier(cfg, awsClients, log)

	deps := service.Dependencies{
		Repository: repo,
		Runner:     p,
		Numbers:    service.NewNumberGenerator(redis.Client, time.Duration(cfg.Loan.NumberReservationTTL)*time.Second, log),
		Notifier:   notifier,
		Metrics:    obs,
	}
	if indexer != nil {
		deps.Index = indexer
	}
	if publisher != nil {
		deps.Events = publisher
	}

	// --- Zeebe job workers (optional) ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")

		if cfg.Camunda.DeployResource != "" {
			keys, err := zeebe.DeployProcess(ctx, cfg.Camunda.DeployResource)
			if err != nil {
				zapLog.Fatal("process deployment failed", zap.String("resource", cfg.Camunda.DeployResource), zap.Error(err))
			}
			zapLog.Info("Process deployed", zap.String("resource", cfg.Camunda.DeployResource), zap.Any("processes", keys))
		}

		deps.Processes = zeebe
		checks["zeebe"] = zeebe.HealthCheck
		workers = startWorkers(cfg, zeebe, jobHandlers(p, notifier, repo, log), log)
		zapLog.Info("Job workers registered", zap.Int("count", len(workers)))
	}

	svc := service.New(service.Config{
		ProcessID:        cfg.Camunda.ProcessID,
		PendingBatchSize: cfg.Loan.ProcessingBatchSize,
	}, deps, log)

	// --- Queue processing ---
	var sched *scheduler.Scheduler
	if cfg.Loan.ProcessingSchedule != "" {
		sched = scheduler.New(scheduler.Config{
			Schedule:  cfg.Loan.ProcessingSchedule,
			BatchSize: cfg.Loan.ProcessingBatchSize,
		}, svc, log)
		if err := sched.Start(); err != nil {
			zapLog.Fatal("scheduler start failed", zap.Error(err))
		}
	}

	// --- HTTP API, health & metrics ---
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.NewHandler(svc, log), checks, log),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			zapLog.Warn("scheduler did not stop cleanly", zap.Error(err))
		}
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	zapLog.Info("Shutdown complete")
}
