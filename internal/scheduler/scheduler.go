// Package scheduler periodically processes submitted applications.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"loan-workflow/internal/common/logger"

	"github.com/robfig/cron/v3"
)

// PendingProcessor runs the workflow for up to limit queued applications and
// reports how many it processed.
type PendingProcessor interface {
	ProcessPending(ctx context.Context, limit int) (int, error)
}

type Config struct {
	// Schedule is a standard five-field cron spec or a descriptor such as "@every 5m".
	Schedule  string
	BatchSize int
	// Timeout bounds a single batch.
	Timeout time.Duration
}

type Scheduler struct {
	cron      *cron.Cron
	config    Config
	processor PendingProcessor
	logger    logger.Logger
}

func New(config Config, processor PendingProcessor, log logger.Logger) *Scheduler {
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})
	cl := cronLogger{log: log}

	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		config:    config,
		processor: processor,
		logger:    log,
	}
}

// Start registers the processing job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.Schedule, s.run); err != nil {
		return fmt.Errorf("schedule pending applications job %q: %w", s.config.Schedule, err)
	}
	s.logger.Info("scheduled pending applications job", map[string]interface{}{
		"schedule":  s.config.Schedule,
		"batchSize": s.config.BatchSize,
	})
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running batch until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	_, _ = s.RunOnce(ctx)
}

// RunOnce processes a single batch.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	processed, err := s.processor.ProcessPending(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("pending applications batch failed", map[string]interface{}{
			"error":     err,
			"processed": processed,
		})
		return processed, err
	}
	if processed > 0 {
		s.logger.Info("pending applications processed", map[string]interface{}{
			"processed":  processed,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
	return processed, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, fieldsOf(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := fieldsOf(keysAndValues)
	fields["error"] = err
	l.log.Error(msg, fields)
}

func fieldsOf(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
