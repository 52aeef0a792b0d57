// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"loan-workflow/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler completes or fails its own jobs.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions tunes job activation for one task type.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for taskType. A panicking handler is logged and
// the job left to time out so the broker hands it out again.
func NewWorker(
	client zbc.Client,
	taskType string,
	opts WorkerOptions,
	handler JobHandler,
	log logger.Logger,
) *CamundaWorker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})

	step := client.NewJobWorker().
		JobType(taskType).
		Handler(func(client worker.JobClient, job entities.Job) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("job handler panicked", map[string]interface{}{
						"jobKey": job.Key,
						"panic":  fmt.Sprint(r),
					})
				}
			}()
			handler.Handle(client, job)
		}).
		MaxJobsActive(opts.MaxJobsActive).
		Name("loan-workflow-" + taskType)
	if opts.Timeout > 0 {
		step = step.Timeout(opts.Timeout)
	}

	return &CamundaWorker{
		worker:   step.Open(),
		logger:   log,
		taskType: taskType,
	}
}

func (w *CamundaWorker) Start() {
	w.logger.Info("worker started", nil)
}

// Stop closes the job worker and waits for in-flight jobs to drain or ctx to end.
func (w *CamundaWorker) Stop(ctx context.Context) {
	w.logger.Info("stopping worker", nil)

	done := make(chan struct{})
	go func() {
		w.worker.Close()
		w.worker.AwaitClose()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker did not stop before deadline", nil)
	}
}
