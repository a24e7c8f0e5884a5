package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

// Work produces a job's markdown report. It must not return partial output;
// failures are expressed inside the report text.
type Work func(ctx context.Context) string

// ErrorReport renders an unexpected failure as the job's final report.
type ErrorReport func(reason string) string

// Runner starts fire-and-forget jobs and records their results in a Store.
type Runner struct {
	store       Store
	errorReport ErrorReport
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	wg          sync.WaitGroup
	newID       func() string
}

func NewRunner(store Store, errorReport ErrorReport, logger *zap.Logger, metrics *telemetry.Metrics) *Runner {
	if errorReport == nil {
		errorReport = func(reason string) string { return "# Error\n\n" + reason }
	}
	return &Runner{
		store:       store,
		errorReport: errorReport,
		logger:      logging.OrNop(logger),
		metrics:     metrics,
		newID:       uuid.NewString,
	}
}

// Start records the job as processing and runs work in the background. The
// job is detached from ctx: it runs to completion even if the request ends.
func (r *Runner) Start(ctx context.Context, kind Kind, work Work) (string, error) {
	id := r.newID()
	if err := r.store.Put(ctx, id, Result{Status: StatusProcessing, Kind: kind}); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	r.logger.Info("job_started", zap.String("job_id", id), zap.String("kind", string(kind)))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.WithoutCancel(ctx), id, kind, work)
	}()
	return id, nil
}

func (r *Runner) run(ctx context.Context, id string, kind Kind, work Work) {
	start := time.Now()
	status := "done"
	report := func() (report string) {
		defer func() {
			if rec := recover(); rec != nil {
				status = "error"
				r.logger.Error("job_panic", zap.String("job_id", id), zap.Any("panic", rec), zap.Stack("stack"))
				report = r.errorReport(fmt.Sprint(rec))
			}
		}()
		return work(ctx)
	}()

	if err := r.store.Put(ctx, id, Result{Status: StatusDone, Kind: kind, Report: report}); err != nil {
		status = "store_failed"
		r.logger.Error("job_store_failed", zap.String("job_id", id), zap.Error(err))
	}
	r.metrics.JobFinished(string(kind), status)
	r.logger.Info("job_finished",
		zap.String("job_id", id),
		zap.String("kind", string(kind)),
		zap.String("status", status),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
}

func (r *Runner) Result(ctx context.Context, id string) (Result, error) {
	return r.store.Get(ctx, id)
}

// Wait blocks until running jobs finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
