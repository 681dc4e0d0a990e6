package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoicer/internal/amqp"
	applog "invoicer/internal/log"
	"invoicer/internal/services"
)

// Runner is the part of services.Processor the worker drives.
type Runner interface {
	PendingPeriod(ctx context.Context) (string, error)
	ProcessMonthWith(ctx context.Context, period string, opts services.RunOptions) (services.Result, error)
	Config() services.ProcessorConfig
}

// PeriodWorker runs one accounting period per process request.
type PeriodWorker struct {
	runner Runner
	logger *applog.Logger
}

func NewPeriodWorker(runner Runner, logger *applog.Logger) *PeriodWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &PeriodWorker{runner: runner, logger: logger.WithComponent(applog.ComponentWorker)}
}

// HandleProcessRequest runs the requested period. A nil return acks the
// delivery. Errors that a retry cannot fix are logged and swallowed; the
// rest are returned so the delivery is requeued.
func (w *PeriodWorker) HandleProcessRequest(ctx context.Context, msg *amqp.ProcessPeriodRequest) error {
	start := time.Now()
	period := msg.Period
	if period == "" {
		pending, err := w.runner.PendingPeriod(ctx)
		if err != nil {
			return fmt.Errorf("read pending period: %w", err)
		}
		period = pending
	}

	cfg := w.runner.Config()
	res, err := w.runner.ProcessMonthWith(ctx, period, services.RunOptions{
		ForceOverwrite: msg.ForceOverwrite || cfg.ForceOverwrite,
		AllowReprocess: cfg.AllowReprocess,
	})
	switch {
	case errors.Is(err, services.ErrNoPeriod):
		w.logger.InfoContext(ctx, "No period pending, nothing to do")
		return nil
	case errors.Is(err, services.ErrInvalidMatchMode):
		w.logger.ErrorContext(ctx, "Dropping process request that cannot succeed",
			applog.FieldPeriod, period,
			applog.FieldError, err)
		return nil
	case err != nil:
		return fmt.Errorf("process %s: %w", period, err)
	}

	w.logger.InfoContext(ctx, "Process request handled",
		applog.FieldRunID, res.RunID,
		applog.FieldPeriod, res.Period,
		applog.FieldStatus, res.Status,
		applog.FieldRowsWritten, res.RowsWritten,
		applog.FieldInvoicesAssigned, res.InvoicesAssigned,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// ProcessPending runs whatever period the config table holds. The worker
// calls it once at startup to pick up work queued while it was down.
func (w *PeriodWorker) ProcessPending(ctx context.Context) error {
	return w.HandleProcessRequest(ctx, &amqp.ProcessPeriodRequest{})
}
