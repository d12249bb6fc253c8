package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ReconcileRunner is the sweep the scheduler invokes.
type ReconcileRunner interface {
	ReconcileAll(ctx context.Context) error
}

// ReconcileWorker runs the ledger reconciliation sweep on a cron
// schedule. Sweeps do not overlap: a run still in progress makes the next
// tick a no-op.
type ReconcileWorker struct {
	logger   *slog.Logger
	service  ReconcileRunner
	schedule string
	cron     *cron.Cron

	running chan struct{}
}

func NewReconcileWorker(logger *slog.Logger, service ReconcileRunner, schedule string) *ReconcileWorker {
	return &ReconcileWorker{
		logger:   logger,
		service:  service,
		schedule: schedule,
		cron:     cron.New(),
		running:  make(chan struct{}, 1),
	}
}

// Start registers the schedule and launches the cron loop.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		select {
		case w.running <- struct{}{}:
			defer func() { <-w.running }()
		default:
			w.logger.Warn("Reconciliation sweep still running, skipping tick")
			return
		}

		sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		started := time.Now()
		if err := w.service.ReconcileAll(sweepCtx); err != nil {
			w.logger.Error("Scheduled reconciliation finished with errors",
				"duration", time.Since(started), "error", err)
			return
		}
		w.logger.Info("Scheduled reconciliation finished", "duration", time.Since(started))
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Reconciliation scheduler started", "schedule", w.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (w *ReconcileWorker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("Reconciliation scheduler stopped")
}
