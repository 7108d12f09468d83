package worker

import (
	"context"
	"time"

	"campusloans/internal/loans/service"
	"campusloans/pkg/logger"
)

const runTimeout = 2 * time.Minute

// Sweeper periodically marks Active loans past their due date as Overdue and
// retries waitlist promotions that a failed trigger may have missed.
type Sweeper struct {
	loans    service.LoanService
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(loans service.LoanService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		loans:    loans,
		interval: interval,
		log:      log.With("worker", "loan-sweeper"),
	}
}

func (w *Sweeper) Name() string {
	return "loan-sweeper"
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("Loan sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Sweeper) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	marked, sweepErr := w.loans.SweepOverdue(ctx)
	promoted, reconcileErr := w.loans.ReconcileWaitlists(ctx)

	if marked > 0 || promoted > 0 {
		w.log.Info("Loan sweep completed", "marked_overdue", marked, "promoted", promoted)
	}
	if sweepErr != nil {
		return sweepErr
	}
	return reconcileErr
}
