package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	loanserrors "campusloans/internal/loans/errors"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"

	"github.com/google/uuid"
)

// ProcessWaitlist promotes the oldest Waitlisted loans of a device to Pending,
// one per free unit. Free units are the snapshot's available count minus the
// loans already Pending, so running it again without a change in availability
// promotes nothing. The snapshot itself is never decremented here; catalog
// sync stays its only writer.
func (s *loanService) ProcessWaitlist(ctx context.Context, deviceID string) (int, error) {
	if deviceID == "" {
		return 0, apperrors.InvalidInput("Device ID cannot be empty")
	}

	unlock := s.lockDevice(deviceID)
	defer unlock()

	snap, err := s.snapshots.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, loanserrors.ErrSnapshotNotFound) {
			s.cfg.Log.Debug("No snapshot for device, skipping waitlist", "device_id", deviceID)
			return 0, nil
		}
		return 0, apperrors.Unavailable("Device snapshot store", err)
	}
	if snap.AvailableCount <= 0 {
		return 0, nil
	}

	pending, err := s.loans.CountByDeviceAndStatus(ctx, deviceID, model.LoanPending)
	if err != nil {
		return 0, apperrors.Unavailable("Loan store", err)
	}
	free := snap.AvailableCount - int(pending)
	if free <= 0 {
		return 0, nil
	}

	queue, err := s.loans.FindByDeviceAndStatus(ctx, deviceID, model.LoanWaitlisted)
	if err != nil {
		return 0, apperrors.Unavailable("Loan store", err)
	}
	sortQueue(queue)
	if len(queue) > free {
		queue = queue[:free]
	}

	promoted := 0
	var failures []error
	for _, loan := range queue {
		updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
			if l.Status != model.LoanWaitlisted {
				return false, nil
			}
			now := s.clock.Now()
			l.Status = model.LoanPending
			if l.ReservationID == "" {
				l.ReservationID = uuid.NewString()
			}
			// The loan period starts when a unit is offered, not when the
			// request joined the queue.
			l.StartDate = now
			l.DueDate = now.Add(s.cfg.LoanPeriod)
			l.UpdatedAt = now
			return true, nil
		})
		if err != nil {
			s.cfg.Log.Error("Failed to promote waitlisted loan",
				"id", loan.ID,
				"device_id", deviceID,
				"error", err,
			)
			failures = append(failures, fmt.Errorf("loan %s: %w", loan.ID, err))
			continue
		}
		if !changed {
			continue
		}

		promoted++
		s.publish(ctx, model.EventLoanWaitlistProcessed, updated, snap, "")
		s.notify(ctx, "waitlist_processed", updated, snap, s.notifier.SendWaitlistProcessedEmail)
	}

	if promoted > 0 || len(failures) > 0 {
		s.cfg.Log.Info("Waitlist processed",
			"device_id", deviceID,
			"available_count", snap.AvailableCount,
			"pending", pending,
			"promoted", promoted,
			"failed", len(failures),
		)
	}
	return promoted, errors.Join(failures...)
}

// ReconcileWaitlists runs ProcessWaitlist for every device with stock. It
// picks up promotions missed when a trigger failed after its snapshot write.
func (s *loanService) ReconcileWaitlists(ctx context.Context) (int, error) {
	snaps, err := s.snapshots.List(ctx)
	if err != nil {
		return 0, apperrors.Unavailable("Device snapshot store", err)
	}

	total := 0
	var failures []error
	for _, snap := range snaps {
		if snap.AvailableCount <= 0 {
			continue
		}
		n, err := s.ProcessWaitlist(ctx, snap.ID)
		total += n
		if err != nil {
			failures = append(failures, fmt.Errorf("device %s: %w", snap.ID, err))
		}
	}
	return total, errors.Join(failures...)
}

// lockDevice serializes waitlist passes for one device within this process.
func (s *loanService) lockDevice(deviceID string) func() {
	v, _ := s.deviceLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// sortQueue orders by creation time, then id, so equal timestamps still give
// a stable FIFO.
func sortQueue(loans []*model.LoanRecord) {
	sort.SliceStable(loans, func(i, j int) bool {
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.Before(loans[j].CreatedAt)
		}
		return loans[i].ID < loans[j].ID
	})
}
