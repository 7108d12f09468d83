package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/internal/loans/repository"
	"campusloans/internal/loans/validator"
	"campusloans/pkg/auth"
	"campusloans/pkg/config"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"
	"campusloans/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	ReasonNoDevicesAvailable = "No devices currently available"

	maxUpdateAttempts = 2
	backgroundTimeout = 30 * time.Second
)

type LoanService interface {
	CreateLoan(ctx context.Context, userID string, req *model.CreateLoanRequest) (*model.LoanRecord, error)
	GetLoan(ctx context.Context, id string, caller auth.Identity) (*model.LoanRecord, error)
	ListLoans(ctx context.Context, filter model.LoanFilter, caller auth.Identity) ([]*model.LoanRecord, int64, error)
	CancelLoan(ctx context.Context, ref LoanRef, caller auth.Identity, reason string) (*model.LoanRecord, error)
	ActivateLoan(ctx context.Context, ref LoanRef) (*model.LoanRecord, error)
	LinkReservation(ctx context.Context, ref LoanRef) (*model.LoanRecord, error)
	ReturnLoan(ctx context.Context, ref LoanRef) (*model.LoanRecord, error)
	SweepOverdue(ctx context.Context) (int, error)
	ProcessWaitlist(ctx context.Context, deviceID string) (int, error)
	ReconcileWaitlists(ctx context.Context) (int, error)
	Snapshots() SnapshotService
	// Drain blocks until background notifications and resyncs finish.
	Drain()
}

type loanService struct {
	loans       repository.LoanRepository
	snapshots   repository.SnapshotRepository
	catalog     CatalogReader
	publisher   EventPublisher
	notifier    Notifier
	validator   *validator.LoanValidator
	clock       Clock
	cfg         *config.Config
	snapshotSvc SnapshotService

	deviceLocks sync.Map
	background  sync.WaitGroup
}

func NewLoanService(deps Dependencies, cfg *config.Config) LoanService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}

	s := &loanService{
		loans:     deps.Loans,
		snapshots: deps.Snapshots,
		catalog:   deps.Catalog,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		validator: deps.Validator,
		clock:     clock,
		cfg:       cfg,
	}
	s.snapshotSvc = NewSnapshotService(deps.Snapshots, deps.Catalog, s, clock, cfg)
	return s
}

func (s *loanService) Snapshots() SnapshotService {
	return s.snapshotSvc
}

func (s *loanService) Drain() {
	s.background.Wait()
}

func (s *loanService) CreateLoan(ctx context.Context, userID string, req *model.CreateLoanRequest) (*model.LoanRecord, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("Request body is required")
	}
	userID = sanitizer.SanitizeIdentifier(userID)
	s.sanitize(req)

	if err := s.validator.ValidateCreate(userID, req); err != nil {
		s.cfg.Log.Warn("Loan validation failed", "error", err)
		return nil, apperrors.Validation("Loan validation failed", map[string]any{"error": err.Error()})
	}

	if req.ReservationID != "" {
		existing, err := s.loans.FindByReservationID(ctx, req.ReservationID)
		switch {
		case err == nil:
			if existing.UserID == userID && existing.DeviceID == req.DeviceID {
				s.cfg.Log.Info("Loan already exists for reservation",
					"id", existing.ID,
					"reservation_id", req.ReservationID,
				)
				return existing, nil
			}
			return nil, apperrors.Conflict("Reservation is already linked to another loan")
		case !errors.Is(err, loanserrors.ErrNotFound):
			return nil, apperrors.Unavailable("Loan store", err)
		}
	}

	snap, err := s.snapshots.Get(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, loanserrors.ErrSnapshotNotFound) {
			s.cfg.Log.Warn("Device missing from availability snapshot, scheduling resync",
				"device_id", req.DeviceID,
			)
			s.triggerResync(ctx)
			return nil, apperrors.DeviceNotFound(req.DeviceID)
		}
		return nil, apperrors.Unavailable("Device snapshot store", err)
	}

	now := s.clock.Now()
	loan := &model.LoanRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		DeviceID:      req.DeviceID,
		ReservationID: req.ReservationID,
		StartDate:     now,
		DueDate:       now.Add(s.cfg.LoanPeriod),
		CreatedAt:     now,
		UpdatedAt:     now,
		Notes:         req.Notes,
	}

	eventType, reason := model.EventLoanCreated, ""
	if snap.AvailableCount > 0 {
		loan.Status = model.LoanPending
	} else {
		loan.Status = model.LoanWaitlisted
		eventType, reason = model.EventLoanWaitlisted, ReasonNoDevicesAvailable
	}

	if err := s.validator.ValidateRecord(loan); err != nil {
		return nil, apperrors.Validation("Loan validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		if errors.Is(err, loanserrors.ErrDuplicateReservation) {
			return nil, apperrors.Conflict("Reservation is already linked to another loan")
		}
		s.cfg.Log.Error("Failed to create loan", "device_id", loan.DeviceID, "error", err)
		return nil, apperrors.Unavailable("Loan store", err)
	}

	s.cfg.Log.Info("Loan created successfully",
		"id", loan.ID,
		"user_id", loan.UserID,
		"device_id", loan.DeviceID,
		"status", loan.Status,
		"available_count", snap.AvailableCount,
	)

	s.publish(ctx, eventType, loan, snap, reason)
	s.notify(ctx, "loan_created", loan, snap, s.notifier.SendLoanCreatedEmail)
	return loan, nil
}

func (s *loanService) GetLoan(ctx context.Context, id string, caller auth.Identity) (*model.LoanRecord, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Loan ID cannot be empty")
	}

	loan, err := s.loans.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if !caller.IsStaff() && loan.UserID != caller.UserID {
		return nil, apperrors.Forbidden("You can only view your own loans")
	}
	return loan, nil
}

func (s *loanService) ListLoans(ctx context.Context, filter model.LoanFilter, caller auth.Identity) ([]*model.LoanRecord, int64, error) {
	filter.Limit = config.NormalizePaginationLimit(filter.Limit)
	filter.Offset = config.NormalizeOffset(filter.Offset)

	if err := s.validator.ValidateFilter(&filter); err != nil {
		return nil, 0, apperrors.Validation("Invalid loan filter", map[string]any{"error": err.Error()})
	}

	if !caller.IsStaff() {
		if filter.UserID != "" && filter.UserID != caller.UserID {
			return nil, 0, apperrors.Forbidden("You can only list your own loans")
		}
		filter.UserID = caller.UserID
	}

	var count int64
	var loans []*model.LoanRecord
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.loans.Count(ctx, filter)
	}()

	go func() {
		defer wg.Done()
		loans, errFind = s.loans.List(ctx, filter)
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count loans", "error", errCount)
		return nil, 0, apperrors.Unavailable("Loan store", errCount)
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to list loans", "error", errFind)
		return nil, 0, apperrors.Unavailable("Loan store", errFind)
	}

	return loans, count, nil
}

func (s *loanService) CancelLoan(ctx context.Context, ref LoanRef, caller auth.Identity, reason string) (*model.LoanRecord, error) {
	reason = sanitizer.SanitizeReason(reason)

	loan, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var previous model.LoanStatus
	updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
		if !caller.IsStaff() && l.UserID != caller.UserID {
			return false, apperrors.Forbidden("You can only cancel your own loans")
		}
		previous = l.Status
		switch l.Status {
		case model.LoanReturned:
			return false, apperrors.AlreadyReturned(l.ID)
		case model.LoanCancelled:
			return false, nil
		}

		now := s.clock.Now()
		l.Status = model.LoanCancelled
		l.CancelledAt = &now
		l.UpdatedAt = now
		l.CancelReason = reason
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.cfg.Log.Info("Loan cancelled successfully",
		"id", updated.ID,
		"previous_status", previous,
		"cancelled_by", caller.UserID,
	)

	device := s.lookupDevice(ctx, updated.DeviceID)
	s.publish(ctx, model.EventLoanCancelled, updated, device, reason)
	s.notify(ctx, "loan_cancelled", updated, device, s.notifier.SendLoanCancelledEmail)

	if previous.HoldsDevice() {
		s.promoteAfterRelease(ctx, updated.DeviceID)
	}
	return updated, nil
}

func (s *loanService) ActivateLoan(ctx context.Context, ref LoanRef) (*model.LoanRecord, error) {
	loan, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	if s.cfg.RevalidateOnActivate && loan.Status == model.LoanPending {
		s.revalidateStock(ctx, loan)
	}

	updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
		switch l.Status {
		case model.LoanActive:
			return false, nil
		case model.LoanOverdue, model.LoanReturned:
			// Late duplicate pickup signal for a loan already past activation.
			if l.ActivatedAt != nil {
				return false, nil
			}
			return false, invalidTransition(l, "activate")
		case model.LoanPending:
		default:
			return false, invalidTransition(l, "activate")
		}

		reservationID := ref.ReservationID
		if reservationID == l.ID {
			reservationID = ""
		}
		if reservationID != "" {
			if l.ReservationID == "" {
				l.ReservationID = reservationID
			} else if l.ReservationID != reservationID {
				return false, apperrors.InvalidState("Reservation does not match loan", map[string]any{
					"loan_id":        l.ID,
					"reservation_id": reservationID,
				})
			}
		}
		if l.ReservationID == "" {
			return false, apperrors.InvalidState("Loan has no confirmed reservation", map[string]any{"loan_id": l.ID})
		}

		now := s.clock.Now()
		l.Status = model.LoanActive
		l.ActivatedAt = &now
		l.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.cfg.Log.Info("Loan activated successfully",
		"id", updated.ID,
		"reservation_id", updated.ReservationID,
		"due_date", updated.DueDate,
	)

	device := s.lookupDevice(ctx, updated.DeviceID)
	s.publish(ctx, model.EventLoanActivated, updated, device, "")
	s.notify(ctx, "loan_activated", updated, device, s.notifier.SendLoanActivatedEmail)
	return updated, nil
}

func (s *loanService) LinkReservation(ctx context.Context, ref LoanRef) (*model.LoanRecord, error) {
	if ref.ReservationID == "" {
		return nil, apperrors.InvalidInput("Reservation ID is required")
	}

	loan, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
		if l.ReservationID == ref.ReservationID {
			return false, nil
		}
		if l.ReservationID != "" {
			return false, apperrors.InvalidState("Loan is already linked to a different reservation", map[string]any{
				"loan_id":        l.ID,
				"reservation_id": l.ReservationID,
			})
		}
		if l.Status != model.LoanPending {
			return false, invalidTransition(l, "link a reservation to")
		}

		l.ReservationID = ref.ReservationID
		l.UpdatedAt = s.clock.Now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.cfg.Log.Info("Reservation linked to loan",
			"id", updated.ID,
			"reservation_id", updated.ReservationID,
		)
	}
	return updated, nil
}

func (s *loanService) ReturnLoan(ctx context.Context, ref LoanRef) (*model.LoanRecord, error) {
	loan, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
		switch l.Status {
		case model.LoanReturned:
			return false, nil
		case model.LoanActive, model.LoanOverdue:
		default:
			return false, invalidTransition(l, "return")
		}

		now := s.clock.Now()
		l.WasOverdue = l.Status == model.LoanOverdue || now.After(l.DueDate)
		l.Status = model.LoanReturned
		l.ReturnedAt = &now
		l.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.cfg.Log.Info("Loan returned successfully",
		"id", updated.ID,
		"device_id", updated.DeviceID,
		"was_overdue", updated.WasOverdue,
	)

	device := s.lookupDevice(ctx, updated.DeviceID)
	reason := ""
	if updated.WasOverdue {
		reason = "Returned after due date"
	}
	s.publish(ctx, model.EventLoanReturned, updated, device, reason)
	s.notify(ctx, "loan_returned", updated, device, s.notifier.SendLoanReturnedEmail)

	s.promoteAfterRelease(ctx, updated.DeviceID)
	return updated, nil
}

func (s *loanService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()

	candidates, err := s.loans.FindActiveDueBefore(ctx, now)
	if err != nil {
		return 0, apperrors.Unavailable("Loan store", err)
	}

	marked := 0
	var failures []error
	for _, loan := range candidates {
		updated, changed, err := s.updateWithRetry(ctx, loan, func(l *model.LoanRecord) (bool, error) {
			if !l.IsOverdueAt(now) {
				return false, nil
			}
			l.Status = model.LoanOverdue
			l.UpdatedAt = now
			return true, nil
		})
		if err != nil {
			s.cfg.Log.Error("Failed to mark loan overdue", "id", loan.ID, "error", err)
			failures = append(failures, fmt.Errorf("loan %s: %w", loan.ID, err))
			continue
		}
		if !changed {
			continue
		}

		marked++
		s.publish(ctx, model.EventLoanOverdue, updated, s.lookupDevice(ctx, updated.DeviceID), "")
	}

	if marked > 0 || len(failures) > 0 {
		s.cfg.Log.Info("Overdue sweep completed",
			"candidates", len(candidates),
			"marked", marked,
			"failed", len(failures),
		)
	}
	return marked, errors.Join(failures...)
}

// resolve loads the loan a ref points at. A reservation id is tried as a
// reservation first and then as a loan id.
func (s *loanService) resolve(ctx context.Context, ref LoanRef) (*model.LoanRecord, error) {
	if ref.LoanID == "" && ref.ReservationID == "" {
		return nil, apperrors.InvalidInput("Loan ID or reservation ID is required")
	}

	var loan *model.LoanRecord
	err := loanserrors.ErrNotFound
	if ref.LoanID != "" {
		loan, err = s.loans.FindByID(ctx, ref.LoanID)
	}
	if errors.Is(err, loanserrors.ErrNotFound) && ref.ReservationID != "" {
		loan, err = s.loans.FindByReservationID(ctx, ref.ReservationID)
		if errors.Is(err, loanserrors.ErrNotFound) && ref.LoanID == "" {
			loan, err = s.loans.FindByID(ctx, ref.ReservationID)
		}
	}
	if err != nil {
		return nil, storeError(err, ref.key())
	}
	return loan, nil
}

type mutation func(loan *model.LoanRecord) (bool, error)

// updateWithRetry applies mutate to a copy of loan and writes it with a
// version check. On a conflict it reloads once and reapplies; a second
// conflict is reported as a retryable error. The returned bool is false when
// mutate decided nothing had to change.
func (s *loanService) updateWithRetry(ctx context.Context, loan *model.LoanRecord, mutate mutation) (*model.LoanRecord, bool, error) {
	current := loan
	for attempt := 1; ; attempt++ {
		next := current.Clone()
		changed, err := mutate(next)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}
		if err := checkTransition(current, next); err != nil {
			return nil, false, err
		}

		err = s.loans.Update(ctx, next)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, loanserrors.ErrVersionConflict) {
			s.cfg.Log.Error("Failed to update loan", "id", current.ID, "error", err)
			return nil, false, storeError(err, current.ID)
		}
		if attempt >= maxUpdateAttempts {
			s.cfg.Log.Warn("Loan update lost the version race twice", "id", current.ID)
			return nil, false, apperrors.RetryableConflict("Loan was modified concurrently, retry the request", err)
		}

		current, err = s.loans.FindByID(ctx, current.ID)
		if err != nil {
			return nil, false, storeError(err, loan.ID)
		}
	}
}

func (s *loanService) promoteAfterRelease(ctx context.Context, deviceID string) {
	if _, err := s.ProcessWaitlist(ctx, deviceID); err != nil {
		s.cfg.Log.Warn("Waitlist processing after release failed",
			"device_id", deviceID,
			"error", err,
		)
	}
}

// revalidateStock compares a Pending loan with the live catalog. Admission
// reads a replica that can be stale, so a mismatch is logged, not enforced.
func (s *loanService) revalidateStock(ctx context.Context, loan *model.LoanRecord) {
	if s.catalog == nil {
		return
	}
	device, err := s.catalog.GetDevice(ctx, loan.DeviceID)
	if err != nil {
		s.cfg.Log.Warn("Could not re-check device availability on activation",
			"id", loan.ID,
			"device_id", loan.DeviceID,
			"error", err,
		)
		return
	}
	if device.AvailableCount <= 0 {
		s.cfg.Log.Warn("Activating loan while catalog reports no available units",
			"id", loan.ID,
			"device_id", loan.DeviceID,
			"max_device_count", device.MaxDeviceCount,
		)
	}
}

func (s *loanService) lookupDevice(ctx context.Context, deviceID string) *model.DeviceSnapshot {
	snap, err := s.snapshots.Get(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, loanserrors.ErrSnapshotNotFound) {
			s.cfg.Log.Warn("Failed to load device snapshot", "device_id", deviceID, "error", err)
		}
		return nil
	}
	return snap
}

func (s *loanService) publish(ctx context.Context, eventType string, loan *model.LoanRecord, device *model.DeviceSnapshot, reason string) {
	payload := model.LoanEventPayload{
		Loan:   loan.Clone(),
		Device: device,
		Reason: reason,
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.cfg.Log.Error("Failed to publish loan event",
			"event_type", eventType,
			"id", loan.ID,
			"error", err,
		)
	}
}

type sendFunc func(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error

// notify sends an email in the background. The request context may already
// be finished by the time it runs, so only its values are kept.
func (s *loanService) notify(ctx context.Context, template string, loan *model.LoanRecord, device *model.DeviceSnapshot, send sendFunc) {
	loan = loan.Clone()
	base := context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(base, backgroundTimeout)
		defer cancel()

		if err := send(ctx, loan, device); err != nil {
			s.cfg.Log.Warn("Failed to send loan notification",
				"template", template,
				"id", loan.ID,
				"error", err,
			)
		}
	}()
}

func (s *loanService) triggerResync(ctx context.Context) {
	base := context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(base, backgroundTimeout)
		defer cancel()

		if _, err := s.snapshotSvc.Resync(ctx); err != nil {
			s.cfg.Log.Warn("Background snapshot resync failed", "error", err)
		}
	}()
}

func (s *loanService) sanitize(req *model.CreateLoanRequest) {
	req.DeviceID = sanitizer.SanitizeIdentifier(req.DeviceID)
	req.ReservationID = sanitizer.SanitizeIdentifier(req.ReservationID)
	req.Notes = sanitizer.SanitizeNotes(req.Notes)
}

func invalidTransition(loan *model.LoanRecord, action string) error {
	return apperrors.InvalidState(
		fmt.Sprintf("Cannot %s a loan in status %s", action, loan.Status),
		map[string]any{
			"loan_id": loan.ID,
			"status":  loan.Status,
		},
	)
}

// checkTransition holds every write to the lifecycle table in pkg/model.
func checkTransition(current, next *model.LoanRecord) error {
	if next.Status == current.Status {
		return nil
	}
	if current.Status.IsTerminal() {
		return apperrors.InvalidState(
			fmt.Sprintf("Loan is already %s", current.Status),
			map[string]any{"loan_id": current.ID, "status": current.Status},
		)
	}
	if !model.CanTransition(current.Status, next.Status) {
		return apperrors.InvalidState(
			fmt.Sprintf("Cannot move a loan from %s to %s", current.Status, next.Status),
			map[string]any{"loan_id": current.ID, "status": current.Status, "target": next.Status},
		)
	}
	return nil
}

func storeError(err error, loanID string) error {
	switch {
	case errors.Is(err, loanserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Loan", loanID)
	case errors.Is(err, loanserrors.ErrDuplicateReservation):
		return apperrors.Conflict("Reservation is already linked to another loan")
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Unavailable("Loan store", err)
	}
}
