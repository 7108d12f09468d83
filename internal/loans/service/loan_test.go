package service

import (
	"context"
	"errors"
	"testing"
	"time"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/pkg/auth"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	student = auth.Identity{UserID: "u1", Permissions: []string{auth.PermLoansCreate, auth.PermLoansRead, auth.PermLoansCancel}}
	other   = auth.Identity{UserID: "u2", Permissions: []string{auth.PermLoansCreate, auth.PermLoansRead, auth.PermLoansCancel}}
	staff   = auth.Identity{UserID: "staff-1", Permissions: []string{auth.PermLoansManage}}
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.AsAppError(err).Code, "error: %v", err)
}

// ──────────────────────────────────────────────────────────────
// CreateLoan
// ──────────────────────────────────────────────────────────────

func TestCreateLoan_AdmitsWhenStockAvailable(t *testing.T) {
	f := newFixture(device("d1", 2, 2))

	loan, err := f.svc.CreateLoan(context.Background(), "u1", &model.CreateLoanRequest{DeviceID: "d1"})
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, model.LoanPending, loan.Status)
	assert.NotEmpty(t, loan.ID)
	assert.Equal(t, t0, loan.StartDate)
	assert.Equal(t, t0.Add(48*time.Hour), loan.DueDate)
	assert.Equal(t, int64(1), f.loans.get(loan.ID).Version)

	require.Equal(t, []string{model.EventLoanCreated}, f.publisher.types())
	assert.Equal(t, "d1", f.publisher.events[0].Payload.Device.ID)
	assert.Equal(t, 1, f.notifier.count("created"))

	snap, _ := f.snapshots.Get(context.Background(), "d1")
	assert.Equal(t, 2, snap.AvailableCount, "admission must not decrement the snapshot")
}

func TestCreateLoan_WaitlistsWhenNoStock(t *testing.T) {
	f := newFixture(device("d1", 0, 3))

	loan, err := f.svc.CreateLoan(context.Background(), "u1", &model.CreateLoanRequest{DeviceID: "d1"})
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, model.LoanWaitlisted, loan.Status)
	events := f.publisher.ofType(model.EventLoanWaitlisted)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonNoDevicesAvailable, events[0].Payload.Reason)
	assert.Equal(t, 1, f.notifier.count("created"))
}

func TestCreateLoan_StaleSnapshotOverAdmits(t *testing.T) {
	f := newFixture(device("d1", 2, 2))
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		loan, err := f.svc.CreateLoan(ctx, user, &model.CreateLoanRequest{DeviceID: "d1"})
		require.NoError(t, err)
		assert.Equal(t, model.LoanPending, loan.Status, "user %s", user)
	}
	f.svc.Drain()
}

func TestCreateLoan_DistinctIDsForConcurrentCalls(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	ctx := context.Background()

	a, err := f.svc.CreateLoan(ctx, "u1", &model.CreateLoanRequest{DeviceID: "d1"})
	require.NoError(t, err)
	b, err := f.svc.CreateLoan(ctx, "u1", &model.CreateLoanRequest{DeviceID: "d1"})
	require.NoError(t, err)
	f.svc.Drain()

	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateLoan_MissingSnapshotTriggersResync(t *testing.T) {
	f := newFixture()
	f.catalog.listSnapshotsFn = func(context.Context) ([]*model.DeviceSnapshot, error) {
		d := device("d9", 1, 1)
		return []*model.DeviceSnapshot{&d}, nil
	}

	_, err := f.svc.CreateLoan(context.Background(), "u1", &model.CreateLoanRequest{DeviceID: "d9"})
	assertCode(t, err, apperrors.CodeDeviceNotFound)
	assert.True(t, apperrors.AsAppError(err).Retryable)

	f.svc.Drain()
	assert.Equal(t, 1, f.catalog.listCalls)

	loan, err := f.svc.CreateLoan(context.Background(), "u1", &model.CreateLoanRequest{DeviceID: "d9"})
	require.NoError(t, err)
	assert.Equal(t, model.LoanPending, loan.Status)
	f.svc.Drain()
}

func TestCreateLoan_Validation(t *testing.T) {
	f := newFixture(device("d1", 1, 1))

	_, err := f.svc.CreateLoan(context.Background(), "u1", &model.CreateLoanRequest{DeviceID: "  "})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.CreateLoan(context.Background(), "", &model.CreateLoanRequest{DeviceID: "d1"})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.CreateLoan(context.Background(), "u1", nil)
	assertCode(t, err, apperrors.CodeInvalidInput)

	assert.Empty(t, f.publisher.types())
}

func TestCreateLoan_ReservationReplay(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	ctx := context.Background()

	first, err := f.svc.CreateLoan(ctx, "u1", &model.CreateLoanRequest{DeviceID: "d1", ReservationID: "r1"})
	require.NoError(t, err)

	again, err := f.svc.CreateLoan(ctx, "u1", &model.CreateLoanRequest{DeviceID: "d1", ReservationID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.CreateLoan(ctx, "u2", &model.CreateLoanRequest{DeviceID: "d1", ReservationID: "r1"})
	assertCode(t, err, apperrors.CodeConflict)

	f.svc.Drain()
	assert.Len(t, f.publisher.ofType(model.EventLoanCreated), 1)
}

// ──────────────────────────────────────────────────────────────
// CancelLoan
// ──────────────────────────────────────────────────────────────

func TestCancelLoan(t *testing.T) {
	tests := []struct {
		name       string
		status     model.LoanStatus
		caller     auth.Identity
		wantCode   string
		wantStatus model.LoanStatus
		wantEvent  bool
	}{
		{"owner cancels pending", model.LoanPending, student, "", model.LoanCancelled, true},
		{"owner cancels waitlisted", model.LoanWaitlisted, student, "", model.LoanCancelled, true},
		{"owner cancels active", model.LoanActive, student, "", model.LoanCancelled, true},
		{"staff cancels overdue", model.LoanOverdue, staff, "", model.LoanCancelled, true},
		{"other user forbidden", model.LoanPending, other, apperrors.CodeForbidden, "", false},
		{"returned loan", model.LoanReturned, student, apperrors.CodeAlreadyReturned, "", false},
		{"already cancelled is a no-op", model.LoanCancelled, student, "", model.LoanCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(device("d1", 0, 1))
			f.loans.put(loanRecord("l1", "u1", "d1", tt.status, t0))

			got, err := f.svc.CancelLoan(context.Background(), LoanRef{LoanID: "l1"}, tt.caller, " changed plans ")
			f.svc.Drain()

			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				assert.Equal(t, tt.status, f.loans.get("l1").Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantEvent, len(f.publisher.ofType(model.EventLoanCancelled)) == 1)
			if tt.wantEvent {
				assert.Equal(t, "changed plans", got.CancelReason)
				require.NotNil(t, got.CancelledAt)
				assert.Equal(t, 1, f.notifier.count("cancelled"))
			}
		})
	}
}

func TestCancelLoan_ReleasingDevicePromotesWaitlist(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	f.loans.put(
		loanRecord("held", "u1", "d1", model.LoanPending, t0),
		loanRecord("queued", "u2", "d1", model.LoanWaitlisted, t0.Add(time.Minute)),
	)

	_, err := f.svc.CancelLoan(context.Background(), LoanRef{LoanID: "held"}, student, "")
	require.NoError(t, err)
	f.svc.Drain()

	promoted := f.loans.get("queued")
	assert.Equal(t, model.LoanPending, promoted.Status)
	assert.NotEmpty(t, promoted.ReservationID)
	assert.Equal(t, []string{model.EventLoanCancelled, model.EventLoanWaitlistProcessed}, f.publisher.types())
}

func TestCancelLoan_WaitlistedDoesNotPromote(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	f.loans.put(
		loanRecord("held", "u3", "d1", model.LoanPending, t0),
		loanRecord("mine", "u1", "d1", model.LoanWaitlisted, t0.Add(time.Minute)),
		loanRecord("next", "u2", "d1", model.LoanWaitlisted, t0.Add(2*time.Minute)),
	)

	_, err := f.svc.CancelLoan(context.Background(), LoanRef{LoanID: "mine"}, student, "")
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, model.LoanWaitlisted, f.loans.get("next").Status)
}

func TestCancelLoan_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CancelLoan(context.Background(), LoanRef{LoanID: "missing"}, student, "")
	assertCode(t, err, apperrors.CodeNotFound)
}

// ──────────────────────────────────────────────────────────────
// ActivateLoan / LinkReservation
// ──────────────────────────────────────────────────────────────

func TestActivateLoan(t *testing.T) {
	activated := t0.Add(time.Hour)

	tests := []struct {
		name      string
		loan      *model.LoanRecord
		ref       LoanRef
		wantCode  string
		wantEvent bool
	}{
		{
			name:      "pending with reservation",
			loan:      withReservation(loanRecord("l1", "u1", "d1", model.LoanPending, t0), "r1"),
			ref:       LoanRef{LoanID: "l1"},
			wantEvent: true,
		},
		{
			name:      "resolved by reservation id",
			loan:      withReservation(loanRecord("l1", "u1", "d1", model.LoanPending, t0), "r1"),
			ref:       LoanRef{ReservationID: "r1"},
			wantEvent: true,
		},
		{
			name:      "reservation supplied by the pickup signal",
			loan:      loanRecord("l1", "u1", "d1", model.LoanPending, t0),
			ref:       LoanRef{LoanID: "l1", ReservationID: "r7"},
			wantEvent: true,
		},
		{
			name:     "pending without reservation",
			loan:     loanRecord("l1", "u1", "d1", model.LoanPending, t0),
			ref:      LoanRef{LoanID: "l1"},
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:     "reservation mismatch",
			loan:     withReservation(loanRecord("l1", "u1", "d1", model.LoanPending, t0), "r1"),
			ref:      LoanRef{LoanID: "l1", ReservationID: "r2"},
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name: "already active is a no-op",
			loan: withReservation(loanRecord("l1", "u1", "d1", model.LoanActive, t0), "r1"),
			ref:  LoanRef{LoanID: "l1"},
		},
		{
			name: "late duplicate after return is a no-op",
			loan: func() *model.LoanRecord {
				l := withReservation(loanRecord("l1", "u1", "d1", model.LoanReturned, t0), "r1")
				l.ActivatedAt = &activated
				return l
			}(),
			ref: LoanRef{LoanID: "l1"},
		},
		{
			name:     "waitlisted",
			loan:     loanRecord("l1", "u1", "d1", model.LoanWaitlisted, t0),
			ref:      LoanRef{LoanID: "l1"},
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:     "cancelled",
			loan:     withReservation(loanRecord("l1", "u1", "d1", model.LoanCancelled, t0), "r1"),
			ref:      LoanRef{LoanID: "l1"},
			wantCode: apperrors.CodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(device("d1", 1, 1))
			f.loans.put(tt.loan)
			before := tt.loan.Status

			got, err := f.svc.ActivateLoan(context.Background(), tt.ref)
			f.svc.Drain()

			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				assert.Equal(t, before, f.loans.get("l1").Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, len(f.publisher.ofType(model.EventLoanActivated)) == 1)
			if tt.wantEvent {
				assert.Equal(t, model.LoanActive, got.Status)
				require.NotNil(t, got.ActivatedAt)
				assert.NotEmpty(t, got.ReservationID)
				assert.Equal(t, 1, f.notifier.count("activated"))
			} else {
				assert.Equal(t, before, got.Status)
			}
		})
	}
}

func TestActivateLoan_CatalogReportsNoStockStillActivates(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	calls := 0
	f.catalog.getDeviceFn = func(_ context.Context, id string) (*model.Device, error) {
		calls++
		return &model.Device{ID: id, AvailableCount: 0, MaxDeviceCount: 1}, nil
	}
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanPending, t0), "r1"))

	got, err := f.svc.ActivateLoan(context.Background(), LoanRef{LoanID: "l1"})
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, model.LoanActive, got.Status)
	assert.Equal(t, 1, calls)
}

func TestActivateLoan_CatalogDownStillActivates(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	f.catalog.getDeviceFn = func(context.Context, string) (*model.Device, error) {
		return nil, errors.New("connection refused")
	}
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanPending, t0), "r1"))

	got, err := f.svc.ActivateLoan(context.Background(), LoanRef{LoanID: "l1"})
	require.NoError(t, err)
	f.svc.Drain()
	assert.Equal(t, model.LoanActive, got.Status)
}

func TestLinkReservation(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	f.loans.put(
		loanRecord("l1", "u1", "d1", model.LoanPending, t0),
		withReservation(loanRecord("l2", "u1", "d1", model.LoanPending, t0), "r2"),
		loanRecord("l3", "u1", "d1", model.LoanWaitlisted, t0),
	)
	ctx := context.Background()

	got, err := f.svc.LinkReservation(ctx, LoanRef{LoanID: "l1", ReservationID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ReservationID)

	got, err = f.svc.LinkReservation(ctx, LoanRef{LoanID: "l1", ReservationID: "r1"})
	require.NoError(t, err, "relinking the same reservation is a no-op")
	assert.Equal(t, "r1", got.ReservationID)

	_, err = f.svc.LinkReservation(ctx, LoanRef{LoanID: "l2", ReservationID: "r9"})
	assertCode(t, err, apperrors.CodeInvalidState)

	_, err = f.svc.LinkReservation(ctx, LoanRef{LoanID: "l3", ReservationID: "r3"})
	assertCode(t, err, apperrors.CodeInvalidState)

	_, err = f.svc.LinkReservation(ctx, LoanRef{LoanID: "l1"})
	assertCode(t, err, apperrors.CodeInvalidInput)
}

func TestLinkReservation_FallsBackToReservationIDAsLoanID(t *testing.T) {
	f := newFixture(device("d1", 1, 1))
	f.loans.put(loanRecord("legacy-1", "u1", "d1", model.LoanPending, t0))

	got, err := f.svc.LinkReservation(context.Background(), LoanRef{ReservationID: "legacy-1"})
	require.NoError(t, err)
	assert.Equal(t, "legacy-1", got.ReservationID)

	activated, err := f.svc.ActivateLoan(context.Background(), LoanRef{ReservationID: "legacy-1"})
	require.NoError(t, err)
	f.svc.Drain()
	assert.Equal(t, model.LoanActive, activated.Status)
}

// ──────────────────────────────────────────────────────────────
// ReturnLoan
// ──────────────────────────────────────────────────────────────

func TestReturnLoan(t *testing.T) {
	tests := []struct {
		name           string
		status         model.LoanStatus
		advance        time.Duration
		wantCode       string
		wantWasOverdue bool
	}{
		{"active on time", model.LoanActive, time.Hour, "", false},
		{"active after due date", model.LoanActive, 49 * time.Hour, "", true},
		{"overdue", model.LoanOverdue, 50 * time.Hour, "", true},
		{"pending", model.LoanPending, time.Hour, apperrors.CodeInvalidState, false},
		{"waitlisted", model.LoanWaitlisted, time.Hour, apperrors.CodeInvalidState, false},
		{"cancelled", model.LoanCancelled, time.Hour, apperrors.CodeInvalidState, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(device("d1", 0, 1))
			f.loans.put(withReservation(loanRecord("l1", "u1", "d1", tt.status, t0), "r1"))
			f.clock.Advance(tt.advance)

			got, err := f.svc.ReturnLoan(context.Background(), LoanRef{LoanID: "l1"})
			f.svc.Drain()

			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.LoanReturned, got.Status)
			assert.Equal(t, tt.wantWasOverdue, got.WasOverdue)
			require.NotNil(t, got.ReturnedAt)
			assert.Len(t, f.publisher.ofType(model.EventLoanReturned), 1)
			assert.Equal(t, 1, f.notifier.count("returned"))
		})
	}
}

func TestReturnLoan_SecondReturnHasNoSideEffects(t *testing.T) {
	f := newFixture(device("d1", 0, 1))
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanActive, t0), "r1"))
	ctx := context.Background()

	_, err := f.svc.ReturnLoan(ctx, LoanRef{LoanID: "l1"})
	require.NoError(t, err)
	updates := f.loans.updates

	got, err := f.svc.ReturnLoan(ctx, LoanRef{LoanID: "l1"})
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, model.LoanReturned, got.Status)
	assert.Equal(t, updates, f.loans.updates)
	assert.Len(t, f.publisher.ofType(model.EventLoanReturned), 1)
	assert.Equal(t, 1, f.notifier.count("returned"))
}

// ──────────────────────────────────────────────────────────────
// SweepOverdue
// ──────────────────────────────────────────────────────────────

func TestSweepOverdue(t *testing.T) {
	f := newFixture(device("d1", 0, 3))
	f.loans.put(
		withReservation(loanRecord("late", "u1", "d1", model.LoanActive, t0), "r1"),
		withReservation(loanRecord("fresh", "u2", "d1", model.LoanActive, t0.Add(24*time.Hour)), "r2"),
		withReservation(loanRecord("pending", "u3", "d1", model.LoanPending, t0), "r3"),
	)
	f.clock.Advance(49 * time.Hour)
	ctx := context.Background()

	n, err := f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.LoanOverdue, f.loans.get("late").Status)
	assert.Equal(t, model.LoanActive, f.loans.get("fresh").Status)
	assert.Equal(t, model.LoanPending, f.loans.get("pending").Status)
	assert.Len(t, f.publisher.ofType(model.EventLoanOverdue), 1)

	n, err = f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepOverdue_ContinuesPastFailures(t *testing.T) {
	f := newFixture()
	f.loans.put(
		loanRecord("a", "u1", "d1", model.LoanActive, t0),
		loanRecord("b", "u2", "d1", model.LoanActive, t0),
	)
	f.loans.updateHook = func(l *model.LoanRecord) error {
		if l.ID == "a" {
			return errors.New("write concern timeout")
		}
		return nil
	}
	f.clock.Advance(72 * time.Hour)

	n, err := f.svc.SweepOverdue(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.LoanOverdue, f.loans.get("b").Status)
}

// ──────────────────────────────────────────────────────────────
// Optimistic concurrency
// ──────────────────────────────────────────────────────────────

func TestUpdateWithRetry_ReloadsOnceOnConflict(t *testing.T) {
	f := newFixture(device("d1", 0, 1))
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanActive, t0), "r1"))

	conflicts := 0
	f.loans.updateHook = func(*model.LoanRecord) error {
		if conflicts == 0 {
			conflicts++
			return loanserrors.ErrVersionConflict
		}
		return nil
	}

	got, err := f.svc.ReturnLoan(context.Background(), LoanRef{LoanID: "l1"})
	require.NoError(t, err)
	f.svc.Drain()
	assert.Equal(t, model.LoanReturned, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateWithRetry_SecondConflictIsRetryable(t *testing.T) {
	f := newFixture(device("d1", 0, 1))
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanActive, t0), "r1"))
	f.loans.updateHook = func(*model.LoanRecord) error {
		return loanserrors.ErrVersionConflict
	}

	_, err := f.svc.ReturnLoan(context.Background(), LoanRef{LoanID: "l1"})
	assertCode(t, err, apperrors.CodeConflict)
	assert.True(t, apperrors.AsAppError(err).Retryable)
	assert.Equal(t, 2, f.loans.updates)
	assert.Empty(t, f.publisher.types())
}

func TestUpdateWithRetry_ReappliesGuardsAfterReload(t *testing.T) {
	f := newFixture(device("d1", 0, 1))
	f.loans.put(withReservation(loanRecord("l1", "u1", "d1", model.LoanActive, t0), "r1"))

	// A concurrent writer returns the loan between our read and write.
	f.loans.updateHook = func(l *model.LoanRecord) error {
		f.loans.updateHook = nil
		stored := f.loans.loans["l1"]
		stored.Status = model.LoanReturned
		stored.Version++
		return nil
	}

	_, err := f.svc.CancelLoan(context.Background(), LoanRef{LoanID: "l1"}, student, "")
	assertCode(t, err, apperrors.CodeAlreadyReturned)
}

func TestUpdateWithRetry_RefusesMovesOutsideLifecycle(t *testing.T) {
	tests := []struct {
		name string
		from model.LoanStatus
		to   model.LoanStatus
	}{
		{"waitlisted straight to active", model.LoanWaitlisted, model.LoanActive},
		{"pending to returned", model.LoanPending, model.LoanReturned},
		{"returned back to active", model.LoanReturned, model.LoanActive},
		{"cancelled back to pending", model.LoanCancelled, model.LoanPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(device("d1", 1, 1))
			f.loans.put(loanRecord("l1", "u1", "d1", tt.from, t0))
			svc := f.svc.(*loanService)

			_, changed, err := svc.updateWithRetry(context.Background(), f.loans.get("l1"), func(l *model.LoanRecord) (bool, error) {
				l.Status = tt.to
				return true, nil
			})

			assertCode(t, err, apperrors.CodeInvalidState)
			assert.False(t, changed)
			assert.Equal(t, tt.from, f.loans.get("l1").Status)
			assert.Zero(t, f.loans.updates)
		})
	}
}

// ──────────────────────────────────────────────────────────────
// Get / List
// ──────────────────────────────────────────────────────────────

func TestGetLoan_Ownership(t *testing.T) {
	f := newFixture()
	f.loans.put(loanRecord("l1", "u1", "d1", model.LoanPending, t0))
	ctx := context.Background()

	_, err := f.svc.GetLoan(ctx, "l1", student)
	require.NoError(t, err)

	_, err = f.svc.GetLoan(ctx, "l1", staff)
	require.NoError(t, err)

	_, err = f.svc.GetLoan(ctx, "l1", other)
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.GetLoan(ctx, "nope", staff)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestListLoans_ScopesToCaller(t *testing.T) {
	f := newFixture()
	f.loans.put(
		loanRecord("a", "u1", "d1", model.LoanPending, t0),
		loanRecord("b", "u1", "d2", model.LoanReturned, t0),
		loanRecord("c", "u2", "d1", model.LoanPending, t0),
	)
	ctx := context.Background()

	loans, total, err := f.svc.ListLoans(ctx, model.LoanFilter{}, student)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, loans, 2)

	_, _, err = f.svc.ListLoans(ctx, model.LoanFilter{UserID: "u2"}, student)
	assertCode(t, err, apperrors.CodeForbidden)

	loans, total, err = f.svc.ListLoans(ctx, model.LoanFilter{Status: model.LoanPending}, staff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, loans, 2)

	_, _, err = f.svc.ListLoans(ctx, model.LoanFilter{Status: "Lost"}, staff)
	assertCode(t, err, apperrors.CodeValidation)
}

func withReservation(l *model.LoanRecord, reservationID string) *model.LoanRecord {
	l.ReservationID = reservationID
	return l
}
