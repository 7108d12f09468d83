package service

import (
	"context"

	"campusloans/internal/loans/repository"
	"campusloans/internal/loans/validator"
	"campusloans/pkg/model"
)

// CatalogReader is the subset of the catalog client the loan service needs.
type CatalogReader interface {
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	ListSnapshots(ctx context.Context) ([]*model.DeviceSnapshot, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload model.LoanEventPayload) error
}

// Notifier sends loan emails. device may be nil when the snapshot is missing.
type Notifier interface {
	SendLoanCreatedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error
	SendWaitlistProcessedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error
	SendLoanActivatedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error
	SendLoanCancelledEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error
	SendLoanReturnedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error
}

type Dependencies struct {
	Loans     repository.LoanRepository
	Snapshots repository.SnapshotRepository
	Catalog   CatalogReader
	Publisher EventPublisher
	Notifier  Notifier
	Validator *validator.LoanValidator
	Clock     Clock
}

// LoanRef identifies a loan by id or by its reservation id. Older producers
// only send a reservation id, sometimes holding the loan id itself.
type LoanRef struct {
	LoanID        string
	ReservationID string
}

func (r LoanRef) key() string {
	if r.LoanID != "" {
		return r.LoanID
	}
	return r.ReservationID
}
