package model

import "time"

// Catalog events, produced by the devices service.
const (
	EventDeviceCreated  = "Device.Created"
	EventDeviceUpdated  = "Device.Updated"
	EventDeviceDeleted  = "Device.Deleted"
	EventDeviceSnapshot = "Device.Snapshot"
)

// Reservation / pickup workflow events, produced downstream of the loan service.
const (
	EventReservationConfirmed = "Reservation.Confirmed"
	EventReservationCancelled = "Reservation.Cancelled"
	EventDeviceCollected      = "Confirmation.Collected"
	EventDeviceReturned       = "Confirmation.Returned"
)

// Loan lifecycle events, produced by the loan service.
const (
	EventLoanCreated           = "Loan.Created"
	EventLoanWaitlisted        = "Loan.Waitlisted"
	EventLoanActivated         = "Loan.Activated"
	EventLoanCancelled         = "Loan.Cancelled"
	EventLoanReturned          = "Loan.Returned"
	EventLoanOverdue           = "Loan.Overdue"
	EventLoanWaitlistProcessed = "Loan.WaitlistProcessed"
)

// DeviceEventPayload is the body of every Device.* event.
type DeviceEventPayload struct {
	ID             string    `json:"id"`
	Brand          string    `json:"brand"`
	Model          string    `json:"model"`
	Category       string    `json:"category"`
	Description    string    `json:"description,omitempty"`
	AvailableCount int       `json:"availableCount"`
	MaxDeviceCount int       `json:"maxDeviceCount"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	FileURL        string    `json:"fileUrl,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

func (p DeviceEventPayload) Snapshot(now time.Time) *DeviceSnapshot {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return &DeviceSnapshot{
		ID:             p.ID,
		Brand:          p.Brand,
		Model:          p.Model,
		Category:       p.Category,
		AvailableCount: p.AvailableCount,
		MaxDeviceCount: p.MaxDeviceCount,
		LastUpdated:    updated,
	}
}

func NewDeviceEventPayload(d *Device) DeviceEventPayload {
	return DeviceEventPayload{
		ID:             d.ID,
		Brand:          d.Brand,
		Model:          d.Model,
		Category:       d.Category,
		Description:    d.Description,
		AvailableCount: d.AvailableCount,
		MaxDeviceCount: d.MaxDeviceCount,
		ImageURL:       d.ImageURL,
		FileURL:        d.FileURL,
		UpdatedAt:      d.UpdatedAt,
	}
}

// ReservationEventPayload covers reservation and confirmation events. LoanID
// may be absent on older producers, in which case ReservationID is the lookup key.
type ReservationEventPayload struct {
	ReservationID string `json:"reservationId"`
	LoanID        string `json:"loanId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	DeviceID      string `json:"deviceId,omitempty"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	StaffID       string `json:"staffId,omitempty"`
}

// LoanEventPayload is published on every loan lifecycle event.
type LoanEventPayload struct {
	Loan   *LoanRecord     `json:"loan"`
	Device *DeviceSnapshot `json:"device,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// EventEnvelope follows the Event Grid event schema, so consumers read the
// same shape from the broker and from webhook deliveries.
type EventEnvelope struct {
	ID          string    `json:"id"`
	EventType   string    `json:"eventType"`
	Subject     string    `json:"subject,omitempty"`
	EventTime   time.Time `json:"eventTime"`
	DataVersion string    `json:"dataVersion,omitempty"`
	Data        any       `json:"data"`
}
