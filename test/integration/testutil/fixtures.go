//go:build integration

package testutil

import (
	"time"

	"github.com/google/uuid"

	"campusloans/pkg/model"
)

type DeviceBuilder struct {
	d model.Device
}

func NewDeviceBuilder() *DeviceBuilder {
	return &DeviceBuilder{
		d: model.Device{
			Brand:          "Lenovo",
			Model:          "ThinkPad T14",
			Category:       "Laptop",
			AvailableCount: 2,
			MaxDeviceCount: 2,
		},
	}
}

func (b *DeviceBuilder) WithCounts(available, max int) *DeviceBuilder {
	b.d.AvailableCount = available
	b.d.MaxDeviceCount = max
	return b
}

func (b *DeviceBuilder) WithCategory(category string) *DeviceBuilder {
	b.d.Category = category
	return b
}

func (b *DeviceBuilder) Build() model.Device {
	return b.d
}

// DeviceEvent builds an Event Grid style catalog event for the loans ingress.
func DeviceEvent(eventType string, id string, available, max int) []model.EventEnvelope {
	return []model.EventEnvelope{{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Subject:     "devices/" + id,
		EventTime:   time.Now().UTC(),
		DataVersion: "1.0",
		Data: model.DeviceEventPayload{
			ID:             id,
			Brand:          "Lenovo",
			Model:          "ThinkPad T14",
			Category:       "Laptop",
			AvailableCount: available,
			MaxDeviceCount: max,
			UpdatedAt:      time.Now().UTC(),
		},
	}}
}

// ReservationEvent builds a reservation or confirmation event for a loan.
func ReservationEvent(eventType string, loan model.LoanRecord, reservationID string) []model.EventEnvelope {
	return []model.EventEnvelope{{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Subject:     "reservations/" + reservationID,
		EventTime:   time.Now().UTC(),
		DataVersion: "1.0",
		Data: model.ReservationEventPayload{
			ReservationID: reservationID,
			LoanID:        loan.ID,
			UserID:        loan.UserID,
			DeviceID:      loan.DeviceID,
		},
	}}
}

func CreateLoan(deviceID string) model.CreateLoanRequest {
	return model.CreateLoanRequest{DeviceID: deviceID}
}
