package model

import "time"

// Device is the catalog service's record of a loanable device model.
type Device struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Brand          string    `json:"brand" bson:"brand" validate:"required,min=1,max=100"`
	Model          string    `json:"model" bson:"model" validate:"required,min=1,max=100"`
	Category       string    `json:"category" bson:"category" validate:"required,min=2,max=50"`
	Description    string    `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=2000"`
	AvailableCount int       `json:"available_count" bson:"available_count" validate:"min=0,ltefield=MaxDeviceCount"`
	MaxDeviceCount int       `json:"max_device_count" bson:"max_device_count" validate:"min=0,max=10000"`
	ImageURL       string    `json:"image_url,omitempty" bson:"image_url,omitempty" validate:"omitempty,url"`
	FileURL        string    `json:"file_url,omitempty" bson:"file_url,omitempty" validate:"omitempty,url"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

type DeviceUpdate struct {
	Brand          string  `json:"brand,omitempty" validate:"omitempty,min=1,max=100"`
	Model          string  `json:"model,omitempty" validate:"omitempty,min=1,max=100"`
	Category       string  `json:"category,omitempty" validate:"omitempty,min=2,max=50"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	AvailableCount *int    `json:"available_count,omitempty" validate:"omitempty,min=0"`
	MaxDeviceCount *int    `json:"max_device_count,omitempty" validate:"omitempty,min=0,max=10000"`
	ImageURL       *string `json:"image_url,omitempty" validate:"omitempty,url"`
	FileURL        *string `json:"file_url,omitempty" validate:"omitempty,url"`
}

// DeviceSnapshot is the loan service's eventually-consistent replica of a
// catalog device. It is written only by catalog sync.
type DeviceSnapshot struct {
	ID             string    `json:"id" bson:"_id"`
	Brand          string    `json:"brand" bson:"brand"`
	Model          string    `json:"model" bson:"model"`
	Category       string    `json:"category" bson:"category"`
	AvailableCount int       `json:"available_count" bson:"available_count"`
	MaxDeviceCount int       `json:"max_device_count" bson:"max_device_count"`
	LastUpdated    time.Time `json:"last_updated" bson:"last_updated"`
}

// Clamp forces 0 <= AvailableCount <= MaxDeviceCount and reports whether
// anything had to change.
func (s *DeviceSnapshot) Clamp() bool {
	changed := false
	if s.MaxDeviceCount < 0 {
		s.MaxDeviceCount = 0
		changed = true
	}
	if s.AvailableCount < 0 {
		s.AvailableCount = 0
		changed = true
	}
	if s.AvailableCount > s.MaxDeviceCount {
		s.AvailableCount = s.MaxDeviceCount
		changed = true
	}
	return changed
}

func (d *Device) Snapshot() *DeviceSnapshot {
	return &DeviceSnapshot{
		ID:             d.ID,
		Brand:          d.Brand,
		Model:          d.Model,
		Category:       d.Category,
		AvailableCount: d.AvailableCount,
		MaxDeviceCount: d.MaxDeviceCount,
		LastUpdated:    d.UpdatedAt,
	}
}
