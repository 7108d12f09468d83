package service

import (
	"context"
	"errors"
	"sync"

	deviceserrors "campusloans/internal/devices/errors"
	"campusloans/internal/devices/repository"
	"campusloans/internal/devices/validator"
	"campusloans/pkg/config"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"
	"campusloans/pkg/sanitizer"
)

const (
	maxDescriptionLength = 2000
	snapshotPageSize     = 100
)

// EventPublisher announces catalog changes to the loan service.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, d *model.Device) error
}

type DeviceService interface {
	Create(ctx context.Context, d *model.Device) error
	GetByID(ctx context.Context, id string) (*model.Device, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Device, int64, error)
	Update(ctx context.Context, id string, updates *model.DeviceUpdate) (*model.Device, error)
	Delete(ctx context.Context, id string) error

	// Snapshots is the paged availability feed the loan service resyncs from.
	Snapshots(ctx context.Context, limit int, offset int64) ([]*model.DeviceSnapshot, int64, error)
	// PublishSnapshots emits Device.Snapshot for every device.
	PublishSnapshots(ctx context.Context) (int, error)
}

type deviceService struct {
	repo      repository.DeviceRepository
	validator *validator.DeviceValidator
	publisher EventPublisher
	cfg       *config.Config
}

func NewDeviceService(
	repo repository.DeviceRepository,
	validator *validator.DeviceValidator,
	publisher EventPublisher,
	cfg *config.Config,
) DeviceService {
	return &deviceService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *deviceService) Create(ctx context.Context, d *model.Device) error {
	s.sanitize(d)

	if err := s.validator.Validate(d); err != nil {
		s.cfg.Log.Warn("Device validation failed",
			"brand", d.Brand,
			"model", d.Model,
			"error", err,
		)
		return apperrors.Validation("Device validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, d); err != nil {
		s.cfg.Log.Error("Failed to create device",
			"brand", d.Brand,
			"model", d.Model,
			"error", err,
		)
		return apperrors.Internal("Failed to create device", err)
	}

	s.cfg.Log.Info("Device created successfully",
		"device_id", d.ID,
		"brand", d.Brand,
		"model", d.Model,
		"max_device_count", d.MaxDeviceCount,
	)
	s.publish(ctx, model.EventDeviceCreated, d)
	return nil
}

func (s *deviceService) GetByID(ctx context.Context, id string) (*model.Device, error) {
	id = sanitizer.SanitizeIdentifier(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Device ID cannot be empty")
	}

	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id, "Failed to retrieve device")
	}
	return d, nil
}

func (s *deviceService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Device, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var devices []*model.Device
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
	}()

	go func() {
		defer wg.Done()
		devices, errFind = s.repo.FindAll(ctx, limit, offset)
	}()

	wg.Wait()
	if errCount != nil {
		s.cfg.Log.Error("Failed to count devices", "error", errCount)
		return nil, 0, apperrors.Internal("Failed to count devices", errCount)
	}
	if errFind != nil {
		s.cfg.Log.Error("Failed to get all devices",
			"limit", limit,
			"offset", offset,
			"error", errFind,
		)
		return nil, 0, apperrors.Internal("Failed to retrieve devices", errFind)
	}

	return devices, count, nil
}

func (s *deviceService) Update(ctx context.Context, id string, updates *model.DeviceUpdate) (*model.Device, error) {
	id = sanitizer.SanitizeIdentifier(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Device ID cannot be empty")
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		return nil, apperrors.Validation("Device update validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id, "Failed to check device existence")
	}

	merged := mergeDeviceUpdates(existing, updates)
	s.sanitize(merged)

	if err := s.validator.Validate(merged); err != nil {
		s.cfg.Log.Warn("Device validation failed after merge",
			"device_id", id,
			"error", err,
		)
		return nil, apperrors.Validation("Device validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Update(ctx, id, merged); err != nil {
		return nil, s.mapRepoError(err, id, "Failed to update device")
	}

	s.cfg.Log.Info("Device updated successfully",
		"device_id", id,
		"available_count", merged.AvailableCount,
		"max_device_count", merged.MaxDeviceCount,
	)
	s.publish(ctx, model.EventDeviceUpdated, merged)
	return merged, nil
}

func (s *deviceService) Delete(ctx context.Context, id string) error {
	id = sanitizer.SanitizeIdentifier(id)
	if id == "" {
		return apperrors.InvalidInput("Device ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.mapRepoError(err, id, "Failed to check device existence")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoError(err, id, "Failed to delete device")
	}

	s.cfg.Log.Info("Device deleted successfully", "device_id", id)
	s.publish(ctx, model.EventDeviceDeleted, existing)
	return nil
}

func (s *deviceService) Snapshots(ctx context.Context, limit int, offset int64) ([]*model.DeviceSnapshot, int64, error) {
	devices, total, err := s.GetAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	snaps := make([]*model.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		snaps = append(snaps, d.Snapshot())
	}
	return snaps, total, nil
}

func (s *deviceService) PublishSnapshots(ctx context.Context) (int, error) {
	published := 0
	var offset int64

	for {
		devices, err := s.repo.FindAll(ctx, snapshotPageSize, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to page devices for snapshot", "offset", offset, "error", err)
			return published, apperrors.Internal("Failed to read devices", err)
		}

		for _, d := range devices {
			if err := s.publisher.Publish(ctx, model.EventDeviceSnapshot, d); err != nil {
				s.cfg.Log.Error("Failed to publish device snapshot",
					"device_id", d.ID,
					"published", published,
					"error", err,
				)
				return published, apperrors.Unavailable("Event broker", err)
			}
			published++
		}

		if len(devices) < snapshotPageSize {
			break
		}
		offset += int64(len(devices))
	}

	s.cfg.Log.Info("Device snapshot published successfully", "devices", published)
	return published, nil
}

// publish is best effort. The loan service recovers from a lost event through
// resync.
func (s *deviceService) publish(ctx context.Context, eventType string, d *model.Device) {
	if err := s.publisher.Publish(ctx, eventType, d); err != nil {
		s.cfg.Log.Warn("Failed to publish device event",
			"event_type", eventType,
			"device_id", d.ID,
			"error", err,
		)
	}
}

func (s *deviceService) mapRepoError(err error, id, message string) error {
	switch {
	case errors.Is(err, deviceserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Device", id)
	case errors.Is(err, deviceserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid device ID format")
	}
	s.cfg.Log.Error(message, "device_id", id, "error", err)
	return apperrors.Internal(message, err)
}

func (s *deviceService) sanitize(d *model.Device) {
	d.Brand = sanitizer.SanitizeName(d.Brand)
	d.Model = sanitizer.SanitizeName(d.Model)
	d.Category = sanitizer.SanitizeCategory(d.Category)
	d.Description = sanitizer.SanitizeFreeText(d.Description, maxDescriptionLength)
	d.ImageURL = sanitizer.SanitizeURL(d.ImageURL)
	d.FileURL = sanitizer.SanitizeURL(d.FileURL)
}

func mergeDeviceUpdates(existing *model.Device, updates *model.DeviceUpdate) *model.Device {
	merged := *existing

	if updates.Brand != "" {
		merged.Brand = updates.Brand
	}
	if updates.Model != "" {
		merged.Model = updates.Model
	}
	if updates.Category != "" {
		merged.Category = updates.Category
	}
	if updates.Description != nil {
		merged.Description = *updates.Description
	}
	if updates.AvailableCount != nil {
		merged.AvailableCount = *updates.AvailableCount
	}
	if updates.MaxDeviceCount != nil {
		merged.MaxDeviceCount = *updates.MaxDeviceCount
	}
	if updates.ImageURL != nil {
		merged.ImageURL = *updates.ImageURL
	}
	if updates.FileURL != nil {
		merged.FileURL = *updates.FileURL
	}

	return &merged
}
