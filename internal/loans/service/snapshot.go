package service

import (
	"context"
	"errors"
	"strings"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/internal/loans/repository"
	"campusloans/pkg/config"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/model"

	"golang.org/x/sync/singleflight"
)

var errCatalogNotConfigured = errors.New("catalog client not configured")

type SnapshotService interface {
	// Apply stores snap, replacing whatever was there. A rise in
	// availability (or a new device with stock) triggers the waitlist.
	Apply(ctx context.Context, snap *model.DeviceSnapshot) error
	Remove(ctx context.Context, deviceID string) error
	Resync(ctx context.Context) (*ResyncResult, error)
	Get(ctx context.Context, deviceID string) (*model.DeviceSnapshot, error)
}

type WaitlistPromoter interface {
	ProcessWaitlist(ctx context.Context, deviceID string) (int, error)
}

type ResyncResult struct {
	Applied int `json:"applied"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

type snapshotService struct {
	repo     repository.SnapshotRepository
	catalog  CatalogReader
	promoter WaitlistPromoter
	clock    Clock
	cfg      *config.Config
	group    singleflight.Group
}

func NewSnapshotService(
	repo repository.SnapshotRepository,
	catalog CatalogReader,
	promoter WaitlistPromoter,
	clock Clock,
	cfg *config.Config,
) SnapshotService {
	if clock == nil {
		clock = SystemClock()
	}
	return &snapshotService{
		repo:     repo,
		catalog:  catalog,
		promoter: promoter,
		clock:    clock,
		cfg:      cfg,
	}
}

func (s *snapshotService) Apply(ctx context.Context, snap *model.DeviceSnapshot) error {
	if snap == nil || strings.TrimSpace(snap.ID) == "" {
		return apperrors.MalformedEvent("Device snapshot is missing an id")
	}
	snap.ID = strings.TrimSpace(snap.ID)

	if snap.Clamp() {
		s.cfg.Log.Warn("Clamped out-of-range device counts",
			"device_id", snap.ID,
			"available_count", snap.AvailableCount,
			"max_device_count", snap.MaxDeviceCount,
		)
	}
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = s.clock.Now()
	}

	previous, err := s.repo.Upsert(ctx, snap)
	if err != nil {
		s.cfg.Log.Error("Failed to store device snapshot", "device_id", snap.ID, "error", err)
		return apperrors.Unavailable("Device snapshot store", err)
	}

	increased := snap.AvailableCount > 0 &&
		(previous == nil || snap.AvailableCount > previous.AvailableCount)

	s.cfg.Log.Debug("Device snapshot applied",
		"device_id", snap.ID,
		"available_count", snap.AvailableCount,
		"increased", increased,
	)

	if increased && s.promoter != nil {
		if _, err := s.promoter.ProcessWaitlist(ctx, snap.ID); err != nil {
			s.cfg.Log.Warn("Waitlist processing after availability increase failed",
				"device_id", snap.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (s *snapshotService) Remove(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return apperrors.MalformedEvent("Device id is required")
	}
	if err := s.repo.Delete(ctx, deviceID); err != nil {
		if errors.Is(err, loanserrors.ErrSnapshotNotFound) {
			return nil
		}
		return apperrors.Unavailable("Device snapshot store", err)
	}

	s.cfg.Log.Info("Device snapshot removed", "device_id", deviceID)
	return nil
}

func (s *snapshotService) Get(ctx context.Context, deviceID string) (*model.DeviceSnapshot, error) {
	snap, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, loanserrors.ErrSnapshotNotFound) {
			return nil, apperrors.DeviceNotFound(deviceID)
		}
		return nil, apperrors.Unavailable("Device snapshot store", err)
	}
	return snap, nil
}

// Resync rebuilds the replica from the catalog. Concurrent callers share a
// single run.
func (s *snapshotService) Resync(ctx context.Context) (*ResyncResult, error) {
	v, err, _ := s.group.Do("resync", func() (any, error) {
		return s.resync(ctx)
	})
	result, _ := v.(*ResyncResult)
	return result, err
}

func (s *snapshotService) resync(ctx context.Context) (*ResyncResult, error) {
	if s.catalog == nil {
		return nil, apperrors.Unavailable("Device catalog", errCatalogNotConfigured)
	}

	devices, err := s.catalog.ListSnapshots(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to list catalog devices", "error", err)
		return nil, apperrors.Unavailable("Device catalog", err)
	}

	result := &ResyncResult{}
	var failures []error
	seen := make(map[string]struct{}, len(devices))
	for _, snap := range devices {
		if snap == nil {
			continue
		}
		seen[strings.TrimSpace(snap.ID)] = struct{}{}
		if err := s.Apply(ctx, snap); err != nil {
			result.Failed++
			failures = append(failures, err)
			continue
		}
		result.Applied++
	}

	local, err := s.repo.List(ctx)
	if err != nil {
		return result, apperrors.Unavailable("Device snapshot store", err)
	}
	for _, snap := range local {
		if _, ok := seen[snap.ID]; ok {
			continue
		}
		if err := s.Remove(ctx, snap.ID); err != nil {
			result.Failed++
			failures = append(failures, err)
			continue
		}
		result.Removed++
	}

	s.cfg.Log.Info("Device snapshot resync completed",
		"applied", result.Applied,
		"removed", result.Removed,
		"failed", result.Failed,
	)
	return result, errors.Join(failures...)
}
