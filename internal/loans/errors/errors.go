package errors

import "errors"

var (
	ErrNotFound = errors.New("loan not found")

	ErrSnapshotNotFound = errors.New("device snapshot not found")

	// ErrVersionConflict means the loan changed between read and write.
	ErrVersionConflict = errors.New("loan was modified concurrently")

	ErrDuplicateReservation = errors.New("reservation id is already linked to another loan")
)
