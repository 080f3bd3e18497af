package tracking

import "errors"

var (
	ErrSessionNotFound   = errors.New("tracking session not found")
	ErrAlreadyTracking   = errors.New("tracking already started for booking")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAddressResolution = errors.New("address could not be resolved")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrPersistence       = errors.New("snapshot persistence failed")
)
