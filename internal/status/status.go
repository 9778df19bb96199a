package status

import "errors"

var (
	ErrNotAuthenticated = errors.New("auth: not authenticated")
	ErrForbidden        = errors.New("auth: operation not allowed for this user")
	ErrNotFound         = errors.New("record: not found")
	ErrInvalidData      = errors.New("record: invalid data")
	ErrNoCapacity       = errors.New("facility: no capacity available")
	ErrSlotUnavailable  = errors.New("slot: not available")
	ErrStaleTransition  = errors.New("booking: stale status transition")
	ErrPartialFailure   = errors.New("booking: partial failure, reconciliation required")
	ErrAccessCodeWrong  = errors.New("booking: access code mismatch")
	ErrAlreadyRated     = errors.New("booking: already rated")
)
