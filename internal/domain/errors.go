package domain

import "errors"

var (
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotOccupied        = errors.New("slot has an active reservation")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyTerminal     = errors.New("reservation already resolved")
	ErrWrongState          = errors.New("reservation not in expected state")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidID           = errors.New("invalid id")
	ErrLabelRequired       = errors.New("slot label required")
	ErrUserIDRequired      = errors.New("user id required")
	ErrEvidenceRequired    = errors.New("evidence ref required")
)
