package domain

import "time"

type ReservationStatus string

const (
	StatusHeld              ReservationStatus = "held"
	StatusEvidenceSubmitted ReservationStatus = "evidence_submitted"
	StatusConfirmed         ReservationStatus = "confirmed"
	StatusRejected          ReservationStatus = "rejected"
	StatusExpired           ReservationStatus = "expired"
)

// Active reports whether the reservation still blocks its slot.
func (s ReservationStatus) Active() bool {
	return s == StatusHeld || s == StatusEvidenceSubmitted
}

// Terminal reports whether the reservation has been resolved.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Outcome is the closed set of resolutions a hold can reach.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeExpired   Outcome = "expired"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeConfirmed, OutcomeRejected, OutcomeExpired:
		return Outcome(s), nil
	}
	return "", ErrInvalidOutcome
}

// Status returns the terminal status the outcome resolves a hold to.
func (o Outcome) Status() ReservationStatus {
	switch o {
	case OutcomeConfirmed:
		return StatusConfirmed
	case OutcomeRejected:
		return StatusRejected
	default:
		return StatusExpired
	}
}

// Reservation tracks one hold on a slot through its lifecycle. At most one
// reservation per slot may be in an active status at a time.
type Reservation struct {
	ID          string
	UserID      string
	SlotID      string
	Status      ReservationStatus
	EvidenceRef string
	HeldAt      time.Time
	ResolvedAt  *time.Time
}
