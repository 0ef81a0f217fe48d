package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/inkworks/studio-booking/internal/clock"
	"github.com/inkworks/studio-booking/internal/domain"
	"github.com/inkworks/studio-booking/internal/notify"
	"github.com/inkworks/studio-booking/internal/settings"
	"go.uber.org/zap"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, res domain.Reservation) error
	Get(ctx context.Context, id string) (domain.Reservation, error)
	AttachEvidence(ctx context.Context, id, evidenceRef string) (domain.Reservation, error)
	Resolve(ctx context.Context, id string, status domain.ReservationStatus, resolvedAt time.Time) (domain.Reservation, error)
}

type SlotStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListAvailable(ctx context.Context) ([]domain.Slot, error)
	ListAll(ctx context.Context) ([]domain.Slot, error)
	Get(ctx context.Context, id string) (domain.Slot, error)
	Claim(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	Insert(ctx context.Context, slot domain.Slot) error
	Delete(ctx context.Context, id string) error
}

type UserStore interface {
	Upsert(ctx context.Context, user domain.User, now time.Time) error
	Get(ctx context.Context, id string) (domain.User, error)
}

// Settings is the read side of the business settings store.
type Settings interface {
	Get(ctx context.Context, key string) string
	GetInt(ctx context.Context, key string, fallback int) int
}

// BookingService drives a reservation through its lifecycle:
// held -> evidence_submitted -> confirmed | rejected | expired.
type BookingService struct {
	reservations ReservationRepository
	slots        SlotStore
	users        UserStore
	settings     Settings
	notifier     notify.Notifier
	clock        clock.Clock
	logger       *zap.Logger

	adminIDs           []string
	holdTimeoutMinutes int
	notifyTimeout      time.Duration
}

type BookingServiceConfig struct {
	AdminIDs           []string
	HoldTimeoutMinutes int
	NotifyTimeout      time.Duration
}

func NewBookingService(
	reservations ReservationRepository,
	slots SlotStore,
	users UserStore,
	set Settings,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *zap.Logger,
	cfg BookingServiceConfig,
) *BookingService {
	if cfg.HoldTimeoutMinutes <= 0 {
		cfg.HoldTimeoutMinutes = 120
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &BookingService{
		reservations:       reservations,
		slots:              slots,
		users:              users,
		settings:           set,
		notifier:           notifier,
		clock:              clk,
		logger:             logger,
		adminIDs:           cfg.AdminIDs,
		holdTimeoutMinutes: cfg.HoldTimeoutMinutes,
		notifyTimeout:      cfg.NotifyTimeout,
	}
}

type CreateHoldInput struct {
	User     domain.User
	SlotID   string
	Discount bool
}

// HoldDetails is what the chat layer renders back to the user after a
// successful hold: the reservation plus payment instructions.
type HoldDetails struct {
	Reservation   domain.Reservation
	SlotLabel     string
	CardNumber    string
	CardOwner     string
	DepositAmount string
	ExpiresAt     time.Time
}

// CreateHold atomically claims the slot and records a held reservation.
// A lost claim race surfaces as ErrSlotUnavailable with nothing written.
func (s *BookingService) CreateHold(ctx context.Context, in CreateHoldInput) (HoldDetails, error) {
	if in.User.ID == "" {
		return HoldDetails{}, domain.ErrUserIDRequired
	}
	if in.SlotID == "" {
		return HoldDetails{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var (
		res  domain.Reservation
		slot domain.Slot
	)

	err := s.reservations.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Upsert(txCtx, in.User, now); err != nil {
			return err
		}
		// Claim failure short-circuits before any reservation exists.
		if err := s.slots.Claim(txCtx, in.SlotID); err != nil {
			return err
		}
		var err error
		slot, err = s.slots.Get(txCtx, in.SlotID)
		if err != nil {
			return err
		}

		res = domain.Reservation{
			ID:     uuid.NewString(),
			UserID: in.User.ID,
			SlotID: in.SlotID,
			Status: domain.StatusHeld,
			HeldAt: now,
		}
		return s.reservations.Create(txCtx, res)
	})
	if err != nil {
		return HoldDetails{}, err
	}

	timeoutMin := s.settings.GetInt(ctx, settings.KeyHoldTimeoutMinutes, s.holdTimeoutMinutes)
	deposit := s.settings.Get(ctx, settings.KeyDepositAmount)
	if in.Discount {
		deposit = applyDiscount(deposit)
	}

	return HoldDetails{
		Reservation:   res,
		SlotLabel:     slot.Label,
		CardNumber:    s.settings.Get(ctx, settings.KeyCardNumber),
		CardOwner:     s.settings.Get(ctx, settings.KeyCardOwner),
		DepositAmount: deposit,
		ExpiresAt:     now.Add(time.Duration(timeoutMin) * time.Minute),
	}, nil
}

// applyDiscount takes 10% off a numeric deposit. Non-numeric values pass
// through unchanged rather than breaking the booking flow.
func applyDiscount(deposit string) string {
	amount, err := strconv.Atoi(deposit)
	if err != nil {
		return deposit
	}
	return strconv.Itoa(amount * 9 / 10)
}

// AttachEvidence records the receipt reference, moves the hold to
// evidence_submitted and alerts the admins. Notification failures are
// logged per admin and never fail the operation.
func (s *BookingService) AttachEvidence(ctx context.Context, reservationID, evidenceRef string) (domain.Reservation, error) {
	if evidenceRef == "" {
		return domain.Reservation{}, domain.ErrEvidenceRequired
	}

	res, err := s.reservations.AttachEvidence(ctx, reservationID, evidenceRef)
	if err != nil {
		return domain.Reservation{}, err
	}

	s.notifyAdmins(ctx, res)
	return res, nil
}

func (s *BookingService) notifyAdmins(ctx context.Context, res domain.Reservation) {
	slotLabel := s.slotLabel(ctx, res.SlotID)
	displayName, handle := res.UserID, ""
	if user, err := s.users.Get(ctx, res.UserID); err == nil {
		displayName, handle = user.DisplayName, user.Handle
	}

	msg := fmt.Sprintf(s.settings.Get(ctx, settings.KeyMsgAdminReview), slotLabel, displayName, handle, res.ID)
	for _, adminID := range s.adminIDs {
		s.send(ctx, adminID, msg)
	}
}

// Resolve moves a hold to a terminal state. Resolving an already-terminal
// reservation reports ErrAlreadyTerminal and has no side effects, so admin
// double-taps and admin/sweeper races are harmless. For rejected and
// expired outcomes the slot is released in the same transaction; the slot
// is bookable again before this method returns.
func (s *BookingService) Resolve(ctx context.Context, reservationID string, outcome domain.Outcome) (domain.Reservation, error) {
	now := s.clock.Now()
	var res domain.Reservation

	err := s.reservations.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.reservations.Resolve(txCtx, reservationID, outcome.Status(), now)
		if err != nil {
			return err
		}
		if outcome == domain.OutcomeConfirmed {
			// Confirmed bookings consume the slot permanently.
			return nil
		}
		return s.slots.Release(txCtx, res.SlotID)
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	s.notifyOutcome(ctx, res, outcome)
	return res, nil
}

func (s *BookingService) notifyOutcome(ctx context.Context, res domain.Reservation, outcome domain.Outcome) {
	slotLabel := s.slotLabel(ctx, res.SlotID)

	var msg string
	switch outcome {
	case domain.OutcomeConfirmed:
		msg = fmt.Sprintf(s.settings.Get(ctx, settings.KeyMsgConfirmed), slotLabel)
	case domain.OutcomeRejected:
		msg = s.settings.Get(ctx, settings.KeyMsgRejected)
	case domain.OutcomeExpired:
		msg = fmt.Sprintf(s.settings.Get(ctx, settings.KeyMsgExpired), slotLabel)
	}
	s.send(ctx, res.UserID, msg)
}

func (s *BookingService) slotLabel(ctx context.Context, slotID string) string {
	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return slotID
	}
	return slot.Label
}

// send delivers one notification with a bounded timeout, logging (not
// propagating) failures. State transitions are durable before any send.
func (s *BookingService) send(ctx context.Context, recipientID, message string) {
	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(sendCtx, recipientID, message); err != nil {
		s.logger.Warn("notification failed",
			zap.String("recipient", recipientID), zap.Error(err))
	}
}
