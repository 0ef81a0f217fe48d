package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkworks/studio-booking/internal/clock"
	"github.com/inkworks/studio-booking/internal/domain"
	"github.com/inkworks/studio-booking/internal/notify"
	"github.com/inkworks/studio-booking/internal/settings"
	"go.uber.org/zap"
)

type SweeperStore interface {
	ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error)
	ListNeedingWarning(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error)
	MarkWarningSent(ctx context.Context, id string, at time.Time) (bool, error)
}

// Resolver is the resolution path the sweeper shares with admin actions,
// so both go through the same terminal guard.
type Resolver interface {
	Resolve(ctx context.Context, reservationID string, outcome domain.Outcome) (domain.Reservation, error)
}

type SlotLabeler interface {
	Get(ctx context.Context, id string) (domain.Slot, error)
}

// Sweeper periodically expires stale holds and sends one expiry warning
// per reservation. Failures are isolated per reservation so one bad row
// or failed send never aborts the rest of a sweep.
type Sweeper struct {
	store    SweeperStore
	resolver Resolver
	slots    SlotLabeler
	settings Settings
	notifier notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger

	timeoutMinutes int
	warningMinutes int
	notifyTimeout  time.Duration
}

type SweeperConfig struct {
	TimeoutMinutes int
	WarningMinutes int
	NotifyTimeout  time.Duration
}

func NewSweeper(
	store SweeperStore,
	resolver Resolver,
	slots SlotLabeler,
	set Settings,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *zap.Logger,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.TimeoutMinutes <= 0 {
		cfg.TimeoutMinutes = 120
	}
	if cfg.WarningMinutes < 0 {
		cfg.WarningMinutes = 0
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &Sweeper{
		store:          store,
		resolver:       resolver,
		slots:          slots,
		settings:       set,
		notifier:       notifier,
		clock:          clk,
		logger:         logger,
		timeoutMinutes: cfg.TimeoutMinutes,
		warningMinutes: cfg.WarningMinutes,
		notifyTimeout:  cfg.NotifyTimeout,
	}
}

// Run executes one sweep cycle. Timeout and warning thresholds are read
// once per cycle, so a settings change mid-cycle cannot make the expiry
// and warning passes disagree.
func (s *Sweeper) Run(ctx context.Context) error {
	now := s.clock.Now()
	timeout := time.Duration(s.settings.GetInt(ctx, settings.KeyHoldTimeoutMinutes, s.timeoutMinutes)) * time.Minute
	warning := time.Duration(s.settings.GetInt(ctx, settings.KeyExpiryWarningMinutes, s.warningMinutes)) * time.Minute

	if err := s.expirePass(ctx, now, timeout); err != nil {
		return err
	}
	return s.warningPass(ctx, now, timeout, warning)
}

func (s *Sweeper) expirePass(ctx context.Context, now time.Time, timeout time.Duration) error {
	expired, err := s.store.ListExpired(ctx, now.Add(-timeout))
	if err != nil {
		return fmt.Errorf("list expired: %w", err)
	}

	for _, res := range expired {
		_, err := s.resolver.Resolve(ctx, res.ID, domain.OutcomeExpired)
		switch {
		case err == nil:
			s.logger.Info("hold expired",
				zap.String("reservation_id", res.ID), zap.String("slot_id", res.SlotID))
		case errors.Is(err, domain.ErrAlreadyTerminal):
			// An admin resolved it between listing and now; their outcome stands.
		default:
			s.logger.Error("expire reservation failed",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Sweeper) warningPass(ctx context.Context, now time.Time, timeout, warning time.Duration) error {
	if warning <= 0 || warning >= timeout {
		return nil
	}

	pending, err := s.store.ListNeedingWarning(ctx, now.Add(-(timeout - warning)))
	if err != nil {
		return fmt.Errorf("list needing warning: %w", err)
	}

	for _, res := range pending {
		claimed, err := s.store.MarkWarningSent(ctx, res.ID, now)
		if err != nil {
			s.logger.Error("mark warning failed",
				zap.String("reservation_id", res.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		remaining := int(res.HeldAt.Add(timeout).Sub(now).Minutes())
		if remaining < 0 {
			remaining = 0
		}
		msg := fmt.Sprintf(s.settings.Get(ctx, settings.KeyMsgExpiryWarning), s.slotLabel(ctx, res.SlotID), remaining)

		sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		if err := s.notifier.Notify(sendCtx, res.UserID, msg); err != nil {
			s.logger.Warn("expiry warning failed",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
		cancel()
	}
	return nil
}

func (s *Sweeper) slotLabel(ctx context.Context, slotID string) string {
	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return slotID
	}
	return slot.Label
}

// Start runs sweep cycles on a fixed interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
