package settings

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// Keys the booking flow reads. Admin tooling may add more.
const (
	KeyCardNumber           = "card_number"
	KeyCardOwner            = "card_owner"
	KeyDepositAmount        = "deposit_amount"
	KeyHoldTimeoutMinutes   = "hold_timeout_minutes"
	KeyExpiryWarningMinutes = "expiry_warning_minutes"
	KeyMsgReceiptReceived   = "msg_receipt_received"
	KeyMsgAdminReview       = "msg_admin_review"
	KeyMsgConfirmed         = "msg_confirmed"
	KeyMsgRejected          = "msg_rejected"
	KeyMsgExpired           = "msg_expired"
	KeyMsgExpiryWarning     = "msg_expiry_warning"
)

// Store is the persisted key/value source, typically the Postgres
// settings repository.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Service reads business settings with compiled-in fallbacks. A failing
// or missing row never propagates an error to the booking flow; the
// default is used instead.
type Service struct {
	store    Store
	defaults map[string]string
	logger   *zap.Logger
}

func New(store Store, defaults map[string]string, logger *zap.Logger) *Service {
	merged := make(map[string]string, len(Defaults)+len(defaults))
	for k, v := range Defaults {
		merged[k] = v
	}
	for k, v := range defaults {
		merged[k] = v
	}
	return &Service{store: store, defaults: merged, logger: logger}
}

// Defaults are the compiled-in values used when the store has no row.
var Defaults = map[string]string{
	KeyCardNumber:           "0000-0000-0000-0000",
	KeyCardOwner:            "Studio",
	KeyDepositAmount:        "500000",
	KeyHoldTimeoutMinutes:   "120",
	KeyExpiryWarningMinutes: "30",
	KeyMsgReceiptReceived:   "Receipt received. Your booking will be final once the studio approves it.",
	KeyMsgAdminReview:       "New receipt for %s from %s (@%s). Reservation %s awaits review.",
	KeyMsgConfirmed:         "Your booking for %s is confirmed. See you then!",
	KeyMsgRejected:          "Your booking was not approved. The slot has been freed; feel free to pick another time.",
	KeyMsgExpired:           "Your hold on %s expired because no receipt arrived in time. The slot is open again.",
	KeyMsgExpiryWarning:     "Your hold on %s expires in %d minutes. Please send your payment receipt to keep it.",
}

// Get returns the stored value for key, or the default when the row is
// absent or the store errors.
func (s *Service) Get(ctx context.Context, key string) string {
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("settings read failed, using default", zap.String("key", key), zap.Error(err))
		return s.defaults[key]
	}
	if !ok || value == "" {
		return s.defaults[key]
	}
	return value
}

// GetInt parses the value for key as an integer, falling back to the
// default (and then to fallback) on bad data.
func (s *Service) GetInt(ctx context.Context, key string, fallback int) int {
	raw := s.Get(ctx, key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("settings value is not an integer, using fallback",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return n
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, key, value)
}
