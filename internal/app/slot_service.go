package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/inkworks/studio-booking/internal/domain"
)

// SlotService covers the admin side of the calendar: adding, removing
// and listing slots.
type SlotService struct {
	slots SlotStore
}

func NewSlotService(slots SlotStore) *SlotService {
	return &SlotService{slots: slots}
}

func (s *SlotService) Add(ctx context.Context, label string) (domain.Slot, error) {
	if label == "" {
		return domain.Slot{}, domain.ErrLabelRequired
	}

	slot := domain.Slot{
		ID:        uuid.NewString(),
		Label:     label,
		Available: true,
	}
	if err := s.slots.Insert(ctx, slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

// Remove deletes a slot. Slots with an active or confirmed reservation
// cannot be removed.
func (s *SlotService) Remove(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.slots.Delete(ctx, id)
}

// ListAvailable returns bookable slots in insertion order. An empty
// calendar is a valid result, not an error.
func (s *SlotService) ListAvailable(ctx context.Context) ([]domain.Slot, error) {
	return s.slots.ListAvailable(ctx)
}

func (s *SlotService) ListAll(ctx context.Context) ([]domain.Slot, error) {
	return s.slots.ListAll(ctx)
}
