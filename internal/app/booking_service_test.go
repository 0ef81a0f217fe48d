package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/inkworks/studio-booking/internal/clock"
	"github.com/inkworks/studio-booking/internal/domain"
	"github.com/inkworks/studio-booking/internal/settings"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestBookingService(
	repo *fakeReservationRepo,
	slots *fakeSlotStore,
	users *fakeUserStore,
	notifier *spyNotifier,
	cfg BookingServiceConfig,
) *BookingService {
	return NewBookingService(
		repo, slots, users,
		&stubSettings{},
		notifier,
		clock.NewFixed(testNow),
		zap.NewNop(),
		cfg,
	)
}

func TestCreateHold(t *testing.T) {
	t.Parallel()

	t.Run("claims slot and records held reservation", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo()
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday 14:00", Available: true})
		users := &fakeUserStore{}
		svc := newTestBookingService(repo, slots, users, &spyNotifier{}, BookingServiceConfig{})

		details, err := svc.CreateHold(context.Background(), CreateHoldInput{
			User:   domain.User{ID: "u1", DisplayName: "Ana"},
			SlotID: "slot-1",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if details.Reservation.Status != domain.StatusHeld {
			t.Fatalf("expected status held, got %s", details.Reservation.Status)
		}
		if !details.Reservation.HeldAt.Equal(testNow) {
			t.Fatalf("expected held_at %v, got %v", testNow, details.Reservation.HeldAt)
		}
		if want := testNow.Add(120 * time.Minute); !details.ExpiresAt.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, details.ExpiresAt)
		}
		if details.SlotLabel != "Monday 14:00" {
			t.Fatalf("expected slot label, got %q", details.SlotLabel)
		}
		if details.DepositAmount != "500000" {
			t.Fatalf("expected full deposit, got %q", details.DepositAmount)
		}
		if slots.get("slot-1").Available {
			t.Fatal("expected slot to be claimed")
		}
		if len(users.upserted) != 1 || users.upserted[0].ID != "u1" {
			t.Fatalf("expected user upsert, got %+v", users.upserted)
		}
	})

	t.Run("discount takes ten percent off the deposit", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo()
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday", Available: true})
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		details, err := svc.CreateHold(context.Background(), CreateHoldInput{
			User:     domain.User{ID: "u1"},
			SlotID:   "slot-1",
			Discount: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if details.DepositAmount != "450000" {
			t.Fatalf("expected discounted deposit 450000, got %q", details.DepositAmount)
		}
	})

	t.Run("unavailable slot writes nothing", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo()
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday", Available: false})
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{
			User:   domain.User{ID: "u1"},
			SlotID: "slot-1",
		})
		if !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
		if len(repo.reservations) != 0 {
			t.Fatalf("expected no reservations, got %d", len(repo.reservations))
		}
	})

	t.Run("unknown slot", func(t *testing.T) {
		t.Parallel()
		svc := newTestBookingService(newFakeReservationRepo(), newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{
			User:   domain.User{ID: "u1"},
			SlotID: "nope",
		})
		if !errors.Is(err, domain.ErrSlotNotFound) {
			t.Fatalf("expected ErrSlotNotFound, got %v", err)
		}
	})

	t.Run("missing user id", func(t *testing.T) {
		t.Parallel()
		svc := newTestBookingService(newFakeReservationRepo(), newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{SlotID: "slot-1"})
		if !errors.Is(err, domain.ErrUserIDRequired) {
			t.Fatalf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("missing slot id", func(t *testing.T) {
		t.Parallel()
		svc := newTestBookingService(newFakeReservationRepo(), newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{User: domain.User{ID: "u1"}})
		if !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestApplyDiscount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"500000", "450000"},
		{"100", "90"},
		{"0", "0"},
		{"not-a-number", "not-a-number"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := applyDiscount(tt.in); got != tt.want {
			t.Errorf("applyDiscount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAttachEvidence(t *testing.T) {
	t.Parallel()

	t.Run("moves hold to evidence_submitted and alerts admins", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusHeld, HeldAt: testNow,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday 14:00"})
		users := &fakeUserStore{users: map[string]domain.User{
			"u1": {ID: "u1", DisplayName: "Ana", Handle: "ana"},
		}}
		notifier := &spyNotifier{}
		svc := newTestBookingService(repo, slots, users, notifier, BookingServiceConfig{
			AdminIDs: []string{"admin-1", "admin-2"},
		})

		res, err := svc.AttachEvidence(context.Background(), "res-1", "file-99")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusEvidenceSubmitted {
			t.Fatalf("expected evidence_submitted, got %s", res.Status)
		}
		if res.EvidenceRef != "file-99" {
			t.Fatalf("expected evidence ref recorded, got %q", res.EvidenceRef)
		}
		if len(notifier.sent) != 2 {
			t.Fatalf("expected 2 admin notifications, got %d", len(notifier.sent))
		}
		if notifier.sent[0].recipient != "admin-1" || notifier.sent[1].recipient != "admin-2" {
			t.Fatalf("unexpected recipients: %+v", notifier.sent)
		}
		if !strings.Contains(notifier.sent[0].message, "Monday 14:00") {
			t.Fatalf("expected slot label in admin message, got %q", notifier.sent[0].message)
		}
	})

	t.Run("empty evidence ref", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{ID: "res-1", Status: domain.StatusHeld})
		svc := newTestBookingService(repo, newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.AttachEvidence(context.Background(), "res-1", "")
		if !errors.Is(err, domain.ErrEvidenceRequired) {
			t.Fatalf("expected ErrEvidenceRequired, got %v", err)
		}
		if repo.reservations["res-1"].Status != domain.StatusHeld {
			t.Fatal("expected reservation untouched")
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc := newTestBookingService(newFakeReservationRepo(), newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.AttachEvidence(context.Background(), "nope", "file-99")
		if !errors.Is(err, domain.ErrReservationNotFound) {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})

	t.Run("already past held", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{ID: "res-1", Status: domain.StatusEvidenceSubmitted})
		svc := newTestBookingService(repo, newFakeSlotStore(), &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		_, err := svc.AttachEvidence(context.Background(), "res-1", "file-99")
		if !errors.Is(err, domain.ErrWrongState) {
			t.Fatalf("expected ErrWrongState, got %v", err)
		}
	})

	t.Run("notification failure does not fail the operation", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusHeld})
		notifier := &spyNotifier{err: errors.New("provider down")}
		svc := newTestBookingService(repo, newFakeSlotStore(), &fakeUserStore{}, notifier, BookingServiceConfig{
			AdminIDs: []string{"admin-1"},
		})

		res, err := svc.AttachEvidence(context.Background(), "res-1", "file-99")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusEvidenceSubmitted {
			t.Fatalf("expected evidence_submitted, got %s", res.Status)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("confirmed keeps the slot claimed", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusEvidenceSubmitted, HeldAt: testNow,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday 14:00", Available: false})
		notifier := &spyNotifier{}
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, notifier, BookingServiceConfig{})

		res, err := svc.Resolve(context.Background(), "res-1", domain.OutcomeConfirmed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusConfirmed {
			t.Fatalf("expected confirmed, got %s", res.Status)
		}
		if res.ResolvedAt == nil || !res.ResolvedAt.Equal(testNow) {
			t.Fatalf("expected resolved_at %v, got %v", testNow, res.ResolvedAt)
		}
		if slots.get("slot-1").Available {
			t.Fatal("confirmed booking must keep the slot claimed")
		}
		if len(notifier.sent) != 1 || notifier.sent[0].recipient != "u1" {
			t.Fatalf("expected one notification to u1, got %+v", notifier.sent)
		}
		if !strings.Contains(notifier.sent[0].message, "Monday 14:00") {
			t.Fatalf("expected slot label in message, got %q", notifier.sent[0].message)
		}
	})

	t.Run("rejected frees the slot", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusEvidenceSubmitted,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday", Available: false})
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		res, err := svc.Resolve(context.Background(), "res-1", domain.OutcomeRejected)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusRejected {
			t.Fatalf("expected rejected, got %s", res.Status)
		}
		if !slots.get("slot-1").Available {
			t.Fatal("expected slot released")
		}
	})

	t.Run("expired frees the slot", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusHeld,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday", Available: false})
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, &spyNotifier{}, BookingServiceConfig{})

		res, err := svc.Resolve(context.Background(), "res-1", domain.OutcomeExpired)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusExpired {
			t.Fatalf("expected expired, got %s", res.Status)
		}
		if !slots.get("slot-1").Available {
			t.Fatal("expected slot released")
		}
	})

	t.Run("already terminal has no side effects", func(t *testing.T) {
		t.Parallel()
		resolvedAt := testNow.Add(-time.Hour)
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusConfirmed, ResolvedAt: &resolvedAt,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Label: "Monday", Available: false})
		notifier := &spyNotifier{}
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, notifier, BookingServiceConfig{})

		_, err := svc.Resolve(context.Background(), "res-1", domain.OutcomeRejected)
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
		if slots.get("slot-1").Available {
			t.Fatal("losing resolve must not release the slot")
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("losing resolve must not notify, got %+v", notifier.sent)
		}
	})

	t.Run("notification failure does not fail the resolution", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo(domain.Reservation{
			ID: "res-1", UserID: "u1", SlotID: "slot-1", Status: domain.StatusEvidenceSubmitted,
		})
		slots := newFakeSlotStore(domain.Slot{ID: "slot-1", Available: false})
		svc := newTestBookingService(repo, slots, &fakeUserStore{}, &spyNotifier{err: errors.New("provider down")}, BookingServiceConfig{})

		res, err := svc.Resolve(context.Background(), "res-1", domain.OutcomeConfirmed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.StatusConfirmed {
			t.Fatalf("expected confirmed, got %s", res.Status)
		}
	})
}

// fakeReservationRepo keeps reservations in a map and enforces the same
// state guards the Postgres repository does.
type fakeReservationRepo struct {
	reservations map[string]domain.Reservation
}

func newFakeReservationRepo(seed ...domain.Reservation) *fakeReservationRepo {
	r := &fakeReservationRepo{reservations: make(map[string]domain.Reservation)}
	for _, res := range seed {
		r.reservations[res.ID] = res
	}
	return r
}

func (r *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeReservationRepo) Create(_ context.Context, res domain.Reservation) error {
	r.reservations[res.ID] = res
	return nil
}

func (r *fakeReservationRepo) Get(_ context.Context, id string) (domain.Reservation, error) {
	res, ok := r.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

func (r *fakeReservationRepo) AttachEvidence(_ context.Context, id, evidenceRef string) (domain.Reservation, error) {
	res, ok := r.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if res.Status != domain.StatusHeld {
		return domain.Reservation{}, domain.ErrWrongState
	}
	res.Status = domain.StatusEvidenceSubmitted
	res.EvidenceRef = evidenceRef
	r.reservations[id] = res
	return res, nil
}

func (r *fakeReservationRepo) Resolve(_ context.Context, id string, status domain.ReservationStatus, resolvedAt time.Time) (domain.Reservation, error) {
	res, ok := r.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if res.Status.Terminal() {
		return domain.Reservation{}, domain.ErrAlreadyTerminal
	}
	res.Status = status
	res.ResolvedAt = &resolvedAt
	r.reservations[id] = res
	return res, nil
}

type fakeSlotStore struct {
	slots map[string]domain.Slot
}

func newFakeSlotStore(seed ...domain.Slot) *fakeSlotStore {
	s := &fakeSlotStore{slots: make(map[string]domain.Slot)}
	for _, slot := range seed {
		s.slots[slot.ID] = slot
	}
	return s
}

func (s *fakeSlotStore) get(id string) domain.Slot {
	return s.slots[id]
}

func (s *fakeSlotStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeSlotStore) ListAvailable(_ context.Context) ([]domain.Slot, error) {
	var out []domain.Slot
	for _, slot := range s.slots {
		if slot.Available {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *fakeSlotStore) ListAll(_ context.Context) ([]domain.Slot, error) {
	var out []domain.Slot
	for _, slot := range s.slots {
		out = append(out, slot)
	}
	return out, nil
}

func (s *fakeSlotStore) Get(_ context.Context, id string) (domain.Slot, error) {
	slot, ok := s.slots[id]
	if !ok {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	return slot, nil
}

func (s *fakeSlotStore) Claim(_ context.Context, id string) error {
	slot, ok := s.slots[id]
	if !ok {
		return domain.ErrSlotNotFound
	}
	if !slot.Available {
		return domain.ErrSlotUnavailable
	}
	slot.Available = false
	s.slots[id] = slot
	return nil
}

func (s *fakeSlotStore) Release(_ context.Context, id string) error {
	slot, ok := s.slots[id]
	if !ok {
		return nil
	}
	slot.Available = true
	s.slots[id] = slot
	return nil
}

func (s *fakeSlotStore) Insert(_ context.Context, slot domain.Slot) error {
	s.slots[slot.ID] = slot
	return nil
}

func (s *fakeSlotStore) Delete(_ context.Context, id string) error {
	slot, ok := s.slots[id]
	if !ok {
		return domain.ErrSlotNotFound
	}
	if !slot.Available {
		return domain.ErrSlotOccupied
	}
	delete(s.slots, id)
	return nil
}

type fakeUserStore struct {
	users    map[string]domain.User
	upserted []domain.User
}

func (u *fakeUserStore) Upsert(_ context.Context, user domain.User, _ time.Time) error {
	u.upserted = append(u.upserted, user)
	return nil
}

func (u *fakeUserStore) Get(_ context.Context, id string) (domain.User, error) {
	user, ok := u.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// stubSettings serves the compiled-in defaults, optionally overridden.
type stubSettings struct {
	values map[string]string
}

func (s *stubSettings) Get(_ context.Context, key string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return settings.Defaults[key]
}

func (s *stubSettings) GetInt(_ context.Context, key string, fallback int) int {
	raw := s.Get(context.Background(), key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

type sentMessage struct {
	recipient string
	message   string
}

type spyNotifier struct {
	sent []sentMessage
	err  error
}

func (n *spyNotifier) Notify(_ context.Context, recipientID, message string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{recipient: recipientID, message: message})
	return nil
}
