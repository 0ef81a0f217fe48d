package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/inkworks/studio-booking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) Create(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, user_id, slot_id, status, evidence_ref, held_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, res.ID, res.UserID, res.SlotID, res.Status, res.EvidenceRef, res.HeldAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		// The partial unique index on active reservations backs up the
		// slot availability flag; a concurrent hold trips it here.
		if isUniqueViolation(err) {
			return domain.ErrSlotUnavailable
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (domain.Reservation, error) {
	const query = `
SELECT id, user_id, slot_id, status, evidence_ref, held_at, resolved_at
FROM reservations
WHERE id = $1`

	var res domain.Reservation
	err := r.queryRow(ctx, query, id).
		Scan(&res.ID, &res.UserID, &res.SlotID, &res.Status, &res.EvidenceRef, &res.HeldAt, &res.ResolvedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// AttachEvidence records the receipt reference and moves the hold to
// evidence_submitted. The status guard makes a second upload, or an
// upload against a resolved hold, fail without touching the row.
func (r *ReservationRepository) AttachEvidence(ctx context.Context, id, evidenceRef string) (domain.Reservation, error) {
	const stmt = `
UPDATE reservations
SET evidence_ref = $2, status = $3
WHERE id = $1 AND status = $4
RETURNING id, user_id, slot_id, status, evidence_ref, held_at, resolved_at`

	var res domain.Reservation
	err := r.queryRow(ctx, stmt, id, evidenceRef, domain.StatusEvidenceSubmitted, domain.StatusHeld).
		Scan(&res.ID, &res.UserID, &res.SlotID, &res.Status, &res.EvidenceRef, &res.HeldAt, &res.ResolvedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return domain.Reservation{}, getErr
			}
			return domain.Reservation{}, domain.ErrWrongState
		}
		return domain.Reservation{}, fmt.Errorf("attach evidence: %w", err)
	}
	return res, nil
}

// Resolve compare-and-sets the reservation from an active status to the
// given terminal one. Exactly one caller can win this transition; losers
// observe ErrAlreadyTerminal.
func (r *ReservationRepository) Resolve(ctx context.Context, id string, status domain.ReservationStatus, resolvedAt time.Time) (domain.Reservation, error) {
	const stmt = `
UPDATE reservations
SET status = $2, resolved_at = $3
WHERE id = $1 AND status IN ($4, $5)
RETURNING id, user_id, slot_id, status, evidence_ref, held_at, resolved_at`

	var res domain.Reservation
	err := r.queryRow(ctx, stmt, id, status, resolvedAt, domain.StatusHeld, domain.StatusEvidenceSubmitted).
		Scan(&res.ID, &res.UserID, &res.SlotID, &res.Status, &res.EvidenceRef, &res.HeldAt, &res.ResolvedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return domain.Reservation{}, getErr
			}
			return domain.Reservation{}, domain.ErrAlreadyTerminal
		}
		return domain.Reservation{}, fmt.Errorf("resolve reservation: %w", err)
	}
	return res, nil
}

// ListExpired returns active reservations held since before the cutoff.
func (r *ReservationRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	const query = `
SELECT id, user_id, slot_id, status, evidence_ref, held_at, resolved_at
FROM reservations
WHERE status IN ($1, $2) AND held_at < $3
ORDER BY held_at`

	return r.listReservations(ctx, query, domain.StatusHeld, domain.StatusEvidenceSubmitted, cutoff)
}

// ListNeedingWarning returns active reservations held since before the
// cutoff that have no warning marker yet.
func (r *ReservationRepository) ListNeedingWarning(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	const query = `
SELECT r.id, r.user_id, r.slot_id, r.status, r.evidence_ref, r.held_at, r.resolved_at
FROM reservations r
LEFT JOIN expiry_warnings w ON w.reservation_id = r.id
WHERE r.status IN ($1, $2) AND r.held_at < $3 AND w.reservation_id IS NULL
ORDER BY r.held_at`

	return r.listReservations(ctx, query, domain.StatusHeld, domain.StatusEvidenceSubmitted, cutoff)
}

// MarkWarningSent claims the one warning slot for a reservation. It
// reports false when another sweep already claimed it.
func (r *ReservationRepository) MarkWarningSent(ctx context.Context, id string, at time.Time) (bool, error) {
	const stmt = `
INSERT INTO expiry_warnings (reservation_id, warning_sent_at)
VALUES ($1, $2)
ON CONFLICT (reservation_id) DO NOTHING`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("mark warning sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepository) listReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.SlotID, &res.Status, &res.EvidenceRef, &res.HeldAt, &res.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
