package postgres

import (
	"context"
	"fmt"

	"github.com/inkworks/studio-booking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SlotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *SlotRepository) ListAvailable(ctx context.Context) ([]domain.Slot, error) {
	const query = `
SELECT id, label, is_available, position
FROM slots
WHERE is_available
ORDER BY position`

	return r.listSlots(ctx, query)
}

func (r *SlotRepository) ListAll(ctx context.Context) ([]domain.Slot, error) {
	const query = `
SELECT id, label, is_available, position
FROM slots
ORDER BY position`

	return r.listSlots(ctx, query)
}

func (r *SlotRepository) listSlots(ctx context.Context, query string) ([]domain.Slot, error) {
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ID, &s.Label, &s.Available, &s.Position); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (r *SlotRepository) Get(ctx context.Context, id string) (domain.Slot, error) {
	const query = `SELECT id, label, is_available, position FROM slots WHERE id = $1`

	var s domain.Slot
	err := r.queryRow(ctx, query, id).Scan(&s.ID, &s.Label, &s.Available, &s.Position)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Slot{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Slot{}, domain.ErrSlotNotFound
		}
		return domain.Slot{}, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

// Claim atomically flips the slot to unavailable. When two claims race
// for the same slot exactly one UPDATE matches the availability guard.
func (r *SlotRepository) Claim(ctx context.Context, id string) error {
	const stmt = `UPDATE slots SET is_available = FALSE WHERE id = $1 AND is_available`

	tag, err := r.exec(ctx, stmt, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrSlotUnavailable
	}
	return nil
}

// Release marks the slot available again. Releasing an already-available
// slot is a no-op.
func (r *SlotRepository) Release(ctx context.Context, id string) error {
	const stmt = `UPDATE slots SET is_available = TRUE WHERE id = $1`

	if _, err := r.exec(ctx, stmt, id); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (r *SlotRepository) Insert(ctx context.Context, slot domain.Slot) error {
	const stmt = `INSERT INTO slots (id, label, is_available) VALUES ($1, $2, $3)`

	if _, err := r.exec(ctx, stmt, slot.ID, slot.Label, slot.Available); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// Delete removes a slot, but only while it is available. A slot with an
// active or confirmed reservation stays put.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	const stmt = `DELETE FROM slots WHERE id = $1 AND is_available`

	tag, err := r.exec(ctx, stmt, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrSlotOccupied
	}
	return nil
}

func (r *SlotRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SlotRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *SlotRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
