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

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert records a user on first contact and refreshes display metadata
// on every later contact. first_seen is never overwritten.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User, now time.Time) error {
	const stmt = `
INSERT INTO users (id, display_name, handle, first_seen)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, handle = EXCLUDED.handle`

	if _, err := r.exec(ctx, stmt, user.ID, user.DisplayName, user.Handle, now); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT id, display_name, handle, first_seen FROM users WHERE id = $1`

	var u domain.User
	err := r.queryRow(ctx, query, id).Scan(&u.ID, &u.DisplayName, &u.Handle, &u.FirstSeen)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *UserRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
