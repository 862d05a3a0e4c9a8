package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

type userRepo struct {
	s *Store
}

const userColumns = `id, email, password_hash, verified, locked, strict_mode, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u store.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	_, err := r.s.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Verified, u.Locked, u.StrictMode,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*store.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *userRepo) findOne(ctx context.Context, query string, arg any) (*store.User, error) {
	var (
		u                    store.User
		createdAt, updatedAt int64
	)
	err := r.s.queryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &u.Locked, &u.StrictMode,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", r.s.mapError(err))
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.s.exec(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (r *userRepo) SetVerified(ctx context.Context, id string, verified, locked bool) error {
	_, err := r.s.exec(ctx,
		`UPDATE users SET verified = ?, locked = ?, updated_at = ? WHERE id = ?`,
		verified, locked, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	return nil
}

func (r *userRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	_, err := r.s.exec(ctx,
		`UPDATE users SET locked = ?, updated_at = ? WHERE id = ?`,
		locked, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set locked: %w", err)
	}
	return nil
}
