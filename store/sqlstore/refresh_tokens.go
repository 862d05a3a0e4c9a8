package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

type refreshTokenRepo struct {
	s *Store
}

func (r *refreshTokenRepo) Create(ctx context.Context, t store.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.s.exec(ctx,
		`INSERT INTO refresh_tokens (jti, user_id, platform, token_hash, issued_at, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.JTI, t.UserID, t.Platform, t.TokenHash, t.IssuedAt, t.ExpiresAt, toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepo) FindByJTI(ctx context.Context, jti string) (*store.RefreshToken, error) {
	var (
		t         store.RefreshToken
		createdAt int64
	)
	err := r.s.queryRow(ctx,
		`SELECT jti, user_id, platform, token_hash, issued_at, expires_at, created_at
		 FROM refresh_tokens WHERE jti = ?`, jti,
	).Scan(&t.JTI, &t.UserID, &t.Platform, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", r.s.mapError(err))
	}
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

func (r *refreshTokenRepo) DeleteByJTI(ctx context.Context, jti string) (bool, error) {
	res, err := r.s.exec(ctx, `DELETE FROM refresh_tokens WHERE jti = ?`, jti)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return n > 0, nil
}

func (r *refreshTokenRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.s.exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return n, nil
}
