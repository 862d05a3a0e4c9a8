package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

type requestRepo struct {
	s *Store
}

const requestColumns = `id, kind, user_id, jti, token_hash, pending_password_hash, created_at, updated_at, deleted_at`

func (r *requestRepo) Create(ctx context.Context, req store.Request) error {
	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	_, err := r.s.exec(ctx,
		`INSERT INTO self_service_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), req.UserID, req.JTI, req.TokenHash, nullString(req.PendingPasswordHash),
		toMillis(req.CreatedAt), toMillis(req.UpdatedAt), nullMillis(req.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.Kind, err)
	}
	return nil
}

func (r *requestRepo) FindByID(ctx context.Context, id string, includeDeleted bool) (*store.Request, error) {
	return r.findOne(ctx, `SELECT `+requestColumns+` FROM self_service_requests WHERE id = ?`, includeDeleted, id)
}

func (r *requestRepo) FindByJTI(ctx context.Context, jti string, includeDeleted bool) (*store.Request, error) {
	return r.findOne(ctx, `SELECT `+requestColumns+` FROM self_service_requests WHERE jti = ?`, includeDeleted, jti)
}

func (r *requestRepo) FindByUser(ctx context.Context, kind store.RequestKind, userID string, includeDeleted bool) (*store.Request, error) {
	return r.findOne(ctx,
		`SELECT `+requestColumns+` FROM self_service_requests WHERE kind = ? AND user_id = ?`,
		includeDeleted, string(kind), userID,
	)
}

func (r *requestRepo) findOne(ctx context.Context, query string, includeDeleted bool, args ...any) (*store.Request, error) {
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	req, err := scanRequest(r.s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", r.s.mapError(err))
	}
	return req, nil
}

func scanRequest(row *sql.Row) (*store.Request, error) {
	var (
		req                  store.Request
		kind                 string
		pending              sql.NullString
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	err := row.Scan(
		&req.ID, &kind, &req.UserID, &req.JTI, &req.TokenHash, &pending,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Kind = store.RequestKind(kind)
	req.PendingPasswordHash = pending.String
	req.CreatedAt = fromMillis(createdAt)
	req.UpdatedAt = fromMillis(updatedAt)
	req.DeletedAt = fromNullMillis(deletedAt)
	return &req, nil
}

// Upsert inserts req or, when the user already has a request of the kind,
// overwrites that row in place. The stored row is returned, so the id and
// created_at of an existing request survive.
func (r *requestRepo) Upsert(ctx context.Context, req store.Request) (*store.Request, error) {
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = time.Now()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = req.UpdatedAt
	}
	got, err := scanRequest(r.s.queryRow(ctx,
		`INSERT INTO self_service_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (kind, user_id) DO UPDATE
		 SET jti = excluded.jti, token_hash = excluded.token_hash,
		     pending_password_hash = excluded.pending_password_hash,
		     updated_at = excluded.updated_at, deleted_at = NULL
		 RETURNING `+requestColumns,
		req.ID, string(req.Kind), req.UserID, req.JTI, req.TokenHash, nullString(req.PendingPasswordHash),
		toMillis(req.CreatedAt), toMillis(req.UpdatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("upsert %s request: %w", req.Kind, r.s.mapError(err))
	}
	return got, nil
}

func (r *requestRepo) Update(ctx context.Context, req store.Request) error {
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = time.Now()
	}
	_, err := r.s.exec(ctx,
		`UPDATE self_service_requests
		 SET jti = ?, token_hash = ?, pending_password_hash = ?, updated_at = ?, deleted_at = NULL
		 WHERE id = ?`,
		req.JTI, req.TokenHash, nullString(req.PendingPasswordHash), toMillis(req.UpdatedAt), req.ID,
	)
	if err != nil {
		return fmt.Errorf("update %s request: %w", req.Kind, err)
	}
	return nil
}

func (r *requestRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.s.exec(ctx,
		`UPDATE self_service_requests SET deleted_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete request: %w", err)
	}
	return nil
}
