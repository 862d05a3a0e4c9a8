package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

type attemptRepo struct {
	s *Store
}

func (r *attemptRepo) Create(ctx context.Context, c store.AttemptCount) error {
	_, err := r.s.exec(ctx,
		`INSERT INTO attempt_counts (request_id, count, last_updated_at, deleted_at) VALUES (?, ?, ?, ?)`,
		c.RequestID, c.Count, toMillis(c.LastUpdatedAt), nullMillis(c.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("create attempt count: %w", err)
	}
	return nil
}

func (r *attemptRepo) FindByRequest(ctx context.Context, requestID string, includeDeleted bool) (*store.AttemptCount, error) {
	query := `SELECT request_id, count, last_updated_at, deleted_at FROM attempt_counts WHERE request_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	var (
		c         store.AttemptCount
		updatedAt int64
		deletedAt sql.NullInt64
	)
	err := r.s.queryRow(ctx, query, requestID).Scan(&c.RequestID, &c.Count, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attempt count: %w", r.s.mapError(err))
	}
	c.LastUpdatedAt = fromMillis(updatedAt)
	c.DeletedAt = fromNullMillis(deletedAt)
	return &c, nil
}

func (r *attemptRepo) Update(ctx context.Context, c store.AttemptCount) error {
	_, err := r.s.exec(ctx,
		`UPDATE attempt_counts SET count = ?, last_updated_at = ?, deleted_at = NULL WHERE request_id = ?`,
		c.Count, toMillis(c.LastUpdatedAt), c.RequestID,
	)
	if err != nil {
		return fmt.Errorf("update attempt count: %w", err)
	}
	return nil
}

func (r *attemptRepo) SoftDelete(ctx context.Context, requestID string, at time.Time) error {
	_, err := r.s.exec(ctx,
		`UPDATE attempt_counts SET deleted_at = ? WHERE request_id = ?`,
		toMillis(at), requestID,
	)
	if err != nil {
		return fmt.Errorf("soft delete attempt count: %w", err)
	}
	return nil
}
