// Package store declares the persistence contract used by the credential
// lifecycle core: users, refresh-token records, self-service requests and
// their attempt counters.
//
// Every repository method takes a context. When the context carries a
// transaction opened by [Store.WithTx] the call participates in it; otherwise
// the call runs on its own. Lookups report a missing row as (nil, nil).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("store: unique constraint violated")

// RequestKind identifies which self-service flow owns a request row.
type RequestKind string

const (
	RequestVerify  RequestKind = "verify"
	RequestRecover RequestKind = "recover"
	RequestReset   RequestKind = "reset"
)

// User is the identity row the core reads and mutates. It is never deleted
// here.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	Locked       bool
	StrictMode   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is one issued refresh token. IssuedAt and ExpiresAt hold the
// exact iat/exp of the signed token (unix seconds).
type RefreshToken struct {
	JTI       string
	UserID    string
	Platform  string
	TokenHash string
	IssuedAt  int64
	ExpiresAt int64
	CreatedAt time.Time
}

// Request is the shared shape of account-verification, recover-password and
// reset-password requests.
type Request struct {
	ID                  string
	Kind                RequestKind
	UserID              string
	JTI                 string
	TokenHash           string
	PendingPasswordHash string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// Deleted reports whether the request has been soft-deleted.
func (r *Request) Deleted() bool {
	return r != nil && r.DeletedAt != nil
}

// AttemptCount is the per-request send counter.
type AttemptCount struct {
	RequestID     string
	Count         int
	LastUpdatedAt time.Time
	DeletedAt     *time.Time
}

type Users interface {
	Create(ctx context.Context, u User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetVerified(ctx context.Context, id string, verified, locked bool) error
	SetLocked(ctx context.Context, id string, locked bool) error
}

type RefreshTokens interface {
	Create(ctx context.Context, t RefreshToken) error
	FindByJTI(ctx context.Context, jti string) (*RefreshToken, error)
	// DeleteByJTI reports whether a row was removed. A false result means
	// another caller consumed the record first.
	DeleteByJTI(ctx context.Context, jti string) (bool, error)
	// DeleteByUser removes every record of the user and returns the count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type Requests interface {
	Create(ctx context.Context, r Request) error
	FindByID(ctx context.Context, id string, includeDeleted bool) (*Request, error)
	FindByJTI(ctx context.Context, jti string, includeDeleted bool) (*Request, error)
	FindByUser(ctx context.Context, kind RequestKind, userID string, includeDeleted bool) (*Request, error)
	// Update overwrites jti, token hash and pending hash and clears deleted_at.
	Update(ctx context.Context, r Request) error
	// Upsert creates r or overwrites the user's request of the same kind in
	// one statement, reviving it if soft-deleted. Concurrent callers never
	// conflict; the last writer's token wins.
	Upsert(ctx context.Context, r Request) (*Request, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type AttemptCounts interface {
	Create(ctx context.Context, c AttemptCount) error
	FindByRequest(ctx context.Context, requestID string, includeDeleted bool) (*AttemptCount, error)
	// Update writes count and last-updated stamp and clears deleted_at.
	Update(ctx context.Context, c AttemptCount) error
	SoftDelete(ctx context.Context, requestID string, at time.Time) error
}

// Store aggregates the repositories and the transaction boundary.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Requests() Requests
	AttemptCounts() AttemptCounts

	// WithTx runs fn inside one transaction carried by the context passed to
	// fn. A nil return commits; an error or panic rolls back. When ctx
	// already carries a transaction fn joins it.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
