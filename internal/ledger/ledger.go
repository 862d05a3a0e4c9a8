// Package ledger owns the live refresh-token records of each user: it issues
// token pairs together with their record, looks records up by jti, consumes
// them exactly once and revokes them in bulk.
package ledger

import (
	"context"
	"errors"
	"fmt"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/sessionguard/internal"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
)

// Issued is a freshly minted access/refresh pair and the record persisted
// for the refresh half. Tokens are unsealed.
type Issued struct {
	AccessToken   string
	AccessClaims  jwt.Claims
	RefreshToken  string
	RefreshClaims jwt.Claims
	Record        store.RefreshToken
}

// Ledger issues and consumes refresh records through the ambient
// transaction carried by ctx.
type Ledger struct {
	tokens store.RefreshTokens
	codec  *jwt.Codec
	newID  func() string
}

// New returns a Ledger writing to tokens and minting with codec.
func New(tokens store.RefreshTokens, codec *jwt.Codec) *Ledger {
	return &Ledger{tokens: tokens, codec: codec, newID: internal.NewID}
}

// Issue mints a token pair and writes exactly one refresh record whose
// IssuedAt/ExpiresAt equal the minted iat/exp.
func (l *Ledger) Issue(ctx context.Context, userID, email, platform string) (Issued, error) {
	access, accessClaims, err := l.codec.Mint(jwt.KindAccess, jwt.Claims{
		Email:            email,
		Platform:         platform,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: userID, ID: l.newID()},
	})
	if err != nil {
		return Issued{}, err
	}

	jti := l.newID()
	refresh, refreshClaims, err := l.codec.Mint(jwt.KindRefresh, jwt.Claims{
		Email:            email,
		Platform:         platform,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: userID, ID: jti},
	})
	if err != nil {
		return Issued{}, err
	}

	record := store.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		Platform:  platform,
		TokenHash: internal.HashToken(refresh),
		IssuedAt:  refreshClaims.IssuedAtUnix(),
		ExpiresAt: refreshClaims.ExpiresAtUnix(),
	}
	if err := l.tokens.Create(ctx, record); err != nil {
		return Issued{}, fmt.Errorf("persist refresh record: %w", err)
	}

	return Issued{
		AccessToken:   access,
		AccessClaims:  accessClaims,
		RefreshToken:  refresh,
		RefreshClaims: refreshClaims,
		Record:        record,
	}, nil
}

// GetByJTI returns nil when no live record exists.
func (l *Ledger) GetByJTI(ctx context.Context, jti string) (*store.RefreshToken, error) {
	return l.tokens.FindByJTI(ctx, jti)
}

// Consume deletes the record. False means it was already gone, which for a
// rotation is the reuse signal.
func (l *Ledger) Consume(ctx context.Context, jti string) (bool, error) {
	return l.tokens.DeleteByJTI(ctx, jti)
}

// RevokeAll deletes every record of the user. Calling it again, or
// concurrently with Consume, is harmless.
func (l *Ledger) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return l.tokens.DeleteByUser(ctx, userID)
}

// Verify checks a presented refresh token against its record: signature, the
// exact iat/exp/sub/jti stored, and the stored digest.
func (l *Ledger) Verify(token string, rec *store.RefreshToken) (jwt.Claims, error) {
	claims, err := l.codec.Verify(jwt.KindRefresh, token, &jwt.Expected{
		Subject:   rec.UserID,
		JTI:       rec.JTI,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return jwt.Claims{}, err
	}
	if !internal.MatchTokenHash(token, rec.TokenHash) {
		return jwt.Claims{}, fmt.Errorf("%w: digest mismatch", jwt.ErrTokenInvalid)
	}
	return claims, err
}
