package flows

import (
	"context"

	"github.com/MrEthical07/sessionguard/internal/ledger"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
)

// RefreshLedger is the slice of *ledger.Ledger the flows use.
type RefreshLedger interface {
	Issue(ctx context.Context, userID, email, platform string) (ledger.Issued, error)
	GetByJTI(ctx context.Context, jti string) (*store.RefreshToken, error)
	Consume(ctx context.Context, jti string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
	Verify(token string, rec *store.RefreshToken) (jwt.Claims, error)
}

var _ RefreshLedger = (*ledger.Ledger)(nil)

// TokenCodec is the slice of *jwt.Codec the flows use.
type TokenCodec interface {
	Mint(kind jwt.Kind, claims jwt.Claims) (string, jwt.Claims, error)
	Verify(kind jwt.Kind, token string, expected *jwt.Expected) (jwt.Claims, error)
	Decode(token string) (jwt.Claims, error)
}

var _ TokenCodec = (*jwt.Codec)(nil)
