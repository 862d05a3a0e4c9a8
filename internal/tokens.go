package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string used for user ids, request ids and jti values.
func NewID() string {
	return uuid.NewString()
}

// HashToken returns the hex SHA-256 digest stored in place of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MatchTokenHash compares token against a stored digest in constant time.
func MatchTokenHash(token, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(stored)) == 1
}
