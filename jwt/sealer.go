package jwt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedTokenInvalid is returned when a transport-sealed token cannot be
// opened. Callers treat it exactly like a missing token.
var ErrSealedTokenInvalid = errors.New("jwt: sealed token invalid")

// Sealer applies the transport encryption layer (XChaCha20-Poly1305,
// base64url). A disabled Sealer passes tokens through unchanged.
type Sealer struct {
	enabled bool
	aead    cipher.AEAD
}

// NewSealer builds a Sealer. When enabled the key must be 32 bytes.
func NewSealer(enabled bool, key []byte) (*Sealer, error) {
	if !enabled {
		return &Sealer{}, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("transport key must be %d bytes", chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("transport cipher: %w", err)
	}
	return &Sealer{enabled: true, aead: aead}, nil
}

// Enabled reports whether tokens are encrypted for transport.
func (s *Sealer) Enabled() bool { return s != nil && s.enabled }

// Seal encrypts token for delivery to a client.
func (s *Sealer) Seal(token string) (string, error) {
	if !s.Enabled() {
		return token, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(token)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("transport nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. An empty input is always ErrSealedTokenInvalid.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", ErrSealedTokenInvalid
	}
	if !s.Enabled() {
		return sealed, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrSealedTokenInvalid
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrSealedTokenInvalid
	}
	return string(plain), nil
}
