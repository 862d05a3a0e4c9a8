package password

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// tempAlphabet excludes look-alike characters (0/O, 1/l/I).
const tempAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// DefaultTempLength is the length of recovery passwords.
const DefaultTempLength = 16

// Generate returns a random password of n characters drawn uniformly from a
// readable alphabet.
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("password length must be > 0")
	}
	max := big.NewInt(int64(len(tempAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tempAlphabet[idx.Int64()]
	}
	return string(out), nil
}
