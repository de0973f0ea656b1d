package util

import (
	"crypto/rand"
	"math/big"
)

// GenerateDigits returns a cryptographically random numeric string of n
// digits, suitable for out-of-band verification codes.
func GenerateDigits(n int) (string, error) {
	b := make([]byte, n)

	for i := range b {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}

		b[i] = byte('0' + d.Int64())
	}

	return string(b), nil
}
