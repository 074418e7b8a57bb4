package service

import (
	"crypto/rand"
	"math/big"
)

const (
	tokenAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultTokenLength = 8
)

// TokenGenerator produces candidate share tokens.
type TokenGenerator func() (string, error)

// RandomTokens returns a generator of fixed-length alphanumeric tokens.
func RandomTokens(length int) TokenGenerator {
	if length <= 0 {
		length = DefaultTokenLength
	}

	max := big.NewInt(int64(len(tokenAlphabet)))
	return func() (string, error) {
		buf := make([]byte, length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			buf[i] = tokenAlphabet[n.Int64()]
		}

		return string(buf), nil
	}
}

// ValidToken reports whether s could have been produced by RandomTokens.
func ValidToken(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}

	return true
}
