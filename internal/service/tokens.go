package service

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

// 32 bytes, 64 hex characters.
const tokenBytes = 32

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}
	return hex.EncodeToString(b), nil
}
