package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecureID returns an identifier of the form "<prefix>_<hex>" where the
// hex part encodes length random bytes. Used for chat and message ids so that
// locally minted ids never collide with backend-issued ones.
func GenerateSecureID(prefix string, length int) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("prefix cannot be empty")
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return prefix + "_" + hex.EncodeToString(buf), nil
}
