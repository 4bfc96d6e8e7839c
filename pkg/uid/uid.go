package uid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// New generates a new unique identifier for lots, sales and requests.
func New() string {
	return uuid.New().String()
}

// Token returns prefix followed by n random bytes, hex encoded.
func Token(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}
