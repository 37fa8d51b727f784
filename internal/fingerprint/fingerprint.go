package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyFingerprint is returned when recording an empty fingerprint.
var ErrEmptyFingerprint = errors.New("fingerprint: empty")

// Store persists fingerprints.
type Store interface {
	// Record stores fp if absent. It returns true when fp was newly
	// recorded and false when it was already present.
	Record(ctx context.Context, fp string) (bool, error)

	// Forget removes fp. Removing an absent fingerprint is not an error.
	Forget(ctx context.Context, fp string) error

	// Clear removes every fingerprint.
	Clear(ctx context.Context) error
}

// Sum returns the lowercase hex SHA-256 digest of payload.
func Sum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
