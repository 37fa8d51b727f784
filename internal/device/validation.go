package device

import (
	"strings"

	"github.com/google/uuid"
)

// uuidHexLen is the length of a UUID with its hyphens removed.
const uuidHexLen = 32

// ValidID reports whether id is a UUID-shaped device identifier.
//
// Every hyphen is removed first, wherever it appears; the remainder must be
// exactly 32 hex digits in either case. Version and variant bits are not
// checked.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) != uuidHexLen {
		return false
	}
	// uuid.Parse accepts the bare 32-digit form and rejects non-hex input.
	_, err := uuid.Parse(hex)
	return err == nil
}
