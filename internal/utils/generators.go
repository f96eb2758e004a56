package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a UUID v4 string used as a primary key.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateTicketNumber creates the human-facing ticket number, e.g.
// "V0-2026-a1b2c3d4e5f6". The hex suffix is random; the column carries a
// unique constraint so a collision surfaces as an insert error.
func GenerateTicketNumber(now time.Time) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		// Extremely unlikely; fall back to a UUID-derived suffix.
		return fmt.Sprintf("V0-%d-%s", now.Year(), uuid.NewString()[:12])
	}
	return fmt.Sprintf("V0-%d-%s", now.Year(), hex.EncodeToString(suffix))
}
