package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeEmail lower-cases and trims the raw address before hashing.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone strips everything but digits so "+1 (555) 010-2030" and
// "15550102030" hash to the same signal value.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashIdentifier is the one-way hash stored as a signal value. Fingerprints
// skip this: they are already derived values and are stored verbatim.
func HashIdentifier(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
