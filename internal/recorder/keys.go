package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Dedup keys must be deterministic from the triggering occurrence so that
// sender retries collapse onto the same row.

// ProviderKey builds the key for a payload carrying a provider-native id.
func ProviderKey(provider, nativeID string) string {
	return provider + "-" + nativeID
}

// CompositeKey covers payloads with no native id: a stable hash over the
// provider, event subtype, normalized email and organization, so repeated
// deliveries of the same logical submission collapse even without an id.
func CompositeKey(provider, subtype, email, orgID string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(provider + "|" + subtype + "|" + normalized + "|" + orgID))
	return provider + "-" + hex.EncodeToString(sum[:])[:32]
}

// PixelFormKey dedups beacon form submits at hour granularity, deliberately
// coarse so a confirmation-page fallback fire and the original form-page
// fire land on the same key.
func PixelFormKey(sessionKey, formPath string, at time.Time) string {
	return fmt.Sprintf("pixel-form-%s-%s-%s", sessionKey, formPath, at.UTC().Format("2006010215"))
}

// URLRuleKey caps synthesized events at one per rule per contact per
// calendar day. Anonymous page views have no contact to key on, so the
// session takes its place with an "s" prefix to keep the spaces disjoint.
func URLRuleKey(ruleID, contactID, sessionID string, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	if contactID != "" {
		return fmt.Sprintf("url-rule-%s-%s-%s", ruleID, contactID, day)
	}
	return fmt.Sprintf("url-rule-%s-s%s-%s", ruleID, sessionID, day)
}

// Sanitize keeps keys single-line and bounded; some providers echo paths or
// ids with whitespace.
func Sanitize(part string) string {
	return strings.Join(strings.Fields(part), "_")
}
