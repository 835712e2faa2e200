package urlrules

import (
	"context"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
	"github.com/funnelsight/tracker/internal/store"
)

// Rule-fired events carry a lower confidence when the page view could not be
// tied to a resolved contact.
const (
	ConfidenceIdentified = 80
	ConfidenceAnonymous  = 50
)

const source = "url-rule"

// Matcher evaluates the organization's active URL rules against each page
// view and fires the configured event for every surviving rule, at most once
// per rule per contact per calendar day.
type Matcher struct {
	store store.Store
	rec   *recorder.Recorder
	now   func() time.Time
	log   zerolog.Logger
}

func NewMatcher(st store.Store, rec *recorder.Recorder, logger zerolog.Logger) *Matcher {
	return &Matcher{store: st, rec: rec, now: time.Now, log: logger}
}

// MatchAndFire loads the active rules fresh and fires derived events through
// the recorder. Returns how many rules fired (duplicates count as fired; the
// daily key already recorded them). variantID is the page's split-test
// variant when the pixel reported one; it rides along in the payload and does
// not affect matching or the daily dedup key.
func (m *Matcher) MatchAndFire(ctx context.Context, orgID, url, path, contactID, sessionID, variantID string) (int, error) {
	rules, err := m.store.ActiveURLRules(ctx, orgID)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, rule := range rules {
		if !Matches(rule, url) && !Matches(rule, path) {
			continue
		}

		confidence := ConfidenceIdentified
		if contactID == "" {
			confidence = ConfidenceAnonymous
		}
		payload := map[string]any{
			"ruleId": rule.ID,
			"url":    url,
			"path":   path,
		}
		if variantID != "" {
			payload["variantId"] = variantID
		}
		_, err := m.rec.Record(ctx, recorder.Request{
			OrganizationID: orgID,
			ContactID:      contactID,
			SessionID:      sessionID,
			Type:           rule.EventType,
			Source:         source,
			Confidence:     confidence,
			ExternalID:     recorder.URLRuleKey(rule.ID, contactID, sessionID, m.now()),
			Payload:        payload,
		})
		if err != nil {
			return fired, err
		}
		fired++

		if contactID != "" && len(rule.Tags) > 0 {
			// Tags are an append-only multiset; duplicates are tolerated here.
			if err := m.store.AppendContactTags(ctx, orgID, contactID, rule.Tags); err != nil {
				return fired, err
			}
		}
	}
	return fired, nil
}

// Matches reports whether the rule's include pattern matches the candidate
// and, in glob mode, its exclude pattern does not.
func Matches(rule domain.URLRule, candidate string) bool {
	if candidate == "" || rule.Pattern == "" {
		return false
	}

	pattern := rule.Pattern
	exclude := rule.ExcludePattern
	if rule.IgnoreCase {
		pattern = strings.ToLower(pattern)
		exclude = strings.ToLower(exclude)
		candidate = strings.ToLower(candidate)
	}
	if rule.IgnoreQuery {
		if i := strings.IndexByte(candidate, '?'); i >= 0 {
			candidate = candidate[:i]
		}
	}

	if rule.MatchType == domain.MatchExact {
		return candidate == pattern
	}

	// "contains" rules are glob patterns. Compiled without separator runes so
	// ** and * both cross path boundaries and a pattern matches full URLs and
	// bare paths alike.
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	if !g.Match(candidate) {
		return false
	}
	if exclude != "" {
		if ex, err := glob.Compile(exclude); err == nil && ex.Match(candidate) {
			return false
		}
	}
	return true
}
