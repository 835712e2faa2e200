package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/store"
)

// DefaultInactivityGap separates one visit from the next: a hit after a
// longer silence starts a new visit, anything sooner continues the current
// one.
const DefaultInactivityGap = 30 * time.Minute

// Tracker maintains anonymous-visit state keyed by the client-generated
// session token.
type Tracker struct {
	store store.Store
	gap   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

func NewTracker(st store.Store, gap time.Duration, logger zerolog.Logger) *Tracker {
	if gap <= 0 {
		gap = DefaultInactivityGap
	}
	return &Tracker{store: st, gap: gap, now: time.Now, log: logger}
}

// Touch upserts the session for sessionKey. On create it stores the
// first-touch attribution and enrichment; on update those are left alone —
// attribution is write-once for the life of the session. lastSeen and
// fingerprint always refresh; visitCount increments only when the gap since
// lastSeen exceeds the inactivity threshold.
func (t *Tracker) Touch(ctx context.Context, orgID, sessionKey, fingerprint string, attr domain.Attribution, dev domain.Device) (*domain.Session, error) {
	var out *domain.Session
	err := t.store.WithTx(ctx, func(tx store.Store) error {
		now := t.now()

		sess, err := tx.SessionByKey(ctx, orgID, sessionKey)
		if errors.Is(err, store.ErrNotFound) {
			fresh := &domain.Session{
				ID:             uuid.New().String(),
				OrganizationID: orgID,
				SessionKey:     sessionKey,
				Fingerprint:    fingerprint,
				VisitCount:     1,
				FirstSeen:      now,
				LastSeen:       now,
				Attribution:    attr,
				Device:         dev,
			}
			res, err := tx.CreateSession(ctx, fresh)
			if err != nil {
				return err
			}
			if res == store.Inserted {
				out = fresh
				return nil
			}
			// Lost a concurrent create for the same key; fall through to the
			// update path against the winner's row.
			sess, err = tx.SessionByKey(ctx, orgID, sessionKey)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if now.Sub(sess.LastSeen) > t.gap {
			sess.VisitCount++
		}
		sess.LastSeen = now
		if fingerprint != "" {
			sess.Fingerprint = fingerprint
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
