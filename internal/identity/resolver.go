package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/store"
)

// errSignalRace marks a create-path resolution that lost the race for its
// first identity signal: a concurrent resolution committed the same
// (type, value) against a different contact between our lookup and upsert.
// The transaction is rolled back and the resolution retried, which then
// finds the winner.
var errSignalRace = errors.New("identity signal claimed concurrently")

// Resolution is the outcome of stitching one identity observation.
type Resolution struct {
	ContactID  string
	IsNew      bool
	Confidence int
}

// Resolver finds or creates the canonical contact for an identity
// observation. All writes of one resolution run inside a single store
// transaction so a crash can never leave a contact with only part of its
// signals recorded.
type Resolver struct {
	store store.Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewResolver(st store.Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: st, now: time.Now, log: logger}
}

// candidate is one identifier the observation supplied, in lookup order.
type candidate struct {
	signalType string
	value      string
	rawValue   string
	confidence int
}

func candidates(info domain.ContactInfo, fingerprint string) []candidate {
	var out []candidate
	if norm := NormalizeEmail(info.Email); norm != "" {
		out = append(out, candidate{domain.SignalEmail, HashIdentifier(norm), info.Email, domain.ConfidenceEmail})
	}
	if norm := NormalizePhone(info.Phone); norm != "" {
		out = append(out, candidate{domain.SignalPhone, HashIdentifier(norm), info.Phone, domain.ConfidencePhone})
	}
	if fingerprint != "" {
		out = append(out, candidate{domain.SignalFingerprint, fingerprint, fingerprint, domain.ConfidenceFingerprint})
	}
	return out
}

// Resolve implements the stitching algorithm: email, then phone, then
// fingerprint, first hit wins; no hit on any available signal creates a new
// contact at the default confidence.
func (r *Resolver) Resolve(ctx context.Context, orgID, sessionKey string, info domain.ContactInfo, fingerprint string) (*Resolution, error) {
	cands := candidates(info, fingerprint)
	res, err := r.resolveOnce(ctx, orgID, sessionKey, info, fingerprint, cands, 0)
	if errors.Is(err, errSignalRace) {
		r.log.Debug().Str("org", orgID).Msg("signal insert race lost, retrying resolution")
		res, err = r.resolveOnce(ctx, orgID, sessionKey, info, fingerprint, cands, 0)
	}
	return res, err
}

// ResolveFromPayment is the payment-source entry point. It looks up EMAIL
// only and records the signal at full confidence: payment confirmation is
// proof of identity and upgrades an existing email signal from 90 to 100.
func (r *Resolver) ResolveFromPayment(ctx context.Context, orgID, email string, info domain.ContactInfo) (*Resolution, error) {
	norm := NormalizeEmail(email)
	if norm == "" {
		return nil, errors.New("payment resolution requires an email")
	}
	info.Email = email
	cands := []candidate{{domain.SignalEmail, HashIdentifier(norm), email, domain.ConfidencePayment}}
	res, err := r.resolveOnce(ctx, orgID, "", info, "", cands, domain.ConfidencePayment)
	if errors.Is(err, errSignalRace) {
		res, err = r.resolveOnce(ctx, orgID, "", info, "", cands, domain.ConfidencePayment)
	}
	return res, err
}

func (r *Resolver) resolveOnce(ctx context.Context, orgID, sessionKey string, info domain.ContactInfo, fingerprint string, cands []candidate, paymentConfidence int) (*Resolution, error) {
	var out Resolution
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		now := r.now()

		var contactID string
		confidence := domain.ConfidenceFingerprint
		for _, c := range cands {
			sig, err := tx.SignalByValue(ctx, orgID, c.signalType, c.value)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			contactID = sig.ContactID
			confidence = c.confidence
			break
		}

		isNew := contactID == ""
		if isNew {
			contact := &domain.Contact{
				ID:             uuid.New().String(),
				OrganizationID: orgID,
				Email:          optional(info.Email),
				Phone:          optional(info.Phone),
				FirstName:      optional(info.FirstName),
				LastName:       optional(info.LastName),
				LeadQuality:    leadQuality(info, paymentConfidence),
				CreatedAt:      now,
			}
			if err := tx.CreateContact(ctx, contact); err != nil {
				return err
			}
			contactID = contact.ID
		} else {
			if err := tx.UpdateContactFields(ctx, orgID, contactID, domain.ContactFields{
				Email:     optional(info.Email),
				Phone:     optional(info.Phone),
				FirstName: optional(info.FirstName),
				LastName:  optional(info.LastName),
			}); err != nil {
				return err
			}
			if err := r.upgradeQuality(ctx, tx, orgID, contactID, leadQuality(info, paymentConfidence)); err != nil {
				return err
			}
		}
		if paymentConfidence > 0 {
			confidence = paymentConfidence
		}

		if sessionKey != "" {
			sess, err := tx.SessionByKey(ctx, orgID, sessionKey)
			if err == nil {
				if err := tx.LinkSessionContact(ctx, orgID, sess.ID, contactID); err != nil {
					return err
				}
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if fingerprint != "" {
			// Claim anonymous sessions on other tabs/devices sharing the
			// fingerprint.
			if _, err := tx.ClaimSessionsByFingerprint(ctx, orgID, fingerprint, contactID); err != nil {
				return err
			}
		}

		for _, c := range cands {
			owner, err := tx.UpsertSignal(ctx, &domain.IdentitySignal{
				ID:             uuid.New().String(),
				OrganizationID: orgID,
				ContactID:      contactID,
				Type:           c.signalType,
				Value:          c.value,
				RawValue:       c.rawValue,
				Confidence:     c.confidence,
				FirstSeen:      now,
				LastSeen:       now,
			})
			if err != nil {
				return err
			}
			if isNew && owner != contactID {
				return errSignalRace
			}
			// For a matched contact a foreign owner just means the value was
			// claimed first by someone else; matching scans by value, first
			// hit wins, so the row stays put.
		}

		out = Resolution{ContactID: contactID, IsNew: isNew, Confidence: confidence}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Resolver) upgradeQuality(ctx context.Context, tx store.Store, orgID, contactID, quality string) error {
	c, err := tx.ContactByID(ctx, orgID, contactID)
	if err != nil {
		return err
	}
	if domain.LeadRank(quality) > domain.LeadRank(c.LeadQuality) {
		return tx.SetLeadQuality(ctx, orgID, contactID, quality)
	}
	return nil
}

func leadQuality(info domain.ContactInfo, paymentConfidence int) string {
	switch {
	case paymentConfidence >= domain.ConfidencePayment:
		return domain.LeadCustomer
	case info.Email != "" || info.Phone != "":
		return domain.LeadWarm
	default:
		return domain.LeadCold
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
