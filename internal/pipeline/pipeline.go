// Package pipeline wires the ingestion flow: source adapter, identity
// resolution, session linking, event recording and, for page views, URL
// rule evaluation.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/enrich"
	"github.com/funnelsight/tracker/internal/identity"
	"github.com/funnelsight/tracker/internal/recorder"
	"github.com/funnelsight/tracker/internal/session"
	"github.com/funnelsight/tracker/internal/sources"
	"github.com/funnelsight/tracker/internal/store"
	"github.com/funnelsight/tracker/internal/urlrules"
)

const pixelSource = "pixel"

type Pipeline struct {
	store    store.Store
	resolver *identity.Resolver
	sessions *session.Tracker
	recorder *recorder.Recorder
	rules    *urlrules.Matcher
	enricher *enrich.Enricher
	now      func() time.Time
	log      zerolog.Logger
}

func New(st store.Store, enricher *enrich.Enricher, inactivityGap time.Duration, logger zerolog.Logger) *Pipeline {
	rec := recorder.NewRecorder(st, logger)
	return &Pipeline{
		store:    st,
		resolver: identity.NewResolver(st, logger),
		sessions: session.NewTracker(st, inactivityGap, logger),
		recorder: rec,
		rules:    urlrules.NewMatcher(st, rec, logger),
		enricher: enricher,
		now:      time.Now,
		log:      logger,
	}
}

// BeaconOutcome reports what a beacon hit did.
type BeaconOutcome struct {
	SessionID string
}

// HandleBeacon runs one pixel hit for an already-resolved organization; the
// HTTP layer owns tenant lookup (and its cache) and the success-shaped
// response for unknown org keys.
func (p *Pipeline) HandleBeacon(ctx context.Context, org *domain.Organization, env *sources.BeaconEnvelope, userAgent, clientIP string) (*BeaconOutcome, error) {
	dev := p.enricher.Lookup(userAgent, clientIP)
	sess, err := p.sessions.Touch(ctx, org.ID, env.SessionID, env.Fingerprint, env.Attribution(), dev)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case sources.BeaconPageView:
		contactID := ""
		if sess.ContactID != nil {
			contactID = *sess.ContactID
		}
		if _, err := p.rules.MatchAndFire(ctx, org.ID, env.URL, env.Path, contactID, sess.ID, env.VariantID); err != nil {
			return nil, err
		}

	case sources.BeaconFormSubmit:
		info := env.ContactInfo()
		if info.Empty() {
			// A submit the pixel could not extract identity from still gets
			// a success response; it will never resolve, so drop it here.
			p.log.Debug().Str("org", org.ID).Str("path", env.Path).
				Msg("form submit without email or phone dropped")
			return &BeaconOutcome{SessionID: sess.ID}, nil
		}
		res, err := p.resolver.Resolve(ctx, org.ID, env.SessionID, info, env.Fingerprint)
		if err != nil {
			return nil, err
		}
		_, err = p.recorder.Record(ctx, recorder.Request{
			OrganizationID: org.ID,
			ContactID:      res.ContactID,
			SessionID:      sess.ID,
			Type:           domain.EventFormSubmit,
			Source:         pixelSource,
			Confidence:     res.Confidence,
			ExternalID:     recorder.PixelFormKey(env.SessionID, recorder.Sanitize(env.FormPath()), p.now()),
			Payload: map[string]any{
				"path": env.Path,
				"url":  env.URL,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return &BeaconOutcome{SessionID: sess.ID}, nil
}

// HandleWebhook runs one provider delivery through the pipeline. The org is
// already resolved; payloads that parse but carry nothing usable are
// accepted silently so the sender does not retry them forever.
func (p *Pipeline) HandleWebhook(ctx context.Context, adapter sources.Adapter, org *domain.Organization, body []byte) error {
	intent, err := adapter.Parse(org.ID, body)
	if err != nil {
		return err
	}
	if intent == nil {
		return nil
	}

	if intent.Cancel {
		return p.recorder.RewritePayload(ctx, org.ID, intent.Event.ExternalID, intent.Event.Payload)
	}

	if intent.Contact.Empty() {
		p.log.Debug().Str("org", org.ID).Str("provider", adapter.Provider()).
			Msg("webhook without email or phone dropped")
		return nil
	}

	var res *identity.Resolution
	if intent.Payment {
		res, err = p.resolver.ResolveFromPayment(ctx, org.ID, intent.Contact.Email, intent.Contact)
	} else {
		res, err = p.resolver.Resolve(ctx, org.ID, "", intent.Contact, "")
	}
	if err != nil {
		return err
	}

	outcome, err := p.recorder.Record(ctx, recorder.Request{
		OrganizationID: org.ID,
		ContactID:      res.ContactID,
		Type:           intent.Event.Type,
		Source:         adapter.Provider(),
		Confidence:     intent.Event.Confidence,
		ExternalID:     intent.Event.ExternalID,
		Payload:        intent.Event.Payload,
	})
	if err != nil {
		return err
	}
	if outcome == recorder.Recorded {
		p.log.Info().
			Str("org", org.ID).
			Str("provider", adapter.Provider()).
			Str("type", intent.Event.Type).
			Bool("new_contact", res.IsNew).
			Msg("event recorded")
	}
	return nil
}

// TouchActivity refreshes the org's advisory last-activity stamp. Callers
// run it after the response is written; failures only cost alert freshness.
func (p *Pipeline) TouchActivity(orgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.TouchOrganizationActivity(ctx, orgID, p.now()); err != nil {
		p.log.Warn().Err(err).Str("org", orgID).Msg("activity touch failed")
	}
}
