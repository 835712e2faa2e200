package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/store"
)

// Outcome of a Record call. Duplicate means the occurrence was already
// recorded; callers treat it as success.
type Outcome int

const (
	Recorded Outcome = iota
	Duplicate
)

// Recorder persists normalized events. The external id's uniqueness
// constraint is the only deduplication mechanism; a collision is a no-op,
// never an error.
type Recorder struct {
	store store.Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewRecorder(st store.Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: st, now: time.Now, log: logger}
}

// Request describes one occurrence to record. ContactID and SessionID are
// optional; ExternalID must be deterministic from the occurrence.
type Request struct {
	OrganizationID string
	ContactID      string
	SessionID      string
	Type           string
	Source         string
	Confidence     int
	ExternalID     string
	Payload        map[string]any
}

func (r *Recorder) Record(ctx context.Context, req Request) (Outcome, error) {
	if req.ExternalID == "" {
		return 0, fmt.Errorf("record %s/%s: empty external id", req.Source, req.Type)
	}

	var payload json.RawMessage
	if req.Payload != nil {
		b, err := json.Marshal(req.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payload = b
	}

	ev := &domain.Event{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		ContactID:      optionalID(req.ContactID),
		SessionID:      optionalID(req.SessionID),
		Type:           req.Type,
		Source:         req.Source,
		Confidence:     req.Confidence,
		ExternalID:     req.ExternalID,
		Payload:        payload,
		CreatedAt:      r.now(),
	}

	res, err := r.store.InsertEvent(ctx, ev)
	if err != nil {
		return 0, err
	}
	if res == store.AlreadyExists {
		r.log.Debug().
			Str("org", req.OrganizationID).
			Str("external_id", req.ExternalID).
			Msg("duplicate occurrence, skipped")
		return Duplicate, nil
	}
	return Recorded, nil
}

// RewritePayload replaces the payload of an already-recorded event in place.
// Booking cancellations are modeled this way instead of as fresh events. A
// missing event (cancellation arriving before, or instead of, the create) is
// not an error.
func (r *Recorder) RewritePayload(ctx context.Context, orgID, externalID string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	found, err := r.store.UpdateEventPayload(ctx, orgID, externalID, b)
	if err != nil {
		return err
	}
	if !found {
		r.log.Debug().Str("org", orgID).Str("external_id", externalID).
			Msg("payload rewrite for unknown event, skipped")
	}
	return nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
