package store

import (
	"context"
	"errors"
	"time"

	"github.com/funnelsight/tracker/internal/domain"
)

var ErrNotFound = errors.New("not found")

// InsertResult distinguishes a fresh insert from a unique-key collision.
// Collisions on dedup keys are expected and are not errors.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

// Store is the transactional backing store for the whole pipeline. WithTx
// runs fn against a transaction-scoped Store; any error rolls the whole
// transaction back. Implementations must enforce the uniqueness constraints
// the pipeline leans on: identity_signals (organization, type, value),
// sessions (organization, session_key), events (organization, external_id).
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	OrganizationByKey(ctx context.Context, publicKey string) (*domain.Organization, error)
	OrganizationByID(ctx context.Context, id string) (*domain.Organization, error)
	TouchOrganizationActivity(ctx context.Context, orgID string, at time.Time) error

	CreateContact(ctx context.Context, c *domain.Contact) error
	ContactByID(ctx context.Context, orgID, id string) (*domain.Contact, error)
	// UpdateContactFields merges non-nil fields into the contact; nil fields
	// never overwrite stored values.
	UpdateContactFields(ctx context.Context, orgID, id string, f domain.ContactFields) error
	AppendContactTags(ctx context.Context, orgID, id string, tags []string) error
	SetLeadQuality(ctx context.Context, orgID, id, quality string) error

	SignalByValue(ctx context.Context, orgID, signalType, value string) (*domain.IdentitySignal, error)
	// UpsertSignal inserts the signal or, if (organization, type, value)
	// already exists, refreshes last_seen/raw_value and raises (never lowers)
	// confidence. The signal stays with its original contact either way; the
	// returned id is the contact that owns the row after the upsert.
	UpsertSignal(ctx context.Context, sig *domain.IdentitySignal) (ownerContactID string, err error)

	SessionByKey(ctx context.Context, orgID, sessionKey string) (*domain.Session, error)
	CreateSession(ctx context.Context, s *domain.Session) (InsertResult, error)
	UpdateSession(ctx context.Context, s *domain.Session) error
	LinkSessionContact(ctx context.Context, orgID, sessionID, contactID string) error
	// ClaimSessionsByFingerprint links every still-anonymous session sharing
	// the fingerprint to the contact and returns how many were claimed.
	ClaimSessionsByFingerprint(ctx context.Context, orgID, fingerprint, contactID string) (int, error)

	InsertEvent(ctx context.Context, e *domain.Event) (InsertResult, error)
	// UpdateEventPayload rewrites the payload of the event recorded under
	// externalID in place. Returns false when no such event exists.
	UpdateEventPayload(ctx context.Context, orgID, externalID string, payload []byte) (bool, error)

	ActiveURLRules(ctx context.Context, orgID string) ([]domain.URLRule, error)
}
