package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/funnelsight/tracker/internal/domain"
)

// Memory is an in-memory Store used by tests and local development. It
// enforces the same uniqueness constraints as the Postgres implementation.
// Transactions are serialized; a failed transaction restores the pre-tx
// snapshot so rollback semantics hold.
type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orgs     map[string]*domain.Organization // by id
	contacts map[string]*domain.Contact      // by id
	signals  map[string]*domain.IdentitySignal
	sessions map[string]*domain.Session // by id
	events   map[string]*domain.Event   // by org|external_id
	rules    []domain.URLRule
}

func NewMemory() *Memory {
	return &Memory{
		orgs:     make(map[string]*domain.Organization),
		contacts: make(map[string]*domain.Contact),
		signals:  make(map[string]*domain.IdentitySignal),
		sessions: make(map[string]*domain.Session),
		events:   make(map[string]*domain.Event),
	}
}

func signalKey(orgID, signalType, value string) string {
	return orgID + "|" + signalType + "|" + value
}

func eventKey(orgID, externalID string) string {
	return orgID + "|" + externalID
}

func (m *Memory) snapshot() *Memory {
	s := NewMemory()
	for k, v := range m.orgs {
		cp := *v
		s.orgs[k] = &cp
	}
	for k, v := range m.contacts {
		cp := *v
		cp.Tags = append([]string(nil), v.Tags...)
		s.contacts[k] = &cp
	}
	for k, v := range m.signals {
		cp := *v
		s.signals[k] = &cp
	}
	for k, v := range m.sessions {
		cp := *v
		s.sessions[k] = &cp
	}
	for k, v := range m.events {
		cp := *v
		s.events[k] = &cp
	}
	s.rules = append([]domain.URLRule(nil), m.rules...)
	return s
}

func (m *Memory) restore(s *Memory) {
	m.orgs = s.orgs
	m.contacts = s.contacts
	m.signals = s.signals
	m.sessions = s.sessions
	m.events = s.events
	m.rules = s.rules
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- seeding helpers for tests and local dev ---

func (m *Memory) AddOrganization(o *domain.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orgs[o.ID] = &cp
}

func (m *Memory) AddURLRule(r domain.URLRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

func (m *Memory) ContactCount(orgID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.contacts {
		if c.OrganizationID == orgID {
			n++
		}
	}
	return n
}

func (m *Memory) EventsByOrg(orgID string) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.OrganizationID == orgID {
			out = append(out, *e)
		}
	}
	return out
}

func (m *Memory) SessionsByOrg(orgID string) []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.OrganizationID == orgID {
			out = append(out, *s)
		}
	}
	return out
}

// --- organizations ---

func (m *Memory) OrganizationByKey(ctx context.Context, publicKey string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.PublicKey == publicKey {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) OrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) TouchOrganizationActivity(ctx context.Context, orgID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orgs[orgID]; ok {
		t := at
		o.LastActivityAt = &t
	}
	return nil
}

// --- contacts ---

func (m *Memory) CreateContact(ctx context.Context, c *domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	m.contacts[c.ID] = &cp
	return nil
}

func (m *Memory) ContactByID(ctx context.Context, orgID, id string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp, nil
}

func (m *Memory) UpdateContactFields(ctx context.Context, orgID, id string, f domain.ContactFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.OrganizationID != orgID {
		return ErrNotFound
	}
	if f.Email != nil {
		c.Email = f.Email
	}
	if f.Phone != nil {
		c.Phone = f.Phone
	}
	if f.FirstName != nil {
		c.FirstName = f.FirstName
	}
	if f.LastName != nil {
		c.LastName = f.LastName
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AppendContactTags(ctx context.Context, orgID, id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.OrganizationID != orgID {
		return ErrNotFound
	}
	c.Tags = append(c.Tags, tags...)
	return nil
}

func (m *Memory) SetLeadQuality(ctx context.Context, orgID, id, quality string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.OrganizationID != orgID {
		return ErrNotFound
	}
	c.LeadQuality = quality
	return nil
}

// --- identity signals ---

func (m *Memory) SignalByValue(ctx context.Context, orgID, signalType, value string) (*domain.IdentitySignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[signalKey(orgID, signalType, value)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpsertSignal(ctx context.Context, sig *domain.IdentitySignal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := signalKey(sig.OrganizationID, sig.Type, sig.Value)
	if existing, ok := m.signals[key]; ok {
		existing.RawValue = sig.RawValue
		if sig.Confidence > existing.Confidence {
			existing.Confidence = sig.Confidence
		}
		existing.LastSeen = sig.LastSeen
		return existing.ContactID, nil
	}
	cp := *sig
	cp.FirstSeen = sig.LastSeen
	m.signals[key] = &cp
	return cp.ContactID, nil
}

// --- sessions ---

func (m *Memory) SessionByKey(ctx context.Context, orgID, sessionKey string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.OrganizationID == orgID && s.SessionKey == sessionKey {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateSession(ctx context.Context, s *domain.Session) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.OrganizationID == s.OrganizationID && existing.SessionKey == s.SessionKey {
			return AlreadyExists, nil
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return Inserted, nil
}

func (m *Memory) UpdateSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Fingerprint = s.Fingerprint
	existing.VisitCount = s.VisitCount
	existing.LastSeen = s.LastSeen
	return nil
}

func (m *Memory) LinkSessionContact(ctx context.Context, orgID, sessionID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.OrganizationID != orgID {
		return ErrNotFound
	}
	id := contactID
	s.ContactID = &id
	return nil
}

func (m *Memory) ClaimSessionsByFingerprint(ctx context.Context, orgID, fingerprint, contactID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fingerprint == "" {
		return 0, nil
	}
	n := 0
	for _, s := range m.sessions {
		if s.OrganizationID == orgID && s.Fingerprint == fingerprint && s.ContactID == nil {
			id := contactID
			s.ContactID = &id
			n++
		}
	}
	return n, nil
}

// --- events ---

func (m *Memory) InsertEvent(ctx context.Context, e *domain.Event) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventKey(e.OrganizationID, e.ExternalID)
	if _, ok := m.events[key]; ok {
		return AlreadyExists, nil
	}
	cp := *e
	m.events[key] = &cp
	return Inserted, nil
}

func (m *Memory) UpdateEventPayload(ctx context.Context, orgID, externalID string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventKey(orgID, externalID)]
	if !ok {
		return false, nil
	}
	e.Payload = json.RawMessage(append([]byte(nil), payload...))
	return true, nil
}

// --- url rules ---

func (m *Memory) ActiveURLRules(ctx context.Context, orgID string) ([]domain.URLRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.URLRule
	for _, r := range m.rules {
		if r.OrganizationID == orgID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}
