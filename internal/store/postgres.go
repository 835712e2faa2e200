package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/funnelsight/tracker/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// methods run inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, q: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Ready(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if p.pool == nil {
		// Already inside a transaction; reuse it.
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	scoped := &Postgres{q: tx}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- organizations ---

const orgColumns = `id, public_key, name, last_activity_at, created_at`

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.PublicKey, &o.Name, &o.LastActivityAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *Postgres) OrganizationByKey(ctx context.Context, publicKey string) (*domain.Organization, error) {
	return scanOrganization(p.q.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE public_key = $1`, publicKey))
}

func (p *Postgres) OrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	return scanOrganization(p.q.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (p *Postgres) TouchOrganizationActivity(ctx context.Context, orgID string, at time.Time) error {
	_, err := p.q.Exec(ctx,
		`UPDATE organizations SET last_activity_at = $2 WHERE id = $1`, orgID, at)
	return err
}

// --- contacts ---

const contactColumns = `id, organization_id, email, phone, first_name, last_name, tags, lead_quality, created_at, updated_at`

func (p *Postgres) CreateContact(ctx context.Context, c *domain.Contact) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO contacts (id, organization_id, email, phone, first_name, last_name, tags, lead_quality, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		c.ID, c.OrganizationID, c.Email, c.Phone, c.FirstName, c.LastName,
		c.Tags, c.LeadQuality, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (p *Postgres) ContactByID(ctx context.Context, orgID, id string) (*domain.Contact, error) {
	var c domain.Contact
	err := p.q.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE organization_id = $1 AND id = $2`,
		orgID, id).Scan(
		&c.ID, &c.OrganizationID, &c.Email, &c.Phone, &c.FirstName, &c.LastName,
		&c.Tags, &c.LeadQuality, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) UpdateContactFields(ctx context.Context, orgID, id string, f domain.ContactFields) error {
	_, err := p.q.Exec(ctx, `
		UPDATE contacts SET
			email      = COALESCE($3, email),
			phone      = COALESCE($4, phone),
			first_name = COALESCE($5, first_name),
			last_name  = COALESCE($6, last_name),
			updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`,
		orgID, id, f.Email, f.Phone, f.FirstName, f.LastName)
	if err != nil {
		return fmt.Errorf("update contact fields: %w", err)
	}
	return nil
}

func (p *Postgres) AppendContactTags(ctx context.Context, orgID, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := p.q.Exec(ctx, `
		UPDATE contacts SET tags = tags || $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`,
		orgID, id, tags)
	return err
}

func (p *Postgres) SetLeadQuality(ctx context.Context, orgID, id, quality string) error {
	_, err := p.q.Exec(ctx, `
		UPDATE contacts SET lead_quality = $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`,
		orgID, id, quality)
	return err
}

// --- identity signals ---

func (p *Postgres) SignalByValue(ctx context.Context, orgID, signalType, value string) (*domain.IdentitySignal, error) {
	var s domain.IdentitySignal
	err := p.q.QueryRow(ctx, `
		SELECT id, organization_id, contact_id, signal_type, value, raw_value, confidence, first_seen, last_seen
		FROM identity_signals
		WHERE organization_id = $1 AND signal_type = $2 AND value = $3`,
		orgID, signalType, value).Scan(
		&s.ID, &s.OrganizationID, &s.ContactID, &s.Type, &s.Value, &s.RawValue,
		&s.Confidence, &s.FirstSeen, &s.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) UpsertSignal(ctx context.Context, sig *domain.IdentitySignal) (string, error) {
	var owner string
	err := p.q.QueryRow(ctx, `
		INSERT INTO identity_signals (id, organization_id, contact_id, signal_type, value, raw_value, confidence, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (organization_id, signal_type, value) DO UPDATE SET
			raw_value  = EXCLUDED.raw_value,
			confidence = GREATEST(identity_signals.confidence, EXCLUDED.confidence),
			last_seen  = EXCLUDED.last_seen
		RETURNING contact_id`,
		sig.ID, sig.OrganizationID, sig.ContactID, sig.Type, sig.Value,
		sig.RawValue, sig.Confidence, sig.LastSeen).Scan(&owner)
	if err != nil {
		return "", fmt.Errorf("upsert signal: %w", err)
	}
	return owner, nil
}

// --- sessions ---

const sessionColumns = `id, organization_id, session_key, fingerprint, contact_id, visit_count,
	first_seen, last_seen,
	utm_source, utm_medium, utm_campaign, referrer, landing_page, gclid, fbclid,
	browser, browser_version, os, device_type, country, city`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.SessionKey, &s.Fingerprint, &s.ContactID, &s.VisitCount,
		&s.FirstSeen, &s.LastSeen,
		&s.Attribution.Source, &s.Attribution.Medium, &s.Attribution.Campaign,
		&s.Attribution.Referrer, &s.Attribution.LandingPage, &s.Attribution.GCLID, &s.Attribution.FBCLID,
		&s.Device.Browser, &s.Device.BrowserVersion, &s.Device.OS,
		&s.Device.DeviceType, &s.Device.Country, &s.Device.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) SessionByKey(ctx context.Context, orgID, sessionKey string) (*domain.Session, error) {
	return scanSession(p.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE organization_id = $1 AND session_key = $2`,
		orgID, sessionKey))
}

func (p *Postgres) CreateSession(ctx context.Context, s *domain.Session) (InsertResult, error) {
	tag, err := p.q.Exec(ctx, `
		INSERT INTO sessions (id, organization_id, session_key, fingerprint, contact_id, visit_count,
			first_seen, last_seen,
			utm_source, utm_medium, utm_campaign, referrer, landing_page, gclid, fbclid,
			browser, browser_version, os, device_type, country, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (organization_id, session_key) DO NOTHING`,
		s.ID, s.OrganizationID, s.SessionKey, s.Fingerprint, s.ContactID, s.VisitCount,
		s.FirstSeen, s.LastSeen,
		s.Attribution.Source, s.Attribution.Medium, s.Attribution.Campaign,
		s.Attribution.Referrer, s.Attribution.LandingPage, s.Attribution.GCLID, s.Attribution.FBCLID,
		s.Device.Browser, s.Device.BrowserVersion, s.Device.OS,
		s.Device.DeviceType, s.Device.Country, s.Device.City)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

func (p *Postgres) UpdateSession(ctx context.Context, s *domain.Session) error {
	_, err := p.q.Exec(ctx, `
		UPDATE sessions SET fingerprint = $3, visit_count = $4, last_seen = $5
		WHERE organization_id = $1 AND id = $2`,
		s.OrganizationID, s.ID, s.Fingerprint, s.VisitCount, s.LastSeen)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (p *Postgres) LinkSessionContact(ctx context.Context, orgID, sessionID, contactID string) error {
	_, err := p.q.Exec(ctx, `
		UPDATE sessions SET contact_id = $3
		WHERE organization_id = $1 AND id = $2`,
		orgID, sessionID, contactID)
	return err
}

func (p *Postgres) ClaimSessionsByFingerprint(ctx context.Context, orgID, fingerprint, contactID string) (int, error) {
	tag, err := p.q.Exec(ctx, `
		UPDATE sessions SET contact_id = $3
		WHERE organization_id = $1 AND fingerprint = $2 AND contact_id IS NULL`,
		orgID, fingerprint, contactID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- events ---

func (p *Postgres) InsertEvent(ctx context.Context, e *domain.Event) (InsertResult, error) {
	tag, err := p.q.Exec(ctx, `
		INSERT INTO events (id, organization_id, contact_id, session_id, event_type, source, confidence, external_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, external_id) DO NOTHING`,
		e.ID, e.OrganizationID, e.ContactID, e.SessionID, e.Type, e.Source,
		e.Confidence, e.ExternalID, e.Payload, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return AlreadyExists, nil
		}
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

func (p *Postgres) UpdateEventPayload(ctx context.Context, orgID, externalID string, payload []byte) (bool, error) {
	tag, err := p.q.Exec(ctx, `
		UPDATE events SET payload = $3
		WHERE organization_id = $1 AND external_id = $2`,
		orgID, externalID, payload)
	if err != nil {
		return false, fmt.Errorf("update event payload: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- url rules ---

func (p *Postgres) ActiveURLRules(ctx context.Context, orgID string) ([]domain.URLRule, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id, organization_id, name, pattern, exclude_pattern, match_type, ignore_case, ignore_query, event_type, tags, active
		FROM url_rules
		WHERE organization_id = $1 AND active`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("query url rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.URLRule
	for rows.Next() {
		var r domain.URLRule
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Pattern, &r.ExcludePattern,
			&r.MatchType, &r.IgnoreCase, &r.IgnoreQuery, &r.EventType, &r.Tags, &r.Active); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
