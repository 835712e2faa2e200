package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY,
		public_key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		last_activity_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		email TEXT,
		phone TEXT,
		first_name TEXT,
		last_name TEXT,
		tags TEXT[] NOT NULL DEFAULT '{}',
		lead_quality TEXT NOT NULL DEFAULT 'unknown',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS identity_signals (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		contact_id UUID NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		signal_type TEXT NOT NULL,
		value TEXT NOT NULL,
		raw_value TEXT NOT NULL DEFAULT '',
		confidence INT NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		UNIQUE (organization_id, signal_type, value)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		session_key TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		contact_id UUID REFERENCES contacts(id) ON DELETE SET NULL,
		visit_count INT NOT NULL DEFAULT 1,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		utm_source TEXT NOT NULL DEFAULT '',
		utm_medium TEXT NOT NULL DEFAULT '',
		utm_campaign TEXT NOT NULL DEFAULT '',
		referrer TEXT NOT NULL DEFAULT '',
		landing_page TEXT NOT NULL DEFAULT '',
		gclid TEXT NOT NULL DEFAULT '',
		fbclid TEXT NOT NULL DEFAULT '',
		browser TEXT NOT NULL DEFAULT '',
		browser_version TEXT NOT NULL DEFAULT '',
		os TEXT NOT NULL DEFAULT '',
		device_type TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		UNIQUE (organization_id, session_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions (organization_id, fingerprint) WHERE contact_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		contact_id UUID REFERENCES contacts(id) ON DELETE SET NULL,
		session_id UUID,
		event_type TEXT NOT NULL,
		source TEXT NOT NULL,
		confidence INT NOT NULL,
		external_id TEXT NOT NULL,
		payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (organization_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS url_rules (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL,
		exclude_pattern TEXT NOT NULL DEFAULT '',
		match_type TEXT NOT NULL DEFAULT 'contains',
		ignore_case BOOLEAN NOT NULL DEFAULT TRUE,
		ignore_query BOOLEAN NOT NULL DEFAULT TRUE,
		event_type TEXT NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
}

// EnsureSchema creates the tables on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
