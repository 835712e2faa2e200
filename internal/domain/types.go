package domain

import (
	"encoding/json"
	"time"
)

// Signal types, in descending trust order.
const (
	SignalEmail       = "EMAIL"
	SignalPhone       = "PHONE"
	SignalFingerprint = "FINGERPRINT"
)

// Base confidence per signal type. Payment confirmation upgrades a signal
// to ConfidencePayment and it never drops back down.
const (
	ConfidenceEmail       = 90
	ConfidencePhone       = 85
	ConfidenceFingerprint = 65
	ConfidencePayment     = 100
)

// Event types produced by the adapters. URL rules may carry arbitrary
// operator-defined types on top of these.
const (
	EventFormSubmit = "form_submit"
	EventOptIn      = "opt_in"
	EventPurchase   = "purchase"
	EventBooking    = "booking"
)

// Lead quality ladder. Quality only ever moves up.
const (
	LeadUnknown  = "unknown"
	LeadCold     = "cold"
	LeadWarm     = "warm"
	LeadCustomer = "customer"
)

// LeadRank orders lead qualities so upgrades can be compared.
func LeadRank(q string) int {
	switch q {
	case LeadCold:
		return 1
	case LeadWarm:
		return 2
	case LeadCustomer:
		return 3
	default:
		return 0
	}
}

// Organization is the tenant boundary. PublicKey identifies the org to the
// browser beacon; ID is used by webhook query parameters.
type Organization struct {
	ID             string
	PublicKey      string
	Name           string
	LastActivityAt *time.Time
	CreatedAt      time.Time
}

// Contact is one resolved real person within an organization. All identity
// fields are optional; later resolutions fill them in but never null them out.
type Contact struct {
	ID             string
	OrganizationID string
	Email          *string
	Phone          *string
	FirstName      *string
	LastName       *string
	Tags           []string
	LeadQuality    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContactFields carries the nullable attributes a resolution may merge into
// an existing contact. Nil fields are left untouched.
type ContactFields struct {
	Email     *string
	Phone     *string
	FirstName *string
	LastName  *string
}

// IdentitySignal links one hashed identifier value to a contact. Within an
// organization a (type, value) pair belongs to exactly one contact.
type IdentitySignal struct {
	ID             string
	OrganizationID string
	ContactID      string
	Type           string
	Value          string
	RawValue       string
	Confidence     int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Attribution holds first-touch campaign fields, write-once at session
// creation.
type Attribution struct {
	Source      string
	Medium      string
	Campaign    string
	Referrer    string
	LandingPage string
	GCLID       string
	FBCLID      string
}

// Device holds user-agent/geo enrichment captured on session creation.
type Device struct {
	Browser        string
	BrowserVersion string
	OS             string
	DeviceType     string
	Country        string
	City           string
}

// Session is one anonymous-to-identified browsing session keyed by a
// client-generated token.
type Session struct {
	ID             string
	OrganizationID string
	SessionKey     string
	Fingerprint    string
	ContactID      *string
	VisitCount     int
	FirstSeen      time.Time
	LastSeen       time.Time
	Attribution    Attribution
	Device         Device
}

// Event is one recorded occurrence. ExternalID is unique per organization
// and exists purely for deduplication.
type Event struct {
	ID             string
	OrganizationID string
	ContactID      *string
	SessionID      *string
	Type           string
	Source         string
	Confidence     int
	ExternalID     string
	Payload        json.RawMessage
	CreatedAt      time.Time
}

// URL rule match modes.
const (
	MatchContains = "contains"
	MatchExact    = "exact"
)

// URLRule synthesizes an event from matching page views.
type URLRule struct {
	ID             string
	OrganizationID string
	Name           string
	Pattern        string
	ExcludePattern string
	MatchType      string
	IgnoreCase     bool
	IgnoreQuery    bool
	EventType      string
	Tags           []string
	Active         bool
}

// ContactInfo is the normalized identity portion a source adapter extracts
// from a raw payload.
type ContactInfo struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Empty reports whether the payload produced neither email nor phone, in
// which case the sender still gets a 200 and the signal is dropped.
func (c ContactInfo) Empty() bool {
	return c.Email == "" && c.Phone == ""
}

// IntentEvent is the normalized event portion a source adapter extracts from
// a raw payload.
type IntentEvent struct {
	Type       string
	ExternalID string
	Confidence int
	Payload    map[string]any
}

// NormalizedIntent is the full output of one adapter parse.
//
// Payment routes the resolution through the payment entry point (EMAIL-only
// lookup at confidence 100). Cancel rewrites the payload of the event already
// recorded under ExternalID instead of inserting a new one.
type NormalizedIntent struct {
	Contact ContactInfo
	Event   IntentEvent
	Payment bool
	Cancel  bool
}
