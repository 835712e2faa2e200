package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/store"
)

const testOrg = "7d8e7f3a-1111-4f67-9f2c-000000000001"

func newTestResolver(mem *store.Memory) *Resolver {
	r := NewResolver(mem, zerolog.Nop())
	return r
}

func seedOrg(mem *store.Memory) {
	mem.AddOrganization(&domain.Organization{ID: testOrg, PublicKey: "pk_test"})
}

func TestResolveCreatesContactOnFirstSignal(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	r := newTestResolver(mem)

	res, err := r.Resolve(context.Background(), testOrg, "", domain.ContactInfo{Email: "E@X.com", FirstName: "Ada"}, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.IsNew {
		t.Fatal("expected a new contact")
	}
	if res.Confidence != domain.ConfidenceFingerprint {
		t.Fatalf("new-contact confidence = %d, want %d", res.Confidence, domain.ConfidenceFingerprint)
	}

	c, err := mem.ContactByID(context.Background(), testOrg, res.ContactID)
	if err != nil {
		t.Fatalf("contact not stored: %v", err)
	}
	if c.Email == nil || *c.Email != "E@X.com" {
		t.Fatalf("contact email = %v", c.Email)
	}
	if c.LeadQuality != domain.LeadWarm {
		t.Fatalf("lead quality = %s, want %s", c.LeadQuality, domain.LeadWarm)
	}

	value := HashIdentifier(NormalizeEmail("E@X.com"))
	sig, err := mem.SignalByValue(context.Background(), testOrg, domain.SignalEmail, value)
	if err != nil {
		t.Fatalf("email signal not stored: %v", err)
	}
	if sig.Confidence != domain.ConfidenceEmail {
		t.Fatalf("signal confidence = %d, want %d", sig.Confidence, domain.ConfidenceEmail)
	}
	if sig.RawValue != "E@X.com" {
		t.Fatalf("raw value = %q", sig.RawValue)
	}
}

func TestResolveStitchesAcrossSources(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	r := newTestResolver(mem)
	ctx := context.Background()

	first, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "e@x.com"}, "")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// Different casing and extra fields, same person.
	second, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: " E@X.COM ", Phone: "+1 (555) 010-2030", LastName: "Lovelace"}, "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.IsNew {
		t.Fatal("second resolve created a duplicate contact")
	}
	if second.ContactID != first.ContactID {
		t.Fatalf("contact ids differ: %s vs %s", first.ContactID, second.ContactID)
	}
	if second.Confidence != domain.ConfidenceEmail {
		t.Fatalf("confidence = %d, want %d", second.Confidence, domain.ConfidenceEmail)
	}
	if n := mem.ContactCount(testOrg); n != 1 {
		t.Fatalf("contact count = %d, want 1", n)
	}

	// New non-null fields merged in, no overwrite with null.
	c, _ := mem.ContactByID(ctx, testOrg, first.ContactID)
	if c.LastName == nil || *c.LastName != "Lovelace" {
		t.Fatalf("last name not merged: %v", c.LastName)
	}
	if c.Email == nil {
		t.Fatal("email was nulled out")
	}

	// The phone is now a known signal too.
	phoneValue := HashIdentifier(NormalizePhone("+1 (555) 010-2030"))
	if _, err := mem.SignalByValue(ctx, testOrg, domain.SignalPhone, phoneValue); err != nil {
		t.Fatalf("phone signal not stored: %v", err)
	}
}

func TestResolveMatchesPhoneWhenEmailUnknown(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	r := newTestResolver(mem)
	ctx := context.Background()

	first, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Phone: "555-010-2030"}, "")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "new@x.com", Phone: "5550102030"}, "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.IsNew || second.ContactID != first.ContactID {
		t.Fatal("phone signal did not stitch")
	}
	if second.Confidence != domain.ConfidencePhone {
		t.Fatalf("confidence = %d, want %d", second.Confidence, domain.ConfidencePhone)
	}
}

func TestPaymentUpgradesSignalConfidence(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	r := newTestResolver(mem)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "buyer@x.com"}, ""); err != nil {
		t.Fatalf("form resolve: %v", err)
	}

	res, err := r.ResolveFromPayment(ctx, testOrg, "buyer@x.com", domain.ContactInfo{FirstName: "Billie"})
	if err != nil {
		t.Fatalf("payment resolve: %v", err)
	}
	if res.IsNew {
		t.Fatal("payment resolution duplicated the contact")
	}
	if res.Confidence != domain.ConfidencePayment {
		t.Fatalf("payment confidence = %d, want %d", res.Confidence, domain.ConfidencePayment)
	}

	value := HashIdentifier(NormalizeEmail("buyer@x.com"))
	sig, _ := mem.SignalByValue(ctx, testOrg, domain.SignalEmail, value)
	if sig.Confidence != domain.ConfidencePayment {
		t.Fatalf("signal confidence = %d, want %d", sig.Confidence, domain.ConfidencePayment)
	}

	// A later non-payment sighting must not downgrade.
	if _, err := r.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "buyer@x.com"}, ""); err != nil {
		t.Fatalf("later resolve: %v", err)
	}
	sig, _ = mem.SignalByValue(ctx, testOrg, domain.SignalEmail, value)
	if sig.Confidence != domain.ConfidencePayment {
		t.Fatalf("confidence dropped to %d after non-payment sighting", sig.Confidence)
	}

	c, _ := mem.ContactByID(ctx, testOrg, res.ContactID)
	if c.LeadQuality != domain.LeadCustomer {
		t.Fatalf("lead quality = %s, want %s", c.LeadQuality, domain.LeadCustomer)
	}
	if c.FirstName == nil || *c.FirstName != "Billie" {
		t.Fatalf("payment fields not merged: %v", c.FirstName)
	}
}

func TestFingerprintClaimsAnonymousSessions(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	r := newTestResolver(mem)
	ctx := context.Background()

	// Two anonymous sessions share a fingerprint; only one sees the form.
	formSession := &domain.Session{
		ID: uuid.New().String(), OrganizationID: testOrg, SessionKey: "sess-a",
		Fingerprint: "fp-1", VisitCount: 1, FirstSeen: time.Now(), LastSeen: time.Now(),
	}
	otherSession := &domain.Session{
		ID: uuid.New().String(), OrganizationID: testOrg, SessionKey: "sess-b",
		Fingerprint: "fp-1", VisitCount: 1, FirstSeen: time.Now(), LastSeen: time.Now(),
	}
	if _, err := mem.CreateSession(ctx, formSession); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CreateSession(ctx, otherSession); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(ctx, testOrg, "sess-a", domain.ContactInfo{Email: "e@x.com"}, "fp-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, s := range mem.SessionsByOrg(testOrg) {
		if s.ContactID == nil || *s.ContactID != res.ContactID {
			t.Fatalf("session %s not linked to contact", s.SessionKey)
		}
	}
}

// staleStore simulates the create race: the first signal lookup misses even
// though a concurrent resolution has already committed the signal.
type staleStore struct {
	store.Store
	misses int
}

func (s *staleStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&staleTx{Store: tx, parent: s})
	})
}

type staleTx struct {
	store.Store
	parent *staleStore
}

func (t *staleTx) SignalByValue(ctx context.Context, orgID, signalType, value string) (*domain.IdentitySignal, error) {
	if t.parent.misses > 0 {
		t.parent.misses--
		return nil, store.ErrNotFound
	}
	return t.Store.SignalByValue(ctx, orgID, signalType, value)
}

func TestResolveRetriesAfterLosingSignalRace(t *testing.T) {
	mem := store.NewMemory()
	seedOrg(mem)
	ctx := context.Background()

	// The winner's resolution has already committed.
	winner := newTestResolver(mem)
	won, err := winner.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "race@x.com"}, "")
	if err != nil {
		t.Fatalf("winner resolve: %v", err)
	}

	loser := NewResolver(&staleStore{Store: mem, misses: 1}, zerolog.Nop())
	res, err := loser.Resolve(ctx, testOrg, "", domain.ContactInfo{Email: "race@x.com"}, "")
	if err != nil {
		t.Fatalf("loser resolve: %v", err)
	}
	if res.IsNew {
		t.Fatal("loser should have adopted the winner's contact on retry")
	}
	if res.ContactID != won.ContactID {
		t.Fatalf("loser resolved to %s, want %s", res.ContactID, won.ContactID)
	}
	if n := mem.ContactCount(testOrg); n != 1 {
		t.Fatalf("contact count = %d, want 1 (orphan from aborted tx?)", n)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 010-2030": "15550102030",
		"555.010.2030":      "5550102030",
		"no digits":         "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
