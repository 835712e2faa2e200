package sources

import (
	"strings"
	"testing"

	"github.com/funnelsight/tracker/internal/domain"
)

const testOrg = "org-1"

func TestStripeParseCheckoutCompleted(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"client_reference_id": "org-1",
			"customer_details": {"email": "buyer@x.com", "name": "Billie Buyer", "phone": "+15550102030"},
			"amount_total": 4900,
			"currency": "usd",
			"payment_intent": "pi_1"
		}}
	}`)

	a := &StripeAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !intent.Payment {
		t.Fatal("checkout completion must route through payment resolution")
	}
	if intent.Contact.Email != "buyer@x.com" {
		t.Fatalf("email = %q", intent.Contact.Email)
	}
	if intent.Contact.FirstName != "Billie" || intent.Contact.LastName != "Buyer" {
		t.Fatalf("name = %q %q", intent.Contact.FirstName, intent.Contact.LastName)
	}
	if intent.Event.Type != domain.EventPurchase {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Event.ExternalID != "stripe-cs_test_123" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
	if intent.Event.Confidence != domain.ConfidencePayment {
		t.Fatalf("confidence = %d", intent.Event.Confidence)
	}
	if intent.Event.Payload["amountTotal"] != int64(4900) {
		t.Fatalf("amountTotal = %v", intent.Event.Payload["amountTotal"])
	}

	if got := a.OrgFromPayload(body); got != "org-1" {
		t.Fatalf("org from payload = %q", got)
	}
}

func TestStripeParsePaymentIntentSucceeded(t *testing.T) {
	body := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_abc",
			"receipt_email": "direct@x.com",
			"amount": 1900,
			"currency": "eur"
		}}
	}`)

	a := &StripeAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent == nil {
		t.Fatal("payment_intent.succeeded discarded")
	}
	if !intent.Payment {
		t.Fatal("payment intent must route through payment resolution")
	}
	if intent.Contact.Email != "direct@x.com" {
		t.Fatalf("email = %q", intent.Contact.Email)
	}
	if intent.Event.Type != domain.EventPurchase {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Event.ExternalID != "stripe-pi_abc" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
	if intent.Event.Confidence != domain.ConfidencePayment {
		t.Fatalf("confidence = %d", intent.Event.Confidence)
	}
	if intent.Event.Payload["amount"] != int64(1900) {
		t.Fatalf("amount = %v", intent.Event.Payload["amount"])
	}

	// No receipt email: metadata fallback.
	body = []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","metadata":{"email":"meta@x.com","orgId":"org-9"}}}}`)
	intent, err = a.Parse(testOrg, body)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Contact.Email != "meta@x.com" {
		t.Fatalf("metadata email = %q", intent.Contact.Email)
	}
	if got := a.OrgFromPayload(body); got != "org-9" {
		t.Fatalf("org from payment intent metadata = %q", got)
	}
}

func TestStripeParseIgnoresOtherEvents(t *testing.T) {
	a := &StripeAdapter{}
	intent, err := a.Parse(testOrg, []byte(`{"type":"invoice.paid","data":{"object":{}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent != nil {
		t.Fatal("untracked event type produced an intent")
	}
}

func TestStripeOrgFromMetadata(t *testing.T) {
	a := &StripeAdapter{}
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"org_id":"org-meta"}}}}`)
	if got := a.OrgFromPayload(body); got != "org-meta" {
		t.Fatalf("org from metadata = %q", got)
	}
}

func TestCalendlyParseCreated(t *testing.T) {
	body := []byte(`{
		"event": "invitee.created",
		"payload": {
			"uri": "https://api.calendly.com/scheduled_events/ev1/invitees/inv_abc",
			"email": "lead@x.com",
			"name": "Lia Lead",
			"questions_and_answers": [
				{"question": "What is your phone number?", "answer": "555-0102"}
			],
			"scheduled_event": {"name": "Intro Call", "start_time": "2025-06-02T10:00:00Z"}
		}
	}`)

	a := &CalendlyAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Cancel {
		t.Fatal("created delivery flagged as cancel")
	}
	if intent.Event.Type != domain.EventBooking {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Event.ExternalID != "calendly-inv_abc" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
	if intent.Contact.Phone != "555-0102" {
		t.Fatalf("phone = %q", intent.Contact.Phone)
	}
	if intent.Contact.FirstName != "Lia" {
		t.Fatalf("first name = %q", intent.Contact.FirstName)
	}
	if intent.Event.Payload["status"] != "scheduled" {
		t.Fatalf("status = %v", intent.Event.Payload["status"])
	}
}

func TestCalendlyParseCanceledSharesExternalID(t *testing.T) {
	body := []byte(`{
		"event": "invitee.canceled",
		"payload": {
			"uri": "https://api.calendly.com/scheduled_events/ev1/invitees/inv_abc",
			"email": "lead@x.com",
			"cancellation": {"reason": "conflict", "canceled_by": "invitee"}
		}
	}`)

	a := &CalendlyAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !intent.Cancel {
		t.Fatal("cancellation not flagged")
	}
	if intent.Event.ExternalID != "calendly-inv_abc" {
		t.Fatalf("external id = %q; cancel must target the created booking", intent.Event.ExternalID)
	}
	if intent.Event.Payload["status"] != "canceled" {
		t.Fatalf("status = %v", intent.Event.Payload["status"])
	}
	if intent.Event.Payload["cancelReason"] != "conflict" {
		t.Fatalf("cancelReason = %v", intent.Event.Payload["cancelReason"])
	}
}

func TestTypeformParseAnswers(t *testing.T) {
	body := []byte(`{
		"event_type": "form_response",
		"form_response": {
			"token": "tok123",
			"form_id": "F1",
			"answers": [
				{"type": "email", "email": "lead@x.com", "field": {"ref": "email"}},
				{"type": "phone_number", "phone_number": "+15550102030", "field": {"ref": "phone"}},
				{"type": "text", "text": "Lia", "field": {"ref": "first_name"}},
				{"type": "text", "text": "Lead", "field": {"ref": "last_name"}}
			]
		}
	}`)

	a := &TypeformAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Contact.Email != "lead@x.com" || intent.Contact.Phone != "+15550102030" {
		t.Fatalf("contact = %+v", intent.Contact)
	}
	if intent.Contact.FirstName != "Lia" || intent.Contact.LastName != "Lead" {
		t.Fatalf("name = %q %q", intent.Contact.FirstName, intent.Contact.LastName)
	}
	if intent.Event.ExternalID != "typeform-tok123" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
}

func TestTypeformHiddenFieldFallback(t *testing.T) {
	body := []byte(`{
		"event_type": "form_response",
		"form_response": {"hidden": {"email": "hidden@x.com"}}
	}`)
	a := &TypeformAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Contact.Email != "hidden@x.com" {
		t.Fatalf("email = %q", intent.Contact.Email)
	}
	// No token: the key falls back to the composite form.
	if !strings.HasPrefix(intent.Event.ExternalID, "typeform-") || intent.Event.ExternalID == "typeform-" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
}

func TestHubSpotParseWrappedProperties(t *testing.T) {
	body := []byte(`{
		"objectId": 1234,
		"subscriptionType": "contact.creation",
		"properties": {
			"email": {"value": "crm@x.com"},
			"firstname": {"value": "Cam"},
			"phone": "555-0100"
		}
	}`)

	a := &HubSpotAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Contact.Email != "crm@x.com" {
		t.Fatalf("email = %q", intent.Contact.Email)
	}
	if intent.Contact.FirstName != "Cam" {
		t.Fatalf("first name = %q", intent.Contact.FirstName)
	}
	if intent.Contact.Phone != "555-0100" {
		t.Fatalf("phone = %q", intent.Contact.Phone)
	}
	// Numeric object ids are stringified into the key.
	if intent.Event.ExternalID != "hubspot-1234" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
}

func TestZapierParseSniffsEventType(t *testing.T) {
	a := &ZapierAdapter{}

	intent, err := a.Parse(testOrg, []byte(`{"email":"z@x.com","event":"New Appointment Booked","id":"z1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Event.Type != domain.EventBooking {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Event.ExternalID != "zapier-z1" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}

	intent, err = a.Parse(testOrg, []byte(`{"email":"z@x.com","event_type":"order.paid"}`))
	if err != nil {
		t.Fatal(err)
	}
	if intent.Event.Type != domain.EventPurchase {
		t.Fatalf("type = %q", intent.Event.Type)
	}

	intent, err = a.Parse(testOrg, []byte(`{"email":"z@x.com"}`))
	if err != nil {
		t.Fatal(err)
	}
	if intent.Event.Type != domain.EventFormSubmit {
		t.Fatalf("default type = %q", intent.Event.Type)
	}
}

func TestManyChatParseSubscriber(t *testing.T) {
	body := []byte(`{
		"subscriber": {
			"id": "sub_1",
			"name": "Chat User",
			"whatsapp_phone": "+15550102030"
		}
	}`)
	a := &ManyChatAdapter{}
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Event.Type != domain.EventOptIn {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Contact.Phone != "+15550102030" {
		t.Fatalf("phone = %q", intent.Contact.Phone)
	}
	if intent.Contact.FirstName != "Chat" || intent.Contact.LastName != "User" {
		t.Fatalf("name = %q %q", intent.Contact.FirstName, intent.Contact.LastName)
	}
	if intent.Event.ExternalID != "manychat-sub_1" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
}

func TestClickFunnelsParseNestedAndFlat(t *testing.T) {
	a := &ClickFunnelsAdapter{}

	nested := []byte(`{"contact":{"id":"c9","email":"cf@x.com","first_name":"Fi"},"funnel_id":"fn1"}`)
	intent, err := a.Parse(testOrg, nested)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Contact.Email != "cf@x.com" || intent.Contact.FirstName != "Fi" {
		t.Fatalf("contact = %+v", intent.Contact)
	}
	if intent.Event.ExternalID != "clickfunnels-c9" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
	if intent.Event.Payload["funnelId"] != "fn1" {
		t.Fatalf("funnelId = %v", intent.Event.Payload["funnelId"])
	}

	flat := []byte(`{"email":"cf2@x.com","phone_number":"555"}`)
	intent, err = a.Parse(testOrg, flat)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Contact.Email != "cf2@x.com" || intent.Contact.Phone != "555" {
		t.Fatalf("flat contact = %+v", intent.Contact)
	}
}

func TestGoHighLevelParse(t *testing.T) {
	a := &GoHighLevelAdapter{}
	body := []byte(`{"contact_id":"ct1","email":"ghl@x.com","workflow":"Appointment Reminder Call"}`)
	intent, err := a.Parse(testOrg, body)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Event.Type != domain.EventBooking {
		t.Fatalf("type = %q", intent.Event.Type)
	}
	if intent.Event.ExternalID != "ghl-ct1" {
		t.Fatalf("external id = %q", intent.Event.ExternalID)
	}
}

func TestParseMalformedBodies(t *testing.T) {
	adapters := []Adapter{
		&StripeAdapter{}, &CalendlyAdapter{}, &TypeformAdapter{},
		&HubSpotAdapter{}, &ZapierAdapter{}, &ManyChatAdapter{},
		&ClickFunnelsAdapter{}, &GoHighLevelAdapter{},
	}
	for _, a := range adapters {
		if _, err := a.Parse(testOrg, []byte(`not json`)); err == nil {
			t.Errorf("%s: malformed body accepted", a.Provider())
		}
	}
}

func TestNewRegistryCoversAllProviders(t *testing.T) {
	reg := NewRegistry(Secrets{})
	want := []string{"stripe", "calendly", "typeform", "hubspot", "zapier", "manychat", "clickfunnels", "gohighlevel"}
	if len(reg) != len(want) {
		t.Fatalf("registry size = %d, want %d", len(reg), len(want))
	}
	for _, p := range want {
		if _, ok := reg[p]; !ok {
			t.Errorf("provider %q missing from registry", p)
		}
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct{ in, first, last string }{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Cher", "Cher", ""},
		{"  Mary  Jane Watson ", "Mary", " Jane Watson"},
		{"", "", ""},
	}
	for _, tc := range cases {
		first, last := splitName(tc.in)
		if first != tc.first || strings.TrimSpace(last) != strings.TrimSpace(tc.last) {
			t.Errorf("splitName(%q) = %q, %q", tc.in, first, last)
		}
	}
}

func TestSniffEventType(t *testing.T) {
	cases := map[string]string{
		"New Booking":         domain.EventBooking,
		"appointment.created": domain.EventBooking,
		"order.completed":     domain.EventPurchase,
		"payment_received":    domain.EventPurchase,
		"newsletter-optin":    domain.EventOptIn,
		"subscribe":           domain.EventOptIn,
		"anything else":       domain.EventFormSubmit,
		"":                    domain.EventFormSubmit,
	}
	for in, want := range cases {
		if got := sniffEventType(in); got != want {
			t.Errorf("sniffEventType(%q) = %q, want %q", in, got, want)
		}
	}
}
