package sources

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// StripeAdapter handles payment webhooks. The organization comes from the
// payload (client_reference_id or metadata) because Stripe's endpoint
// configuration carries no custom query parameters; the operator is expected
// to set the reference on their checkout session.
type StripeAdapter struct {
	SigningSecret string
}

func (a *StripeAdapter) Provider() string { return "stripe" }

func (a *StripeAdapter) Verify(r *http.Request, body []byte) error {
	if a.SigningSecret == "" {
		return nil
	}
	if _, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), a.SigningSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer_details"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

func (a *StripeAdapter) OrgFromPayload(body []byte) string {
	var env stripeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	var sess stripeCheckoutSession
	if err := json.Unmarshal(env.Data.Object, &sess); err != nil {
		return ""
	}
	if sess.ClientReferenceID != "" {
		return sess.ClientReferenceID
	}
	if id, ok := sess.Metadata["orgId"]; ok {
		return id
	}
	return sess.Metadata["org_id"]
}

type stripePaymentIntent struct {
	ID           string            `json:"id"`
	ReceiptEmail string            `json:"receipt_email"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

func (a *StripeAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case "checkout.session.completed":
		return a.parseCheckoutSession(env.Data.Object)
	case "payment_intent.succeeded":
		return a.parsePaymentIntent(env.Data.Object)
	default:
		// Stripe fans out far more event types than we track.
		return nil, nil
	}
}

func (a *StripeAdapter) parseCheckoutSession(object json.RawMessage) (*domain.NormalizedIntent, error) {
	var sess stripeCheckoutSession
	if err := json.Unmarshal(object, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	email := sess.CustomerDetails.Email
	if email == "" {
		email = sess.CustomerEmail
	}
	first, last := splitName(sess.CustomerDetails.Name)

	return &domain.NormalizedIntent{
		Contact: domain.ContactInfo{
			Email:     email,
			Phone:     sess.CustomerDetails.Phone,
			FirstName: first,
			LastName:  last,
		},
		Event: domain.IntentEvent{
			Type:       domain.EventPurchase,
			ExternalID: recorder.ProviderKey("stripe", sess.ID),
			Confidence: domain.ConfidencePayment,
			Payload: map[string]any{
				"amountTotal":   sess.AmountTotal,
				"currency":      sess.Currency,
				"paymentIntent": sess.PaymentIntent,
			},
		},
		Payment: true,
	}, nil
}

// Accounts charging through the PaymentIntents API directly (no Checkout)
// only deliver payment_intent.succeeded; the receipt email is the sole
// identity the payload carries.
func (a *StripeAdapter) parsePaymentIntent(object json.RawMessage) (*domain.NormalizedIntent, error) {
	var pi stripePaymentIntent
	if err := json.Unmarshal(object, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	email := pi.ReceiptEmail
	if email == "" {
		email = pi.Metadata["email"]
	}

	return &domain.NormalizedIntent{
		Contact: domain.ContactInfo{Email: email},
		Event: domain.IntentEvent{
			Type:       domain.EventPurchase,
			ExternalID: recorder.ProviderKey("stripe", pi.ID),
			Confidence: domain.ConfidencePayment,
			Payload: map[string]any{
				"amount":   pi.Amount,
				"currency": pi.Currency,
			},
		},
		Payment: true,
	}, nil
}
