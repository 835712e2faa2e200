// Package sources holds one adapter per external sender. Each adapter is a
// pure transform from a provider-specific payload to a normalized intent,
// plus that provider's auth verification. The identity/event core never sees
// provider quirks.
package sources

import (
	"errors"
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
)

var (
	// ErrSignature covers HMAC/secret/token mismatches. Handlers map it to a
	// non-2xx so a misconfigured sender notices.
	ErrSignature = errors.New("signature verification failed")
	// ErrMalformed covers unparsable bodies.
	ErrMalformed = errors.New("malformed payload")
)

// Adapter normalizes one provider's webhooks.
//
// Parse returns (nil, nil) for payloads that are valid but carry nothing for
// this pipeline (e.g. event types the provider sends that we do not track);
// the sender still gets a 200. A non-nil intent with an empty ContactInfo is
// likewise accepted and dropped by the pipeline.
type Adapter interface {
	Provider() string
	Verify(r *http.Request, body []byte) error
	Parse(orgID string, body []byte) (*domain.NormalizedIntent, error)
}

// OrgExtractor is implemented by adapters whose payloads carry the
// organization reference themselves (Stripe: the operator sets it on the
// checkout session) instead of relying on the orgId query parameter.
type OrgExtractor interface {
	OrgFromPayload(body []byte) string
}

// Secrets carries the per-provider verification material. Empty values
// disable verification for that provider.
type Secrets struct {
	StripeSigningSecret string
	TypeformSecret      string
	CalendlySecret      string
	HubSpotToken        string
	ZapierSecret        string
}

// NewRegistry wires every webhook adapter under its URL provider segment.
func NewRegistry(sec Secrets) map[string]Adapter {
	adapters := []Adapter{
		&StripeAdapter{SigningSecret: sec.StripeSigningSecret},
		&CalendlyAdapter{Secret: sec.CalendlySecret},
		&TypeformAdapter{Secret: sec.TypeformSecret},
		&HubSpotAdapter{Token: sec.HubSpotToken},
		&ZapierAdapter{Secret: sec.ZapierSecret},
		&ManyChatAdapter{},
		&ClickFunnelsAdapter{},
		&GoHighLevelAdapter{},
	}
	reg := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		reg[a.Provider()] = a
	}
	return reg
}
