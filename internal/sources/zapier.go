package sources

import (
	"crypto/subtle"
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// ZapierAdapter is the generic bridge: operators point arbitrary zaps at it,
// so the payload shape is whatever the upstream app produced. Auth is a
// shared secret in the query string because Zapier's webhook action cannot
// sign bodies.
type ZapierAdapter struct {
	Secret string
}

func (a *ZapierAdapter) Provider() string { return "zapier" }

func (a *ZapierAdapter) Verify(r *http.Request, body []byte) error {
	if a.Secret == "" {
		return nil
	}
	supplied := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(a.Secret)) != 1 {
		return ErrSignature
	}
	return nil
}

func (a *ZapierAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	info := domain.ContactInfo{
		Email:     probeString(m, "email", "Email", "email_address", "emailAddress"),
		Phone:     probeString(m, "phone", "Phone", "phone_number", "phoneNumber"),
		FirstName: probeString(m, "first_name", "firstName", "FirstName"),
		LastName:  probeString(m, "last_name", "lastName", "LastName"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(probeString(m, "name", "full_name", "fullName"))
	}

	rawType := probeString(m, "type", "event", "event_type", "eventType")
	eventType := sniffEventType(rawType)

	nativeID := probeString(m, "id", "event_id", "eventId", "external_id", "externalId")
	externalID := recorder.ProviderKey("zapier", nativeID)
	if nativeID == "" {
		externalID = recorder.CompositeKey("zapier", eventType, info.Email, orgID)
	}

	return &domain.NormalizedIntent{
		Contact: info,
		Event: domain.IntentEvent{
			Type:       eventType,
			ExternalID: externalID,
			Confidence: domain.ConfidenceEmail,
			Payload: map[string]any{
				"rawType": rawType,
			},
		},
	}, nil
}
