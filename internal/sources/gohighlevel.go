package sources

import (
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// GoHighLevelAdapter handles CRM/appointment webhooks. The "type" field is
// a free-form workflow label, so the event type is keyword-sniffed.
type GoHighLevelAdapter struct{}

func (a *GoHighLevelAdapter) Provider() string { return "gohighlevel" }

func (a *GoHighLevelAdapter) Verify(r *http.Request, body []byte) error { return nil }

func (a *GoHighLevelAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	info := domain.ContactInfo{
		Email:     probeString(m, "email", "Email"),
		Phone:     probeString(m, "phone", "Phone", "phone_number"),
		FirstName: probeString(m, "first_name", "firstName", "FirstName"),
		LastName:  probeString(m, "last_name", "lastName", "LastName"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(probeString(m, "name", "full_name", "contact_name"))
	}

	rawType := probeString(m, "type", "event_type", "eventType", "workflow")
	eventType := sniffEventType(rawType)

	nativeID := probeString(m, "contact_id", "contactId", "appointment_id", "appointmentId", "id")
	externalID := recorder.ProviderKey("ghl", nativeID)
	if nativeID == "" {
		externalID = recorder.CompositeKey("ghl", eventType, info.Email, orgID)
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
