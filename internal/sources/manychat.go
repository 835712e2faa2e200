package sources

import (
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// ManyChatAdapter handles chat opt-ins. ManyChat cannot sign requests; the
// endpoint relies on URL obscurity.
type ManyChatAdapter struct{}

func (a *ManyChatAdapter) Provider() string { return "manychat" }

func (a *ManyChatAdapter) Verify(r *http.Request, body []byte) error { return nil }

func (a *ManyChatAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	sub := probeObject(m, "subscriber", "contact")
	if sub == nil {
		sub = m
	}

	info := domain.ContactInfo{
		Email:     probeString(sub, "email", "Email"),
		Phone:     probeString(sub, "phone", "whatsapp_phone", "phone_number"),
		FirstName: probeString(sub, "first_name", "firstName"),
		LastName:  probeString(sub, "last_name", "lastName"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(probeString(sub, "name", "full_name"))
	}

	subscriberID := probeString(sub, "id", "subscriber_id", "subscriberId")
	externalID := recorder.ProviderKey("manychat", subscriberID)
	if subscriberID == "" {
		externalID = recorder.CompositeKey("manychat", domain.EventOptIn, info.Email, orgID)
	}

	return &domain.NormalizedIntent{
		Contact: info,
		Event: domain.IntentEvent{
			Type:       domain.EventOptIn,
			ExternalID: externalID,
			Confidence: domain.ConfidencePhone,
			Payload: map[string]any{
				"subscriberId": subscriberID,
			},
		},
	}, nil
}
