package sources

import (
	"net/http"
	"strings"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// HubSpotAdapter handles CRM contact webhooks. Property values arrive either
// flat or wrapped in {"value": ...} objects depending on the workflow that
// produced them.
type HubSpotAdapter struct {
	Token string
}

func (a *HubSpotAdapter) Provider() string { return "hubspot" }

func (a *HubSpotAdapter) Verify(r *http.Request, body []byte) error {
	if a.Token == "" {
		return nil
	}
	auth := r.Header.Get("Authorization")
	if strings.TrimPrefix(auth, "Bearer ") == a.Token {
		return nil
	}
	if r.Header.Get("X-API-Key") == a.Token {
		return nil
	}
	return ErrSignature
}

func (a *HubSpotAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	props := probeObject(m, "properties", "contact")
	if props == nil {
		props = m
	}

	info := domain.ContactInfo{
		Email:     probeString(props, "email", "Email"),
		Phone:     probeString(props, "phone", "mobilephone", "phone_number", "phoneNumber"),
		FirstName: probeString(props, "firstname", "first_name", "firstName"),
		LastName:  probeString(props, "lastname", "last_name", "lastName"),
	}

	objectID := probeString(m, "objectId", "object_id", "vid", "id")
	externalID := recorder.ProviderKey("hubspot", objectID)
	if objectID == "" {
		externalID = recorder.CompositeKey("hubspot", domain.EventFormSubmit, info.Email, orgID)
	}

	return &domain.NormalizedIntent{
		Contact: info,
		Event: domain.IntentEvent{
			Type:       domain.EventFormSubmit,
			ExternalID: externalID,
			Confidence: domain.ConfidenceEmail,
			Payload: map[string]any{
				"objectId":         objectID,
				"subscriptionType": probeString(m, "subscriptionType", "subscription_type"),
			},
		},
	}, nil
}
