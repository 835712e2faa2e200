package sources

import (
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// ClickFunnelsAdapter handles funnel form submissions. Contact data arrives
// nested under "contact" on newer funnels and flat on older ones.
type ClickFunnelsAdapter struct{}

func (a *ClickFunnelsAdapter) Provider() string { return "clickfunnels" }

func (a *ClickFunnelsAdapter) Verify(r *http.Request, body []byte) error { return nil }

func (a *ClickFunnelsAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	contact := probeObject(m, "contact", "contact_profile")
	if contact == nil {
		contact = m
	}

	info := domain.ContactInfo{
		Email:     probeString(contact, "email", "email_address", "emailAddress"),
		Phone:     probeString(contact, "phone", "phone_number", "phoneNumber"),
		FirstName: probeString(contact, "first_name", "firstName"),
		LastName:  probeString(contact, "last_name", "lastName"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(probeString(contact, "name", "full_name"))
	}

	nativeID := probeString(contact, "id")
	if nativeID == "" {
		nativeID = probeString(m, "id", "submission_id", "submissionId")
	}
	externalID := recorder.ProviderKey("clickfunnels", nativeID)
	if nativeID == "" {
		externalID = recorder.CompositeKey("clickfunnels", domain.EventFormSubmit, info.Email, orgID)
	}

	return &domain.NormalizedIntent{
		Contact: info,
		Event: domain.IntentEvent{
			Type:       domain.EventFormSubmit,
			ExternalID: externalID,
			Confidence: domain.ConfidenceEmail,
			Payload: map[string]any{
				"funnelId": probeString(m, "funnel_id", "funnelId"),
				"pageId":   probeString(m, "page_id", "pageId"),
			},
		},
	}, nil
}
