package sources

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// TypeformAdapter handles form_response webhooks. Contact fields are spread
// across the answers array; hidden fields may carry extras the embed code
// passed through.
type TypeformAdapter struct {
	Secret string
}

func (a *TypeformAdapter) Provider() string { return "typeform" }

func (a *TypeformAdapter) Verify(r *http.Request, body []byte) error {
	if a.Secret == "" {
		return nil
	}
	return verifyBase64Signature(a.Secret, body, r.Header.Get("Typeform-Signature"))
}

type typeformPayload struct {
	EventType    string `json:"event_type"`
	FormResponse struct {
		Token   string            `json:"token"`
		FormID  string            `json:"form_id"`
		Hidden  map[string]string `json:"hidden"`
		Answers []struct {
			Type        string `json:"type"`
			Email       string `json:"email"`
			PhoneNumber string `json:"phone_number"`
			Text        string `json:"text"`
			Field       struct {
				Ref string `json:"ref"`
			} `json:"field"`
		} `json:"answers"`
	} `json:"form_response"`
}

func (a *TypeformAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	var p typeformPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.EventType != "" && p.EventType != "form_response" {
		return nil, nil
	}

	var info domain.ContactInfo
	for _, ans := range p.FormResponse.Answers {
		switch ans.Type {
		case "email":
			if info.Email == "" {
				info.Email = ans.Email
			}
		case "phone_number":
			if info.Phone == "" {
				info.Phone = ans.PhoneNumber
			}
		case "text":
			switch ans.Field.Ref {
			case "first_name", "firstName":
				info.FirstName = ans.Text
			case "last_name", "lastName":
				info.LastName = ans.Text
			case "name", "full_name":
				info.FirstName, info.LastName = splitName(ans.Text)
			}
		}
	}
	if info.Email == "" {
		info.Email = p.FormResponse.Hidden["email"]
	}
	if info.Phone == "" {
		info.Phone = p.FormResponse.Hidden["phone"]
	}

	externalID := recorder.ProviderKey("typeform", p.FormResponse.Token)
	if p.FormResponse.Token == "" {
		externalID = recorder.CompositeKey("typeform", domain.EventFormSubmit, info.Email, orgID)
	}

	return &domain.NormalizedIntent{
		Contact: info,
		Event: domain.IntentEvent{
			Type:       domain.EventFormSubmit,
			ExternalID: externalID,
			Confidence: domain.ConfidenceEmail,
			Payload: map[string]any{
				"formId": p.FormResponse.FormID,
			},
		},
	}, nil
}
