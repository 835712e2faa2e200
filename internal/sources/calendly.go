package sources

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/funnelsight/tracker/internal/domain"
	"github.com/funnelsight/tracker/internal/recorder"
)

// CalendlyAdapter handles booking webhooks. invitee.created records a
// booking; invitee.canceled rewrites the payload of the booking already
// recorded under the same external id instead of creating a second event.
type CalendlyAdapter struct {
	Secret string
}

func (a *CalendlyAdapter) Provider() string { return "calendly" }

func (a *CalendlyAdapter) Verify(r *http.Request, body []byte) error {
	if a.Secret == "" {
		return nil
	}
	return verifyTimestampedSignature(a.Secret, body, r.Header.Get("Calendly-Webhook-Signature"))
}

type calendlyPayload struct {
	Event   string `json:"event"`
	Payload struct {
		URI       string `json:"uri"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Questions []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"questions_and_answers"`
		Cancellation struct {
			Reason     string `json:"reason"`
			CanceledBy string `json:"canceled_by"`
		} `json:"cancellation"`
		ScheduledEvent struct {
			Name      string `json:"name"`
			StartTime string `json:"start_time"`
		} `json:"scheduled_event"`
	} `json:"payload"`
}

func (a *CalendlyAdapter) Parse(orgID string, body []byte) (*domain.NormalizedIntent, error) {
	var p calendlyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch p.Event {
	case "invitee.created", "invitee.canceled":
	default:
		return nil, nil
	}

	first, last := p.Payload.FirstName, p.Payload.LastName
	if first == "" && last == "" {
		first, last = splitName(p.Payload.Name)
	}

	// The invitee URI's last segment is the stable per-booking id; create and
	// cancel deliveries share it.
	inviteeID := p.Payload.URI
	if i := strings.LastIndexByte(inviteeID, '/'); i >= 0 {
		inviteeID = inviteeID[i+1:]
	}

	intent := &domain.NormalizedIntent{
		Contact: domain.ContactInfo{
			Email:     p.Payload.Email,
			Phone:     phoneFromQuestions(p.Payload.Questions),
			FirstName: first,
			LastName:  last,
		},
		Event: domain.IntentEvent{
			Type:       domain.EventBooking,
			ExternalID: recorder.ProviderKey("calendly", inviteeID),
			Confidence: domain.ConfidenceEmail,
			Payload: map[string]any{
				"eventName": p.Payload.ScheduledEvent.Name,
				"startTime": p.Payload.ScheduledEvent.StartTime,
				"status":    "scheduled",
			},
		},
	}

	if p.Event == "invitee.canceled" {
		intent.Cancel = true
		intent.Event.Payload["status"] = "canceled"
		intent.Event.Payload["cancelReason"] = p.Payload.Cancellation.Reason
	}
	return intent, nil
}

// Calendly has no dedicated phone field; organizers usually collect it as an
// invitee question.
func phoneFromQuestions(qs []struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}) string {
	for _, q := range qs {
		if strings.Contains(strings.ToLower(q.Question), "phone") {
			return q.Answer
		}
	}
	return ""
}
