package sources

import (
	"encoding/json"
	"fmt"

	"github.com/funnelsight/tracker/internal/domain"
)

// Beacon event types.
const (
	BeaconPageView   = "page_view"
	BeaconFormSubmit = "form_submit"
)

// BeaconEnvelope is the single wire format the first-party pixel script
// sends. The browser-side scraping that fills Data is not our problem; only
// this shape is.
type BeaconEnvelope struct {
	OrgKey      string            `json:"orgKey"`
	SessionID   string            `json:"sessionId"`
	Fingerprint string            `json:"fingerprint"`
	Type        string            `json:"type"`
	URL         string            `json:"url"`
	Path        string            `json:"path"`
	Referrer    string            `json:"referrer"`
	VariantID   string            `json:"variantId"`
	UTMs        map[string]string `json:"utms"`
	Data        map[string]any    `json:"data"`
	TS          domain.Timestamp  `json:"ts"`
}

func ParseBeacon(body []byte) (*BeaconEnvelope, error) {
	var env BeaconEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.OrgKey == "" || env.SessionID == "" {
		return nil, fmt.Errorf("%w: missing orgKey or sessionId", ErrMalformed)
	}
	switch env.Type {
	case BeaconPageView, BeaconFormSubmit:
	default:
		return nil, fmt.Errorf("%w: unknown beacon type %q", ErrMalformed, env.Type)
	}
	return &env, nil
}

// ContactInfo extracts whatever identity the scraped form data carried.
func (e *BeaconEnvelope) ContactInfo() domain.ContactInfo {
	if e.Data == nil {
		return domain.ContactInfo{}
	}
	info := domain.ContactInfo{
		Email:     probeString(e.Data, "email", "Email", "e-mail", "email_address", "emailAddress"),
		Phone:     probeString(e.Data, "phone", "Phone", "tel", "phone_number", "phoneNumber", "mobile"),
		FirstName: probeString(e.Data, "first_name", "firstName", "fname"),
		LastName:  probeString(e.Data, "last_name", "lastName", "lname"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(probeString(e.Data, "name", "full_name", "fullName"))
	}
	return info
}

// FormPath is the path component of the page the submit fired on, used in
// the hour-bucketed dedup key.
func (e *BeaconEnvelope) FormPath() string {
	if p := probeString(e.Data, "formPath", "form_path"); p != "" {
		return p
	}
	if e.Path != "" {
		return e.Path
	}
	return e.URL
}

// Attribution builds the first-touch fields from the envelope; the session
// tracker only applies them at session creation.
func (e *BeaconEnvelope) Attribution() domain.Attribution {
	utm := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := e.UTMs[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}
	return domain.Attribution{
		Source:      utm("source", "utm_source"),
		Medium:      utm("medium", "utm_medium"),
		Campaign:    utm("campaign", "utm_campaign"),
		Referrer:    e.Referrer,
		LandingPage: e.URL,
		GCLID:       utm("gclid"),
		FBCLID:      utm("fbclid"),
	}
}
