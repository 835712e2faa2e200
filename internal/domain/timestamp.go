package domain

import (
	"encoding/json"
	"time"
)

// Timestamp unmarshals both RFC3339 strings and epoch-millisecond numbers.
// Webhook senders disagree on which one they emit.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	// Unmarshalling null into an int64 is a no-op, which would read as
	// epoch 1970; a null timestamp means "not sent".
	if string(data) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		t.Time = time.Unix(0, ms*int64(time.Millisecond)).UTC()
		return nil
	}
	return json.Unmarshal(data, &t.Time)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}
