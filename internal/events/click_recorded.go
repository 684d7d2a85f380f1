package events

import "time"

// ClickRecorded is emitted when a redirect is served for a short code.
type ClickRecorded struct {
	EventID    string `json:"eventId"`
	ShortCode  string `json:"shortCode"`
	OccurredAt string `json:"occurredAt"`
}

// OccurredTime parses OccurredAt, falling back to fallback when it is empty
// or malformed.
func (e ClickRecorded) OccurredTime(fallback time.Time) (time.Time, bool) {
	if e.OccurredAt == "" {
		return fallback.UTC(), false
	}
	t, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
	if err != nil {
		return fallback.UTC(), false
	}
	return t.UTC(), true
}
