package event

import (
	"errors"
	"fmt"
	"time"

	contracts "analyser-ml/contracts/events"
)

// ErrIncomplete marks events that cannot be attributed to a session. They
// are skipped, not treated as failures.
var ErrIncomplete = errors.New("event is missing session_id or user_id")

type Event struct {
	UserID    int
	SessionID string
	Type      string
	IP        string
	Country   string
	UserAgent string
	Timestamp time.Time
	// WallClock is set when no usable timestamp was present anywhere in the
	// envelope and the current time was substituted. Hour-of-day features
	// built from such events are not reproducible.
	WallClock bool
}

// FromEnvelope projects a user-activity envelope into a flat event. Unlike
// the strict contract validation used on the ingest side, only session_id
// and user_id are required here; session_id falls back to the correlation
// map and the timestamp falls back to the envelope timestamp, then to the
// wall clock.
func FromEnvelope(envelope contracts.Envelope) (Event, error) {
	var payload contracts.UserActivityPayload
	if err := envelope.PayloadInto(&payload); err != nil {
		return Event{}, fmt.Errorf("decode user activity payload: %w", err)
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = envelope.Correlation["session_id"]
	}
	if sessionID == "" || payload.UserID == 0 {
		return Event{}, ErrIncomplete
	}

	ev := Event{
		UserID:    payload.UserID,
		SessionID: sessionID,
		Type:      string(payload.Type),
		IP:        payload.Metadata.IP,
		Country:   payload.Metadata.Country,
		UserAgent: payload.Metadata.UserAgent,
		Timestamp: payload.Timestamp,
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = envelope.Timestamp
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
		ev.WallClock = true
	}

	return ev, nil
}
