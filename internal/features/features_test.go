package features

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyser-ml/internal/event"
	"analyser-ml/internal/store"
)

func TestFromEventsAggregatesSession(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	var events []event.Event
	for i := 0; i < 5; i++ {
		events = append(events, event.Event{
			UserID:    7,
			SessionID: "s1",
			Type:      "login",
			IP:        fmt.Sprintf("1.1.1.%d", i+1),
			Country:   "PL",
			UserAgent: "A",
			Timestamp: ts,
		})
	}

	vector, err := FromEvents(events)
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 1, 1, 5, 1, 10, 10, 10}, vector)
	assert.Len(t, vector, NumFeatures)
}

func TestFromEventsHourSpread(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := []event.Event{
		{UserID: 1, SessionID: "s", Type: "login", Timestamp: base},
		{UserID: 1, SessionID: "s", Type: "logout", Timestamp: base.Add(4 * time.Hour)},
	}

	vector, err := FromEvents(events)
	require.NoError(t, err)

	assert.Equal(t, 8.0, vector[5])  // min_hour
	assert.Equal(t, 12.0, vector[6]) // max_hour
	assert.Equal(t, 10.0, vector[7]) // avg_hour
}

func TestFromEventsRejectsEmptyInput(t *testing.T) {
	_, err := FromEvents(nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestBuildSessionsGroupsAndSorts(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	rows := []store.EventRow{
		{ID: 1, UserID: 2, EventType: "login", Timestamp: ts, IP: "2.2.2.2", Country: "DE", UserAgent: "B", SessionID: "zzz"},
		{ID: 2, UserID: 1, EventType: "login", Timestamp: ts, IP: "1.1.1.1", Country: "PL", UserAgent: "A", SessionID: "aaa"},
		{ID: 3, UserID: 1, EventType: "payment", Timestamp: ts, IP: "1.1.1.1", Country: "PL", UserAgent: "A", SessionID: "aaa"},
		{ID: 4, UserID: 9, EventType: "other", Timestamp: ts, SessionID: ""},
	}

	sessions, err := BuildSessions(rows)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, "aaa", sessions[0].SessionID)
	assert.Equal(t, "zzz", sessions[1].SessionID)
	assert.Equal(t, 1, sessions[0].UserID)

	// aaa: one ip, one country, one agent, two events, two types
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 14, 14, 14}, sessions[0].Features)
}

func TestBuildSessionsDeterministicOrder(t *testing.T) {
	ts := time.Now()
	rows := []store.EventRow{
		{ID: 1, UserID: 1, EventType: "a", Timestamp: ts, SessionID: "s2"},
		{ID: 2, UserID: 1, EventType: "a", Timestamp: ts, SessionID: "s1"},
		{ID: 3, UserID: 1, EventType: "a", Timestamp: ts, SessionID: "s3"},
	}

	first, err := BuildSessions(rows)
	require.NoError(t, err)
	second, err := BuildSessions(rows)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildSessionsSkipsRowsWithoutSession(t *testing.T) {
	rows := []store.EventRow{
		{ID: 1, UserID: 1, EventType: "login", Timestamp: time.Now(), SessionID: ""},
	}

	sessions, err := BuildSessions(rows)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestBuildSessionsRejectsEmptyInput(t *testing.T) {
	_, err := BuildSessions(nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}
