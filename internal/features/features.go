package features

import (
	"errors"
	"sort"

	"analyser-ml/internal/event"
	"analyser-ml/internal/store"
)

// ColumnNames fixes the feature order. The scaler and the model are fitted
// against exactly this layout, so both the streaming and the batch builders
// must emit it unchanged.
var ColumnNames = []string{
	"unique_ips",
	"unique_countries",
	"unique_agents",
	"event_count",
	"unique_events",
	"min_hour",
	"max_hour",
	"avg_hour",
}

const NumFeatures = 8

var ErrNoEvents = errors.New("cannot build features from zero events")

// FromEvents aggregates one completed session buffer into a feature vector.
func FromEvents(events []event.Event) ([]float64, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	ips := make(map[string]struct{})
	countries := make(map[string]struct{})
	agents := make(map[string]struct{})
	types := make(map[string]struct{})

	minHour := 23
	maxHour := 0
	hourSum := 0

	for _, ev := range events {
		ips[ev.IP] = struct{}{}
		countries[ev.Country] = struct{}{}
		agents[ev.UserAgent] = struct{}{}
		types[ev.Type] = struct{}{}

		hour := ev.Timestamp.Hour()
		if hour < minHour {
			minHour = hour
		}
		if hour > maxHour {
			maxHour = hour
		}
		hourSum += hour
	}

	return []float64{
		float64(len(ips)),
		float64(len(countries)),
		float64(len(agents)),
		float64(len(events)),
		float64(len(types)),
		float64(minHour),
		float64(maxHour),
		float64(hourSum) / float64(len(events)),
	}, nil
}

// SessionRow is one aggregated session produced by the batch builder.
type SessionRow struct {
	SessionID string
	UserID    int
	Features  []float64
}

// BuildSessions groups raw event rows by session and derives one feature row
// per session. Rows without a session id are skipped. Output is sorted by
// session id so that repeated runs over the same data fit the scaler
// identically.
func BuildSessions(rows []store.EventRow) ([]SessionRow, error) {
	if len(rows) == 0 {
		return nil, ErrNoEvents
	}

	grouped := make(map[string][]event.Event)
	firstUser := make(map[string]int)
	for _, row := range rows {
		if row.SessionID == "" {
			continue
		}
		if _, seen := firstUser[row.SessionID]; !seen {
			firstUser[row.SessionID] = row.UserID
		}
		grouped[row.SessionID] = append(grouped[row.SessionID], event.Event{
			UserID:    row.UserID,
			SessionID: row.SessionID,
			Type:      row.EventType,
			IP:        row.IP,
			Country:   row.Country,
			UserAgent: row.UserAgent,
			Timestamp: row.Timestamp,
		})
	}

	sessionIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		sessionIDs = append(sessionIDs, id)
	}
	sort.Strings(sessionIDs)

	out := make([]SessionRow, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		vector, err := FromEvents(grouped[id])
		if err != nil {
			return nil, err
		}
		out = append(out, SessionRow{
			SessionID: id,
			UserID:    firstUser[id],
			Features:  vector,
		})
	}
	return out, nil
}

// Matrix strips session metadata, leaving the numeric columns in fit order.
func Matrix(sessions []SessionRow) [][]float64 {
	matrix := make([][]float64, len(sessions))
	for i, s := range sessions {
		matrix[i] = s.Features
	}
	return matrix
}
