package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

func (q *Queries) Close() {
	q.pool.Close()
}

type InsertEventParams struct {
	UserID    int32
	EventType string
	Timestamp pgtype.Timestamptz
	Ip        pgtype.Text
	UserAgent pgtype.Text
	Country   pgtype.Text
	SessionID pgtype.Text
	Metadata  []byte
}

const insertEvent = `
INSERT INTO events (user_id, event_type, "timestamp", ip, user_agent, country, session_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`

func (q *Queries) InsertEvent(ctx context.Context, p InsertEventParams) (int64, error) {
	var id int64
	err := q.pool.QueryRow(ctx, insertEvent,
		p.UserID, p.EventType, p.Timestamp, p.Ip, p.UserAgent, p.Country, p.SessionID, p.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// EventRow is the flat shape the training pipeline consumes.
type EventRow struct {
	ID        int64
	UserID    int
	EventType string
	Timestamp time.Time
	IP        string
	UserAgent string
	Country   string
	SessionID string
}

const listEvents = `
SELECT id, user_id, event_type, "timestamp", ip, user_agent, country, session_id
FROM events
ORDER BY id
`

func (q *Queries) ListEvents(ctx context.Context) ([]EventRow, error) {
	rows, err := q.pool.Query(ctx, listEvents)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			row       EventRow
			userID    int32
			ts        pgtype.Timestamptz
			ip        pgtype.Text
			userAgent pgtype.Text
			country   pgtype.Text
			sessionID pgtype.Text
		)
		if err := rows.Scan(&row.ID, &userID, &row.EventType, &ts, &ip, &userAgent, &country, &sessionID); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		row.UserID = int(userID)
		row.Timestamp = ts.Time
		row.IP = ip.String
		row.UserAgent = userAgent.String
		row.Country = country.String
		row.SessionID = sessionID.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

// NewEventStats answers the retraining trigger query: how many events exist
// past the given id, and what the highest observed id is.
type NewEventStats struct {
	NewEvents  int64
	MaxEventID int64
}

const newEventStats = `
SELECT COUNT(*), COALESCE(MAX(id), $1)
FROM events
WHERE id > $1
`

func (q *Queries) NewEventStats(ctx context.Context, lastEventID int64) (NewEventStats, error) {
	var stats NewEventStats
	err := q.pool.QueryRow(ctx, newEventStats, lastEventID).Scan(&stats.NewEvents, &stats.MaxEventID)
	if err != nil {
		return NewEventStats{}, fmt.Errorf("new event stats: %w", err)
	}
	return stats, nil
}
