package baseline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"analyser-ml/internal/event"
)

const (
	attributeTTL = 14 * 24 * time.Hour
	opTimeout    = 5 * time.Second
)

// Tracker keeps a per-user baseline of observed session attributes in
// Redis: known IPs, countries and user agents, plus an activity-hour
// histogram. It gives anomalous verdicts cheap context (which attribute was
// never seen for this user before) without touching the model.
type Tracker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

// Record checks the event's attributes against the user's baseline, then
// folds them in. It returns the names of attributes seen for the first
// time.
func (t *Tracker) Record(ev event.Event) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var novel []string
	sets := []struct {
		key   string
		value string
		name  string
	}{
		{fmt.Sprintf("user:%d:ips", ev.UserID), ev.IP, "new_ip"},
		{fmt.Sprintf("user:%d:countries", ev.UserID), ev.Country, "new_country"},
		{fmt.Sprintf("user:%d:user_agents", ev.UserID), ev.UserAgent, "new_user_agent"},
	}

	for _, s := range sets {
		if s.value == "" {
			continue
		}
		seen, err := t.rdb.SIsMember(ctx, s.key, s.value).Result()
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", s.key, err)
		}
		if !seen {
			novel = append(novel, s.name)
		}
		if err := t.rdb.SAdd(ctx, s.key, s.value).Err(); err != nil {
			return nil, fmt.Errorf("update %s: %w", s.key, err)
		}
		t.rdb.Expire(ctx, s.key, attributeTTL)
	}

	hourKey := fmt.Sprintf("user:%d:activity_hours", ev.UserID)
	if err := t.rdb.HIncrBy(ctx, hourKey, strconv.Itoa(ev.Timestamp.Hour()), 1).Err(); err != nil {
		return nil, fmt.Errorf("update %s: %w", hourKey, err)
	}
	t.rdb.Expire(ctx, hourKey, attributeTTL)

	return novel, nil
}
