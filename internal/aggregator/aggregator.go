package aggregator

import (
	"context"
	"log"
	"sync"
	"time"

	"analyser-ml/internal/event"
	"analyser-ml/internal/features"
	"analyser-ml/internal/model"
	"analyser-ml/internal/scaler"
)

// DefaultBatchSize is how many events a session collects before it is
// scored.
const DefaultBatchSize = 5

type Verdict struct {
	UserID       int       `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Anomaly      bool      `json:"anomaly"`
	Score        float64   `json:"score"`
	Threshold    float64   `json:"threshold"`
	EventCount   int       `json:"event_count"`
	UniqueEvents int       `json:"unique_events"`
	Source       string    `json:"source"`
}

type sessionBuffer struct {
	events    []event.Event
	lastEvent time.Time
}

// Aggregator buffers events per session and scores a session once it has
// collected a full batch. All buffer access goes through one mutex, so
// events for the same session can never interleave into a partial window;
// scoring itself happens outside the lock on the extracted batch.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string]*sessionBuffer

	batchSize int
	scaler    *scaler.Scaler
	scorer    model.Scorer
	// threshold is the operational one: calibrated threshold times the
	// configured multiplier.
	threshold float64
}

func New(sc *scaler.Scaler, scorer model.Scorer, operationalThreshold float64, batchSize int) *Aggregator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Aggregator{
		buffers:   make(map[string]*sessionBuffer),
		batchSize: batchSize,
		scaler:    sc,
		scorer:    scorer,
		threshold: operationalThreshold,
	}
}

// Ingest appends one event to its session buffer and, when the buffer
// reaches the batch size, scores the session and returns a verdict. It
// returns nil while the session is still accumulating, and also nil (after
// logging) when the event is unusable or scoring fails; in the failure case
// the buffer is already cleared, so a malformed session cannot wedge later
// windows.
func (a *Aggregator) Ingest(ev event.Event) *Verdict {
	if ev.SessionID == "" || ev.UserID == 0 {
		log.Printf("[ML] skipping event without session_id or user_id")
		return nil
	}

	a.mu.Lock()
	buf, ok := a.buffers[ev.SessionID]
	if !ok {
		buf = &sessionBuffer{}
		a.buffers[ev.SessionID] = buf
	}
	buf.events = append(buf.events, ev)
	buf.lastEvent = time.Now()

	if len(buf.events) < a.batchSize {
		a.mu.Unlock()
		return nil
	}

	// Complete window: take it and clear the buffer in the same step, so
	// the next event for this session starts a fresh one.
	batch := buf.events
	delete(a.buffers, ev.SessionID)
	a.mu.Unlock()

	return a.score(batch)
}

func (a *Aggregator) score(batch []event.Event) *Verdict {
	last := batch[len(batch)-1]

	vector, err := features.FromEvents(batch)
	if err != nil {
		log.Printf("[ML] feature build failed for session %s: %v", last.SessionID, err)
		return nil
	}

	scaled, err := a.scaler.TransformVector(vector)
	if err != nil {
		log.Printf("[ML] scaling failed for session %s: %v", last.SessionID, err)
		return nil
	}

	score := a.scorer.Score(scaled)

	uniqueEvents := make(map[string]struct{}, len(batch))
	for _, ev := range batch {
		uniqueEvents[ev.Type] = struct{}{}
	}

	return &Verdict{
		UserID:       last.UserID,
		SessionID:    last.SessionID,
		Timestamp:    last.Timestamp,
		Anomaly:      score > a.threshold,
		Score:        score,
		Threshold:    a.threshold,
		EventCount:   len(batch),
		UniqueEvents: len(uniqueEvents),
		Source:       "ml",
	}
}

// BufferedSessions reports how many sessions are currently accumulating.
func (a *Aggregator) BufferedSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// StartSweep evicts sessions that stopped short of a full batch and went
// idle, so abandoned sessions do not accumulate forever.
func (a *Aggregator) StartSweep(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.sweep(maxIdle)
			}
		}
	}()
}

func (a *Aggregator) sweep(maxIdle time.Duration) {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for sid, buf := range a.buffers {
		if now.Sub(buf.lastEvent) > maxIdle {
			delete(a.buffers, sid)
			log.Printf("[ML] evicted idle session %s (%d buffered events)", sid, len(buf.events))
		}
	}
}
