package retrainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"analyser-ml/internal/artifacts"
	"analyser-ml/internal/store"
	"analyser-ml/internal/trainer"
)

// TrainingState is the durable checkpoint. It is written only after a
// successful training cycle and only by this controller.
type TrainingState struct {
	LastEventID   int64             `json:"last_event_id"`
	TrainedAt     string            `json:"trained_at"`
	TotalEvents   int               `json:"total_events"`
	TotalSessions int               `json:"total_sessions"`
	Metrics       artifacts.Metrics `json:"metrics"`
}

// StatsSource answers the trigger query: count and max id of events newer
// than the checkpointed one.
type StatsSource interface {
	NewEventStats(ctx context.Context, lastEventID int64) (store.NewEventStats, error)
}

// TrainFunc runs one full training cycle over the entire eligible dataset.
type TrainFunc func(ctx context.Context) (trainer.Result, error)

type Config struct {
	StatePath               string
	MinNewEvents            int64
	PollInterval            time.Duration
	MaxHoursBetweenRetrains int
}

type Retrainer struct {
	cfg   Config
	src   StatsSource
	train TrainFunc
	state TrainingState
	now   func() time.Time
}

func New(cfg Config, src StatsSource, train TrainFunc) *Retrainer {
	return &Retrainer{
		cfg:   cfg,
		src:   src,
		train: train,
		state: loadState(cfg.StatePath),
		now:   time.Now,
	}
}

func (r *Retrainer) State() TrainingState {
	return r.state
}

// Run polls for retraining conditions until the context is cancelled.
// A "no data" training outcome is logged and skipped; any other training
// failure stops the loop and is returned to the caller.
func (r *Retrainer) Run(ctx context.Context) error {
	log.Printf("[Retrainer] Starting loop (min_new_events=%d, poll_interval=%s)", r.cfg.MinNewEvents, r.cfg.PollInterval)

	for {
		if err := r.tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			log.Println("[Retrainer] Stopped")
			return nil
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *Retrainer) tick(ctx context.Context) error {
	triggered, reason := r.shouldRetrain(ctx)
	if !triggered {
		return nil
	}

	log.Printf("[Retrainer] Retraining triggered (%s)", reason)
	return r.executeTraining(ctx)
}

func (r *Retrainer) shouldRetrain(ctx context.Context) (bool, string) {
	stats, err := r.src.NewEventStats(ctx, r.state.LastEventID)
	if err != nil {
		log.Printf("[Retrainer] Could not collect new data stats: %v", err)
		return false, ""
	}

	if stats.NewEvents >= r.cfg.MinNewEvents {
		return true, fmt.Sprintf("%d new events", stats.NewEvents)
	}
	if r.isStale() {
		return true, "max_hours_between_retrains reached"
	}

	log.Printf("[Retrainer] New events since last training: %d (min=%d)", stats.NewEvents, r.cfg.MinNewEvents)
	return false, ""
}

func (r *Retrainer) isStale() bool {
	if r.cfg.MaxHoursBetweenRetrains <= 0 {
		return false
	}
	if r.state.TrainedAt == "" {
		return true
	}
	trainedAt, err := time.Parse(time.RFC3339, r.state.TrainedAt)
	if err != nil {
		return true
	}
	maxAge := time.Duration(r.cfg.MaxHoursBetweenRetrains) * time.Hour
	return r.now().UTC().Sub(trainedAt) >= maxAge
}

func (r *Retrainer) executeTraining(ctx context.Context) error {
	result, err := r.train(ctx)
	if errors.Is(err, trainer.ErrNoEvents) || errors.Is(err, trainer.ErrNoSessions) {
		log.Printf("[Retrainer] Retraining skipped: %v", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("training cycle: %w", err)
	}

	if err := r.checkpoint(result); err != nil {
		return fmt.Errorf("persist training state: %w", err)
	}
	log.Printf("[Retrainer] Retraining finished at %s (events=%d sessions=%d)",
		r.state.TrainedAt, r.state.TotalEvents, r.state.TotalSessions)
	return nil
}

func (r *Retrainer) checkpoint(result trainer.Result) error {
	// last_event_id never moves backwards across cycles.
	lastEventID := result.LastEventID
	if lastEventID < r.state.LastEventID {
		lastEventID = r.state.LastEventID
	}

	state := TrainingState{
		LastEventID:   lastEventID,
		TrainedAt:     result.TrainedAt.UTC().Format(time.RFC3339),
		TotalEvents:   result.TotalEvents,
		TotalSessions: result.TotalSessions,
		Metrics:       result.Metrics,
	}

	if err := artifacts.WriteJSON(r.cfg.StatePath, state); err != nil {
		return err
	}
	r.state = state
	return nil
}

// loadState bootstraps to zero state when the checkpoint is absent or
// unreadable; a corrupt checkpoint must never keep the controller down.
func loadState(path string) TrainingState {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Retrainer] Could not read training state (%v). Starting from scratch.", err)
		}
		return TrainingState{}
	}

	var state TrainingState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[Retrainer] Training state is corrupt (%v). Starting from scratch.", err)
		return TrainingState{}
	}
	return state
}
