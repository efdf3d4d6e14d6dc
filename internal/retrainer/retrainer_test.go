package retrainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyser-ml/internal/artifacts"
	"analyser-ml/internal/store"
	"analyser-ml/internal/trainer"
)

type stubStats struct {
	stats store.NewEventStats
	err   error
}

func (s stubStats) NewEventStats(_ context.Context, _ int64) (store.NewEventStats, error) {
	return s.stats, s.err
}

func trainStub(results ...trainer.Result) (*int, TrainFunc) {
	calls := new(int)
	return calls, func(_ context.Context) (trainer.Result, error) {
		result := results[*calls%len(results)]
		*calls++
		return result, nil
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		StatePath:    filepath.Join(t.TempDir(), "training_state.json"),
		MinNewEvents: 1000,
		PollInterval: time.Minute,
	}
}

func TestVolumeTriggerBoundary(t *testing.T) {
	cfg := testConfig(t)

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 999}}, nil)
	triggered, _ := r.shouldRetrain(context.Background())
	assert.False(t, triggered)

	r = New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 1000}}, nil)
	triggered, reason := r.shouldRetrain(context.Background())
	assert.True(t, triggered)
	assert.Equal(t, "1000 new events", reason)
}

func TestStalenessTrigger(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHoursBetweenRetrains = 24

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 0}}, nil)
	r.state.TrainedAt = time.Now().UTC().Add(-25 * time.Hour).Format(time.RFC3339)

	triggered, reason := r.shouldRetrain(context.Background())
	assert.True(t, triggered)
	assert.Equal(t, "max_hours_between_retrains reached", reason)
}

func TestFreshStateIsNotStale(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHoursBetweenRetrains = 24

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 0}}, nil)
	r.state.TrainedAt = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)

	triggered, _ := r.shouldRetrain(context.Background())
	assert.False(t, triggered)
}

func TestNeverTrainedCountsAsStale(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHoursBetweenRetrains = 24

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 0}}, nil)
	triggered, reason := r.shouldRetrain(context.Background())
	assert.True(t, triggered)
	assert.Equal(t, "max_hours_between_retrains reached", reason)
}

func TestUnparsableTrainedAtCountsAsStale(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHoursBetweenRetrains = 24

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 0}}, nil)
	r.state.TrainedAt = "not-a-timestamp"
	assert.True(t, r.isStale())
}

func TestNoStalenessTriggerWhenUnconfigured(t *testing.T) {
	cfg := testConfig(t)

	r := New(cfg, stubStats{stats: store.NewEventStats{NewEvents: 0}}, nil)
	triggered, _ := r.shouldRetrain(context.Background())
	assert.False(t, triggered)
}

func TestStatsErrorSkipsTrigger(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHoursBetweenRetrains = 24

	r := New(cfg, stubStats{err: errors.New("db down")}, nil)
	triggered, _ := r.shouldRetrain(context.Background())
	assert.False(t, triggered)
}

func TestCheckpointPersistsAndReloads(t *testing.T) {
	cfg := testConfig(t)
	trainedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	calls, train := trainStub(trainer.Result{
		LastEventID:   42,
		TrainedAt:     trainedAt,
		TotalEvents:   60,
		TotalSessions: 12,
		Metrics:       artifacts.Metrics{Threshold: 0.5},
	})

	r := New(cfg, stubStats{}, train)
	require.NoError(t, r.executeTraining(context.Background()))
	assert.Equal(t, 1, *calls)

	state := r.State()
	assert.Equal(t, int64(42), state.LastEventID)
	assert.Equal(t, trainedAt.Format(time.RFC3339), state.TrainedAt)
	assert.Equal(t, 60, state.TotalEvents)
	assert.Equal(t, 12, state.TotalSessions)

	// A fresh controller picks the checkpoint back up.
	reloaded := New(cfg, stubStats{}, train)
	assert.Equal(t, state, reloaded.State())
}

func TestLastEventIDIsMonotonic(t *testing.T) {
	cfg := testConfig(t)
	now := time.Now().UTC()

	_, train := trainStub(
		trainer.Result{LastEventID: 42, TrainedAt: now},
		trainer.Result{LastEventID: 40, TrainedAt: now},
		trainer.Result{LastEventID: 50, TrainedAt: now},
	)

	r := New(cfg, stubStats{}, train)

	require.NoError(t, r.executeTraining(context.Background()))
	assert.Equal(t, int64(42), r.State().LastEventID)

	require.NoError(t, r.executeTraining(context.Background()))
	assert.Equal(t, int64(42), r.State().LastEventID, "checkpoint must never move backwards")

	require.NoError(t, r.executeTraining(context.Background()))
	assert.Equal(t, int64(50), r.State().LastEventID)
}

func TestCorruptCheckpointBootstrapsToZero(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.StatePath, []byte("{broken json"), 0o644))

	r := New(cfg, stubStats{}, nil)
	assert.Equal(t, TrainingState{}, r.State())
}

func TestNoDataOutcomeIsSkipped(t *testing.T) {
	cfg := testConfig(t)

	r := New(cfg, stubStats{}, func(_ context.Context) (trainer.Result, error) {
		return trainer.Result{}, trainer.ErrNoSessions
	})

	require.NoError(t, r.executeTraining(context.Background()))
	assert.Equal(t, TrainingState{}, r.State())

	_, err := os.Stat(cfg.StatePath)
	assert.True(t, os.IsNotExist(err), "skipped training must not write a checkpoint")
}

func TestTrainingFailurePropagates(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("pipeline exploded")

	r := New(cfg, stubStats{}, func(_ context.Context) (trainer.Result, error) {
		return trainer.Result{}, boom
	})

	err := r.executeTraining(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.PollInterval = 10 * time.Millisecond

	r := New(cfg, stubStats{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
