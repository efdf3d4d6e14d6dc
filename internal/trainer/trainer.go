package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"analyser-ml/internal/artifacts"
	"analyser-ml/internal/features"
	"analyser-ml/internal/model"
	"analyser-ml/internal/scaler"
	"analyser-ml/internal/store"
	"analyser-ml/internal/threshold"
)

// Recoverable "nothing to train on" outcomes. The retraining loop skips
// these; anything else aborts the run.
var (
	ErrNoEvents   = errors.New("no events available for training")
	ErrNoSessions = errors.New("no sessions could be built from events")
)

type Config struct {
	ModelDir     string
	HiddenDim    int
	Epochs       int
	LearningRate float64
	TestSplit    float64
	Seed         int64
}

// Result is what a successful training run reports back for checkpointing.
// LastEventID is the highest event id present in the dataset at collection
// time, not at training start.
type Result struct {
	LastEventID   int64
	TrainedAt     time.Time
	TotalEvents   int
	TotalSessions int
	Metrics       artifacts.Metrics
}

// EventSource is the data-collection side of the pipeline.
type EventSource interface {
	ListEvents(ctx context.Context) ([]store.EventRow, error)
}

// Run executes one full training cycle: load everything, build session
// features, fit the scaler, train the autoencoder, calibrate the threshold
// and persist all three artifacts.
func Run(ctx context.Context, src EventSource, cfg Config) (Result, error) {
	rows, err := src.ListEvents(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load events: %w", err)
	}
	if len(rows) == 0 {
		return Result{}, ErrNoEvents
	}
	log.Printf("[Trainer] Loaded %d events", len(rows))

	var lastEventID int64
	for _, row := range rows {
		if row.ID > lastEventID {
			lastEventID = row.ID
		}
	}

	sessions, err := features.BuildSessions(rows)
	if err != nil {
		return Result{}, fmt.Errorf("build session features: %w", err)
	}
	if len(sessions) == 0 {
		return Result{}, ErrNoSessions
	}
	log.Printf("[Trainer] Built %d sessions", len(sessions))

	matrix := features.Matrix(sessions)
	sc, err := scaler.Fit(matrix)
	if err != nil {
		return Result{}, fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := sc.Transform(matrix)
	if err != nil {
		return Result{}, fmt.Errorf("scale features: %w", err)
	}

	m, summary, err := model.Train(scaled, model.TrainConfig{
		HiddenDim:    cfg.HiddenDim,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		TestSplit:    cfg.TestSplit,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return Result{}, fmt.Errorf("train autoencoder: %w", err)
	}

	calibrated := threshold.Calibrate(summary.TestErrors)
	log.Printf("[Trainer] train_loss=%.6f test_loss=%.6f threshold=%.6f", summary.TrainLoss, summary.TestLoss, calibrated)

	metrics := artifacts.Metrics{
		Threshold:        calibrated,
		InputDim:         features.NumFeatures,
		HiddenDim:        cfg.HiddenDim,
		TrainLoss:        summary.TrainLoss,
		TestLoss:         summary.TestLoss,
		TrainLossHistory: summary.TrainLossHistory,
		ValLossHistory:   summary.ValLossHistory,
	}

	if err := artifacts.Save(cfg.ModelDir, m, sc, metrics); err != nil {
		return Result{}, fmt.Errorf("save artifacts: %w", err)
	}

	return Result{
		LastEventID:   lastEventID,
		TrainedAt:     time.Now().UTC(),
		TotalEvents:   len(rows),
		TotalSessions: len(sessions),
		Metrics:       metrics,
	}, nil
}
