package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"analyser-ml/internal/model"
	"analyser-ml/internal/scaler"
)

const (
	ModelFile   = "model.json"
	ScalerFile  = "scaler.json"
	MetricsFile = "metrics.json"
)

// Metrics is the threshold artifact written next to the model. The stored
// threshold is the calibrated one; the scoring side multiplies it by its
// own sensitivity factor.
type Metrics struct {
	Threshold        float64   `json:"threshold"`
	InputDim         int       `json:"input_dim"`
	HiddenDim        int       `json:"hidden_dim"`
	TrainLoss        float64   `json:"train_loss"`
	TestLoss         float64   `json:"test_loss"`
	TrainLossHistory []float64 `json:"train_loss_history,omitempty"`
	ValLossHistory   []float64 `json:"val_loss_history,omitempty"`
}

func Save(dir string, m *model.Autoencoder, sc *scaler.Scaler, metrics Metrics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ModelFile), m); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ScalerFile), sc); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, MetricsFile), metrics); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// Load reads all three artifacts. The caller is expected to treat any error
// as fatal: scoring must not start with a partially loaded model.
func Load(dir string) (*model.Autoencoder, *scaler.Scaler, Metrics, error) {
	var m model.Autoencoder
	if err := readJSON(filepath.Join(dir, ModelFile), &m); err != nil {
		return nil, nil, Metrics{}, fmt.Errorf("load model: %w", err)
	}

	var sc scaler.Scaler
	if err := readJSON(filepath.Join(dir, ScalerFile), &sc); err != nil {
		return nil, nil, Metrics{}, fmt.Errorf("load scaler: %w", err)
	}

	var metrics Metrics
	if err := readJSON(filepath.Join(dir, MetricsFile), &metrics); err != nil {
		return nil, nil, Metrics{}, fmt.Errorf("load metrics: %w", err)
	}

	return &m, &sc, metrics, nil
}

// writeJSON writes to a temp file and renames it into place, so a reader
// never observes a partially written artifact.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON is the atomic write used for any other durable state documents
// (the training checkpoint reuses it).
func WriteJSON(path string, v interface{}) error {
	return writeJSON(path, v)
}
