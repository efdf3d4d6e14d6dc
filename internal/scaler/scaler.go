package scaler

import (
	"errors"
	"fmt"
	"math"
)

// Scaler holds a fitted per-column standardization: (x - mean) / std.
// The parameters are computed once at training time and never refitted
// at transform time.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

var ErrEmptyInput = errors.New("cannot fit scaler on empty input")

func Fit(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyInput
	}

	cols := len(rows[0])
	mean := make([]float64, cols)
	std := make([]float64, cols)

	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}

	return &Scaler{Mean: mean, Std: std}, nil
}

// TransformVector standardizes a single row using the fitted parameters.
// Zero-variance columns scale to zero instead of dividing by zero.
func (s *Scaler) TransformVector(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("vector has %d columns, scaler was fitted on %d", len(x), len(s.Mean))
	}

	out := make([]float64, len(x))
	for j, v := range x {
		std := s.Std[j]
		if std == 0 {
			std = 1
		}
		out[j] = (v - s.Mean[j]) / std
	}
	return out, nil
}

func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.TransformVector(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}
