package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingMatrix(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	for i := range X {
		row := make([]float64, 8)
		for j := range row {
			// Tight cluster away from zero, so an untrained model starts
			// with a clearly reducible reconstruction error.
			row[j] = 1.0 + rng.NormFloat64()*0.1
		}
		X[i] = row
	}
	return X
}

func testConfig() TrainConfig {
	return TrainConfig{
		HiddenDim:    4,
		Epochs:       20,
		LearningRate: 0.01,
		TestSplit:    0.2,
		Seed:         1,
	}
}

func TestTrainReducesLoss(t *testing.T) {
	X := trainingMatrix(64, 3)

	_, summary, err := Train(X, testConfig())
	require.NoError(t, err)

	require.Len(t, summary.TrainLossHistory, 20)
	assert.Less(t, summary.TrainLossHistory[19], summary.TrainLossHistory[0])
	assert.NotEmpty(t, summary.TestErrors)
	assert.NotEmpty(t, summary.ValLossHistory)
}

func TestTrainIsDeterministicForSeed(t *testing.T) {
	X := trainingMatrix(32, 5)

	m1, s1, err := Train(X, testConfig())
	require.NoError(t, err)
	m2, s2, err := Train(X, testConfig())
	require.NoError(t, err)

	assert.Equal(t, s1.TrainLoss, s2.TrainLoss)
	assert.Equal(t, m1.Score(X[0]), m2.Score(X[0]))
}

func TestTrainSingleSampleFallsBackToTrainErrors(t *testing.T) {
	X := trainingMatrix(1, 9)

	_, summary, err := Train(X, testConfig())
	require.NoError(t, err)

	assert.Len(t, summary.TestErrors, 1)
	assert.Empty(t, summary.ValLossHistory)
}

func TestTrainRejectsEmptyMatrix(t *testing.T) {
	_, _, err := Train(nil, testConfig())
	assert.Error(t, err)
}

func TestScoreIsMeanSquaredError(t *testing.T) {
	// Zero weights reconstruct everything to the bias, which is zero, so
	// the score is the mean of squared inputs.
	a := &Autoencoder{
		InputDim:  2,
		HiddenDim: 2,
		W1:        [][]float64{{0, 0}, {0, 0}},
		B1:        []float64{0, 0},
		W2:        [][]float64{{0, 0}, {0, 0}},
		B2:        []float64{0, 0},
	}

	assert.InDelta(t, 2.5, a.Score([]float64{1, 2}), 1e-9)
}

func TestScoreIsPure(t *testing.T) {
	X := trainingMatrix(16, 11)
	m, _, err := Train(X, testConfig())
	require.NoError(t, err)

	first := m.Score(X[3])
	second := m.Score(X[3])
	assert.Equal(t, first, second)
}
