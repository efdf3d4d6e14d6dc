package model

import (
	"fmt"
	"math"
	"math/rand"
)

// Scorer is the only capability the scoring path needs from a trained
// model: a reconstruction error for a scaled feature vector.
type Scorer interface {
	Score(x []float64) float64
}

// Autoencoder is a single-hidden-layer dense autoencoder: ReLU encoder,
// linear decoder. Weights are row-major, W1 is hidden x input and W2 is
// input x hidden.
type Autoencoder struct {
	InputDim  int         `json:"input_dim"`
	HiddenDim int         `json:"hidden_dim"`
	W1        [][]float64 `json:"w1"`
	B1        []float64   `json:"b1"`
	W2        [][]float64 `json:"w2"`
	B2        []float64   `json:"b2"`
}

func New(inputDim, hiddenDim int, rng *rand.Rand) *Autoencoder {
	a := &Autoencoder{
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
		W1:        make([][]float64, hiddenDim),
		B1:        make([]float64, hiddenDim),
		W2:        make([][]float64, inputDim),
		B2:        make([]float64, inputDim),
	}

	// Xavier-style init keeps early reconstructions in a sane range.
	limit1 := math.Sqrt(6.0 / float64(inputDim+hiddenDim))
	for i := range a.W1 {
		a.W1[i] = make([]float64, inputDim)
		for j := range a.W1[i] {
			a.W1[i][j] = (rng.Float64()*2 - 1) * limit1
		}
	}
	for i := range a.W2 {
		a.W2[i] = make([]float64, hiddenDim)
		for j := range a.W2[i] {
			a.W2[i][j] = (rng.Float64()*2 - 1) * limit1
		}
	}
	return a
}

func (a *Autoencoder) forward(x []float64) (hidden, out []float64) {
	hidden = make([]float64, a.HiddenDim)
	for i := 0; i < a.HiddenDim; i++ {
		sum := a.B1[i]
		for j := 0; j < a.InputDim; j++ {
			sum += a.W1[i][j] * x[j]
		}
		if sum < 0 {
			sum = 0
		}
		hidden[i] = sum
	}

	out = make([]float64, a.InputDim)
	for i := 0; i < a.InputDim; i++ {
		sum := a.B2[i]
		for j := 0; j < a.HiddenDim; j++ {
			sum += a.W2[i][j] * hidden[j]
		}
		out[i] = sum
	}
	return hidden, out
}

// Score returns the mean squared reconstruction error for x.
func (a *Autoencoder) Score(x []float64) float64 {
	_, out := a.forward(x)
	var sum float64
	for i, v := range x {
		d := out[i] - v
		sum += d * d
	}
	return sum / float64(len(x))
}

// step runs one backpropagation update on a single sample and returns its
// reconstruction loss before the update.
func (a *Autoencoder) step(x []float64, lr float64) float64 {
	hidden, out := a.forward(x)

	n := float64(a.InputDim)
	loss := 0.0
	dOut := make([]float64, a.InputDim)
	for i := range out {
		d := out[i] - x[i]
		loss += d * d
		dOut[i] = 2 * d / n
	}
	loss /= n

	dHidden := make([]float64, a.HiddenDim)
	for j := 0; j < a.HiddenDim; j++ {
		if hidden[j] <= 0 {
			continue
		}
		var sum float64
		for i := 0; i < a.InputDim; i++ {
			sum += dOut[i] * a.W2[i][j]
		}
		dHidden[j] = sum
	}

	for i := 0; i < a.InputDim; i++ {
		for j := 0; j < a.HiddenDim; j++ {
			a.W2[i][j] -= lr * dOut[i] * hidden[j]
		}
		a.B2[i] -= lr * dOut[i]
	}
	for j := 0; j < a.HiddenDim; j++ {
		if dHidden[j] == 0 {
			continue
		}
		for i := 0; i < a.InputDim; i++ {
			a.W1[j][i] -= lr * dHidden[j] * x[i]
		}
		a.B1[j] -= lr * dHidden[j]
	}

	return loss
}

type TrainConfig struct {
	HiddenDim    int
	Epochs       int
	LearningRate float64
	TestSplit    float64
	Seed         int64
}

type TrainSummary struct {
	TrainLoss        float64
	TestLoss         float64
	TrainLossHistory []float64
	ValLossHistory   []float64
	// TestErrors holds per-sample reconstruction errors over the held-out
	// set (or the training set when the split leaves no test rows); the
	// threshold is calibrated from them.
	TestErrors []float64
}

// Train fits an autoencoder on the scaled feature matrix X. The split and
// the shuffling are driven by the seed, so training is reproducible.
func Train(X [][]float64, cfg TrainConfig) (*Autoencoder, TrainSummary, error) {
	if len(X) == 0 {
		return nil, TrainSummary{}, fmt.Errorf("cannot train on empty matrix")
	}

	inputDim := len(X[0])
	rng := rand.New(rand.NewSource(cfg.Seed))

	// Train/test split: keep at least one training row, and a test set only
	// when there is more than one sample.
	indices := rng.Perm(len(X))
	trainSize := len(X)
	if len(X) > 1 {
		proposed := int((1 - cfg.TestSplit) * float64(len(X)))
		if proposed < 1 {
			proposed = 1
		}
		if proposed > len(X)-1 {
			proposed = len(X) - 1
		}
		trainSize = proposed
	}

	trainSet := make([][]float64, 0, trainSize)
	testSet := make([][]float64, 0, len(X)-trainSize)
	for i, idx := range indices {
		if i < trainSize {
			trainSet = append(trainSet, X[idx])
		} else {
			testSet = append(testSet, X[idx])
		}
	}

	a := New(inputDim, cfg.HiddenDim, rng)

	summary := TrainSummary{}
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		order := rng.Perm(len(trainSet))
		var total float64
		for _, idx := range order {
			total += a.step(trainSet[idx], cfg.LearningRate)
		}
		avg := total / float64(len(trainSet))
		summary.TrainLossHistory = append(summary.TrainLossHistory, avg)
		summary.TrainLoss = avg

		if len(testSet) > 0 {
			summary.ValLossHistory = append(summary.ValLossHistory, meanError(a, testSet))
		}
	}

	if len(testSet) > 0 {
		summary.TestErrors = sampleErrors(a, testSet)
		summary.TestLoss = mean(summary.TestErrors)
	} else {
		summary.TestErrors = sampleErrors(a, trainSet)
		summary.TestLoss = summary.TrainLoss
	}

	return a, summary, nil
}

func sampleErrors(a *Autoencoder, set [][]float64) []float64 {
	errors := make([]float64, len(set))
	for i, x := range set {
		errors[i] = a.Score(x)
	}
	return errors
}

func meanError(a *Autoencoder, set [][]float64) float64 {
	return mean(sampleErrors(a, set))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
