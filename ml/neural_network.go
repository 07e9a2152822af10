package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// NeuralNetwork is a single hidden layer perceptron (ReLU hidden units,
// sigmoid output) trained full-batch with Adam on log-loss plus L2.
type NeuralNetwork struct {
	Hidden       int         `json:"hidden"`
	MaxIter      int         `json:"max_iter"`
	LearningRate float64     `json:"learning_rate"`
	Alpha        float64     `json:"alpha"`
	Tol          float64     `json:"tol"`
	Seed         int64       `json:"seed"`
	W1           [][]float64 `json:"w1"` // hidden x input
	B1           []float64   `json:"b1"`
	W2           []float64   `json:"w2"`
	B2           float64     `json:"b2"`
}

func NewNeuralNetwork(seed int64) *NeuralNetwork {
	return &NeuralNetwork{
		Hidden:       100,
		MaxIter:      1000,
		LearningRate: 0.001,
		Alpha:        0.0001,
		Tol:          1e-4,
		Seed:         seed,
	}
}

func (nn *NeuralNetwork) Name() string {
	return "Neural Network"
}

// adam keeps first and second moment estimates for one parameter slice.
type adam struct {
	m, v []float64
}

func newAdam(size int) *adam {
	return &adam{m: make([]float64, size), v: make([]float64, size)}
}

func (a *adam) step(params, grad []float64, lr float64, t int) {
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	correction1 := 1 - math.Pow(beta1, float64(t))
	correction2 := 1 - math.Pow(beta2, float64(t))
	for i := range params {
		a.m[i] = beta1*a.m[i] + (1-beta1)*grad[i]
		a.v[i] = beta2*a.v[i] + (1-beta2)*grad[i]*grad[i]
		mHat := a.m[i] / correction1
		vHat := a.v[i] / correction2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + eps)
	}
}

func (nn *NeuralNetwork) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	if nn.Hidden <= 0 {
		nn.Hidden = 100
	}
	if nn.MaxIter <= 0 {
		nn.MaxIter = 1000
	}
	if nn.LearningRate <= 0 {
		nn.LearningRate = 0.001
	}

	n := len(features)
	width := len(features[0])
	rng := rand.New(rand.NewSource(nn.Seed))

	// Glorot uniform initialization
	bound1 := math.Sqrt(6 / float64(width+nn.Hidden))
	nn.W1 = make([][]float64, nn.Hidden)
	for h := range nn.W1 {
		nn.W1[h] = make([]float64, width)
		for j := range nn.W1[h] {
			nn.W1[h][j] = (rng.Float64()*2 - 1) * bound1
		}
	}
	nn.B1 = make([]float64, nn.Hidden)
	for h := range nn.B1 {
		nn.B1[h] = (rng.Float64()*2 - 1) * bound1
	}
	bound2 := math.Sqrt(6 / float64(nn.Hidden+1))
	nn.W2 = make([]float64, nn.Hidden)
	for h := range nn.W2 {
		nn.W2[h] = (rng.Float64()*2 - 1) * bound2
	}
	nn.B2 = (rng.Float64()*2 - 1) * bound2

	optW1 := make([]*adam, nn.Hidden)
	for h := range optW1 {
		optW1[h] = newAdam(width)
	}
	optB1 := newAdam(nn.Hidden)
	optW2 := newAdam(nn.Hidden)
	optB2 := newAdam(1)

	gradW1 := make([][]float64, nn.Hidden)
	for h := range gradW1 {
		gradW1[h] = make([]float64, width)
	}
	gradB1 := make([]float64, nn.Hidden)
	gradW2 := make([]float64, nn.Hidden)
	hidden := make([]float64, nn.Hidden)
	b2 := []float64{nn.B2}

	bestLoss := math.Inf(1)
	stale := 0
	for epoch := 1; epoch <= nn.MaxIter; epoch++ {
		for h := range gradW1 {
			for j := range gradW1[h] {
				gradW1[h][j] = 0
			}
			gradB1[h] = 0
			gradW2[h] = 0
		}
		gradB2 := 0.0
		loss := 0.0

		for i, x := range features {
			nn.forwardHidden(x, hidden)
			p := sigmoid(floats.Dot(nn.W2, hidden) + b2[0])
			y := float64(labels[i])
			loss -= y*math.Log(math.Max(p, 1e-15)) + (1-y)*math.Log(math.Max(1-p, 1e-15))

			delta := p - y
			gradB2 += delta
			for h := range hidden {
				gradW2[h] += delta * hidden[h]
				if hidden[h] <= 0 {
					continue
				}
				back := delta * nn.W2[h]
				gradB1[h] += back
				floats.AddScaled(gradW1[h], back, x)
			}
		}

		scale := 1 / float64(n)
		penalty := 0.0
		for h := range gradW1 {
			floats.Scale(scale, gradW1[h])
			floats.AddScaled(gradW1[h], nn.Alpha*scale, nn.W1[h])
			penalty += floats.Dot(nn.W1[h], nn.W1[h])
		}
		floats.Scale(scale, gradB1)
		floats.Scale(scale, gradW2)
		floats.AddScaled(gradW2, nn.Alpha*scale, nn.W2)
		penalty += floats.Dot(nn.W2, nn.W2)
		loss = loss*scale + 0.5*nn.Alpha*penalty*scale

		for h := range nn.W1 {
			optW1[h].step(nn.W1[h], gradW1[h], nn.LearningRate, epoch)
		}
		optB1.step(nn.B1, gradB1, nn.LearningRate, epoch)
		optW2.step(nn.W2, gradW2, nn.LearningRate, epoch)
		optB2.step(b2, []float64{gradB2 * scale}, nn.LearningRate, epoch)

		// stop after ten epochs without tol improvement
		if loss > bestLoss-nn.Tol {
			stale++
			if stale >= 10 {
				break
			}
		} else {
			stale = 0
		}
		if loss < bestLoss {
			bestLoss = loss
		}
	}
	nn.B2 = b2[0]
	return nil
}

func (nn *NeuralNetwork) forwardHidden(x []float64, hidden []float64) {
	for h := range hidden {
		z := floats.Dot(nn.W1[h], x) + nn.B1[h]
		hidden[h] = math.Max(0, z)
	}
}

func (nn *NeuralNetwork) PredictProba(features []float64) ([]float64, error) {
	if len(nn.W1) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != len(nn.W1[0]) {
		return nil, fmt.Errorf("expected %d features, got %d", len(nn.W1[0]), len(features))
	}
	hidden := make([]float64, len(nn.W1))
	nn.forwardHidden(features, hidden)
	return binaryProba(sigmoid(floats.Dot(nn.W2, hidden) + nn.B2)), nil
}
