package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is an L2-regularized logistic model fit by full-batch
// gradient descent. C is the inverse regularization strength.
type LogisticRegression struct {
	C            float64   `json:"c"`
	LearningRate float64   `json:"learning_rate"`
	MaxIter      int       `json:"max_iter"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1.0, LearningRate: 0.1, MaxIter: 1000}
}

func (lr *LogisticRegression) Name() string {
	return "Logistic Regression"
}

func (lr *LogisticRegression) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	if lr.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", lr.C)
	}
	if lr.MaxIter <= 0 {
		lr.MaxIter = 1000
	}
	if lr.LearningRate <= 0 {
		lr.LearningRate = 0.1
	}

	n := float64(len(features))
	width := len(features[0])
	lr.Weights = make([]float64, width)
	lr.Bias = 0

	grad := make([]float64, width)
	for iter := 0; iter < lr.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, x := range features {
			residual := sigmoid(floats.Dot(lr.Weights, x)+lr.Bias) - float64(labels[i])
			floats.AddScaled(grad, residual, x)
			gradBias += residual
		}
		// mean log-loss gradient plus the L2 term scaled like C*sum(loss)
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, 1/(lr.C*n), lr.Weights)
		floats.AddScaled(lr.Weights, -lr.LearningRate, grad)
		lr.Bias -= lr.LearningRate * gradBias / n
	}
	return nil
}

func (lr *LogisticRegression) PredictProba(features []float64) ([]float64, error) {
	if len(lr.Weights) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != len(lr.Weights) {
		return nil, fmt.Errorf("expected %d features, got %d", len(lr.Weights), len(features))
	}
	return binaryProba(sigmoid(floats.Dot(lr.Weights, features) + lr.Bias)), nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
