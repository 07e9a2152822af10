package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// SVM is a linear soft-margin support vector machine trained with the
// Pegasos sub-gradient method. Probabilities come from a Platt sigmoid fit
// on the training decision values.
type SVM struct {
	C       float64   `json:"c"`
	Epochs  int       `json:"epochs"`
	Seed    int64     `json:"seed"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	PlattA  float64   `json:"platt_a"`
	PlattB  float64   `json:"platt_b"`
}

func NewSVM(seed int64) *SVM {
	return &SVM{C: 1.0, Epochs: 100, Seed: seed}
}

func (s *SVM) Name() string {
	return "SVM"
}

func (s *SVM) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	if s.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", s.C)
	}
	if s.Epochs <= 0 {
		s.Epochs = 100
	}

	n := len(features)
	width := len(features[0])
	lambda := 1 / (s.C * float64(n))
	rng := rand.New(rand.NewSource(s.Seed))

	// the last weight is the bias, trained on a constant input of 1
	w := make([]float64, width+1)
	x := make([]float64, width+1)
	x[width] = 1
	steps := s.Epochs * n
	for t := 1; t <= steps; t++ {
		i := rng.Intn(n)
		copy(x, features[i])
		y := signedLabel(labels[i])
		eta := 1 / (lambda * float64(t))
		margin := y * floats.Dot(w, x)
		floats.Scale(1-eta*lambda, w)
		if margin < 1 {
			floats.AddScaled(w, eta*y, x)
		}
	}
	s.Weights = append([]float64(nil), w[:width]...)
	s.Bias = w[width]

	decisions := make([]float64, n)
	for i, row := range features {
		decisions[i] = s.decision(row)
	}
	s.PlattA, s.PlattB = fitPlatt(decisions, labels)
	return nil
}

func (s *SVM) PredictProba(features []float64) ([]float64, error) {
	if len(s.Weights) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != len(s.Weights) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Weights), len(features))
	}
	return binaryProba(sigmoid(-(s.PlattA*s.decision(features) + s.PlattB))), nil
}

func (s *SVM) decision(x []float64) float64 {
	return floats.Dot(s.Weights, x) + s.Bias
}

func signedLabel(label int) float64 {
	if label == ClassMalignant {
		return 1
	}
	return -1
}

// fitPlatt fits P(malignant|f) = 1/(1+exp(A*f+B)) by damped Newton
// iterations on smoothed targets.
func fitPlatt(decisions []float64, labels []int) (float64, float64) {
	var positives, negatives float64
	for _, label := range labels {
		if label == ClassMalignant {
			positives++
		} else {
			negatives++
		}
	}
	hiTarget := (positives + 1) / (positives + 2)
	loTarget := 1 / (negatives + 2)
	targets := make([]float64, len(labels))
	for i, label := range labels {
		if label == ClassMalignant {
			targets[i] = hiTarget
		} else {
			targets[i] = loTarget
		}
	}

	loss := func(a, b float64) float64 {
		total := 0.0
		for i, f := range decisions {
			z := a*f + b
			// log(1+exp(z)) computed without overflow
			softplus := math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
			total += softplus - (1-targets[i])*z
		}
		return total
	}

	a, b := 0.0, math.Log((negatives+1)/(positives+1))
	current := loss(a, b)
	const sigma = 1e-12
	for iter := 0; iter < 100; iter++ {
		var gA, gB, h11, h22, h21 float64
		for i, f := range decisions {
			p := sigmoid(-(a*f + b))
			d := targets[i] - p
			gA += d * f
			gB += d
			w := p * (1 - p)
			h11 += w * f * f
			h22 += w
			h21 += w * f
		}
		if math.Abs(gA) < 1e-8 && math.Abs(gB) < 1e-8 {
			break
		}
		h11 += sigma
		h22 += sigma
		det := h11*h22 - h21*h21
		if det == 0 {
			break
		}
		dA := -(h22*gA - h21*gB) / det
		dB := -(-h21*gA + h11*gB) / det

		step := 1.0
		improved := false
		for step >= 1e-10 {
			na, nb := a+step*dA, b+step*dB
			if next := loss(na, nb); next < current {
				a, b, current = na, nb, next
				improved = true
				break
			}
			step /= 2
		}
		if !improved {
			break
		}
	}
	return a, b
}
