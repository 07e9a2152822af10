package ml

import "math/rand"

// syntheticDataset returns n well separated samples over all 30 features.
// Even rows are benign, odd rows malignant.
func syntheticDataset(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		label := i % 2
		row := make([]float64, FeatureCount())
		for j := range row {
			row[j] = float64(j+1) + 5*float64(label) + rng.NormFloat64()*0.5
		}
		features[i] = row
		labels[i] = label
	}
	return features, labels
}

// quickCandidates are small versions of the default models for tests.
func quickCandidates(seed int64) []MLModel {
	return []MLModel{
		NewLogisticRegression(),
		NewRandomForest(10, 5, seed),
		NewSVM(seed),
		&NeuralNetwork{Hidden: 8, MaxIter: 200, LearningRate: 0.01, Alpha: 1e-4, Tol: 1e-4, Seed: seed},
	}
}

// constantModel always returns the same malignant probability.
type constantModel struct {
	name          string
	probMalignant float64
	trained       bool
}

func (m *constantModel) Name() string { return m.name }

func (m *constantModel) Train(features [][]float64, labels []int) error {
	m.trained = true
	return nil
}

func (m *constantModel) PredictProba(features []float64) ([]float64, error) {
	return binaryProba(m.probMalignant), nil
}
