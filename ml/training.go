package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"cancersense/apperr"
)

// DefaultCandidates returns the compared models in selection order.
func DefaultCandidates(seed int64) []MLModel {
	return []MLModel{
		NewLogisticRegression(),
		NewRandomForest(100, 10, seed),
		NewSVM(seed),
		NewNeuralNetwork(seed),
	}
}

type TrainConfig struct {
	Seed      int64
	TestRatio float64
	// Candidates defaults to DefaultCandidates(Seed).
	Candidates []MLModel
}

type ModelScore struct {
	Name     string  `json:"name"`
	Accuracy float64 `json:"accuracy"`
}

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Evaluation struct {
	Accuracy  float64      `json:"accuracy"`
	Benign    ClassMetrics `json:"benign"`
	Malignant ClassMetrics `json:"malignant"`
}

type TrainingResult struct {
	Model      MLModel
	Scaler     ScalerArtifact
	Scores     []ModelScore
	Evaluation Evaluation
	Reference  Prediction
	TrainSize  int
	TestSize   int
}

// SplitDataset shuffles with a seeded permutation and holds out testRatio
// of the samples.
func SplitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	testCount := int(math.Ceil(float64(len(features)) * testRatio))
	split := len(features) - testCount
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}

// Evaluate computes accuracy and per-class precision/recall/F1.
func Evaluate(model MLModel, testX [][]float64, testY []int) (Evaluation, error) {
	if len(testX) == 0 {
		return Evaluation{}, errors.New("test set is empty")
	}
	var confusion [2][2]int // [actual][predicted]
	for i, x := range testX {
		class, err := PredictClass(model, x)
		if err != nil {
			return Evaluation{}, err
		}
		confusion[testY[i]][class]++
	}

	correct := confusion[0][0] + confusion[1][1]
	eval := Evaluation{Accuracy: float64(correct) / float64(len(testX))}
	eval.Benign = classMetrics(confusion, ClassBenign)
	eval.Malignant = classMetrics(confusion, ClassMalignant)
	return eval, nil
}

func classMetrics(confusion [2][2]int, class int) ClassMetrics {
	other := 1 - class
	truePositive := float64(confusion[class][class])
	predicted := truePositive + float64(confusion[other][class])
	actual := truePositive + float64(confusion[class][other])

	m := ClassMetrics{Support: int(actual)}
	if predicted > 0 {
		m.Precision = truePositive / predicted
	}
	if actual > 0 {
		m.Recall = truePositive / actual
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// CompareModels trains every candidate and returns the one with the single
// highest held-out accuracy. Ties go to the earlier candidate.
func CompareModels(candidates []MLModel, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (MLModel, []ModelScore, error) {
	if len(candidates) == 0 {
		return nil, nil, errors.New("no candidate models")
	}
	var best MLModel
	bestAccuracy := -1.0
	scores := make([]ModelScore, 0, len(candidates))
	for _, candidate := range candidates {
		if err := candidate.Train(trainX, trainY); err != nil {
			return nil, nil, fmt.Errorf("train %s: %w", candidate.Name(), err)
		}
		eval, err := Evaluate(candidate, testX, testY)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate %s: %w", candidate.Name(), err)
		}
		scores = append(scores, ModelScore{Name: candidate.Name(), Accuracy: eval.Accuracy})
		if eval.Accuracy > bestAccuracy {
			best = candidate
			bestAccuracy = eval.Accuracy
		}
	}
	return best, scores, nil
}

// FitScalingParameters computes the display bounds, slider defaults and
// standardization of the raw dataset.
func FitScalingParameters(features [][]float64) (ScalerArtifact, error) {
	if len(features) == 0 {
		return ScalerArtifact{}, errors.New("features is empty")
	}
	width := FeatureCount()
	mins := make([]float64, width)
	maxs := make([]float64, width)
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return ScalerArtifact{}, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		mins[j] = floats.Min(column)
		maxs[j] = floats.Max(column)
	}
	bounds, err := NewDisplayBounds(mins, maxs)
	if err != nil {
		return ScalerArtifact{}, err
	}
	scaler, err := FitStandardScaler(features)
	if err != nil {
		return ScalerArtifact{}, err
	}
	return ScalerArtifact{
		FeatureNames: FeatureNames(),
		Standard:     scaler,
		Bounds:       bounds,
	}, nil
}

// Train fits the scaler on the full dataset, compares the candidates on a
// seeded split and records the prediction for the all-means vector as a
// regression reference.
func Train(features [][]float64, labels []int, cfg TrainConfig) (*TrainingResult, error) {
	if err := validateTrainingSet(features, labels); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	scalerArtifact, err := FitScalingParameters(features)
	if err != nil {
		return nil, err
	}
	standardized, err := scalerArtifact.Standard.TransformAll(features)
	if err != nil {
		return nil, err
	}

	trainX, trainY, testX, testY := SplitDataset(standardized, labels, cfg.TestRatio, cfg.Seed)
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, apperr.Validation("dataset too small to split")
	}

	candidates := cfg.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidates(cfg.Seed)
	}
	best, scores, err := CompareModels(candidates, trainX, trainY, testX, testY)
	if err != nil {
		return nil, err
	}
	eval, err := Evaluate(best, testX, testY)
	if err != nil {
		return nil, err
	}

	predictor, err := newPredictor(best, scalerArtifact, nil)
	if err != nil {
		return nil, err
	}
	reference, err := predictor.Predict(predictor.MeanMeasurements())
	if err != nil {
		return nil, err
	}

	return &TrainingResult{
		Model:      best,
		Scaler:     scalerArtifact,
		Scores:     scores,
		Evaluation: eval,
		Reference:  reference,
		TrainSize:  len(trainX),
		TestSize:   len(testX),
	}, nil
}
