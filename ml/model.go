package ml

import "fmt"

// Class indices follow the dataset encoding B=0, M=1.
const (
	ClassBenign    = 0
	ClassMalignant = 1
)

type Label string

const (
	LabelBenign    Label = "Benign"
	LabelMalignant Label = "Malignant"
)

func (l Label) Valid() bool {
	return l == LabelBenign || l == LabelMalignant
}

// LabelForClass maps a class index to its diagnosis label.
func LabelForClass(class int) Label {
	if class == ClassMalignant {
		return LabelMalignant
	}
	return LabelBenign
}

// MLModel is a binary classifier over standardized feature vectors.
// PredictProba returns [p(benign), p(malignant)].
type MLModel interface {
	Name() string
	Train(features [][]float64, labels []int) error
	PredictProba(features []float64) ([]float64, error)
}

// Prediction is the output of the prediction service.
type Prediction struct {
	Label         Label   `json:"label"`
	ProbBenign    float64 `json:"prob_benign"`
	ProbMalignant float64 `json:"prob_malignant"`
}

// NewPrediction builds a Prediction from class probabilities. The label is
// Malignant only when its probability is strictly above one half.
func NewPrediction(proba []float64) (Prediction, error) {
	if len(proba) != 2 {
		return Prediction{}, fmt.Errorf("expected 2 class probabilities, got %d", len(proba))
	}
	p := Prediction{ProbBenign: proba[ClassBenign], ProbMalignant: proba[ClassMalignant]}
	class := ClassBenign
	if p.ProbMalignant > 0.5 {
		class = ClassMalignant
	}
	p.Label = LabelForClass(class)
	return p, nil
}

// PredictClass returns the argmax class of m for x.
func PredictClass(m MLModel, x []float64) (int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[ClassMalignant] > 0.5 {
		return ClassMalignant, nil
	}
	return ClassBenign, nil
}

func validateTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return fmt.Errorf("features or labels empty")
	}
	if len(features) != len(labels) {
		return fmt.Errorf("features and labels size mismatch")
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != ClassBenign && label != ClassMalignant {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func binaryProba(pMalignant float64) []float64 {
	return []float64{1 - pMalignant, pMalignant}
}
