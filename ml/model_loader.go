package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ModelFile  = "model.json"
	ScalerFile = "scaler.json"
)

const (
	TypeLogisticRegression = "logistic_regression"
	TypeRandomForest       = "random_forest"
	TypeSVM                = "svm"
	TypeNeuralNetwork      = "neural_network"
	TypeDecisionTree       = "decision_tree"
)

// ModelArtifact is the persisted trained classifier.
type ModelArtifact struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Params     json.RawMessage `json:"params"`
	Scores     []ModelScore    `json:"scores,omitempty"`
	Evaluation Evaluation      `json:"evaluation"`
	Reference  *Prediction     `json:"reference,omitempty"`
	TrainedAt  time.Time       `json:"trained_at"`
}

// ScalerArtifact is the persisted companion scaler: the standardization
// used for inference and the min/max bounds used for display.
type ScalerArtifact struct {
	FeatureNames []string       `json:"feature_names"`
	Standard     StandardScaler `json:"standard"`
	Bounds       DisplayBounds  `json:"bounds"`
}

func ModelType(model MLModel) (string, error) {
	switch model.(type) {
	case *LogisticRegression:
		return TypeLogisticRegression, nil
	case *RandomForest:
		return TypeRandomForest, nil
	case *SVM:
		return TypeSVM, nil
	case *NeuralNetwork:
		return TypeNeuralNetwork, nil
	case *DecisionTree:
		return TypeDecisionTree, nil
	default:
		return "", fmt.Errorf("unsupported model %T", model)
	}
}

// LoadModel decodes params into the model named by modelType.
func LoadModel(modelType string, params []byte) (MLModel, error) {
	var model MLModel
	switch modelType {
	case TypeLogisticRegression:
		model = &LogisticRegression{}
	case TypeRandomForest:
		model = &RandomForest{}
	case TypeSVM:
		model = &SVM{}
	case TypeNeuralNetwork:
		model = &NeuralNetwork{}
	case TypeDecisionTree:
		model = &DecisionTree{}
	default:
		return nil, errors.New("unsupported model type")
	}
	if err := json.Unmarshal(params, model); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", modelType, err)
	}
	return model, nil
}

// SaveArtifacts writes model.json and scaler.json into dir.
func SaveArtifacts(dir string, result *TrainingResult, trainedAt time.Time) error {
	if result == nil || result.Model == nil {
		return errors.New("model not trained")
	}
	modelType, err := ModelType(result.Model)
	if err != nil {
		return err
	}
	params, err := json.Marshal(result.Model)
	if err != nil {
		return err
	}
	reference := result.Reference
	artifact := ModelArtifact{
		Type:       modelType,
		Name:       result.Model.Name(),
		Params:     params,
		Scores:     result.Scores,
		Evaluation: result.Evaluation,
		Reference:  &reference,
		TrainedAt:  trainedAt.UTC(),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ModelFile), artifact); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ScalerFile), result.Scaler)
}

// LoadArtifacts reads both artifacts from dir.
func LoadArtifacts(dir string) (*ModelArtifact, MLModel, *ScalerArtifact, error) {
	var artifact ModelArtifact
	if err := readJSON(filepath.Join(dir, ModelFile), &artifact); err != nil {
		return nil, nil, nil, err
	}
	model, err := LoadModel(artifact.Type, artifact.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	var scaler ScalerArtifact
	if err := readJSON(filepath.Join(dir, ScalerFile), &scaler); err != nil {
		return nil, nil, nil, err
	}
	return &artifact, model, &scaler, nil
}

func writeJSON(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	// write then rename so a reader never sees a half-written artifact
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
