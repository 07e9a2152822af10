package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cancersense/apperr"
)

func trainedArtifacts(t *testing.T) (string, *TrainingResult) {
	t.Helper()
	features, labels := syntheticDataset(80, 21)
	result, err := Train(features, labels, TrainConfig{Seed: 42, TestRatio: 0.2, Candidates: quickCandidates(42)})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, SaveArtifacts(dir, result, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	return dir, result
}

func TestPredictorReproducesReference(t *testing.T) {
	dir, result := trainedArtifacts(t)

	predictor, err := NewPredictor(dir)
	require.NoError(t, err)
	assert.Equal(t, result.Model.Name(), predictor.ModelName())

	reference, ok := predictor.Reference()
	require.True(t, ok)
	assert.Equal(t, result.Reference, reference)

	got, err := predictor.Predict(predictor.MeanMeasurements())
	require.NoError(t, err)
	assert.Equal(t, reference.Label, got.Label)
	assert.InDelta(t, reference.ProbMalignant, got.ProbMalignant, 1e-9)
}

func TestPredictorClassifiesExtremes(t *testing.T) {
	dir, _ := trainedArtifacts(t)
	predictor, err := NewPredictor(dir)
	require.NoError(t, err)

	benign := make(Measurements, FeatureCount())
	malignant := make(Measurements, FeatureCount())
	for j, name := range FeatureNames() {
		benign[name] = float64(j + 1)
		malignant[name] = float64(j+1) + 5
	}
	p, err := predictor.Predict(benign)
	require.NoError(t, err)
	assert.Equal(t, LabelBenign, p.Label)

	p, err = predictor.Predict(malignant)
	require.NoError(t, err)
	assert.Equal(t, LabelMalignant, p.Label)

	delete(benign, "radius_mean")
	_, err = predictor.Predict(benign)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestPredictorFeatureSpecs(t *testing.T) {
	dir, result := trainedArtifacts(t)
	predictor, err := NewPredictor(dir)
	require.NoError(t, err)

	specs := predictor.FeatureSpecs()
	require.Len(t, specs, 30)
	assert.Equal(t, "radius_mean", specs[0].Key)
	assert.Equal(t, "Radius (mean)", specs[0].Label)
	assert.Equal(t, 0.0, specs[0].Min)
	assert.Equal(t, result.Scaler.Bounds.Max[0], specs[0].Max)
	assert.Equal(t, result.Scaler.Standard.Mean[0], specs[0].Default)

	display, err := predictor.Display(predictor.MeanMeasurements())
	require.NoError(t, err)
	for _, v := range display {
		assert.True(t, v > 0 && v < 1)
	}
}

func TestNewPredictorMissingArtifacts(t *testing.T) {
	_, err := NewPredictor(t.TempDir())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfiguration))
}

func TestNewPredictorCorruptArtifacts(t *testing.T) {
	dir, _ := trainedArtifacts(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), []byte("{broken"), 0o644))

	_, err := NewPredictor(dir)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfiguration))
}

func TestNewPredictorDegenerateBounds(t *testing.T) {
	dir, result := trainedArtifacts(t)
	scaler := result.Scaler
	scaler.Bounds.Max = append([]float64(nil), scaler.Bounds.Max...)
	scaler.Bounds.Max[2] = scaler.Bounds.Min[2]
	payload, err := json.Marshal(scaler)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), payload, 0o644))

	_, err = NewPredictor(dir)
	assert.True(t, apperr.Is(err, apperr.CodeConfiguration))
}

func TestNewPredictorRequiresReference(t *testing.T) {
	dir, _ := trainedArtifacts(t)
	path := filepath.Join(dir, ModelFile)

	var artifact ModelArtifact
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &artifact))
	artifact.Reference = nil
	payload, err = json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	_, err = NewPredictor(dir)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfiguration))
	assert.Contains(t, err.Error(), "no reference prediction")
}

func TestNewPredictorReferenceMismatch(t *testing.T) {
	dir, _ := trainedArtifacts(t)
	path := filepath.Join(dir, ModelFile)

	var artifact ModelArtifact
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &artifact))
	artifact.Reference.ProbMalignant += 0.01
	artifact.Reference.ProbBenign -= 0.01
	payload, err = json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	_, err = NewPredictor(dir)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfiguration))
	assert.Contains(t, err.Error(), "reference prediction mismatch")
}
