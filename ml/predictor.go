package ml

import (
	"fmt"
	"math"

	"cancersense/apperr"
)

// referenceTolerance bounds the drift allowed between the recorded
// reference prediction and the one recomputed at load time.
const referenceTolerance = 1e-9

// Predictor combines the standard scaler and the classifier into the
// prediction service. It is immutable after construction.
type Predictor struct {
	model     MLModel
	scaler    StandardScaler
	bounds    DisplayBounds
	reference *Prediction
}

// NewPredictor loads the artifacts in dir. Any load failure, invalid bound
// or reference mismatch is a configuration error.
func NewPredictor(dir string) (*Predictor, error) {
	artifact, model, scaler, err := LoadArtifacts(dir)
	if err != nil {
		return nil, apperr.Configuration("failed to load model artifacts", err)
	}
	p, err := newPredictor(model, *scaler, artifact.Reference)
	if err != nil {
		return nil, err
	}
	if err := p.VerifyReference(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPredictor(model MLModel, scaler ScalerArtifact, reference *Prediction) (*Predictor, error) {
	if model == nil {
		return nil, apperr.Configuration("model is missing", nil)
	}
	names := FeatureNames()
	if len(scaler.FeatureNames) != len(names) {
		return nil, apperr.Configuration(
			fmt.Sprintf("scaler has %d features, want %d", len(scaler.FeatureNames), len(names)), nil)
	}
	for i, name := range names {
		if scaler.FeatureNames[i] != name {
			return nil, apperr.Configuration(
				fmt.Sprintf("scaler feature %d is %q, want %q", i, scaler.FeatureNames[i], name), nil)
		}
	}
	if len(scaler.Standard.Mean) != len(names) || len(scaler.Standard.Scale) != len(names) {
		return nil, apperr.Configuration("scaler statistics do not match feature count", nil)
	}
	for i, s := range scaler.Standard.Scale {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, apperr.Configuration(fmt.Sprintf("invalid scale for %s: %v", names[i], s), nil)
		}
	}
	bounds, err := NewDisplayBounds(scaler.Bounds.Min, scaler.Bounds.Max)
	if err != nil {
		return nil, err
	}
	return &Predictor{model: model, scaler: scaler.Standard, bounds: bounds, reference: reference}, nil
}

// Predict runs raw measurements through the scaler and classifier.
func (p *Predictor) Predict(m Measurements) (Prediction, error) {
	if err := m.Validate(); err != nil {
		return Prediction{}, err
	}
	scaled, err := p.scaler.Transform(m.Vector())
	if err != nil {
		return Prediction{}, apperr.Configuration("scaler rejected input", err)
	}
	proba, err := p.model.PredictProba(scaled)
	if err != nil {
		return Prediction{}, apperr.Configuration("classifier rejected input", err)
	}
	return NewPrediction(proba)
}

// Display returns the min-max scaled measurements used by charts.
func (p *Predictor) Display(m Measurements) (Measurements, error) {
	return p.bounds.Normalize(m)
}

// Radar returns the radar chart data for m.
func (p *Predictor) Radar(m Measurements) (RadarChart, error) {
	return p.bounds.Radar(m)
}

// MeanMeasurements is the vector with every feature at its training mean.
func (p *Predictor) MeanMeasurements() Measurements {
	m, _ := MeasurementsFromVector(p.scaler.Mean)
	return m
}

// FeatureSpecs returns slider metadata in input order.
func (p *Predictor) FeatureSpecs() []FeatureSpec {
	specs := make([]FeatureSpec, FeatureCount())
	for i, name := range featureNames {
		specs[i] = FeatureSpec{
			Key:     name,
			Label:   FeatureLabel(name),
			Min:     0,
			Max:     p.bounds.Max[i],
			Default: p.scaler.Mean[i],
		}
	}
	return specs
}

func (p *Predictor) ModelName() string {
	return p.model.Name()
}

// Reference returns the prediction recorded at training time, if any.
func (p *Predictor) Reference() (Prediction, bool) {
	if p.reference == nil {
		return Prediction{}, false
	}
	return *p.reference, true
}

// VerifyReference recomputes the all-means prediction and compares it with
// the recorded one. An artifact without a reference fails.
func (p *Predictor) VerifyReference() error {
	if p.reference == nil {
		return apperr.Configuration("model artifact has no reference prediction", nil)
	}
	got, err := p.Predict(p.MeanMeasurements())
	if err != nil {
		return err
	}
	want := *p.reference
	if got.Label != want.Label ||
		math.Abs(got.ProbBenign-want.ProbBenign) > referenceTolerance ||
		math.Abs(got.ProbMalignant-want.ProbMalignant) > referenceTolerance {
		return apperr.Configuration(
			fmt.Sprintf("reference prediction mismatch: recorded %+v, recomputed %+v", want, got), nil)
	}
	return nil
}
