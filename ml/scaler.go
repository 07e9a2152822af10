package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cancersense/apperr"
)

// DisplayBounds holds per-feature dataset min/max used to put inputs on a
// common [0,1] scale for charts.
type DisplayBounds struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// NewDisplayBounds validates that every feature has max > min.
func NewDisplayBounds(mins, maxs []float64) (DisplayBounds, error) {
	bounds := DisplayBounds{Min: mins, Max: maxs}
	if err := bounds.check(); err != nil {
		return DisplayBounds{}, err
	}
	return bounds, nil
}

func (b DisplayBounds) check() error {
	if len(b.Min) != FeatureCount() || len(b.Max) != FeatureCount() {
		return apperr.Configuration(
			fmt.Sprintf("display bounds must have %d entries, got min=%d max=%d", FeatureCount(), len(b.Min), len(b.Max)), nil)
	}
	for i := range b.Min {
		if !(b.Max[i] > b.Min[i]) {
			return apperr.Configuration(
				fmt.Sprintf("degenerate display bounds for %s: min=%v max=%v", featureNames[i], b.Min[i], b.Max[i]), nil)
		}
	}
	return nil
}

// NormalizeFeature maps value to (value-min)/(max-min). A zero or
// negative range is a configuration error, never a silent NaN.
func NormalizeFeature(value, min, max float64) (float64, error) {
	if !(max > min) {
		return 0, apperr.Configuration(fmt.Sprintf("invalid feature range [%v, %v]", min, max), nil)
	}
	return (value - min) / (max - min), nil
}

// NormalizeVector applies NormalizeFeature element-wise.
func NormalizeVector(values []float64, mins []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(mins) || len(values) != len(maxs) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		v, err := NormalizeFeature(values[i], mins[i], maxs[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// Normalize returns the min-max scaled measurements. Values are not
// clamped: inputs outside the dataset range land outside [0,1].
func (b DisplayBounds) Normalize(m Measurements) (Measurements, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	scaled, err := NormalizeVector(m.Vector(), b.Min, b.Max)
	if err != nil {
		return nil, err
	}
	return MeasurementsFromVector(scaled)
}

// RadarSeries is one trace of the measurement radar chart.
type RadarSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// RadarChart groups normalized values per variant.
type RadarChart struct {
	Categories []string      `json:"categories"`
	Series     []RadarSeries `json:"series"`
}

var radarCategories = []string{
	"Radius", "Texture", "Perimeter", "Area", "Smoothness",
	"Compactness", "Concavity", "Concave Points", "Symmetry", "Fractal Dimension",
}

var radarSeriesNames = map[string]string{
	"mean":  "Mean Value",
	"se":    "Standard Error",
	"worst": "Worst Value",
}

// Radar normalizes m and arranges it as three ten-point series.
func (b DisplayBounds) Radar(m Measurements) (RadarChart, error) {
	scaled, err := b.Normalize(m)
	if err != nil {
		return RadarChart{}, err
	}
	chart := RadarChart{Categories: append([]string(nil), radarCategories...)}
	for _, variant := range Variants {
		series := RadarSeries{Name: radarSeriesNames[variant], Values: make([]float64, len(BaseMetrics))}
		for i, metric := range BaseMetrics {
			series.Values[i] = scaled[metric+"_"+variant]
		}
		chart.Series = append(chart.Series, series)
	}
	return chart, nil
}

// StandardScaler standardizes features to zero mean and unit variance.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler computes population mean and standard deviation per
// column. Constant columns get scale 1 so they map to 0.
func FitStandardScaler(X [][]float64) (StandardScaler, error) {
	if len(X) == 0 {
		return StandardScaler{}, errors.New("features is empty")
	}
	width := len(X[0])
	scaler := StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	column := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			if len(row) != width {
				return StandardScaler{}, fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		scaler.Mean[j] = mean
		scaler.Scale[j] = std
	}
	return scaler, nil
}

// Transform standardizes one vector.
func (s StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.Mean)
	floats.Div(out, s.Scale)
	return out, nil
}

// TransformAll standardizes every row of X.
func (s StandardScaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
