package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"cancersense/apperr"
)

// BaseMetrics are the ten nucleus measurements, each reported as mean,
// standard error and worst value.
var BaseMetrics = []string{
	"radius",
	"texture",
	"perimeter",
	"area",
	"smoothness",
	"compactness",
	"concavity",
	"concave points",
	"symmetry",
	"fractal_dimension",
}

// Variants in dataset column order.
var Variants = []string{"mean", "se", "worst"}

// KeyMetrics are the measurements printed on reports.
var KeyMetrics = []string{
	"radius_mean",
	"texture_mean",
	"perimeter_mean",
	"area_mean",
	"smoothness_mean",
}

var featureNames = buildFeatureNames()

func buildFeatureNames() []string {
	names := make([]string, 0, len(BaseMetrics)*len(Variants))
	for _, variant := range Variants {
		for _, metric := range BaseMetrics {
			names = append(names, metric+"_"+variant)
		}
	}
	return names
}

// FeatureNames returns the 30 feature keys in model input order.
func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// FeatureCount is the length of a model input vector.
func FeatureCount() int {
	return len(featureNames)
}

// FeatureLabel returns the human label of a key, e.g.
// "concave points_mean" -> "Concave points (mean)".
func FeatureLabel(key string) string {
	idx := strings.LastIndex(key, "_")
	if idx <= 0 {
		return key
	}
	metric := strings.ReplaceAll(key[:idx], "_", " ")
	return strings.ToUpper(metric[:1]) + metric[1:] + " (" + key[idx+1:] + ")"
}

// FeatureSpec describes one input slider.
type FeatureSpec struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Measurements is a Measurement Vector keyed by feature name.
type Measurements map[string]float64

// UnmarshalJSON rejects null values instead of reading them as zero.
func (m *Measurements) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	values := make(Measurements, len(raw))
	var nulls []string
	for key, value := range raw {
		if value == nil {
			nulls = append(nulls, key)
			continue
		}
		values[key] = *value
	}
	if len(nulls) > 0 {
		sort.Strings(nulls)
		return apperr.Validation("null values: " + strings.Join(nulls, ", "))
	}
	*m = values
	return nil
}

// Validate checks that exactly the 30 known features are present and finite.
func (m Measurements) Validate() error {
	var missing, unknown, invalid []string
	for _, name := range featureNames {
		value, ok := m[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			invalid = append(invalid, name)
		}
	}
	known := make(map[string]struct{}, len(featureNames))
	for _, name := range featureNames {
		known[name] = struct{}{}
	}
	for key := range m {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing features: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		problems = append(problems, "unknown features: "+strings.Join(unknown, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "non-finite values: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return apperr.Validation(strings.Join(problems, "; "))
	}
	return nil
}

// Vector returns the values in model input order. Validate first.
func (m Measurements) Vector() []float64 {
	vector := make([]float64, len(featureNames))
	for i, name := range featureNames {
		vector[i] = m[name]
	}
	return vector
}

// MeasurementsFromVector is the inverse of Vector.
func MeasurementsFromVector(vector []float64) (Measurements, error) {
	if len(vector) != len(featureNames) {
		return nil, fmt.Errorf("expected %d values, got %d", len(featureNames), len(vector))
	}
	m := make(Measurements, len(vector))
	for i, name := range featureNames {
		m[name] = vector[i]
	}
	return m, nil
}
