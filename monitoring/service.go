package monitoring

import (
	"strconv"
	"time"
)

const (
	MetricHTTPRequests = "cancersense_http_requests_total"
	MetricHTTPDuration = "cancersense_http_request_duration_seconds"
	MetricPredictions  = "cancersense_predictions_total"
	MetricReports      = "cancersense_reports_total"
	MetricAuth         = "cancersense_auth_attempts_total"
	MetricModel        = "cancersense_model_info"
)

// ServiceMetrics records the service level events of the API.
type ServiceMetrics struct {
	*MetricsCollector
	model string
}

func NewServiceMetrics() *ServiceMetrics {
	mc := NewMetricsCollector()
	mc.Describe(MetricHTTPRequests, MetricTypeCounter, "HTTP requests by method, route and status")
	mc.Describe(MetricHTTPDuration, MetricTypeSummary, "HTTP request latency in seconds")
	mc.Describe(MetricPredictions, MetricTypeCounter, "Predictions served by diagnosis and whether they were saved")
	mc.Describe(MetricReports, MetricTypeCounter, "Generated report documents by kind")
	mc.Describe(MetricAuth, MetricTypeCounter, "Register and login attempts by outcome")
	mc.Describe(MetricModel, MetricTypeGauge, "Serving model, 1 for the active one")
	return &ServiceMetrics{MetricsCollector: mc}
}

func (m *ServiceMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.IncrCounter(MetricHTTPRequests, 1, map[string]string{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	})
	m.Observe(MetricHTTPDuration, duration.Seconds(), map[string]string{"route": route})
}

func (m *ServiceMetrics) RecordPrediction(label string, saved bool) {
	m.IncrCounter(MetricPredictions, 1, map[string]string{
		"diagnosis": label,
		"saved":     strconv.FormatBool(saved),
	})
}

// RecordReport counts a generated document; kind is batch, single or xlsx.
func (m *ServiceMetrics) RecordReport(kind string) {
	m.IncrCounter(MetricReports, 1, map[string]string{"kind": kind})
}

func (m *ServiceMetrics) RecordAuth(action string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.IncrCounter(MetricAuth, 1, map[string]string{"action": action, "outcome": outcome})
}

// SetModel marks name as the serving model.
func (m *ServiceMetrics) SetModel(name string) {
	if m.model != "" && m.model != name {
		m.SetGauge(MetricModel, 0, map[string]string{"model": m.model})
	}
	m.model = name
	m.SetGauge(MetricModel, 1, map[string]string{"model": name})
}
