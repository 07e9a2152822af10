// Package monitoring keeps in-process service metrics and renders them in
// the Prometheus text format.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// MetricType is the Prometheus type of a metric family.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// maxSamples bounds the observations kept per summary series.
const maxSamples = 1000

var summaryQuantiles = []float64{50, 90, 99}

type family struct {
	name   string
	typ    MetricType
	help   string
	series map[string]*series
}

type series struct {
	labels  map[string]string
	value   float64
	samples stats.Float64Data
	count   int64
	sum     float64
}

// MetricsCollector stores counters, gauges and summaries keyed by name and
// label set. It is safe for concurrent use.
type MetricsCollector struct {
	mu        sync.RWMutex
	families  map[string]*family
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		families:  make(map[string]*family),
		startTime: time.Now(),
	}
}

// Describe sets the help text of a metric family.
func (mc *MetricsCollector) Describe(name string, typ MetricType, help string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	f := mc.family(name, typ)
	f.help = help
}

func (mc *MetricsCollector) family(name string, typ MetricType) *family {
	f, ok := mc.families[name]
	if !ok {
		f = &family{name: name, typ: typ, series: make(map[string]*series)}
		mc.families[name] = f
	}
	return f
}

func (f *family) get(labels map[string]string) *series {
	key := labelString(labels)
	s, ok := f.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{labels: copied}
		f.series[key] = s
	}
	return s
}

func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.family(name, MetricTypeCounter).get(labels).value += value
}

func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.family(name, MetricTypeGauge).get(labels).value = value
}

// Observe adds a sample to a summary. Only the latest maxSamples are used
// for quantiles; count and sum cover every observation.
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	s := mc.family(name, MetricTypeSummary).get(labels)
	s.count++
	s.sum += value
	s.samples = append(s.samples, value)
	if len(s.samples) > maxSamples {
		s.samples = append(stats.Float64Data(nil), s.samples[len(s.samples)-maxSamples:]...)
	}
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// ExportPrometheus renders every family, sorted by name, followed by
// process gauges.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var b strings.Builder
	names := make([]string, 0, len(mc.families))
	for name := range mc.families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := mc.families[name]
		if len(f.series) == 0 {
			continue
		}
		help := f.help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, f.typ)

		keys := make([]string, 0, len(f.series))
		for key := range f.series {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s := f.series[key]
			if f.typ != MetricTypeSummary {
				fmt.Fprintf(&b, "%s%s %g\n", name, key, s.value)
				continue
			}
			for _, q := range summaryQuantiles {
				value, err := s.samples.Percentile(q)
				if err != nil {
					continue
				}
				labels := withLabel(s.labels, "quantile", fmt.Sprintf("%g", q/100))
				fmt.Fprintf(&b, "%s%s %g\n", name, labelString(labels), value)
			}
			fmt.Fprintf(&b, "%s_sum%s %g\n", name, key, s.sum)
			fmt.Fprintf(&b, "%s_count%s %d\n", name, key, s.count)
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	process := []struct {
		name  string
		help  string
		value float64
	}{
		{"process_uptime_seconds", "Seconds since the collector was created", mc.GetUptime().Seconds()},
		{"go_goroutines", "Number of goroutines", float64(runtime.NumGoroutine())},
		{"go_memstats_heap_alloc_bytes", "Heap bytes allocated", float64(m.HeapAlloc)},
		{"go_gc_count", "Completed GC cycles", float64(m.NumGC)},
	}
	for _, p := range process {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", p.name, p.help, p.name, p.name, p.value)
	}
	return b.String()
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

// labelString renders labels as {a="1",b="2"} with sorted keys, or "".
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(labels[k])
		parts[i] = fmt.Sprintf(`%s="%s"`, k, v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
