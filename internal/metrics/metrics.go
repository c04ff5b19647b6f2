// Package metrics exposes Prometheus instruments for kernel dispatches,
// sort invocations and device memory.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsort_dispatches_total",
		Help: "Total number of kernel dispatches recorded",
	}, []string{"pipeline"})

	sortDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gsort_sort_duration_seconds",
		Help:    "Duration of complete sort invocations",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"device", "kind"})

	sortedKeys = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsort_sorted_keys_total",
		Help: "Total number of keys sorted",
	}, []string{"device"})

	sortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsort_sort_failures_total",
		Help: "Total number of sort invocations that failed",
	}, []string{"device", "reason"})

	allocatedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gsort_device_allocated_bytes",
		Help: "Bytes currently allocated on the device",
	}, []string{"device"})
)

// Dispatch counts one recorded kernel dispatch.
func Dispatch(pipeline string) {
	dispatches.WithLabelValues(pipeline).Inc()
}

// Sort records a completed sort of n keys. kind is "keys" or "pairs".
func Sort(device, kind string, n int, elapsed time.Duration) {
	sortDuration.WithLabelValues(device, kind).Observe(elapsed.Seconds())
	sortedKeys.WithLabelValues(device).Add(float64(n))
}

// SortFailed counts a failed sort invocation.
func SortFailed(device, reason string) {
	sortFailures.WithLabelValues(device, reason).Inc()
}

// Allocated adjusts the allocated byte gauge of a device by delta.
func Allocated(device string, delta int64) {
	allocatedBytes.WithLabelValues(device).Add(float64(delta))
}

// Snapshot returns the current value of every gsort counter and gauge,
// keyed by metric name and label values, e.g.
// "gsort_dispatches_total{pipeline=sum}". Histograms report their sample
// count.
func Snapshot() (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "gsort_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			key := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
