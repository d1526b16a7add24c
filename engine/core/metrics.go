package core

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Number of samples kept for the rolling load time average.
const AVG_COUNT uint8 = 30

/**
 * @brief Load statistics shared by the loader workers. Prometheus collectors
 * live on a private registry so several engines can coexist in one process.
 */
type LoadMetrics struct {
	registry *prometheus.Registry

	loads    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pending  prometheus.Gauge
	busy     prometheus.Gauge

	mutex       sync.Mutex
	avgCounter  uint8
	samples     [AVG_COUNT]float64
	sampleCount uint8
	msAvg       float64
}

func NewLoadMetrics() *LoadMetrics {
	m := &LoadMetrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anima",
			Subsystem: "loader",
			Name:      "loads_total",
			Help:      "Physical resource loads by kind and result.",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "anima",
			Subsystem: "loader",
			Name:      "load_duration_seconds",
			Help:      "Time spent constructing a resource.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anima",
			Subsystem: "loader",
			Name:      "pending_requests",
			Help:      "Requests queued or in flight.",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anima",
			Subsystem: "loader",
			Name:      "busy_workers",
			Help:      "Workers currently constructing a resource.",
		}),
	}
	m.registry.MustRegister(m.loads, m.duration, m.pending, m.busy)
	return m
}

// ObserveLoad records a finished physical load.
func (m *LoadMetrics) ObserveLoad(kind string, elapsed time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.loads.WithLabelValues(kind, result).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.samples[m.avgCounter] = float64(elapsed) / float64(time.Millisecond)
	m.avgCounter = (m.avgCounter + 1) % AVG_COUNT
	if m.sampleCount < AVG_COUNT {
		m.sampleCount++
	}
	total := 0.0
	for i := uint8(0); i < m.sampleCount; i++ {
		total += m.samples[i]
	}
	m.msAvg = total / float64(m.sampleCount)
}

func (m *LoadMetrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

func (m *LoadMetrics) SetBusyWorkers(n int) {
	m.busy.Set(float64(n))
}

// AverageLoadMs is the mean construction time of the last AVG_COUNT loads.
func (m *LoadMetrics) AverageLoadMs() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.msAvg
}

func (m *LoadMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *LoadMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
