package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the poll loop and bridge counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cyclesPublished prometheus.Counter
	cyclesSkipped   prometheus.Counter
	windowReadings  prometheus.Gauge
	cycleDuration   prometheus.Histogram
	sinkWriteErrors *prometheus.CounterVec
	bridgeMessages  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermobeacon_cycles_total",
			Help: "Scan cycles completed.",
		}),
		cyclesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermobeacon_cycles_published_total",
			Help: "Scan cycles whose readings were published.",
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermobeacon_cycles_unchanged_total",
			Help: "Scan cycles suppressed because no temperature changed.",
		}),
		windowReadings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermobeacon_window_readings",
			Help: "Readings collected in the last discovery window.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thermobeacon_cycle_duration_seconds",
			Help:    "Wall-clock duration of scan plus publish.",
			Buckets: []float64{1, 2, 4, 8, 15, 30, 60},
		}),
		sinkWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermobeacon_sink_write_errors_total",
			Help: "Failed field writes by location.",
		}, []string{"location"}),
		bridgeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermobeacon_bridge_messages_total",
			Help: "Bridge messages by outcome (forwarded, invalid, failed).",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.cycles,
		m.cyclesPublished,
		m.cyclesSkipped,
		m.windowReadings,
		m.cycleDuration,
		m.sinkWriteErrors,
		m.bridgeMessages,
	)
	return m
}

func (m *Metrics) ObserveCycle(readings int, published bool, seconds float64) {
	m.cycles.Inc()
	m.windowReadings.Set(float64(readings))
	m.cycleDuration.Observe(seconds)
	if published {
		m.cyclesPublished.Inc()
	} else {
		m.cyclesSkipped.Inc()
	}
}

func (m *Metrics) SinkWriteError(location string) {
	m.sinkWriteErrors.WithLabelValues(location).Inc()
}

func (m *Metrics) BridgeMessage(outcome string) {
	m.bridgeMessages.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
