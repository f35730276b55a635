package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the script service
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: result=ok|no_data|error
	RunDuration      prometheus.Histogram
	BarsProcessed    prometheus.Counter
	CompilesTotal    *prometheus.CounterVec // labels: result=ok|syntax_error
	ProgramCacheSize prometheus.Gauge
	SignalsTotal     *prometheus.CounterVec // labels: direction
	WSClients        prometheus.Gauge
	WSDropped        prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscript_runs_total",
			Help: "Script executions by result",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartscript_run_duration_seconds",
			Help:    "Wall time of one script execution over the full history",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscript_bars_processed_total",
			Help: "Bars swept across all executions",
		}),
		CompilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscript_compiles_total",
			Help: "Script compilations by result",
		}, []string{"result"}),
		ProgramCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartscript_program_cache_size",
			Help: "Compiled programs held in the runner cache",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscript_signals_total",
			Help: "Strategy signals emitted by direction",
		}, []string{"direction"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartscript_ws_clients",
			Help: "Connected output stream clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscript_ws_dropped_total",
			Help: "Output messages dropped for slow stream clients",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BarsProcessed,
		m.CompilesTotal,
		m.ProgramCacheSize,
		m.SignalsTotal,
		m.WSClients,
		m.WSDropped,
	)

	return m
}

// ObserveRun records one execution
func (m *Metrics) ObserveRun(result string, bars int, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.BarsProcessed.Add(float64(bars))
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
