package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint and the sensor collector can use it.
	Registry *prometheus.Registry

	refreshDuration   prometheus.Histogram
	refreshTotal      *prometheus.CounterVec
	refreshFailures   *prometheus.CounterVec
	reauthentications prometheus.Counter
	valueUnavailable  *prometheus.CounterVec
	snapshotTimestamp prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry avoids "duplicate collector"
// panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oejp_refresh_duration_seconds",
			Help:    "Duration of account snapshot refresh cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oejp_refresh_total",
				Help: "Total refresh cycles by outcome.",
			},
			[]string{"status"},
		),
		refreshFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oejp_refresh_failures_total",
				Help: "Total failed refresh cycles by cause.",
			},
			[]string{"reason"},
		),
		reauthentications: factory.NewCounter(prometheus.CounterOpts{
			Name: "oejp_reauthentications_total",
			Help: "Total session token re-authentications.",
		}),
		valueUnavailable: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oejp_sensor_unavailable_total",
				Help: "Total per-sensor computation failures.",
			},
			[]string{"sensor"},
		),
		snapshotTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oejp_snapshot_timestamp_seconds",
			Help: "Unix time of the last successful snapshot refresh.",
		}),
	}
}

// RecordRefresh records one refresh cycle's duration and outcome.
func (m *Metrics) RecordRefresh(d time.Duration, err error) {
	m.refreshDuration.Observe(d.Seconds())
	if err != nil {
		m.refreshTotal.WithLabelValues("error").Inc()
		return
	}
	m.refreshTotal.WithLabelValues("success").Inc()
	m.snapshotTimestamp.SetToCurrentTime()
}

// IncrRefreshFailure increments the failure counter for a cause label
// ("auth", "fetch", "network", "timeout").
func (m *Metrics) IncrRefreshFailure(reason string) {
	m.refreshFailures.WithLabelValues(reason).Inc()
}

// IncrReauthentication counts one token re-authentication.
func (m *Metrics) IncrReauthentication() {
	m.reauthentications.Inc()
}

// IncrValueUnavailable counts one per-sensor computation failure.
func (m *Metrics) IncrValueUnavailable(sensor string) {
	m.valueUnavailable.WithLabelValues(sensor).Inc()
}

// RefreshStats is a point-in-time summary of refresh health, served on the
// account status endpoint.
type RefreshStats struct {
	TotalRefreshes    int64   `json:"total_refreshes"`
	FailedRefreshes   int64   `json:"failed_refreshes"`
	FailureRate       float64 `json:"failure_rate"`
	Reauthentications int64   `json:"reauthentications"`
}

// GetRefreshStats gathers current counter values into a RefreshStats.
func (m *Metrics) GetRefreshStats() *RefreshStats {
	success := getCounterValue(m.refreshTotal, "success")
	failed := getCounterValue(m.refreshTotal, "error")
	total := success + failed

	rate := float64(0)
	if total > 0 {
		rate = failed / total
	}

	return &RefreshStats{
		TotalRefreshes:    int64(total),
		FailedRefreshes:   int64(failed),
		FailureRate:       rate,
		Reauthentications: int64(readCounter(m.reauthentications)),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
