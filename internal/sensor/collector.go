package sensor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/oejp/kraken-bridge/internal/domain"
)

// SnapshotSource yields the last successfully fetched account snapshot and
// the instant it was taken.
type SnapshotSource interface {
	Snapshot() (*domain.AccountSnapshot, time.Time, bool)
}

// Collector exposes the numeric sensors as Prometheus gauges. Values are
// recomputed from the current snapshot on every scrape rather than stored,
// so a scrape after local midnight sees the new day's totals even if no
// refresh has run since.
type Collector struct {
	source SnapshotSource
	now    func() time.Time

	valueDesc *prometheus.Desc
	ageDesc   *prometheus.Desc
}

// NewCollector builds a collector reading from source.
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source: source,
		now:    time.Now,
		valueDesc: prometheus.NewDesc(
			"oejp_sensor_value",
			"Current value of a derived account sensor.",
			[]string{"sensor", "unit"}, nil,
		),
		ageDesc: prometheus.NewDesc(
			"oejp_snapshot_age_seconds",
			"Age of the account snapshot backing the sensor values.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.valueDesc
	ch <- c.ageDesc
}

// Collect implements prometheus.Collector. Sensors that are currently
// unavailable or carry a non-numeric state are simply absent from the scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap, at, ok := c.source.Snapshot()
	if !ok {
		return
	}
	now := c.now()
	ch <- prometheus.MustNewConstMetric(c.ageDesc, prometheus.GaugeValue, now.Sub(at).Seconds())

	for _, s := range Catalogue() {
		if s.Unit == "" {
			continue
		}
		v, err := s.Compute(snap, now)
		if err != nil {
			continue
		}
		d, ok := v.State.(decimal.Decimal)
		if !ok {
			continue
		}
		f, _ := d.Float64()
		ch <- prometheus.MustNewConstMetric(c.valueDesc, prometheus.GaugeValue, f, s.Key, s.Unit)
	}
}
