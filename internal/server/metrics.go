package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietdungdev/raidbot/internal/event"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors fed by battle events.
type Metrics struct {
	BattlesTotal   *prometheus.CounterVec
	BattleTurns    prometheus.Histogram
	BattleDuration prometheus.Histogram
	HonorsLast     prometheus.Gauge
	Halted         prometheus.Gauge
}

// NewMetrics registers the collectors on the default registry once per
// process; later calls return the same instance.
//
//   - raidbot_battles_total{outcome,reason}
//   - raidbot_battle_turns
//   - raidbot_battle_duration_seconds
//   - raidbot_honors_last
//   - raidbot_halted
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			BattlesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "raidbot_battles_total",
					Help: "Total number of finished battles",
				},
				[]string{"outcome", "reason"},
			),
			BattleTurns: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "raidbot_battle_turns",
				Help:    "Turns observed per finished battle",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
			}),
			BattleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "raidbot_battle_duration_seconds",
				Help:    "Wall time of finished battles in seconds",
				Buckets: prometheus.ExponentialBuckets(10, 2, 8),
			}),
			HonorsLast: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "raidbot_honors_last",
				Help: "Honors reported by the last finished battle",
			}),
			Halted: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "raidbot_halted",
				Help: "1 once the automation has halted and needs an operator",
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) observe(e event.Event) {
	switch evt := e.(type) {
	case event.BattleFinishedEvent:
		m.BattlesTotal.WithLabelValues(evt.Outcome, string(evt.Reason)).Inc()
		m.BattleTurns.Observe(float64(evt.Turns))
		m.BattleDuration.Observe(evt.Seconds)
		m.HonorsLast.Set(float64(evt.Honors))
	case event.AutomationHaltedEvent:
		m.Halted.Set(1)
	}
}
