// Package metrics exposes hub measurements to Prometheus.
package metrics

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relayhub"

// Collector implements core.Metrics and the keeper's counter.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	treasury   prometheus.Gauge
	finalized  prometheus.Counter
}

// NewCollector registers hub metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "operations_total",
			Help:      "count of hub commands by operation and result",
		}, []string{"operation", "result"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "operation_duration_seconds",
			Help:      "time spent applying a hub command, including its transaction",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		treasury: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "treasury_balance",
			Help:      "treasury balance after the last committed command, in base units",
		}),

		finalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "finalized_total",
			Help:      "count of messages finalized by the keeper",
		}),
	}
}

// CommandCompleted records the outcome of a hub command.
func (c *Collector) CommandCompleted(command, result string, d time.Duration) {
	c.operations.WithLabelValues(command, result).Inc()
	c.duration.WithLabelValues(command).Observe(d.Seconds())
}

// TreasuryBalance sets the balance gauge. Values above float64 precision are
// approximated.
func (c *Collector) TreasuryBalance(balance *uint256.Int) {
	f, _ := new(big.Float).SetInt(balance.ToBig()).Float64()
	c.treasury.Set(f)
}

// KeeperFinalized counts messages the keeper finalized.
func (c *Collector) KeeperFinalized(n int) {
	c.finalized.Add(float64(n))
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) CommandCompleted(string, string, time.Duration) {}
func (Noop) TreasuryBalance(*uint256.Int)                   {}
func (Noop) KeeperFinalized(int)                            {}
