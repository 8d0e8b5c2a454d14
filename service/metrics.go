package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "voteledger"

// Metrics tracks submissions and sealing. Collectors are registered on the registerer
// passed to NewMetrics so tests can use a private registry.
type Metrics struct {
	submissions  *prometheus.CounterVec
	blocksSealed prometheus.Counter
	sealDuration prometheus.Histogram
	chainHeight  prometheus.Gauge
	pendingVotes prometheus.Gauge
}

// NewMetrics creates the collectors. A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "vote_submissions_total",
			Help:      "Vote submissions by result.",
		}, []string{"result"}),
		blocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_sealed_total",
			Help:      "Blocks sealed and persisted.",
		}),
		sealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "seal_duration_seconds",
			Help:      "Time spent sealing and persisting one block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "chain_height",
			Help:      "Number of blocks on the chain, genesis included.",
		}),
		pendingVotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_votes",
			Help:      "Admitted votes waiting to be sealed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.blocksSealed, m.sealDuration, m.chainHeight, m.pendingVotes)
	}
	return m
}

func (m *Metrics) recordAccepted() {
	m.submissions.WithLabelValues("accepted").Inc()
}

func (m *Metrics) recordRejected(r Reason) {
	m.submissions.WithLabelValues(r.String()).Inc()
}

func (m *Metrics) recordSeal(d time.Duration) {
	m.blocksSealed.Inc()
	m.sealDuration.Observe(d.Seconds())
}

func (m *Metrics) setChain(height, pending int) {
	m.chainHeight.Set(float64(height))
	m.pendingVotes.Set(float64(pending))
}
