// Copyright 2025 Certen Protocol
//
// Package metrics declares the Prometheus collectors exported by a
// pojd node, in the style of morelucks-gean/observability/metrics:
// Counter and Gauge collectors held in a Metrics struct, built and
// registered against a single registry by New, and wired directly into
// the components that move the underlying numbers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the chain core updates. Every method
// below is nil-receiver safe, so wiring metrics into a Chain is always
// optional: pass a nil *Metrics and every call becomes a no-op.
type Metrics struct {
	BlocksProduced       prometheus.Counter
	BlocksFinalized      prometheus.Counter
	BlocksRejected       prometheus.Counter
	AttestationsReceived prometheus.Counter
	AttestationsRejected prometheus.Counter
	PoolSize             prometheus.Gauge
	CurrentSlot          prometheus.Gauge
	CurrentEpoch         prometheus.Gauge
}

// New constructs a Metrics bundle and registers it against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poj",
			Name:      "blocks_produced_total",
			Help:      "Total number of candidate blocks successfully ingested.",
		}),
		BlocksFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poj",
			Name:      "blocks_finalized_total",
			Help:      "Total number of blocks that reached quorum.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poj",
			Name:      "blocks_rejected_total",
			Help:      "Total number of candidate blocks rejected by the Validator.",
		}),
		AttestationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poj",
			Name:      "attestations_received_total",
			Help:      "Total number of attestations accepted onto a block.",
		}),
		AttestationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poj",
			Name:      "attestations_rejected_total",
			Help:      "Total number of attestations discarded as invalid or duplicate.",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poj",
			Name:      "pool_size",
			Help:      "Current number of judgments awaiting inclusion in a block.",
		}),
		CurrentSlot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poj",
			Name:      "current_slot",
			Help:      "The chain's current slot number as derived from the slot clock.",
		}),
		CurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poj",
			Name:      "current_epoch",
			Help:      "The chain's current epoch number.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlocksProduced,
			m.BlocksFinalized,
			m.BlocksRejected,
			m.AttestationsReceived,
			m.AttestationsRejected,
			m.PoolSize,
			m.CurrentSlot,
			m.CurrentEpoch,
		)
	}
	return m
}

// IncBlocksProduced increments BlocksProduced. No-op on a nil Metrics.
func (m *Metrics) IncBlocksProduced() {
	if m != nil {
		m.BlocksProduced.Inc()
	}
}

// IncBlocksFinalized increments BlocksFinalized. No-op on a nil Metrics.
func (m *Metrics) IncBlocksFinalized() {
	if m != nil {
		m.BlocksFinalized.Inc()
	}
}

// IncBlocksRejected increments BlocksRejected. No-op on a nil Metrics.
func (m *Metrics) IncBlocksRejected() {
	if m != nil {
		m.BlocksRejected.Inc()
	}
}

// IncAttestationsReceived increments AttestationsReceived. No-op on a nil Metrics.
func (m *Metrics) IncAttestationsReceived() {
	if m != nil {
		m.AttestationsReceived.Inc()
	}
}

// IncAttestationsRejected increments AttestationsRejected. No-op on a nil Metrics.
func (m *Metrics) IncAttestationsRejected() {
	if m != nil {
		m.AttestationsRejected.Inc()
	}
}

// SetPoolSize sets the PoolSize gauge. No-op on a nil Metrics.
func (m *Metrics) SetPoolSize(n int) {
	if m != nil {
		m.PoolSize.Set(float64(n))
	}
}

// SetCurrentSlot sets the CurrentSlot gauge. No-op on a nil Metrics.
func (m *Metrics) SetCurrentSlot(slot uint64) {
	if m != nil {
		m.CurrentSlot.Set(float64(slot))
	}
}

// SetCurrentEpoch sets the CurrentEpoch gauge. No-op on a nil Metrics.
func (m *Metrics) SetCurrentEpoch(epoch uint64) {
	if m != nil {
		m.CurrentEpoch.Set(float64(epoch))
	}
}
