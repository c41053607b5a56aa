// Copyright 2025 Certen Protocol
//
// Package finalize implements the quorum-accumulation half of the
// attestation protocol: on every attestation added to a block, recheck
// whether quorum has been met and, if so, flip the block's Finalized
// flag exactly once. Finalization is monotonic — there is no rollback.
package finalize

import (
	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/metrics"
)

// Finalizer holds the configured quorum threshold (fraction of the
// registered validator set) used to decide when a block finalizes.
type Finalizer struct {
	threshold float64
	metrics   *metrics.Metrics
}

// New creates a Finalizer with the given quorum threshold. A
// threshold <= 0 falls back to block.DefaultQuorumThreshold.
func New(threshold float64) *Finalizer {
	return &Finalizer{threshold: threshold}
}

// WithMetrics attaches a metrics bundle the Finalizer increments on
// every successful finalization. m may be nil, in which case
// TryFinalize's metric update is a no-op. Returns f for chaining at
// construction.
func (f *Finalizer) WithMetrics(m *metrics.Metrics) *Finalizer {
	f.metrics = m
	return f
}

// TryFinalize recomputes b.HasQuorum against totalValidators and, if
// quorum is met and b was not already finalized, sets b.Finalized and
// reports true. Already-finalized blocks are left untouched and
// always report false, preserving I7's monotonicity: once finalized,
// never un-finalized, and the finalization event fires exactly once.
func (f *Finalizer) TryFinalize(b *block.Block, totalValidators int) bool {
	if b.Finalized {
		return false
	}
	if !b.HasQuorum(totalValidators, f.threshold) {
		return false
	}
	b.Finalized = true
	f.metrics.IncBlocksFinalized()
	return true
}
