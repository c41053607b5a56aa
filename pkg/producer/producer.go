// Copyright 2025 Certen Protocol
//
// Package producer runs the per-slot state machine described for a
// validator node: on every slot tick, drain the pool, build a
// candidate, self-attest, and ingest it via Chain.ProcessBlock. It is
// a thin ticker wrapper around *chain.Chain (grounded on the Start/Stop/
// stopCh/doneCh lifecycle of the teacher's pkg/batch.ConfirmationTracker,
// with the select-on-ticker loop body shaped like
// morelucks-gean/node.Run) so that pkg/chain never needs to import
// pkg/producer: the dependency runs one way only.
package producer

import (
	"context"
	"log"
	"sync"

	"github.com/certen/pojchain/pkg/chain"
	"github.com/certen/pojchain/pkg/metrics"
	"github.com/certen/pojchain/pkg/slotclock"
)

// Runner drives Chain.ProposeBlock/ProcessBlock on every slot boundary.
type Runner struct {
	mu sync.Mutex

	chain   *chain.Chain
	clock   *slotclock.Clock
	metrics *metrics.Metrics

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *log.Logger
}

// New constructs a Runner. It does not start the loop; call Start.
func New(c *chain.Chain, clock *slotclock.Clock) *Runner {
	return &Runner{
		chain:  c,
		clock:  clock,
		logger: log.New(log.Writer(), "[producer] ", log.LstdFlags),
	}
}

// WithMetrics attaches a metrics bundle the Runner updates
// (CurrentSlot, CurrentEpoch) on every tick. m may be nil, in which
// case the update is a no-op. Returns r for chaining at construction.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// Start begins the slot-tick loop in a background goroutine. A second
// call while already running is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	go r.run(ctx)
	r.logger.Printf("started (slot duration %s)", r.clock.SlotDuration())
}

// Stop halts the loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	<-r.doneCh
	r.logger.Println("stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := r.clock.Ticker()
	defer ticker.Stop()

	var lastSlot uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.clock.IsBeforeGenesis() {
				continue
			}
			slot := r.clock.CurrentSlot()
			r.metrics.SetCurrentSlot(slot)
			r.metrics.SetCurrentEpoch(r.clock.CurrentEpoch())
			if slot == lastSlot {
				continue
			}
			lastSlot = slot
			r.tick()
		}
	}
}

// tick runs one iteration of the propose/ingest state machine. A nil
// candidate (not a validator, or the pool is empty) is a normal,
// silent no-op.
func (r *Runner) tick() {
	candidate, err := r.chain.ProposeBlock()
	if err != nil {
		r.logger.Printf("proposal failed: %v", err)
		return
	}
	if candidate == nil {
		return
	}

	result := r.chain.ProcessBlock(candidate)
	if !result.Success {
		r.logger.Printf("slot %d: candidate rejected: %v", candidate.Header.Slot, result.Err)
		return
	}
	r.logger.Printf("slot %d: block ingested (%d judgments)", candidate.Header.Slot, len(candidate.Judgments))
}

// ForceTick runs one iteration immediately, bypassing the slot-boundary
// gate. Used by tests.
func (r *Runner) ForceTick() {
	r.tick()
}
