// Copyright 2025 Certen Protocol
//
// Package judgment defines the judgment record shape accepted from
// the upstream judgment-producing component, and the bounded FIFO
// pool that buffers pending judgments until a Producer drains them
// into a candidate block.
package judgment

import (
	"encoding/json"
	"sync"

	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/metrics"
)

// Verdict is the upstream producer's categorical evaluation outcome.
type Verdict string

// The four verdict categories the judgment-producing component emits.
const (
	VerdictHowl  Verdict = "HOWL"
	VerdictWag   Verdict = "WAG"
	VerdictGrowl Verdict = "GROWL"
	VerdictBark  Verdict = "BARK"
)

// Ref is a single judgment record as accepted into the pool and later
// embedded, in order, inside a Block. Unknown metadata fields arriving
// from upstream are preserved opaquely in Metadata and must survive a
// full encode/decode round trip untouched.
type Ref struct {
	ID       string          `json:"id"`
	CID      cid.CID         `json:"cid"`
	QScore   int             `json:"qScore"`
	Verdict  Verdict         `json:"verdict"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// DefaultPoolSize is the default bounded capacity of a Pool.
const DefaultPoolSize = 1000

// Pool is a bounded FIFO of pending judgments, deduplicated by ID. The
// pool is the single mutator point for pending chain state; all
// methods are safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	capacity int
	order    []string       // insertion order, oldest first
	byID     map[string]Ref // id -> ref
	metrics  *metrics.Metrics
}

// NewPool creates a Pool bounded at capacity entries. A capacity of 0
// or less falls back to DefaultPoolSize.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolSize
	}
	return &Pool{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		byID:     make(map[string]Ref, capacity),
	}
}

// WithMetrics attaches a metrics bundle the Pool updates (PoolSize) on
// every mutation. m may be nil, in which case the update is a no-op.
// Returns p for chaining at construction.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

// reportSize pushes the current queue length to the PoolSize gauge.
// Callers must hold p.mu.
func (p *Pool) reportSize() {
	p.metrics.SetPoolSize(len(p.order))
}

// Add inserts j. If j.ID is already present the pool is unchanged and
// Add returns false (no replacement). If the pool is at capacity the
// oldest entry is evicted to make room. Returns true if j was
// inserted.
func (p *Pool) Add(j Ref) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[j.ID]; exists {
		return false
	}

	if len(p.order) >= p.capacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.byID, oldest)
	}

	p.order = append(p.order, j.ID)
	p.byID[j.ID] = j
	p.reportSize()
	return true
}

// GetBatch atomically removes up to limit entries from the head of
// the queue (oldest first) and returns them.
func (p *Pool) GetBatch(limit int) []Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limit <= 0 || len(p.order) == 0 {
		return nil
	}
	if limit > len(p.order) {
		limit = len(p.order)
	}

	batch := make([]Ref, 0, limit)
	for _, id := range p.order[:limit] {
		batch = append(batch, p.byID[id])
		delete(p.byID, id)
	}
	p.order = p.order[limit:]
	p.reportSize()
	return batch
}

// ReturnBatch re-inserts list at the head of the queue, in order, as
// if it had never been drained. Used when a candidate block built
// from a drained batch is rejected.
func (p *Pool) ReturnBatch(list []Ref) {
	if len(list) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(list))
	for _, j := range list {
		if _, exists := p.byID[j.ID]; exists {
			continue
		}
		p.byID[j.ID] = j
		ids = append(ids, j.ID)
	}
	p.order = append(ids, p.order...)
	p.reportSize()
}

// Has reports whether id is currently pending.
func (p *Pool) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[id]
	return ok
}

// Size returns the number of pending judgments.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Clear empties the pool.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = p.order[:0]
	p.byID = make(map[string]Ref, p.capacity)
	p.reportSize()
}
