// Copyright 2025 Certen Protocol
//
// Package chain implements the Chain facade: the single entry point
// that owns the BlockStore, the three HamtIndex roots, the judgment
// pool, and the Finalizer, and serializes every mutation through one
// actor. No process-wide singleton exists — every Chain value is
// caller-owned and constructed via New/Init, the same re-architecting
// the teacher's own pkg/ledger.LedgerStore follows ("CONCURRENCY:
// LedgerStore assumes single-writer access").
package chain

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/chainerr"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/config"
	"github.com/certen/pojchain/pkg/finalize"
	"github.com/certen/pojchain/pkg/hamt"
	"github.com/certen/pojchain/pkg/judgment"
	"github.com/certen/pojchain/pkg/merkle"
	"github.com/certen/pojchain/pkg/metrics"
	"github.com/certen/pojchain/pkg/store"
	"github.com/certen/pojchain/pkg/validate"
)

// EventKind tags a lifecycle notification.
type EventKind string

// The lifecycle points the chain emits notifications at.
const (
	EventInitialized           EventKind = "initialized"
	EventBlockProposed         EventKind = "block:proposed"
	EventBlockAdded            EventKind = "block:added"
	EventBlockFinalized        EventKind = "block:finalized"
	EventAttestationReceived   EventKind = "attestation:received"
	EventJudgmentPending       EventKind = "judgment:pending"
	EventValidatorRegistered   EventKind = "validator:registered"
	EventValidatorUnregistered EventKind = "validator:unregistered"
	EventSlotTick              EventKind = "slot:tick"
)

// Event is a single lifecycle notification. Delivery is in-process
// and non-blocking; subscribers that cannot keep up silently miss
// events rather than stalling the chain actor.
type Event struct {
	Kind      EventKind
	Slot      uint64
	BlockHash cid.CID
	NodeID    string
	Err       error
}

// metaRecord is the small chain metadata record persisted alongside
// the indices: {genesisCid, headCid, finalizedSlot}, plus the current
// root of each of the three HamtIndexes.
type metaRecord struct {
	GenesisCID    cid.CID `json:"genesisCid"`
	HeadCID       cid.CID `json:"headCid"`
	FinalizedSlot uint64  `json:"finalizedSlot"`
	SlotRoot      cid.CID `json:"slotIndexRoot"`
	HashRoot      cid.CID `json:"hashIndexRoot"`
	JudgmentRoot  cid.CID `json:"judgmentIndexRoot"`
}

var metaKey = []byte("meta/chain")

// Chain is the facade described by the component design: init,
// addJudgment, proposeBlock, processBlock, processAttestation,
// lookups, proofs, stats, and export. At most one mutating call
// (AddJudgment, ProposeBlock, ProcessBlock, ProcessAttestation)
// executes at a time. Lookups take the same mutex, so they do not
// overlap with mutation either.
type Chain struct {
	mu sync.Mutex

	nodeID string
	store  *store.BlockStore
	hamtIx *hamt.Index

	genesisCID    cid.CID
	headCID       cid.CID
	headSlot      uint64
	finalizedSlot uint64

	slotRoot     cid.CID
	hashRoot     cid.CID
	judgmentRoot cid.CID

	pool         *judgment.Pool
	pendingBatch []judgment.Ref
	finalizer    *finalize.Finalizer

	maxJudgmentsPerBlock int
	quorumThreshold      float64
	enforceRegistry      bool
	validators           validate.KnownValidators
	validatorCount       func() int
	keyLookup            attest.KeyLookup

	metrics *metrics.Metrics
	logger  *log.Logger

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// Options configures chain construction beyond the raw Config.
type Options struct {
	Validators     validate.KnownValidators
	ValidatorCount func() int
	KeyLookup      attest.KeyLookup
	Metrics        *metrics.Metrics
}

// New constructs a Chain over an already-open BlockStore. It does not
// initialize chain state; call Init next.
func New(nodeID string, bs *store.BlockStore, cfg config.Config, opts Options) *Chain {
	cfg = cfg.Defaults()
	c := &Chain{
		nodeID:               nodeID,
		store:                bs,
		hamtIx:               hamt.New(bs),
		pool:                 judgment.NewPool(cfg.PoolSize).WithMetrics(opts.Metrics),
		finalizer:            finalize.New(cfg.QuorumThreshold).WithMetrics(opts.Metrics),
		maxJudgmentsPerBlock: cfg.MaxJudgmentsPerBlock,
		quorumThreshold:      cfg.QuorumThreshold,
		enforceRegistry:      opts.Validators != nil,
		validators:           opts.Validators,
		validatorCount:       opts.ValidatorCount,
		keyLookup:            opts.KeyLookup,
		metrics:              opts.Metrics,
		logger:               log.New(log.Writer(), "[chain] ", log.LstdFlags),
		subs:                 make(map[int]chan Event),
	}
	if c.validatorCount == nil {
		c.validatorCount = func() int { return 1 }
	}
	if c.keyLookup == nil {
		c.keyLookup = func(string) ([]byte, bool) { return nil, false }
	}
	return c
}

// Init initializes the store and indices. If a chain metadata record is
// already persisted, state is restored from it and headCID is not
// consulted. Otherwise, if headCID is non-empty, it walks back along
// prevHash links (loading each block record by its hash) to
// reconstruct genesis, head slot, and finalized slot; failing both, it
// creates a fresh genesis block. Fails with chainerr.ErrChainInit on a
// corrupted backing store.
func (c *Chain) Init(headCID cid.CID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.store.RawDB().Get(metaKey)
	if err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
	}

	if raw != nil {
		var meta metaRecord
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("%w: corrupt metadata record: %v", chainerr.ErrChainInit, err)
		}
		c.genesisCID = meta.GenesisCID
		c.headCID = meta.HeadCID
		c.finalizedSlot = meta.FinalizedSlot
		c.slotRoot = meta.SlotRoot
		c.hashRoot = meta.HashRoot
		c.judgmentRoot = meta.JudgmentRoot

		head, err := c.loadRecord(c.headCID)
		if err != nil {
			return fmt.Errorf("%w: could not load head %s: %v", chainerr.ErrChainInit, c.headCID, err)
		}
		c.headSlot = head.Header.Slot
		c.emit(Event{Kind: EventInitialized, Slot: c.headSlot, BlockHash: c.headCID})
		return nil
	}

	if headCID != "" {
		head, err := c.loadRecord(headCID)
		if err != nil {
			return fmt.Errorf("%w: could not load requested head %s: %v", chainerr.ErrChainInit, headCID, err)
		}
		if err := c.reconstructFrom(head); err != nil {
			return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
		}
		c.emit(Event{Kind: EventInitialized, Slot: c.headSlot, BlockHash: c.headCID})
		return nil
	}

	genesis := block.Genesis(c.nodeID, uint64(time.Now().UnixMilli()))
	if err := c.persistBlock(genesis); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
	}
	genesisHash, err := genesis.Hash()
	if err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
	}
	if err := c.indexBlock(genesis, genesisHash); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
	}
	c.genesisCID = genesisHash
	c.headCID = genesisHash
	c.headSlot = 0
	c.finalizedSlot = 0
	if err := c.saveMeta(); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrChainInit, err)
	}
	c.emit(Event{Kind: EventInitialized, Slot: 0, BlockHash: genesisHash})
	return nil
}

// reconstructFrom walks prevHash links back from head to genesis
// (slot 0), setting genesisCID, headSlot, and finalizedSlot along the
// way. Indices are assumed already durable; this only recovers the
// in-memory head pointers.
func (c *Chain) reconstructFrom(head *block.Block) error {
	headHash, err := head.Hash()
	if err != nil {
		return err
	}
	c.headCID = headHash
	c.headSlot = head.Header.Slot
	if head.Finalized {
		c.finalizedSlot = head.Header.Slot
	}

	cur := head
	for cur.Header.Slot != 0 {
		prev, err := c.loadRecord(cur.Header.PrevHash)
		if err != nil {
			return fmt.Errorf("broken chain at slot %d: %w", cur.Header.Slot, err)
		}
		if prev.Finalized && prev.Header.Slot > c.finalizedSlot {
			c.finalizedSlot = prev.Header.Slot
		}
		cur = prev
	}
	genesisHash, err := cur.Hash()
	if err != nil {
		return err
	}
	c.genesisCID = genesisHash
	return nil
}

// --- blob/record persistence ---

// recordKeyBytes namespaces the mutable full-block record (header,
// judgments, attestations, finalized) separately from the immutable
// canonical core stored by BlockStore.Put: the record's bytes change
// as attestations accrue even though its CID — computed over the core
// only — never does.
func recordKeyBytes(c cid.CID) []byte {
	return append([]byte("record/"), []byte(c)...)
}

func (c *Chain) persistBlock(b *block.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("%w: encode block record: %v", chainerr.ErrStoreIO, err)
	}
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	// The canonical core (header+judgments) is immutable and
	// content-addressed; this call is idempotent for re-persists that
	// only touched attestations/finalized.
	core, err := b.Encode()
	if err != nil {
		return err
	}
	if err := c.store.Put(hash, core); err != nil {
		return err
	}
	if err := c.store.RawDB().SetSync(recordKeyBytes(hash), raw); err != nil {
		return fmt.Errorf("%w: write block record: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

func (c *Chain) loadRecord(hash cid.CID) (*block.Block, error) {
	raw, err := c.store.RawDB().Get(recordKeyBytes(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: block record %s not found", chainerr.ErrNotFound, hash)
	}
	var b block.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: decode block record: %v", chainerr.ErrBlockDecode, err)
	}
	return &b, nil
}

// --- indices ---

func (c *Chain) indexBlock(b *block.Block, hash cid.CID) error {
	slotKey := strconv.FormatUint(b.Header.Slot, 10)

	newSlotRoot, err := c.hamtIx.Set(c.slotRoot, slotKey, hash)
	if err != nil {
		return err
	}
	newHashRoot, err := c.hamtIx.Set(c.hashRoot, string(hash), hash)
	if err != nil {
		return err
	}
	newJudgmentRoot := c.judgmentRoot
	for _, j := range b.Judgments {
		newJudgmentRoot, err = c.hamtIx.Set(newJudgmentRoot, j.ID, cid.EncodeUint64(b.Header.Slot))
		if err != nil {
			return err
		}
	}

	// Commit all three new roots together: processBlock's caller only
	// advances head/meta after this function returns successfully, so
	// a failure here leaves the previous roots (and head) as the
	// durable, recoverable state.
	c.slotRoot = newSlotRoot
	c.hashRoot = newHashRoot
	c.judgmentRoot = newJudgmentRoot
	return nil
}

func (c *Chain) saveMeta() error {
	meta := metaRecord{
		GenesisCID:    c.genesisCID,
		HeadCID:       c.headCID,
		FinalizedSlot: c.finalizedSlot,
		SlotRoot:      c.slotRoot,
		HashRoot:      c.hashRoot,
		JudgmentRoot:  c.judgmentRoot,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: encode chain metadata: %v", chainerr.ErrStoreIO, err)
	}
	if err := c.store.RawDB().SetSync(metaKey, raw); err != nil {
		return fmt.Errorf("%w: write chain metadata: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

// --- public operations ---

// AddJudgment delegates to the pool. Pool insertion failures are
// non-fatal: a false return signals the caller, nothing else changes.
// The pool itself reports PoolSize on every mutation.
func (c *Chain) AddJudgment(j judgment.Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.pool.Add(j)
	if ok {
		c.emit(Event{Kind: EventJudgmentPending, NodeID: j.ID})
	}
	return ok
}

// ProposeBlock implements the Producer state machine: drain the pool,
// build a candidate header linked to the current head, self-attest,
// and return the candidate. Returns nil if this node is not a
// validator (no attestation key configured) or the pool is empty. The
// candidate is NOT ingested; call ProcessBlock to do that.
func (c *Chain) ProposeBlock() (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	selfKey, isValidator := c.keyLookup(c.nodeID)
	if !isValidator {
		return nil, nil
	}

	batch := c.pool.GetBatch(c.maxJudgmentsPerBlock)
	if len(batch) == 0 {
		return nil, nil
	}

	root, err := merkle.Root(cidsOf(batch))
	if err != nil {
		c.pool.ReturnBatch(batch)
		return nil, err
	}

	header := block.Header{
		Slot:          c.headSlot + 1,
		Timestamp:     uint64(time.Now().UnixMilli()),
		PrevHash:      c.headCID,
		JudgmentsRoot: root,
		Proposer:      c.nodeID,
	}
	candidate, err := block.New(header, batch)
	if err != nil {
		c.pool.ReturnBatch(batch)
		return nil, err
	}

	hash, err := candidate.Hash()
	if err != nil {
		c.pool.ReturnBatch(batch)
		return nil, err
	}
	sig := attest.Sign(selfKey, c.nodeID, candidate.Header.Slot, hash)
	candidate.AddAttestation(block.Attestation{
		NodeID:    c.nodeID,
		Slot:      candidate.Header.Slot,
		BlockHash: hash,
		Signature: sig,
	}, c.keyLookup)

	c.emit(Event{Kind: EventBlockProposed, Slot: candidate.Header.Slot, BlockHash: hash})
	c.pendingBatch = batch
	return candidate, nil
}

// cidsOf projects a judgment batch to its ordered CID list for Merkle
// root computation.
func cidsOf(batch []judgment.Ref) []cid.CID {
	out := make([]cid.CID, len(batch))
	for i, j := range batch {
		out[i] = j.CID
	}
	return out
}

// ProcessResult is the outcome of ProcessBlock/ProcessAttestation.
type ProcessResult struct {
	Success bool
	Err     error
}

// ProcessBlock validates, persists, and indexes a candidate block,
// then runs the Finalizer against its (possibly self-) attestations.
// On any failure the chain's durable head is unchanged: new index
// roots are only committed to c after every sub-index write succeeds
// and the block record is durable.
func (c *Chain) ProcessBlock(b *block.Block) ProcessResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := validate.Head{Slot: c.headSlot, Hash: c.headCID}
	result := validate.ValidateBlock(b, head, c.validators, c.judgmentExists, validate.Options{
		MaxJudgmentsPerBlock: c.maxJudgmentsPerBlock,
		EnforceRegistry:      c.enforceRegistry,
	})
	if !result.Success {
		c.returnPendingBatch()
		c.metrics.IncBlocksRejected()
		return ProcessResult{Success: false, Err: result.Err}
	}

	hash, err := b.Hash()
	if err != nil {
		c.returnPendingBatch()
		return ProcessResult{Success: false, Err: fmt.Errorf("%w: %v", chainerr.ErrBlockInvalid, err)}
	}

	if err := c.persistBlock(b); err != nil {
		c.returnPendingBatch()
		return ProcessResult{Success: false, Err: err}
	}
	if err := c.indexBlock(b, hash); err != nil {
		// Index roots are only mutated on c after this returns nil, so
		// a mid-way failure here has not advanced c.slotRoot etc; the
		// store may hold orphaned, unreferenced nodes, which is
		// harmless under structural sharing.
		c.returnPendingBatch()
		return ProcessResult{Success: false, Err: fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)}
	}

	c.headCID = hash
	c.headSlot = b.Header.Slot
	c.pendingBatch = nil
	if err := c.saveMeta(); err != nil {
		return ProcessResult{Success: false, Err: err}
	}

	c.metrics.IncBlocksProduced()
	c.emit(Event{Kind: EventBlockAdded, Slot: b.Header.Slot, BlockHash: hash})

	if c.finalizer.TryFinalize(b, c.validatorCount()) {
		if err := c.persistBlock(b); err != nil {
			// The block is already head; a failure to re-persist the
			// finalized flag is logged but not fatal to ingest, since
			// the core (and thus the chain's integrity) is untouched.
			c.logger.Printf("could not persist finalization of slot %d: %v", b.Header.Slot, err)
		} else {
			c.finalizedSlot = b.Header.Slot
			_ = c.saveMeta()
			c.emit(Event{Kind: EventBlockFinalized, Slot: b.Header.Slot, BlockHash: hash})
		}
	}

	return ProcessResult{Success: true}
}

func (c *Chain) returnPendingBatch() {
	if c.pendingBatch != nil {
		c.pool.ReturnBatch(c.pendingBatch)
		c.pendingBatch = nil
	}
}

func (c *Chain) judgmentExists(id string) (bool, error) {
	_, ok, err := c.hamtIx.Get(c.judgmentRoot, id)
	return ok, err
}

// ProcessAttestation locates the block at att.Slot, adds the
// attestation (subject to signature verification and dedup), re-persists
// it, and runs the Finalizer. Verification failures are discarded
// silently — no signal to the peer, no penalty — per the spec's
// failure semantics for attestations.
func (c *Chain) ProcessAttestation(att block.Attestation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.getBlockBySlotLocked(att.Slot)
	if err != nil || target == nil {
		c.metrics.IncAttestationsRejected()
		return false
	}

	if !target.AddAttestation(att, c.keyLookup) {
		c.metrics.IncAttestationsRejected()
		return false
	}

	if err := c.persistBlock(target); err != nil {
		c.logger.Printf("could not persist attestation for slot %d: %v", att.Slot, err)
		return false
	}
	c.metrics.IncAttestationsReceived()
	hash, _ := target.Hash()
	c.emit(Event{Kind: EventAttestationReceived, Slot: att.Slot, BlockHash: hash, NodeID: att.NodeID})

	if c.finalizer.TryFinalize(target, c.validatorCount()) {
		if err := c.persistBlock(target); err != nil {
			c.logger.Printf("could not persist finalization of slot %d: %v", att.Slot, err)
		} else {
			if target.Header.Slot > c.finalizedSlot {
				c.finalizedSlot = target.Header.Slot
			}
			_ = c.saveMeta()
			c.emit(Event{Kind: EventBlockFinalized, Slot: target.Header.Slot, BlockHash: hash})
		}
	}
	return true
}

// --- lookups ---

// GetBlockBySlot returns the block at slot, or nil if none exists.
func (c *Chain) GetBlockBySlot(slot uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getBlockBySlotLocked(slot)
}

func (c *Chain) getBlockBySlotLocked(slot uint64) (*block.Block, error) {
	hash, ok, err := c.hamtIx.Get(c.slotRoot, strconv.FormatUint(slot, 10))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c.loadRecord(hash)
}

// GetBlockByHash returns the block with the given hash, or nil if
// none exists.
func (c *Chain) GetBlockByHash(hash cid.CID) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.hamtIx.Has(c.hashRoot, string(hash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c.loadRecord(hash)
}

// FindJudgmentBlock returns the block containing judgment id, or nil
// if no such judgment has been recorded.
func (c *Chain) FindJudgmentBlock(id string) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slotCID, ok, err := c.hamtIx.Get(c.judgmentRoot, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	slot, err := cid.DecodeUint64(slotCID)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt judgment index entry for %s: %v", chainerr.ErrStoreIO, id, err)
	}
	return c.getBlockBySlotLocked(slot)
}

// HasJudgment reports whether id has been recorded anywhere in the
// chain.
func (c *Chain) HasJudgment(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.judgmentExists(id)
}

// GetBlockRange returns blocks with slot in [from, to], inclusive,
// skipping any missing slots.
func (c *Chain) GetBlockRange(from, to uint64) ([]*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*block.Block
	for s := from; s <= to; s++ {
		b, err := c.getBlockBySlotLocked(s)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, b)
		}
		if s == to {
			break
		}
	}
	return out, nil
}

// GetRecentBlocks returns up to n most recent blocks, newest first.
func (c *Chain) GetRecentBlocks(n int) ([]*block.Block, error) {
	if n <= 0 {
		return nil, nil
	}
	c.mu.Lock()
	head := c.headSlot
	c.mu.Unlock()

	var out []*block.Block
	for s := head; ; s-- {
		b, err := c.GetBlockBySlot(s)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, b)
		}
		if len(out) >= n || s == 0 {
			break
		}
	}
	return out, nil
}

// VerifyChainResult is the outcome of VerifyChain.
type VerifyChainResult struct {
	Valid         bool
	BlocksChecked int
	Errors        []string
}

// VerifyChain walks [fromSlot, toSlot], revalidating each block in
// isolation and re-checking I1/I2 against its predecessor. Read-only.
func (c *Chain) VerifyChain(fromSlot, toSlot uint64) VerifyChainResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []string
	checked := 0
	var prev *block.Block

	for s := fromSlot; s <= toSlot; s++ {
		b, err := c.getBlockBySlotLocked(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("slot %d: lookup failed: %v", s, err))
			if s == toSlot {
				break
			}
			continue
		}
		if b == nil {
			errs = append(errs, fmt.Sprintf("slot %d: missing", s))
			if s == toSlot {
				break
			}
			continue
		}
		checked++

		selfResult := b.Validate(c.maxJudgmentsPerBlock)
		if !selfResult.Valid {
			errs = append(errs, selfResult.Errors...)
		}
		if prev != nil {
			if b.Header.Slot != prev.Header.Slot+1 {
				errs = append(errs, fmt.Sprintf("slot %d: not prev.slot+1", s))
			}
			prevHash, err := prev.Hash()
			if err == nil && b.Header.PrevHash != prevHash {
				errs = append(errs, fmt.Sprintf("slot %d: prevHash does not match predecessor", s))
			}
		}
		prev = b
		if s == toSlot {
			break
		}
	}

	return VerifyChainResult{Valid: len(errs) == 0, BlocksChecked: checked, Errors: errs}
}

// JudgmentProof is the Merkle inclusion proof for one judgment.
type JudgmentProof struct {
	BlockSlot      uint64
	BlockHash      cid.CID
	JudgmentsRoot  cid.CID
	Index          int
	Path           []merkle.ProofStep
	TotalJudgments int
	LeafCID        cid.CID
}

// GetJudgmentProof returns the Merkle inclusion proof for judgment id,
// or nil if it is not recorded anywhere in the chain. A verifier with
// only {JudgmentsRoot, LeafCID, Path, Index} can independently
// reconstruct JudgmentsRoot via merkle.VerifyPath.
func (c *Chain) GetJudgmentProof(id string) (*JudgmentProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slotCID, ok, err := c.hamtIx.Get(c.judgmentRoot, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	slot, err := cid.DecodeUint64(slotCID)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt judgment index entry: %v", chainerr.ErrStoreIO, err)
	}
	b, err := c.getBlockBySlotLocked(slot)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: judgment %s indexed at slot %d but block missing", chainerr.ErrStoreIO, id, slot)
	}

	index := -1
	for i, j := range b.Judgments {
		if j.ID == id {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, fmt.Errorf("%w: judgment %s indexed at slot %d but absent from block", chainerr.ErrStoreIO, id, slot)
	}

	leaves := cidsOf(b.Judgments)
	path, err := merkle.Path(leaves, index)
	if err != nil {
		return nil, err
	}
	hash, err := b.Hash()
	if err != nil {
		return nil, err
	}

	return &JudgmentProof{
		BlockSlot:      slot,
		BlockHash:      hash,
		JudgmentsRoot:  b.Header.JudgmentsRoot,
		Index:          index,
		Path:           path,
		TotalJudgments: len(b.Judgments),
		LeafCID:        b.Judgments[index].CID,
	}, nil
}

// Stats is a read model over the chain's current state, mirroring the
// teacher's GetSystemLedgerLatest/GetAnchorLedger aggregate-reporting
// shape.
type Stats struct {
	NodeID        string
	HeadSlot      uint64
	HeadHash      cid.CID
	FinalizedSlot uint64
	Height        uint64
	PoolSize      int
}

// GetStats returns an aggregate snapshot of the chain's current state.
func (c *Chain) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		NodeID:        c.nodeID,
		HeadSlot:      c.headSlot,
		HeadHash:      c.headCID,
		FinalizedSlot: c.finalizedSlot,
		Height:        c.headSlot + 1,
		PoolSize:      c.pool.Size(),
	}
}

// Export is the full-chain JSON dump described by the external
// interfaces: {version, nodeId, exportedAt, blocks}, with blocks a
// linear array ordered by slot, plus a per-export runId.
type Export struct {
	Version    int            `json:"version"`
	NodeID     string         `json:"nodeId"`
	ExportedAt string         `json:"exportedAt"`
	RunID      string         `json:"runId"`
	Blocks     []*block.Block `json:"blocks"`
}

// ExportChain builds the full-chain export document.
func (c *Chain) ExportChain() (Export, error) {
	c.mu.Lock()
	head := c.headSlot
	c.mu.Unlock()

	blocks, err := c.GetBlockRange(0, head)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Version:    1,
		NodeID:     c.nodeID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		RunID:      uuid.NewString(),
		Blocks:     blocks,
	}, nil
}

// --- observers ---

// Subscribe registers a new observer channel. The returned function
// unsubscribes and closes the channel. The channel has a small buffer;
// if a subscriber falls behind, further events are dropped for it
// rather than blocking the chain actor.
func (c *Chain) Subscribe() (<-chan Event, func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan Event, 32)
	c.subs[id] = ch
	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if existing, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(existing)
		}
	}
}

func (c *Chain) emit(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than block the actor.
		}
	}
}

