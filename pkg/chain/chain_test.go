package chain

import (
	"strings"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/config"
	"github.com/certen/pojchain/pkg/judgment"
	"github.com/certen/pojchain/pkg/merkle"
	"github.com/certen/pojchain/pkg/store"
)

type fakeRegistry map[string]bool

func (f fakeRegistry) Contains(nodeID string) bool { return f[nodeID] }

func newFreshChain(t *testing.T, nodeID string, keys map[string][]byte, totalValidators int) *Chain {
	t.Helper()
	bs := store.New(dbm.NewMemDB())
	cfg := config.Config{}.Defaults()
	opts := Options{
		KeyLookup: func(id string) ([]byte, bool) {
			k, ok := keys[id]
			return k, ok
		},
		ValidatorCount: func() int { return totalValidators },
	}
	c := New(nodeID, bs, cfg, opts)
	if err := c.Init(""); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

// S1 — Genesis.
func TestGenesisChainShape(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)
	stats := c.GetStats()
	if stats.HeadSlot != 0 {
		t.Fatalf("expected headSlot 0, got %d", stats.HeadSlot)
	}
	if stats.Height != 1 {
		t.Fatalf("expected height 1, got %d", stats.Height)
	}
	head, err := c.GetBlockBySlot(0)
	if err != nil || head == nil {
		t.Fatalf("expected genesis block, err=%v", err)
	}
	if head.Header.PrevHash != "" {
		t.Fatal("genesis prevHash must be empty")
	}
	if !head.Finalized {
		t.Fatal("genesis must be pre-finalized")
	}
}

// S2 — Single block.
func TestAddJudgmentProposeAndProcess(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)

	if !c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 72, Verdict: judgment.VerdictWag}) {
		t.Fatal("expected j1 to be accepted")
	}
	if !c.AddJudgment(judgment.Ref{ID: "j2", CID: cid.Sum([]byte("c2")), QScore: 80, Verdict: judgment.VerdictWag}) {
		t.Fatal("expected j2 to be accepted")
	}

	candidate, err := c.ProposeBlock()
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if candidate == nil {
		t.Fatal("expected a candidate block")
	}
	if candidate.Header.Slot != 1 {
		t.Fatalf("expected slot 1, got %d", candidate.Header.Slot)
	}
	if len(candidate.Judgments) != 2 {
		t.Fatalf("expected 2 judgments, got %d", len(candidate.Judgments))
	}
	if len(candidate.Attestations) != 1 {
		t.Fatalf("expected 1 self-attestation, got %d", len(candidate.Attestations))
	}

	result := c.ProcessBlock(candidate)
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if c.GetStats().HeadSlot != 1 {
		t.Fatalf("expected headSlot 1, got %d", c.GetStats().HeadSlot)
	}

	found, err := c.FindJudgmentBlock("j1")
	if err != nil || found == nil {
		t.Fatalf("expected to find j1's block, err=%v", err)
	}
	if found.Header.Slot != 1 {
		t.Fatalf("expected j1 in slot 1, got %d", found.Header.Slot)
	}
}

// S3 — Invalid slot rejected.
func TestProcessBlockRejectsBadSlot(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50})
	candidate, err := c.ProposeBlock()
	if err != nil || candidate == nil {
		t.Fatalf("propose failed: %v", err)
	}
	if result := c.ProcessBlock(candidate); !result.Success {
		t.Fatalf("baseline ingest should succeed: %v", result.Err)
	}

	head := c.GetStats()
	root, _ := merkle.Root(nil)
	crafted, err := block.New(block.Header{
		Slot:          100,
		PrevHash:      head.HeadHash,
		JudgmentsRoot: root,
		Proposer:      "n1",
	}, nil)
	if err != nil {
		t.Fatalf("build crafted block: %v", err)
	}

	result := c.ProcessBlock(crafted)
	if result.Success {
		t.Fatal("expected rejection of slot 100 block")
	}
	if !strings.Contains(result.Err.Error(), "slot") {
		t.Fatalf("expected error to mention slot, got %v", result.Err)
	}
	if c.GetStats().HeadSlot != head.HeadSlot {
		t.Fatalf("headSlot must be unchanged, got %d want %d", c.GetStats().HeadSlot, head.HeadSlot)
	}
}

// S5 — Quorum threshold and finalization.
func TestQuorumFinalization(t *testing.T) {
	keys := map[string][]byte{
		"n1": []byte("k1"), "n2": []byte("k2"), "n3": []byte("k3"),
		"n4": []byte("k4"), "n5": []byte("k5"),
	}
	c := newFreshChain(t, "n1", keys, 5)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50})
	candidate, err := c.ProposeBlock()
	if err != nil || candidate == nil {
		t.Fatalf("propose failed: %v", err)
	}
	if result := c.ProcessBlock(candidate); !result.Success {
		t.Fatalf("ingest failed: %v", result.Err)
	}

	events, unsub := c.Subscribe()
	defer unsub()

	attest := func(nodeID string) {
		hash, _ := candidate.Hash()
		sig := attest.Sign(keys[nodeID], nodeID, candidate.Header.Slot, hash)
		if !c.ProcessAttestation(block.Attestation{NodeID: nodeID, Slot: candidate.Header.Slot, BlockHash: hash, Signature: sig}) {
			t.Fatalf("attestation from %s rejected", nodeID)
		}
	}

	// n1 already self-attested during ProposeBlock. Add n2, n3: 3/5, below quorum.
	attest("n2")
	attest("n3")
	b, _ := c.GetBlockBySlot(1)
	if b.Finalized {
		t.Fatal("must not be finalized at 3/5")
	}

	attest("n4")
	b, _ = c.GetBlockBySlot(1)
	if !b.Finalized {
		t.Fatal("expected finalization at 4/5")
	}
	if c.GetStats().FinalizedSlot != 1 {
		t.Fatalf("expected finalizedSlot 1, got %d", c.GetStats().FinalizedSlot)
	}

	finalizedEvents := 0
	draining := true
	for draining {
		select {
		case ev := <-events:
			if ev.Kind == EventBlockFinalized {
				finalizedEvents++
			}
		default:
			draining = false
		}
	}
	if finalizedEvents != 1 {
		t.Fatalf("expected exactly 1 block:finalized event, got %d", finalizedEvents)
	}
}

// S6 — Inclusion proof.
func TestJudgmentProofVerifies(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50})
	c.AddJudgment(judgment.Ref{ID: "j2", CID: cid.Sum([]byte("c2")), QScore: 60})
	candidate, _ := c.ProposeBlock()
	if result := c.ProcessBlock(candidate); !result.Success {
		t.Fatalf("ingest: %v", result.Err)
	}

	proof, err := c.GetJudgmentProof("j1")
	if err != nil || proof == nil {
		t.Fatalf("expected proof, err=%v", err)
	}
	ok, err := merkle.VerifyPath(proof.LeafCID, proof.Path, proof.JudgmentsRoot)
	if err != nil || !ok {
		t.Fatalf("proof did not verify: ok=%v err=%v", ok, err)
	}

	tampered, err := merkle.VerifyPath(cid.Sum([]byte("not-j1")), proof.Path, proof.JudgmentsRoot)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tampered {
		t.Fatal("tampered leaf must not verify")
	}
}

func TestVerifyChainAcceptsValidLinkage(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50})
	candidate, _ := c.ProposeBlock()
	if result := c.ProcessBlock(candidate); !result.Success {
		t.Fatalf("ingest: %v", result.Err)
	}

	result := c.VerifyChain(0, 1)
	if !result.Valid {
		t.Fatalf("expected valid chain, errors=%v", result.Errors)
	}
	if result.BlocksChecked != 2 {
		t.Fatalf("expected 2 blocks checked, got %d", result.BlocksChecked)
	}
}

func TestExportChainIncludesAllBlocks(t *testing.T) {
	c := newFreshChain(t, "n1", map[string][]byte{"n1": []byte("k1")}, 1)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50})
	candidate, _ := c.ProposeBlock()
	if result := c.ProcessBlock(candidate); !result.Success {
		t.Fatalf("ingest: %v", result.Err)
	}

	export, err := c.ExportChain()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(export.Blocks) != 2 {
		t.Fatalf("expected 2 blocks (genesis + slot 1), got %d", len(export.Blocks))
	}
}

func TestRegistryEnforcementRejectsUnknownProposer(t *testing.T) {
	bs := store.New(dbm.NewMemDB())
	cfg := config.Config{}.Defaults()
	reg := fakeRegistry{"n1": true}
	opts := Options{
		Validators:     reg,
		KeyLookup:      func(id string) ([]byte, bool) { return []byte("k-" + id), true },
		ValidatorCount: func() int { return 1 },
	}
	c := New("n1", bs, cfg, opts)
	if err := c.Init(""); err != nil {
		t.Fatalf("init: %v", err)
	}

	root, _ := merkle.Root(nil)
	crafted, _ := block.New(block.Header{
		Slot: 1, PrevHash: c.GetStats().HeadHash, JudgmentsRoot: root, Proposer: "intruder",
	}, nil)
	result := c.ProcessBlock(crafted)
	if result.Success {
		t.Fatal("expected rejection of unregistered proposer")
	}
}
