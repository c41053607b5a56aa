package validate

import (
	"errors"
	"testing"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/chainerr"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/judgment"
)

func buildBlock(t *testing.T, slot uint64, prevHash cid.CID) *block.Block {
	t.Helper()
	judgments := []judgment.Ref{
		{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 50, Verdict: judgment.VerdictWag},
	}
	b, err := block.New(block.Header{Slot: slot, PrevHash: prevHash, Proposer: "n1"}, judgments)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestValidateBlockAccepts(t *testing.T) {
	head := Head{Slot: 0, Hash: cid.Sum([]byte("genesis"))}
	b := buildBlock(t, 1, head.Hash)
	result := ValidateBlock(b, head, nil, func(string) (bool, error) { return false, nil }, Options{MaxJudgmentsPerBlock: 13})
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
}

func TestValidateBlockRejectsSlotMismatch(t *testing.T) {
	head := Head{Slot: 1, Hash: cid.Sum([]byte("head"))}
	b := buildBlock(t, 100, head.Hash)
	result := ValidateBlock(b, head, nil, nil, Options{MaxJudgmentsPerBlock: 13})
	if result.Success {
		t.Fatal("expected rejection for slot mismatch")
	}
	if !errors.Is(result.Err, chainerr.ErrSlotMismatch) {
		t.Fatalf("expected ErrSlotMismatch, got %v", result.Err)
	}
}

func TestValidateBlockRejectsPrevHashMismatch(t *testing.T) {
	head := Head{Slot: 1, Hash: cid.Sum([]byte("head"))}
	b := buildBlock(t, 2, cid.Sum([]byte("wrong")))
	result := ValidateBlock(b, head, nil, nil, Options{MaxJudgmentsPerBlock: 13})
	if result.Success {
		t.Fatal("expected rejection for prevHash mismatch")
	}
	if !errors.Is(result.Err, chainerr.ErrPrevHashMismatch) {
		t.Fatalf("expected ErrPrevHashMismatch, got %v", result.Err)
	}
}

func TestValidateBlockRejectsDuplicateJudgmentID(t *testing.T) {
	head := Head{Slot: 0, Hash: cid.Sum([]byte("genesis"))}
	b := buildBlock(t, 1, head.Hash)
	existing := func(id string) (bool, error) { return id == "j1", nil }
	result := ValidateBlock(b, head, nil, existing, Options{MaxJudgmentsPerBlock: 13})
	if result.Success {
		t.Fatal("expected rejection for a judgment id already present in the chain")
	}
	if !errors.Is(result.Err, chainerr.ErrDuplicateJudgment) {
		t.Fatalf("expected ErrDuplicateJudgment, got %v", result.Err)
	}
}

func TestValidateBlockEnforcesRegistry(t *testing.T) {
	head := Head{Slot: 0, Hash: cid.Sum([]byte("genesis"))}
	b := buildBlock(t, 1, head.Hash)
	registry := fakeRegistry{"n2": true}
	result := ValidateBlock(b, head, registry, nil, Options{MaxJudgmentsPerBlock: 13, EnforceRegistry: true})
	if result.Success {
		t.Fatal("expected rejection: proposer n1 is not in the registry")
	}
}

type fakeRegistry map[string]bool

func (f fakeRegistry) Contains(nodeID string) bool { return f[nodeID] }

func TestVerifyAttestation(t *testing.T) {
	key := []byte("secret")
	sig := attest.Sign(key, "n1", 1, "deadbeef")
	att := block.Attestation{NodeID: "n1", Slot: 1, BlockHash: "deadbeef", Signature: sig}
	if !VerifyAttestation(att, key) {
		t.Fatal("expected attestation to verify")
	}
	if VerifyAttestation(att, []byte("wrong-key")) {
		t.Fatal("expected attestation to fail under wrong key")
	}
}
