package block

import (
	"testing"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/judgment"
)

func sampleJudgments() []judgment.Ref {
	return []judgment.Ref{
		{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 72, Verdict: judgment.VerdictWag},
		{ID: "j2", CID: cid.Sum([]byte("c2")), QScore: 80, Verdict: judgment.VerdictWag},
	}
}

func TestGenesisBlockShape(t *testing.T) {
	g := Genesis("n1", 1000)
	if g.Header.Slot != 0 {
		t.Fatalf("genesis slot = %d, want 0", g.Header.Slot)
	}
	if g.Header.PrevHash != "" {
		t.Fatal("genesis must have a nil prevHash")
	}
	if !g.Finalized {
		t.Fatal("genesis must be pre-finalized")
	}
	if len(g.Judgments) != 0 {
		t.Fatal("genesis must carry no judgments")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	header := Header{
		Slot:      1,
		Timestamp: 123456,
		PrevHash:  cid.Sum([]byte("genesis")),
		Proposer:  "n1",
	}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}

	wantHash, err := b.Hash()
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	gotHash, err := decoded.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if gotHash != wantHash {
		t.Fatalf("decoded.Hash() = %s, want %s", gotHash, wantHash)
	}
	if len(decoded.Judgments) != 2 || decoded.Judgments[0].ID != "j1" {
		t.Fatalf("judgments did not round-trip: %+v", decoded.Judgments)
	}
	if decoded.Header.Proposer != "n1" {
		t.Fatal("proposer did not round-trip")
	}
}

func TestHashExcludesAttestationsAndFinalized(t *testing.T) {
	header := Header{Slot: 1, PrevHash: cid.Sum([]byte("genesis")), Proposer: "n1"}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}
	h1, _ := b.Hash()

	b.Finalized = true
	b.Attestations = append(b.Attestations, Attestation{NodeID: "n1", Slot: 1})
	h2, _ := b.Hash()

	if h1 != h2 {
		t.Fatal("Hash() must be invariant under attestations/finalized mutation")
	}
}

func TestValidateChecksJudgmentsRootAndLimit(t *testing.T) {
	header := Header{Slot: 1, PrevHash: cid.Sum([]byte("genesis")), Proposer: "n1"}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}
	result := b.Validate(DefaultMaxJudgmentsPerBlock)
	if !result.Valid {
		t.Fatalf("expected valid block, got errors: %v", result.Errors)
	}

	tooMany := make([]judgment.Ref, DefaultMaxJudgmentsPerBlock+1)
	for i := range tooMany {
		tooMany[i] = judgment.Ref{ID: string(rune('a' + i)), CID: cid.Sum([]byte{byte(i)})}
	}
	overflow, err := New(header, tooMany)
	if err != nil {
		t.Fatal(err)
	}
	result = overflow.Validate(DefaultMaxJudgmentsPerBlock)
	if result.Valid {
		t.Fatal("expected validation to reject a block exceeding MAX_JUDGMENTS_PER_BLOCK")
	}
}

func TestValidateRejectsGenesisSlotMismatch(t *testing.T) {
	header := Header{Slot: 0, PrevHash: cid.Sum([]byte("nonempty")), Proposer: "n1"}
	b, err := New(header, nil)
	if err != nil {
		t.Fatal(err)
	}
	result := b.Validate(0)
	if result.Valid {
		t.Fatal("expected genesis with a prevHash to be invalid")
	}
}

func TestAddAttestationVerifiesAndDedups(t *testing.T) {
	header := Header{Slot: 1, PrevHash: cid.Sum([]byte("genesis")), Proposer: "n1"}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}
	hash, _ := b.Hash()

	key := []byte("secret")
	lookup := func(nodeID string) ([]byte, bool) {
		if nodeID == "n1" {
			return key, true
		}
		return nil, false
	}

	sig := attest.Sign(key, "n1", 1, hash)
	att := Attestation{NodeID: "n1", Slot: 1, BlockHash: hash, Signature: sig}

	if !b.AddAttestation(att, lookup) {
		t.Fatal("expected first valid attestation to be accepted")
	}
	if b.AddAttestation(att, lookup) {
		t.Fatal("expected duplicate attestation to be rejected")
	}
	if len(b.Attestations) != 1 {
		t.Fatalf("len(Attestations) = %d, want 1", len(b.Attestations))
	}
}

func TestAddAttestationRejectsBadSignature(t *testing.T) {
	header := Header{Slot: 1, PrevHash: cid.Sum([]byte("genesis")), Proposer: "n1"}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}
	hash, _ := b.Hash()
	lookup := func(string) ([]byte, bool) { return []byte("key"), true }

	bogus := Attestation{NodeID: "n1", Slot: 1, BlockHash: hash}
	if b.AddAttestation(bogus, lookup) {
		t.Fatal("expected attestation with zero signature to be rejected")
	}
}

func TestHasQuorum(t *testing.T) {
	header := Header{Slot: 1, PrevHash: cid.Sum([]byte("genesis")), Proposer: "n1"}
	b, err := New(header, sampleJudgments())
	if err != nil {
		t.Fatal(err)
	}
	hash, _ := b.Hash()
	lookup := func(nodeID string) ([]byte, bool) { return []byte("k-" + nodeID), true }

	for _, n := range []string{"n1", "n2", "n3"} {
		sig := attest.Sign([]byte("k-"+n), n, 1, hash)
		b.AddAttestation(Attestation{NodeID: n, Slot: 1, BlockHash: hash, Signature: sig}, lookup)
	}

	if b.HasQuorum(5, 0) {
		t.Fatal("3/5 = 0.6 should not meet default quorum 0.618")
	}

	sig := attest.Sign([]byte("k-n4"), "n4", 1, hash)
	b.AddAttestation(Attestation{NodeID: "n4", Slot: 1, BlockHash: hash, Signature: sig}, lookup)

	if !b.HasQuorum(5, 0) {
		t.Fatal("4/5 = 0.8 should meet default quorum 0.618")
	}
}
