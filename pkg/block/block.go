// Copyright 2025 Certen Protocol
//
// Package block defines the PoJ chain's block structure, its
// canonical wire encoding, and the self-contained checks a block can
// run against itself (as opposed to checks that require knowledge of
// the chain head, which live in pkg/validate).
package block

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/chainerr"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/judgment"
	"github.com/certen/pojchain/pkg/merkle"
)

// DefaultMaxJudgmentsPerBlock is I4's default limit.
const DefaultMaxJudgmentsPerBlock = 13

// DefaultQuorumThreshold is the default fraction of the registered
// validator set whose attestations finalize a block: the golden-ratio
// conjugate, φ⁻¹ ≈ 0.618.
const DefaultQuorumThreshold = 0.6180339887498949

// wireVersion is bumped if the canonical encoding ever changes shape.
const wireVersion = 1

// Header is a block's header: everything needed to place it in the
// chain and bind it to its judgment set. Timestamp is informational;
// ordering is strictly by Slot.
type Header struct {
	Slot          uint64  `json:"slot"`
	Timestamp     uint64  `json:"timestamp"` // unix milliseconds
	PrevHash      cid.CID `json:"prevHash,omitempty"`
	JudgmentsRoot cid.CID `json:"judgmentsRoot"`
	Proposer      string  `json:"proposer"`
}

// Attestation is a validator's keyed-hash MAC asserting that
// BlockHash belongs at Slot.
type Attestation struct {
	NodeID    string     `json:"nodeId"`
	Slot      uint64     `json:"slot"`
	BlockHash cid.CID    `json:"blockHash"`
	Signature attest.MAC `json:"signature"`
}

// key identifies an attestation for duplicate detection: two
// attestations are duplicates iff they share (nodeId, slot, blockHash).
func (a Attestation) key() string {
	return a.NodeID + "/" + fmt.Sprint(a.Slot) + "/" + string(a.BlockHash)
}

// Block is a header, its ordered judgment set, the attestations
// accumulated against it, and its finalization flag. Only
// AddAttestation and finalization (via pkg/finalize) mutate a Block
// after construction; Header and Judgments never change once built.
type Block struct {
	Header       Header         `json:"header"`
	Judgments    []judgment.Ref `json:"judgments"`
	Attestations []Attestation  `json:"attestations"`
	Finalized    bool           `json:"finalized"`

	attestationKeys map[string]struct{}
}

// New constructs a block from a header and judgment list, computing
// JudgmentsRoot if the caller left it empty. Does not validate; call
// Validate separately.
func New(header Header, judgments []judgment.Ref) (*Block, error) {
	if header.JudgmentsRoot == "" {
		root, err := judgmentsRoot(judgments)
		if err != nil {
			return nil, err
		}
		header.JudgmentsRoot = root
	}
	return &Block{Header: header, Judgments: judgments}, nil
}

func judgmentsRoot(judgments []judgment.Ref) (cid.CID, error) {
	cids := make([]cid.CID, len(judgments))
	for i, j := range judgments {
		cids[i] = j.CID
	}
	return merkle.Root(cids)
}

// Genesis builds the slot-0 genesis block: no judgments, no prevHash,
// pre-finalized.
func Genesis(proposer string, timestampMs uint64) *Block {
	root, _ := merkle.Root(nil) // empty list: always succeeds
	b := &Block{
		Header: Header{
			Slot:          0,
			Timestamp:     timestampMs,
			PrevHash:      "",
			JudgmentsRoot: root,
			Proposer:      proposer,
		},
		Judgments: nil,
		Finalized: true,
	}
	return b
}

// Encode produces the canonical byte sequence over header fields (in
// fixed order) and judgments (in list order). Attestations and the
// Finalized flag are deliberately excluded: they are mutable
// post-creation metadata, not part of a block's identity.
func (b *Block) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(wireVersion)
	writeUint64(&buf, b.Header.Slot)
	writeUint64(&buf, b.Header.Timestamp)
	if err := writeCID(&buf, b.Header.PrevHash); err != nil {
		return nil, err
	}
	if err := writeCIDRequired(&buf, b.Header.JudgmentsRoot); err != nil {
		return nil, err
	}
	writeString(&buf, b.Header.Proposer)

	writeUint32(&buf, uint32(len(b.Judgments)))
	for _, j := range b.Judgments {
		writeString(&buf, j.ID)
		if err := writeCIDRequired(&buf, j.CID); err != nil {
			return nil, err
		}
		writeUint32(&buf, uint32(int32(j.QScore)))
		writeString(&buf, string(j.Verdict))
		writeBytes(&buf, j.Metadata)
	}

	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. It fails with chainerr.ErrBlockDecode
// on any missing, malformed, or over-limit field.
func Decode(data []byte) (*Block, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version byte: %v", chainerr.ErrBlockDecode, err)
	}
	if version != wireVersion {
		return nil, fmt.Errorf("%w: unsupported wire version %d", chainerr.ErrBlockDecode, version)
	}

	slot, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: slot: %v", chainerr.ErrBlockDecode, err)
	}
	timestamp, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", chainerr.ErrBlockDecode, err)
	}
	prevHash, err := readCID(r)
	if err != nil {
		return nil, fmt.Errorf("%w: prevHash: %v", chainerr.ErrBlockDecode, err)
	}
	judgmentsRoot, err := readCIDRequired(r)
	if err != nil {
		return nil, fmt.Errorf("%w: judgmentsRoot: %v", chainerr.ErrBlockDecode, err)
	}
	proposer, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: proposer: %v", chainerr.ErrBlockDecode, err)
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: judgment count: %v", chainerr.ErrBlockDecode, err)
	}
	const maxJudgmentsHardLimit = 1 << 16
	if count > maxJudgmentsHardLimit {
		return nil, fmt.Errorf("%w: judgment count %d exceeds hard limit", chainerr.ErrBlockDecode, count)
	}

	judgments := make([]judgment.Ref, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: judgment[%d].id: %v", chainerr.ErrBlockDecode, i, err)
		}
		jc, err := readCIDRequired(r)
		if err != nil {
			return nil, fmt.Errorf("%w: judgment[%d].cid: %v", chainerr.ErrBlockDecode, i, err)
		}
		qRaw, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: judgment[%d].qScore: %v", chainerr.ErrBlockDecode, i, err)
		}
		verdict, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: judgment[%d].verdict: %v", chainerr.ErrBlockDecode, i, err)
		}
		meta, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: judgment[%d].metadata: %v", chainerr.ErrBlockDecode, i, err)
		}
		judgments = append(judgments, judgment.Ref{
			ID:       id,
			CID:      jc,
			QScore:   int(int32(qRaw)),
			Verdict:  judgment.Verdict(verdict),
			Metadata: json.RawMessage(meta),
		})
	}

	return &Block{
		Header: Header{
			Slot:          slot,
			Timestamp:     timestamp,
			PrevHash:      prevHash,
			JudgmentsRoot: judgmentsRoot,
			Proposer:      proposer,
		},
		Judgments: judgments,
	}, nil
}

// Hash is the block's CID: the hash of its canonical encoding,
// excluding attestations and the finalized flag. Pure and
// deterministic.
func (b *Block) Hash() (cid.CID, error) {
	encoded, err := b.Encode()
	if err != nil {
		return "", err
	}
	return cid.Sum(encoded), nil
}

// ValidationResult reports the outcome of a self-contained Validate
// call.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate runs the checks a block can perform on itself: I3
// (judgmentsRoot matches the judgment CIDs), I4 (judgment count
// within limit), and self-consistency of slot/prevHash. Chain-level
// linkage (I1, I2) requires the known head and is checked by
// pkg/validate instead.
func (b *Block) Validate(maxJudgmentsPerBlock int) ValidationResult {
	var errs []string
	add := func(msg string) { errs = append(errs, msg) }

	if maxJudgmentsPerBlock <= 0 {
		maxJudgmentsPerBlock = DefaultMaxJudgmentsPerBlock
	}

	if len(b.Judgments) > maxJudgmentsPerBlock {
		add(fmt.Sprintf("judgment count %d exceeds max %d", len(b.Judgments), maxJudgmentsPerBlock))
	}

	root, err := judgmentsRoot(b.Judgments)
	if err != nil {
		add(fmt.Sprintf("could not compute judgments root: %v", err))
	} else if root != b.Header.JudgmentsRoot {
		add("judgmentsRoot does not match merkle root of judgment cids")
	}

	isGenesis := b.Header.Slot == 0
	hasPrevHash := b.Header.PrevHash != ""
	if isGenesis && hasPrevHash {
		add("genesis block must not have a prevHash")
	}
	if !isGenesis && !hasPrevHash {
		add("non-genesis block must have a prevHash")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// AddAttestation verifies att against this block (slot and hash
// linkage, then the MAC itself via lookup) and, if it passes and is
// not a duplicate of an existing attestation, appends it. Returns
// true if inserted.
func (b *Block) AddAttestation(att Attestation, lookup attest.KeyLookup) bool {
	hash, err := b.Hash()
	if err != nil {
		return false
	}
	if att.Slot != b.Header.Slot || att.BlockHash != hash {
		return false
	}
	key, ok := lookup(att.NodeID)
	if !ok {
		return false
	}
	if !attest.Verify(key, att.NodeID, att.Slot, att.BlockHash, att.Signature) {
		return false
	}

	if b.attestationKeys == nil {
		b.attestationKeys = make(map[string]struct{}, len(b.Attestations))
		for _, existing := range b.Attestations {
			b.attestationKeys[existing.key()] = struct{}{}
		}
	}
	k := att.key()
	if _, dup := b.attestationKeys[k]; dup {
		return false
	}
	b.attestationKeys[k] = struct{}{}
	b.Attestations = append(b.Attestations, att)
	return true
}

// HasQuorum reports whether the fraction of attestations over
// totalValidators meets or exceeds threshold. A threshold <= 0 falls
// back to DefaultQuorumThreshold.
func (b *Block) HasQuorum(totalValidators int, threshold float64) bool {
	if totalValidators <= 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultQuorumThreshold
	}
	return float64(len(b.Attestations))/float64(totalValidators) >= threshold
}

// --- canonical encoding primitives ---

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

// writeCID writes an optional CID: a presence byte followed by its 32
// raw bytes if present. Used for prevHash, which is null at genesis.
func writeCID(buf *bytes.Buffer, c cid.CID) error {
	if c == "" {
		buf.WriteByte(0)
		return nil
	}
	raw, err := c.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrBlockDecode, err)
	}
	buf.WriteByte(1)
	buf.Write(raw)
	return nil
}

// writeCIDRequired writes a CID that must always be present (judgmentsRoot,
// a judgment's own cid).
func writeCIDRequired(buf *bytes.Buffer, c cid.CID) error {
	raw, err := c.Bytes()
	if err != nil {
		return fmt.Errorf("%w: required cid missing or malformed: %v", chainerr.ErrBlockDecode, err)
	}
	buf.Write(raw)
	return nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const maxFieldBytes = 1 << 20 // 1MiB: generous ceiling against malformed length prefixes

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxFieldBytes {
		return nil, fmt.Errorf("field length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readCID(r *bytes.Reader) (cid.CID, error) {
	present, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if present == 0 {
		return "", nil
	}
	var b [cid.Width]byte
	if _, err := readFull(r, b[:]); err != nil {
		return "", err
	}
	return cid.CID(fmt.Sprintf("%x", b)), nil
}

func readCIDRequired(r *bytes.Reader) (cid.CID, error) {
	var b [cid.Width]byte
	if _, err := readFull(r, b[:]); err != nil {
		return "", err
	}
	return cid.CID(fmt.Sprintf("%x", b)), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(b))
	}
	return n, nil
}
