// Copyright 2025 Certen Protocol
//
// Package attest computes and verifies the keyed-hash MAC that stands
// in for a validator signature on the PoJ chain. It is a narrowed
// reflection of the teacher's pkg/attestation/strategy.AttestationStrategy
// shape: that interface supports bls12-381/ed25519/schnorr/threshold
// schemes with key management, none of which apply here (the PoJ
// chain's non-goals explicitly exclude cryptographic key management –
// signing is a caller-supplied keyed-hash function). Only the
// pluggable-strategy shape and the "compute message hash, then sign
// it" structure are carried forward; the asymmetric implementations
// are not.
package attest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/pojchain/pkg/cid"
)

// MAC is a 32-byte keyed-hash message authentication code. It is not
// a publicly verifiable signature: soundness depends entirely on
// trusted distribution of the per-validator key.
type MAC [32]byte

// MarshalJSON renders a MAC as a hex string, matching the
// hex-encoded-hash convention used throughout the chain's wire types.
func (m MAC) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(m[:]))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *MAC) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("mac: invalid hex: %w", err)
	}
	if len(b) != len(m) {
		return fmt.Errorf("mac: expected %d bytes, got %d", len(m), len(b))
	}
	copy(m[:], b)
	return nil
}

// Message canonicalizes the fields an attestation's MAC is computed
// over: nodeId || slot || blockHash, matching the wire description in
// the data model.
func Message(nodeID string, slot uint64, blockHash cid.CID) []byte {
	buf := make([]byte, 0, len(nodeID)+8+len(blockHash))
	buf = append(buf, []byte(nodeID)...)
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], slot)
	buf = append(buf, slotBytes[:]...)
	buf = append(buf, []byte(blockHash)...)
	return buf
}

// Sign computes keyed_hash(key, nodeId||slot||blockHash).
func Sign(key []byte, nodeID string, slot uint64, blockHash cid.CID) MAC {
	mac := hmac.New(sha256.New, key)
	mac.Write(Message(nodeID, slot, blockHash))
	var out MAC
	copy(out[:], mac.Sum(nil))
	return out
}

// Verify recomputes the MAC under key and compares it against sig in
// constant time.
func Verify(key []byte, nodeID string, slot uint64, blockHash cid.CID, sig MAC) bool {
	expected := Sign(key, nodeID, slot, blockHash)
	return subtle.ConstantTimeCompare(expected[:], sig[:]) == 1
}

// KeyLookup resolves a validator's keyed-hash secret by node ID. It
// is the pluggable-strategy seam: cmd/pojd backs this with the
// validator registry loaded from validators.yaml, but pkg/block and
// pkg/chain depend only on this function type, not on any particular
// registry implementation.
type KeyLookup func(nodeID string) (key []byte, ok bool)
