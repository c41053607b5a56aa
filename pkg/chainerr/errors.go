// Copyright 2025 Certen Protocol
//
// Package chainerr provides sentinel errors for the PoJ chain.
// F.4 remediation: explicit, typed errors instead of nil, nil returns.
package chainerr

import "errors"

// Sentinel errors, one per kind in the error-handling design. Wrap
// these with fmt.Errorf("%w: ...") to attach context; callers should
// still be able to errors.Is against the sentinel.
var (
	// ErrStoreIO is raised by BlockStore when the underlying layer
	// fails. Fatal to the current operation; callers must retry or
	// fail upward.
	ErrStoreIO = errors.New("chain: store i/o failure")

	// ErrBlockDecode is raised by Block.Decode when a field is
	// missing, malformed, or exceeds a configured limit.
	ErrBlockDecode = errors.New("chain: block decode failed")

	// ErrBlockInvalid is raised by the Validator on structural
	// failure, an unregistered proposer, or a failed judgment-id
	// lookup. Slot and prevHash linkage failures use their own
	// sentinels below.
	ErrBlockInvalid = errors.New("chain: block invalid")

	// ErrSlotMismatch is raised by Chain.ProcessBlock when the
	// candidate slot does not equal head.slot+1.
	ErrSlotMismatch = errors.New("chain: slot mismatch")

	// ErrPrevHashMismatch is raised by Chain.ProcessBlock when the
	// candidate's prevHash does not equal the current head hash.
	ErrPrevHashMismatch = errors.New("chain: prev hash mismatch")

	// ErrDuplicateJudgment is raised by Chain.ProcessBlock when a
	// judgment id already appears earlier in the chain.
	ErrDuplicateJudgment = errors.New("chain: duplicate judgment id")

	// ErrAttestationInvalid names the invalid-attestation error kind.
	// No code path returns it: an attestation that fails
	// signature or linkage verification is reported only as a false
	// return from Block.AddAttestation / Chain.ProcessAttestation and
	// is discarded; no penalty is signaled.
	ErrAttestationInvalid = errors.New("chain: attestation invalid")

	// ErrChainInit is raised by Chain.Init on a corrupted backing
	// store. Fatal to the chain instance; requires operator
	// intervention.
	ErrChainInit = errors.New("chain: init failed")

	// ErrNotFound is returned when a block record addressed by CID is
	// absent from the store (for example an index entry whose record
	// is missing). Public lookups report an unindexed slot or hash as
	// (nil, nil) instead. Not part of the spec's error-kind table; used
	// internally to distinguish "not found" from an I/O failure.
	ErrNotFound = errors.New("chain: not found")
)
