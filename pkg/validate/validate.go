// Copyright 2025 Certen Protocol
//
// Package validate implements block structural/linkage validation and
// attestation verification: the checks that require knowledge of the
// chain head and the registered validator set, as opposed to the
// self-contained checks a Block can run on itself (pkg/block.Validate).
// Each check raises its own documented chainerr sentinel (ErrSlotMismatch,
// ErrPrevHashMismatch, ErrDuplicateJudgment) rather than folding every
// violation kind into the generic ErrBlockInvalid, so callers can
// errors.Is against the specific failure.
package validate

import (
	"fmt"
	"strings"

	"github.com/certen/pojchain/pkg/attest"
	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/chainerr"
	"github.com/certen/pojchain/pkg/cid"
)

// Head is the minimal view of the current chain head a candidate
// block is checked against.
type Head struct {
	Slot uint64
	Hash cid.CID
}

// KnownValidators reports registered-validator membership. Satisfied
// by *config.ValidatorRegistry; kept as an interface so pkg/validate
// does not depend on pkg/config.
type KnownValidators interface {
	Contains(nodeID string) bool
}

// JudgmentExists reports whether a judgment id already appears
// somewhere earlier in the chain (I5). Satisfied by the chain's
// judgmentId→slot HamtIndex lookup.
type JudgmentExists func(id string) (bool, error)

// Result is the outcome of ValidateBlock.
type Result struct {
	Success bool
	Err     error
}

// Options controls which optional checks ValidateBlock runs.
type Options struct {
	MaxJudgmentsPerBlock int
	EnforceRegistry      bool // require the proposer to be a registered validator
}

// ValidateBlock runs every chain-level check on a candidate block: its
// own structural validity, I1 (slot), I2 (prevHash linkage), I5
// (judgment id uniqueness), and optionally that the proposer is a
// registered validator. Checks run in priority order and the first
// failing check determines the returned error kind: structural
// failures and an unregistered proposer wrap chainerr.ErrBlockInvalid;
// I1/I2/I5 each wrap their own documented sentinel.
func ValidateBlock(b *block.Block, head Head, known KnownValidators, judgmentExists JudgmentExists, opts Options) Result {
	structural := b.Validate(opts.MaxJudgmentsPerBlock)
	if !structural.Valid {
		return Result{Success: false, Err: fmt.Errorf("%w: %s", chainerr.ErrBlockInvalid, strings.Join(structural.Errors, "; "))}
	}

	if b.Header.Slot != head.Slot+1 {
		return Result{Success: false, Err: fmt.Errorf("%w: block slot %d, expected %d", chainerr.ErrSlotMismatch, b.Header.Slot, head.Slot+1)}
	}
	if b.Header.PrevHash != head.Hash {
		return Result{Success: false, Err: fmt.Errorf("%w: block prevHash %s, expected %s", chainerr.ErrPrevHashMismatch, b.Header.PrevHash, head.Hash)}
	}

	if judgmentExists != nil {
		for _, j := range b.Judgments {
			exists, err := judgmentExists(j.ID)
			if err != nil {
				return Result{Success: false, Err: fmt.Errorf("%w: judgment id lookup failed for %s: %v", chainerr.ErrBlockInvalid, j.ID, err)}
			}
			if exists {
				return Result{Success: false, Err: fmt.Errorf("%w: judgment id %s already present earlier in the chain", chainerr.ErrDuplicateJudgment, j.ID)}
			}
		}
	}

	if opts.EnforceRegistry && known != nil && !known.Contains(b.Header.Proposer) {
		return Result{Success: false, Err: fmt.Errorf("%w: proposer %s is not a registered validator", chainerr.ErrBlockInvalid, b.Header.Proposer)}
	}

	return Result{Success: true}
}

// VerifyAttestation recomputes keyed_hash(attesterKey, att.nodeId||att.slot||att.blockHash)
// and compares it in constant time with att.Signature.
func VerifyAttestation(att block.Attestation, attesterKey []byte) bool {
	return attest.Verify(attesterKey, att.NodeID, att.Slot, att.BlockHash, att.Signature)
}
