// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package msghandler defines the common admission contract every phase
// handler implements (spec §4.3 is_valid), grounded on
// original_source/consensus/src/msg_handler.rs's MsgHandler trait and the
// teacher's per-phase handler shape (pkg/core/consensus/agreement/
// handler.go).
package msghandler

import (
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

// Output is the result of feeding a message into a Handler: either the
// message is Pending (admitted but not yet enough to decide the step) or
// it is Ready, carrying the step's outcome vote (msg_handler.rs's
// HandleMsgOutput enum).
type Output struct {
	Ready bool
	Vote  ledger.Vote
}

// Pending reports no decision yet.
func Pending() Output { return Output{} }

// Ready wraps a decided vote.
func Ready(v ledger.Vote) Output { return Output{Ready: true, Vote: v} }

// Error is the taxonomy of admission/verification failures a Handler can
// produce (spec §4.3, §7).
type Error string

const (
	ErrPastEvent            Error = "past_event"
	ErrInvalidPrevBlockHash Error = "invalid_prev_block_hash"
	ErrNotCommitteeMember   Error = "not_committee_member"
	ErrInvalidSignature     Error = "invalid_signature"
	ErrVoteSetTooSmall      Error = "vote_set_too_small"
)

func (e Error) Error() string { return string(e) }

// Handler is the per-phase collaborator every step's inbound message
// passes through: phase-agnostic admission (IsValid) followed by the
// phase-specific signature/payload check (Verify) and accumulation
// (Collect), mirroring msg_handler.rs's MsgHandler trait.
type Handler interface {
	// IsValid runs the admission rule common to every phase: message
	// status classification, previous-hash and committee-membership
	// checks, then delegates to Verify.
	IsValid(hdr ledger.ConsensusHeader, round uint64, iteration uint8, step ledger.StepName, tipHash [32]byte, committee Committee) error

	// Verify performs the phase-specific signature and payload checks.
	Verify(hdr ledger.ConsensusHeader, payload []byte) error

	// Collect folds an admitted message into the step's running tally,
	// returning Ready once quorum is reached.
	Collect(hdr ledger.ConsensusHeader, payload []byte) (Output, error)

	// CollectFromPast folds a message that arrived after the step it
	// belongs to has already moved on - still useful for reconstructing
	// evidence of a past iteration's outcome (msg_handler.rs's
	// collect_from_past).
	CollectFromPast(hdr ledger.ConsensusHeader, payload []byte) (Output, error)
}

// Committee is the subset of committee.Set's contract a Handler needs,
// kept narrow so this package never imports the committee package
// directly (avoiding an import cycle with committee's own use of sortition
// configs keyed by step).
type Committee interface {
	IsMember(pubKey []byte) bool
}

// Classify implements the Past/Present/Future admission rule (spec §4.3
// is_valid, step 1 precursor).
func Classify(hdr ledger.ConsensusHeader, round uint64, iteration uint8) ledger.Status {
	return hdr.Compare(round, iteration)
}

// CheckPrevHash implements is_valid step 1.
func CheckPrevHash(hdr ledger.ConsensusHeader, tipHash [32]byte) error {
	if hdr.PrevBlockHash != tipHash {
		return ErrInvalidPrevBlockHash
	}
	return nil
}

// CheckCommitteeMembership implements is_valid step 2.
func CheckCommitteeMembership(signer []byte, committee Committee) error {
	if !committee.IsMember(signer) {
		return ErrNotCommitteeMember
	}
	return nil
}
