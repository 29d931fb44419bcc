// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package ledger holds the consensus core's data model (spec §3): blocks,
// headers, attestations, votes and labels, centralized in one package the
// way the original Rust implementation's node-data crate centralizes
// ledger and message types (original_source/node-data/src/encoding.rs),
// mirroring the teacher's pkg/core/data/block convention.
package ledger

import (
	"fmt"

	"github.com/vireo-chain/vireo/pkg/crypto/hash"
)

// HashSize is the digest length used for block, state and event hashes.
const HashSize = hash.Size

// PubKeySize is the compressed BLS public key length (spec §6).
const PubKeySize = 96

// SigSize is the compressed BLS aggregate signature length (spec §6).
const SigSize = 48

// Seed is the VRF-derived per-block randomness input to sortition.
type Seed [HashSize]byte

// StepName identifies which of the three per-iteration steps a message or
// timeout belongs to (spec glossary "Step").
type StepName uint8

// The three steps of an iteration, strictly ordered (spec §4.3).
const (
	StepProposal StepName = iota
	StepValidation
	StepRatification
)

func (s StepName) String() string {
	switch s {
	case StepProposal:
		return "Proposal"
	case StepValidation:
		return "Validation"
	case StepRatification:
		return "Ratification"
	default:
		return "Unknown"
	}
}

// Status is the outcome of comparing a message's (round, iteration) to the
// local round/iteration in progress (spec §4.3 admission rules).
type Status uint8

const (
	StatusPast Status = iota
	StatusPresent
	StatusFuture
)

// ConsensusHeader identifies the round/iteration/chain-position a consensus
// message belongs to (spec §2 item 3, §3).
type ConsensusHeader struct {
	Round         uint64
	Iteration     uint8
	PrevBlockHash [HashSize]byte
	BlockHash     [HashSize]byte
}

// Compare classifies this header against the locally tracked round and
// iteration, implementing the Past/Present/Future admission rule of
// spec §4.3.
func (h ConsensusHeader) Compare(round uint64, iteration uint8) Status {
	if h.Round < round {
		return StatusPast
	}
	if h.Round > round {
		return StatusFuture
	}
	if h.Iteration < iteration {
		return StatusPast
	}
	if h.Iteration > iteration {
		return StatusFuture
	}
	return StatusPresent
}

// Signable returns the byte sequence a vote's BLS signature commits to,
// independent of the step-specific sign seed (verifiers.rs's
// `header.signable()`).
func (h ConsensusHeader) Signable() []byte {
	buf := make([]byte, 0, 8+1+HashSize+HashSize)
	buf = appendUint64(buf, h.Round)
	buf = append(buf, h.Iteration)
	buf = append(buf, h.PrevBlockHash[:]...)
	buf = append(buf, h.BlockHash[:]...)
	return buf
}

// VoteKind discriminates the four possible consensus votes (spec §3).
type VoteKind uint8

const (
	VoteNoQuorum VoteKind = iota
	VoteNoCandidate
	VoteValid
	VoteInvalid
)

// Vote is the immutable value StepVotes aggregate over (spec §3). Equality
// is by value: two votes of the same kind and (where applicable) hash are
// the same vote for aggregation purposes.
type Vote struct {
	Kind VoteKind
	Hash [HashSize]byte
}

// NoQuorum is the vote cast for a failed iteration that never agreed on a
// hash to validate.
func NoQuorum() Vote { return Vote{Kind: VoteNoQuorum} }

// NoCandidate is the vote cast when no candidate block was seen at all.
func NoCandidate() Vote { return Vote{Kind: VoteNoCandidate} }

// Valid wraps a block hash that the voter considers valid.
func Valid(blockHash [HashSize]byte) Vote { return Vote{Kind: VoteValid, Hash: blockHash} }

// Invalid wraps a block hash that the voter considers invalid.
func Invalid(blockHash [HashSize]byte) Vote { return Vote{Kind: VoteInvalid, Hash: blockHash} }

// Equal compares two votes by value.
func (v Vote) Equal(o Vote) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == VoteValid || v.Kind == VoteInvalid {
		return v.Hash == o.Hash
	}
	return true
}

func (v Vote) String() string {
	switch v.Kind {
	case VoteValid:
		return fmt.Sprintf("Valid(%x)", v.Hash)
	case VoteInvalid:
		return fmt.Sprintf("Invalid(%x)", v.Hash)
	case VoteNoQuorum:
		return "NoQuorum"
	default:
		return "NoCandidate"
	}
}

// StepVotes is the aggregated evidence of a super-majority (or majority)
// agreement on a Vote for one step: the committee membership bitset and the
// aggregated BLS signature over it (spec §3).
type StepVotes struct {
	BitSet             uint64
	AggregateSignature [SigSize]byte
}

// RatificationTag discriminates the two possible consensus outcomes for a
// round (spec §6 wire format).
type RatificationTag uint8

const (
	TagFail RatificationTag = iota
	TagSuccess
)

// RatificationResult is Success(vote) or Fail(vote), the top-level verdict
// an Attestation proves (spec §3).
type RatificationResult struct {
	Tag  RatificationTag
	Vote Vote
}

// Success builds a successful ratification result over a valid vote.
func Success(v Vote) RatificationResult { return RatificationResult{Tag: TagSuccess, Vote: v} }

// Fail builds a failed ratification result.
func Fail(v Vote) RatificationResult { return RatificationResult{Tag: TagFail, Vote: v} }

// IsSuccess reports whether this result represents Success(vote).
func (r RatificationResult) IsSuccess() bool { return r.Tag == TagSuccess }

// Attestation is the proof a block received a super-majority of
// stake-weighted votes in both Validation and Ratification (spec §3,
// glossary).
type Attestation struct {
	Result       RatificationResult
	Validation   StepVotes
	Ratification StepVotes
}

// Certificate carries the StepVotes of a failed iteration, recorded in the
// block header's FailedIterations so honest nodes can reconstruct the
// slashing set (spec §4.6 step 5, §6 wire format).
type Certificate struct {
	Validation   StepVotes
	Ratification StepVotes
}

// FailedIterationEntry is one slot of FailedIterations: either empty
// (no failure recorded for that iteration index) or a missed generator's
// certificate and public key.
type FailedIterationEntry struct {
	Present bool
	Cert    Certificate
	PubKey  [PubKeySize]byte
}

// FailedIterations is the ordered, per-iteration record of generators that
// failed to produce an attested block before the block's own iteration
// (spec §3 Block.Header, §9 open question on ordering).
//
// Ordering follows original_source: entries are indexed by iteration number
// (entry i corresponds to iteration i), so
// ToMissedGeneratorsBytes preserves iteration order by construction - the
// open question in spec §9 about consecutive failed iterations is resolved
// by this invariant (see DESIGN.md).
type FailedIterations struct {
	Entries []FailedIterationEntry
}

// ToMissedGeneratorsBytes returns the public keys of every generator
// recorded as missed, in iteration order.
func (f FailedIterations) ToMissedGeneratorsBytes() [][]byte {
	out := make([][]byte, 0, len(f.Entries))
	for _, e := range f.Entries {
		if e.Present {
			pk := make([]byte, PubKeySize)
			copy(pk, e.PubKey[:])
			out = append(out, pk)
		}
	}
	return out
}

// Label classifies a block's finality status (spec §3, glossary).
type Label uint8

const (
	LabelAccepted Label = iota
	LabelAttested
	LabelFinal
)

func (l Label) String() string {
	switch l {
	case LabelAccepted:
		return "Accepted"
	case LabelAttested:
		return "Attested"
	case LabelFinal:
		return "Final"
	default:
		return "Unknown"
	}
}

// Valid reports whether l is one of the three defined labels (spec §6:
// "any other value is malformed").
func (l Label) Valid() bool {
	return l == LabelAccepted || l == LabelAttested || l == LabelFinal
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
