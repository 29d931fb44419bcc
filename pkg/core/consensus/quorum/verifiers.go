// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package quorum verifies a block's Attestation against the sortition-
// derived committee and aggregated BLS key (spec §4.5), grounded on
// original_source/consensus/src/quorum/verifiers.rs's verify_quorum/
// verify_step_votes/verify_votes.
package quorum

import (
	"github.com/pkg/errors"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/sortition"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/sortedset"
)

// SignSeed is the domain tag mixed into a step's signable payload so a
// Validation vote's signature can never be replayed as a Ratification
// vote or vice versa (verifiers.rs's payload::{Validation,Ratification}::
// SIGN_SEED).
var SignSeed = map[ledger.StepName][]byte{
	ledger.StepValidation:   []byte("VIREO-SIGN-SEED-VALIDATION"),
	ledger.StepRatification: []byte("VIREO-SIGN-SEED-RATIFICATION"),
}

// Result is the outcome of verifying one step's votes: how many
// occurrences were counted and the threshold they needed to cross
// (verifiers.rs's QuorumResult).
type Result struct {
	Total         int
	TargetQuorum  int
}

// QuorumReached reports whether Total met or exceeded TargetQuorum.
func (r Result) QuorumReached() bool { return r.Total >= r.TargetQuorum }

// VerifyQuorum verifies both the Validation and Ratification StepVotes of
// an Attestation for the given header and generator exclusion set
// (spec §4.5).
func VerifyQuorum(committees *committee.Set, hdr ledger.ConsensusHeader, seed []byte, exclusion [][]byte, att ledger.Attestation) error {
	if _, err := VerifyStepVotes(committees, hdr, seed, exclusion, ledger.StepValidation, att.Validation, att.Result.Vote); err != nil {
		return errors.Wrap(err, "validation step")
	}
	if _, err := VerifyStepVotes(committees, hdr, seed, exclusion, ledger.StepRatification, att.Ratification, att.Result.Vote); err != nil {
		return errors.Wrap(err, "ratification step")
	}
	return nil
}

// VerifyStepVotes verifies a single step's StepVotes: it draws (or
// fetches) the step's committee, reconstructs the voting sub-committee
// from the bitset, and checks both the vote tally and the aggregate
// signature (verifiers.rs's verify_step_votes).
func VerifyStepVotes(committees *committee.Set, hdr ledger.ConsensusHeader, seed []byte, exclusion [][]byte, step ledger.StepName, sv ledger.StepVotes, vote ledger.Vote) (Result, error) {
	cfg := sortition.Config{
		Seed:      seed,
		Round:     hdr.Round,
		Iteration: hdr.Iteration,
		Step:      uint8(step),
		Exclusion: exclusion,
		Size:      64,
	}

	c, err := committees.GetOrCreate(cfg)
	if err != nil {
		return Result{}, err
	}

	// skip_quorum special-case: a Validation NoQuorum vote with an empty
	// bitset is expected for a failed iteration and carries no evidence to
	// verify (spec §4.5 step 3).
	if step == ledger.StepValidation && vote.Kind == ledger.VoteNoQuorum && sv.BitSet == 0 {
		return Result{}, nil
	}

	subcommittee := c.IntersectCluster(sv.BitSet)
	total := subcommittee.TotalOccurrences()
	target := c.QuorumForVote(vote.Kind == ledger.VoteValid)

	result := Result{Total: total, TargetQuorum: target}
	if !result.QuorumReached() {
		return result, errors.Errorf("vote set too small: %d/%d", total, target)
	}

	apk, err := aggregatePublicKeys(subcommittee.Set)
	if err != nil {
		return result, err
	}

	if err := verifyStepSignature(hdr, step, vote, apk, sv.AggregateSignature); err != nil {
		return result, err
	}

	return result, nil
}

// aggregatePublicKeys combines a sub-committee's BLS public keys into a
// single aggregated key (verifiers.rs's aggregate_pks, a Cluster<PublicKey>
// extension).
func aggregatePublicKeys(members sortedset.Set) (*bls.PublicKey, error) {
	if len(members) == 0 {
		return nil, errors.New("quorum: empty sub-committee has no aggregate public key")
	}

	pks := make([]*bls.PublicKey, 0, len(members))
	for i := range members {
		pk, err := bls.PublicKeyFromBytes(members.Bytes(i))
		if err != nil {
			return nil, err
		}
		pks = append(pks, pk)
	}

	return bls.AggregatePublicKeys(pks)
}

// verifyStepSignature checks a StepVotes' aggregate signature against
// signable_header || SIGN_SEED[step] || encoded(vote), where the header's
// Signable bytes are used as they are, not hashed first (verifiers.rs's
// verify_step_signature).
func verifyStepSignature(hdr ledger.ConsensusHeader, step ledger.StepName, vote ledger.Vote, apk *bls.PublicKey, sig [48]byte) error {
	s, err := bls.SignatureFromBytes(sig[:])
	if err != nil {
		return err
	}

	msg := make([]byte, 0, 96)
	msg = append(msg, hdr.Signable()...)
	msg = append(msg, SignSeed[step]...)
	msg = append(msg, EncodeVote(vote)...)

	if !bls.Verify(apk, msg, s) {
		return errors.New("quorum: invalid aggregate signature")
	}
	return nil
}

// EncodeVote serializes a vote the same way on both the casting and the
// verifying side: a one-byte kind tag, followed by the block hash for the
// two kinds that carry one.
func EncodeVote(v ledger.Vote) []byte {
	out := []byte{byte(v.Kind)}
	if v.Kind == ledger.VoteValid || v.Kind == ledger.VoteInvalid {
		out = append(out, v.Hash[:]...)
	}
	return out
}
