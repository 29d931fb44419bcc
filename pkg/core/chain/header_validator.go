// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"github.com/pkg/errors"

	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/quorum"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

// Validator performs full verification of an incoming block header
// against the chain tip it extends, returning the number of Previous
// Non-attested Iterations (PNI) spec §4.6 step 1 names (grounded on
// original_source/node/src/chain/acceptor.rs's verify_block_header /
// Validator::execute_checks).
type Validator interface {
	Execute(tip, hdr ledger.Header, committees *committee.Set) (pni uint8, err error)
}

// DefaultValidator checks prev-hash continuity, timestamp monotonicity,
// the iteration bound and the block's attestation quorum, and derives
// PNI from the number of failed iterations the header records.
type DefaultValidator struct{}

// Execute implements Validator.
func (DefaultValidator) Execute(tip, hdr ledger.Header, committees *committee.Set) (uint8, error) {
	if hdr.PrevBlockHash != tip.Hash {
		return 0, errors.New("chain: block does not extend the current tip")
	}
	if hdr.Timestamp <= tip.Timestamp {
		return 0, errors.Errorf("chain: non-monotonic timestamp %d <= %d", hdr.Timestamp, tip.Timestamp)
	}

	maxIter := config.Get().Consensus.MaxIter
	if hdr.Iteration > maxIter {
		return 0, errors.Errorf("chain: iteration %d exceeds max %d", hdr.Iteration, maxIter)
	}

	pni := uint8(0)
	for i, entry := range hdr.FailedIterations.Entries {
		if i >= int(hdr.Iteration) {
			break
		}
		if entry.Present {
			pni++
		}
	}

	exclusion := [][]byte{hdr.GeneratorBLSPub[:]}
	if err := quorum.VerifyQuorum(committees, hdr.ConsensusHeader(), hdr.Seed[:], exclusion, hdr.Attestation); err != nil {
		return pni, errors.Wrap(err, "chain: attestation quorum verification failed")
	}

	return pni, nil
}
