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
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
)

// changedProvisioners collects every stake-affecting event a newly
// accepted block implies: a Reward for its generator and for the
// process-wide treasury key, a Slash for every missed-iteration
// generator, and a Stake/Unstake for every recognized stake-contract
// call among its successful transactions (spec §4.6 step 5,
// acceptor.rs's changed_provisioners).
func changedProvisioners(blk ledger.Block, txs []transactions.SpentTransaction, calls []transactions.ContractCall) []transactions.ProvisionerChange {
	changes := []transactions.ProvisionerChange{
		{Kind: transactions.ChangeReward, PubKey: blk.Header.GeneratorBLSPub},
	}

	if treasury := config.Get().TreasuryKey; len(treasury) == ledger.PubKeySize {
		var tk [96]byte
		copy(tk[:], treasury)
		changes = append(changes, transactions.ProvisionerChange{Kind: transactions.ChangeReward, PubKey: tk})
	}

	for _, raw := range blk.Header.FailedIterations.ToMissedGeneratorsBytes() {
		var slashed [96]byte
		copy(slashed[:], raw)
		changes = append(changes, transactions.ProvisionerChange{Kind: transactions.ChangeSlash, PubKey: slashed})
	}

	for i, tx := range txs {
		if !tx.Succeeded() || i >= len(calls) {
			continue
		}
		call := calls[i]
		if call.Function == "" {
			continue
		}

		change, err := transactions.ParseStakeCall(call)
		if err != nil {
			lg.WithError(err).Warn("failed to parse stake-contract call")
			continue
		}
		changes = append(changes, change)
	}

	return changes
}

// applySelectiveUpdate resyncs only the provisioners changedProvisioners
// names, each against the VM's post-block authoritative stake, rather
// than reloading the entire set (spec §4.6 step 5, acceptor.rs's
// selective_update). A missing stake for a change that is not itself a
// first-time Stake is an inconsistency the caller falls back to a full
// reload for.
func (a *Acceptor) applySelectiveUpdate(stateHash [32]byte, changes []transactions.ProvisionerChange) error {
	for _, c := range changes {
		stake, ok, err := a.vm.GetProvisioner(stateHash, c.PubKey[:])
		if err != nil {
			return errors.Wrap(err, "chain: query provisioner stake")
		}

		if ok {
			a.provisioners.ReplaceStake(c.PubKey[:], stake)
			continue
		}

		if !a.provisioners.RemoveProvisioner(c.PubKey[:]) && !c.IsNewProvisioner() {
			return errors.Errorf("chain: removed a not existing stake for %x", c.PubKey)
		}
	}

	a.committees = committee.NewSet(a.provisioners)
	return nil
}
