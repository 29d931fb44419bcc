// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package vm defines the VM contract the consensus core consumes
// (spec §6 "VM contract"): block application, state finalization and
// reversion, and the provisioner-set queries selective_update needs.
package vm

import (
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
)

// AcceptResult is what a successful Accept returns: the per-transaction
// verdicts plus the resulting state commitment (spec §6 accept()).
type AcceptResult struct {
	Txs       []transactions.SpentTransaction
	StateRoot [32]byte
	EventHash [32]byte

	// Calls holds the stake-contract call the VM recognized while
	// executing each entry of Txs, aligned by index (a zero-value
	// ContractCall means that transaction made no recognized call). The
	// Acceptor's selective provisioner update (spec §4.6 step 5) reads
	// this instead of decoding transaction payloads itself, since only
	// the VM actually interprets a transaction's contents.
	Calls []transactions.ContractCall
}

// VM is the execution engine the Acceptor applies blocks against.
// Implementations must be deterministic and idempotent per commit
// (spec §6: "accept(Block) ... deterministic; must be idempotent per
// commit").
type VM interface {
	// Accept applies blk's transactions and returns their verdicts plus
	// the resulting state commitment.
	Accept(blk ledger.Block) (AcceptResult, error)

	// FinalizeState pins stateHash as irreversible.
	FinalizeState(stateHash [32]byte) error

	// RevertToFinalized discards any pending state back to the last
	// finalized commitment, returning its state root.
	RevertToFinalized() ([32]byte, error)

	// Revert discards pending state back to an explicit commitment.
	Revert(stateHash [32]byte) ([32]byte, error)

	// GetFinalizedStateRoot returns the last finalized commitment.
	GetFinalizedStateRoot() ([32]byte, error)

	// GetStateRoot returns the current (possibly unfinalized) commitment.
	GetStateRoot() ([32]byte, error)

	// GetProvisioners returns the full provisioner set as of stateHash,
	// used for a full reload when selective_update finds an
	// inconsistency (spec §4.6 step 5).
	GetProvisioners(stateHash [32]byte) (*user.Provisioners, error)

	// GetProvisioner returns a single provisioner's current stake, or
	// ok=false if the VM has no record of it (spec §6
	// get_provisioner(pk) -> Option<Stake>).
	GetProvisioner(stateHash [32]byte, pubKey []byte) (stake user.Stake, ok bool, err error)
}
