// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package transactions holds the consensus core's view of a transaction:
// an opaque, VM-interpreted payload (spec §6 Non-goals exclude a
// transaction format of our own), plus the stake-contract call decoding
// the Acceptor's selective provisioner update needs, grounded on
// original_source/node/src/chain/acceptor.rs's parse_stake_call and
// ProvisionerChange.
package transactions

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Raw is an opaque, already-serialized transaction as the VM understands
// it. The consensus core never interprets a transaction's contents except
// to recognize calls into the stake contract.
type Raw []byte

// SpentTransaction is a transaction together with the VM's verdict once
// included in an accepted block (spec §4.6 step 2: the VM returns which
// transactions executed successfully).
type SpentTransaction struct {
	Tx       Raw
	GasSpent uint64
	Error    string
}

// Succeeded reports whether the transaction executed without error.
func (s SpentTransaction) Succeeded() bool { return s.Error == "" }

// ChangeKind discriminates the ways a block can alter a provisioner's
// eligible stake (original_source's ProvisionerChange enum).
type ChangeKind uint8

const (
	ChangeStake ChangeKind = iota
	ChangeUnstake
	ChangeSlash
	ChangeReward
)

// ProvisionerChange is one stake-affecting event the Acceptor's selective
// update folds into the provisioner set after a block is accepted
// (spec §4.6 step 5).
type ProvisionerChange struct {
	Kind   ChangeKind
	PubKey [96]byte
	Amount uint64
}

// IsNewProvisioner reports whether this change can introduce a public key
// the local provisioner set has never seen before (only Stake can).
func (c ProvisionerChange) IsNewProvisioner() bool {
	return c.Kind == ChangeStake
}

// stakeCallID and unstakeCallID are the function selectors the stake
// contract dispatches on, matching original_source's literal "stake" /
// "unstake" function names.
const (
	stakeCallID   = "stake"
	unstakeCallID = "unstake"
)

// ContractCall is a decoded call into a known system contract: the
// function name plus its raw argument payload, as extracted from an
// executed transaction's call receipt.
type ContractCall struct {
	ContractID [32]byte
	Function   string
	Data       []byte
}

// ParseStakeCall decodes a stake-contract ContractCall into the
// ProvisionerChange it implies. The wire layout is a fixed 96-byte BLS
// public key followed by a little-endian uint64 amount, the same shape
// for both stake and unstake calls.
func ParseStakeCall(call ContractCall) (ProvisionerChange, error) {
	if len(call.Data) < 96+8 {
		return ProvisionerChange{}, errors.Errorf("transactions: stake call payload too short: %d bytes", len(call.Data))
	}

	var pc ProvisionerChange
	copy(pc.PubKey[:], call.Data[:96])
	pc.Amount = binary.LittleEndian.Uint64(call.Data[96:104])

	switch call.Function {
	case stakeCallID:
		pc.Kind = ChangeStake
	case unstakeCallID:
		pc.Kind = ChangeUnstake
	default:
		return ProvisionerChange{}, errors.Errorf("transactions: unrecognized stake call function %q", call.Function)
	}

	return pc, nil
}
