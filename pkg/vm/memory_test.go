// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

func genesisProvisioners() *user.Provisioners {
	p := user.NewProvisioners()
	p.Add(make([]byte, 96), user.Stake{Amount: 1000, StartHeight: 0, EndHeight: 1_000_000})
	return p
}

func block(height uint64, pubKey [96]byte, txs ...[]byte) ledger.Block {
	raw := make([][]byte, len(txs))
	copy(raw, txs)

	h := ledger.Header{Height: height, GeneratorBLSPub: pubKey}
	h = h.WithHash()

	return ledger.Block{Header: h, Txs: raw}
}

func TestMemoryVMAcceptDerivesDeterministicRoot(t *testing.T) {
	var genesis [32]byte
	vm1 := NewMemoryVM(genesis, genesisProvisioners())
	vm2 := NewMemoryVM(genesis, genesisProvisioners())

	blk := block(1, [96]byte{})

	res1, err := vm1.Accept(blk)
	require.NoError(t, err)
	res2, err := vm2.Accept(blk)
	require.NoError(t, err)

	assert.Equal(t, res1.StateRoot, res2.StateRoot)
	assert.NotEqual(t, genesis, res1.StateRoot)
}

func TestMemoryVMAcceptAppliesStakeCall(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())

	var pubKey [96]byte
	pubKey[0] = 0xAB

	blk := block(1, [96]byte{}, EncodeStakeCall(TagStake, pubKey[:], 5000))

	res, err := m.Accept(blk)
	require.NoError(t, err)
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "stake", res.Calls[0].Function)
	assert.True(t, res.Txs[0].Succeeded())

	stake, ok, err := m.GetProvisioner(res.StateRoot, pubKey[:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5000), stake.Amount)
}

func TestMemoryVMAcceptAppliesUnstakeCall(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())

	var pubKey [96]byte
	pubKey[0] = 0xCD

	stakeBlk := block(1, [96]byte{}, EncodeStakeCall(TagStake, pubKey[:], 3000))
	_, err := m.Accept(stakeBlk)
	require.NoError(t, err)

	unstakeBlk := block(2, [96]byte{}, EncodeStakeCall(TagUnstake, pubKey[:], 0))
	res2, err := m.Accept(unstakeBlk)
	require.NoError(t, err)

	_, ok, err := m.GetProvisioner(res2.StateRoot, pubKey[:])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryVMAcceptMarksFailedTransaction(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())

	blk := block(1, [96]byte{}, []byte{TagFail})

	res, err := m.Accept(blk)
	require.NoError(t, err)
	require.Len(t, res.Txs, 1)
	assert.False(t, res.Txs[0].Succeeded())
}

func TestMemoryVMFailAcceptInjection(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())
	m.FailAccept = assert.AnError

	_, err := m.Accept(block(1, [96]byte{}))
	assert.ErrorIs(t, err, assert.AnError)

	// The injected failure is one-shot.
	_, err = m.Accept(block(1, [96]byte{}))
	assert.NoError(t, err)
}

func TestMemoryVMFinalizeAndRevertToFinalized(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, genesisProvisioners())

	res, err := m.Accept(block(1, [96]byte{}))
	require.NoError(t, err)
	require.NoError(t, m.FinalizeState(res.StateRoot))

	_, err = m.Accept(block(2, [96]byte{}))
	require.NoError(t, err)

	root, err := m.RevertToFinalized()
	require.NoError(t, err)
	assert.Equal(t, res.StateRoot, root)

	current, err := m.GetStateRoot()
	require.NoError(t, err)
	assert.Equal(t, res.StateRoot, current)
}

func TestMemoryVMRevertToUnknownStateFails(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())

	_, err := m.Revert([32]byte{0xFF})
	assert.Error(t, err)
}

func TestMemoryVMGetProvisionersUnknownState(t *testing.T) {
	var genesis [32]byte
	m := NewMemoryVM(genesis, user.NewProvisioners())

	_, err := m.GetProvisioners([32]byte{0xFF})
	assert.Error(t, err)
}
