// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/database"
	"github.com/vireo-chain/vireo/pkg/core/database/leveldb"
	"github.com/vireo-chain/vireo/pkg/core/mempool"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/rpcbus"
	"github.com/vireo-chain/vireo/pkg/vm"
)

// stubValidator lets Acceptor tests isolate block-acceptance behavior
// from header-verification policy.
type stubValidator struct {
	pni uint8
	err error
}

func (v stubValidator) Execute(_, _ ledger.Header, _ *committee.Set) (uint8, error) {
	return v.pni, v.err
}

func openTestDB(t *testing.T) database.DB {
	t.Helper()
	db, err := leveldb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func genesisBlock() ledger.Block {
	h := ledger.Header{Version: 1, Height: 0, Timestamp: 1000}
	h = h.WithHash()
	return ledger.Block{Header: h}
}

// acceptedChild builds the block at parent.Height+1 whose state/event
// hashes already match what memVM.Accept computes for it (MemoryVM's
// state root never depends on the header's own Hash, only on its current
// root, PrevBlockHash, height and the block's transactions, so this is
// knowable before the header is finalized), probed
// by the same real Accept call TryAcceptBlock will later exercise.
func acceptedChild(t *testing.T, memVM *vm.MemoryVM, parent ledger.Header) ledger.Block {
	t.Helper()

	root, err := memVM.GetStateRoot()
	require.NoError(t, err)

	draft := ledger.Header{
		Version:       1,
		Height:        parent.Height + 1,
		Timestamp:     parent.Timestamp + 1,
		PrevBlockHash: parent.Hash,
	}
	res, err := memVM.Accept(ledger.Block{Header: draft})
	require.NoError(t, err)

	// Roll MemoryVM back to let TryAcceptBlock's own Accept call reproduce
	// this same state transition from the same starting root.
	_, err = memVM.Revert(root)
	require.NoError(t, err)

	draft.StateHash = res.StateRoot
	draft.EventHash = res.EventHash
	draft = draft.WithHash()
	return ledger.Block{Header: draft}
}

func newTestAcceptor(t *testing.T, validator Validator) (*Acceptor, database.DB, *vm.MemoryVM) {
	t.Helper()

	db := openTestDB(t)
	genesis := genesisBlock()
	require.NoError(t, db.Update(func(tx database.Transaction) error {
		return tx.StoreBlock(genesis, ledger.LabelFinal)
	}))

	memVM := vm.NewMemoryVM(genesis.Header.StateHash, user.NewProvisioners())

	eb := eventbus.New()
	mp := mempool.New(eb, rpcbus.New(), nil)

	a := NewAcceptor(
		db, memVM, eb, mp,
		ledger.BlockWithLabel{Block: genesis, Label: ledger.LabelFinal},
		user.NewProvisioners(),
		validator,
		nil, nil,
		nil, nil, nil,
	)
	return a, db, memVM
}

func TestTryAcceptBlockPersistsAndAdvancesTip(t *testing.T) {
	a, db, memVM := newTestAcceptor(t, stubValidator{})

	blk := acceptedChild(t, memVM, a.TipHeader())

	label, err := a.TryAcceptBlock(blk, false)
	require.NoError(t, err)
	assert.True(t, label.Valid())
	assert.Equal(t, uint64(1), a.GetCurrHeight())
	assert.Equal(t, blk.Header.Hash, a.GetCurrHash())

	var stored ledger.Block
	require.NoError(t, db.View(func(tx database.Transaction) error {
		var ferr error
		stored, ferr = tx.FetchBlock(blk.Header.Hash)
		return ferr
	}))
	assert.Equal(t, blk.Header.Height, stored.Header.Height)
}

func TestTryAcceptBlockRejectsHeaderVerificationFailure(t *testing.T) {
	a, _, memVM := newTestAcceptor(t, stubValidator{err: assert.AnError})

	blk := acceptedChild(t, memVM, a.TipHeader())

	_, err := a.TryAcceptBlock(blk, false)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), a.GetCurrHeight())
}

func TestTryAcceptBlockRevertsOnStateMismatch(t *testing.T) {
	a, _, memVM := newTestAcceptor(t, stubValidator{})

	draft := ledger.Header{
		Version:       1,
		Height:        1,
		Timestamp:     a.TipHeader().Timestamp + 1,
		PrevBlockHash: a.TipHeader().Hash,
		StateHash:     [32]byte{0xFF},
		EventHash:     [32]byte{0xFF},
	}
	blk := ledger.Block{Header: draft.WithHash()}

	_, err := a.TryAcceptBlock(blk, false)
	assert.ErrorIs(t, err, errStateMismatch)

	// The tip must remain at genesis: the mismatched block was never
	// committed, and reverting to the already-finalized genesis is a
	// no-op.
	assert.Equal(t, uint64(0), a.GetCurrHeight())

	root, err := memVM.GetStateRoot()
	require.NoError(t, err)
	assert.Equal(t, a.TipHeader().StateHash, root)
}

func TestStageCandidateHousekeepingPrunesOldEntries(t *testing.T) {
	a, _, _ := newTestAcceptor(t, stubValidator{})

	a.StageCandidate(ledger.Block{Header: ledger.Header{Height: 1}})
	a.StageCandidate(ledger.Block{Header: ledger.Header{Height: 100}})

	a.housekeepLocked(ledger.Block{Header: ledger.Header{Height: 100}})

	a.mu.Lock()
	_, stillStaged1 := a.candidates[1]
	_, stillStaged100 := a.candidates[100]
	a.mu.Unlock()

	assert.False(t, stillStaged1)
	assert.True(t, stillStaged100)
}

func TestRerouteMessageBuffersImmediateNextRound(t *testing.T) {
	a, _, _ := newTestAcceptor(t, stubValidator{})

	ev := agreement.Event{Header: ledger.ConsensusHeader{Round: 1}, Step: ledger.StepValidation}
	a.RerouteMessage(ev)

	assert.Equal(t, 1, a.futureMsgs.count())
	drained := a.futureMsgs.drain(1)
	assert.Len(t, drained, 1)
}

func TestRerouteMessageDropsPastRound(t *testing.T) {
	a, _, _ := newTestAcceptor(t, stubValidator{})

	ev := agreement.Event{Header: ledger.ConsensusHeader{Round: 0}, Step: ledger.StepValidation}
	a.RerouteMessage(ev)

	assert.Equal(t, 0, a.futureMsgs.count())
}

func TestLatestFinalBlockReturnsTipWhenFinal(t *testing.T) {
	a, _, _ := newTestAcceptor(t, stubValidator{})

	blk, err := a.LatestFinalBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), blk.Header.Height)
}

func TestTryRevertUnwindsToLastFinalized(t *testing.T) {
	a, db, memVM := newTestAcceptor(t, stubValidator{})

	genesisRoot, err := memVM.GetStateRoot()
	require.NoError(t, err)

	blk1 := acceptedChild(t, memVM, a.TipHeader())
	res1, err := memVM.Accept(blk1)
	require.NoError(t, err)
	require.Equal(t, blk1.Header.StateHash, res1.StateRoot)

	require.NoError(t, db.Update(func(tx database.Transaction) error {
		return tx.StoreBlock(blk1, ledger.LabelAttested)
	}))

	a.mu.Lock()
	a.tip = ledger.BlockWithLabel{Block: blk1, Label: ledger.LabelAttested}
	a.mu.Unlock()

	require.NoError(t, a.TryRevert(RevertTarget{Kind: RevertToLastFinalized}))

	assert.Equal(t, uint64(0), a.GetCurrHeight())

	root, err := memVM.GetStateRoot()
	require.NoError(t, err)
	assert.Equal(t, genesisRoot, root)
}
