// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package vm

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
	"github.com/vireo-chain/vireo/pkg/crypto/hash"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/sortedset"
)

// Raw transaction tags MemoryVM recognizes, letting tests build blocks
// that exercise selective_update without a real contract VM. Grounded on
// the teacher's pkg/util/ruskmock, an in-process stand-in for the real
// rusk VM service, simplified here to this module's narrower VM contract
// and with no RPC transport.
const (
	TagPlain byte = iota
	TagStake
	TagUnstake
	TagFail
)

// EncodeStakeCall builds a Raw transaction MemoryVM parses as a
// stake-contract call: tag byte, 96-byte BLS public key, little-endian
// uint64 amount.
func EncodeStakeCall(tag byte, pubKey []byte, amount uint64) transactions.Raw {
	buf := make([]byte, 1+96+8)
	buf[0] = tag
	copy(buf[1:97], pubKey)
	binary.LittleEndian.PutUint64(buf[97:105], amount)
	return transactions.Raw(buf)
}

// MemoryVM is a deterministic, in-process VM fake. Each accepted block's
// state root is derived from its predecessor root, the block's
// PrevBlockHash and height, and its raw transactions, never from the
// block's own hash;
// every state it has ever produced stays queryable by GetProvisioner,
// GetProvisioners and Revert, the way a real VM's content-addressed store
// would. FailAccept lets a test force the next Accept to fail, e.g. to
// exercise Acceptor's state-mismatch revert path.
type MemoryVM struct {
	mu sync.Mutex

	root      [32]byte
	finalized [32]byte
	states    map[[32]byte]*user.Provisioners

	FailAccept error
}

// NewMemoryVM seeds the VM with a genesis state: genesisStateHash is both
// the initial root and initial finalized commitment.
func NewMemoryVM(genesisStateHash [32]byte, genesis *user.Provisioners) *MemoryVM {
	return &MemoryVM{
		root:      genesisStateHash,
		finalized: genesisStateHash,
		states:    map[[32]byte]*user.Provisioners{genesisStateHash: cloneProvisioners(genesis)},
	}
}

// Accept implements VM. It recognizes EncodeStakeCall payloads and folds
// them into the provisioner set the new state root will expose.
func (m *MemoryVM) Accept(blk ledger.Block) (AcceptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAccept != nil {
		err := m.FailAccept
		m.FailAccept = nil
		return AcceptResult{}, err
	}

	next := cloneProvisioners(m.states[m.root])

	txs := make([]transactions.SpentTransaction, len(blk.Txs))
	calls := make([]transactions.ContractCall, len(blk.Txs))

	for i, raw := range blk.Txs {
		txs[i] = transactions.SpentTransaction{Tx: transactions.Raw(raw)}

		if len(raw) == 0 {
			continue
		}

		switch tag := raw[0]; tag {
		case TagFail:
			txs[i].Error = "vm: simulated transaction failure"
		case TagStake, TagUnstake:
			if len(raw) < 1+96+8 {
				continue
			}
			function := "stake"
			if tag == TagUnstake {
				function = "unstake"
			}
			calls[i] = transactions.ContractCall{Function: function, Data: append([]byte(nil), raw[1:]...)}
		}
	}

	for i, call := range calls {
		if call.Function == "" || !txs[i].Succeeded() {
			continue
		}
		change, err := transactions.ParseStakeCall(call)
		if err != nil {
			continue
		}
		switch change.Kind {
		case transactions.ChangeStake:
			next.ReplaceStake(change.PubKey[:], user.Stake{
				Amount:      change.Amount,
				StartHeight: blk.Header.Height,
				EndHeight:   blk.Header.Height + 1_000_000,
			})
		case transactions.ChangeUnstake:
			next.RemoveProvisioner(change.PubKey[:])
		}
	}

	// Derived from fields that never depend on the header's own Hash (which
	// commits to StateHash/EventHash), so a caller can learn the correct
	// StateHash to embed before it ever computes that Hash.
	parts := [][]byte{m.root[:], blk.Header.PrevBlockHash[:], encodeHeight(blk.Header.Height)}
	for _, raw := range blk.Txs {
		parts = append(parts, raw)
	}
	newRoot := hash.Sum(parts...)
	m.states[newRoot] = next
	m.root = newRoot

	return AcceptResult{
		Txs:       txs,
		StateRoot: newRoot,
		EventHash: hash.Sum(newRoot[:], []byte("events")),
		Calls:     calls,
	}, nil
}

// FinalizeState implements VM.
func (m *MemoryVM) FinalizeState(stateHash [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[stateHash]; !ok {
		return errors.Errorf("vm: unknown state %x", stateHash)
	}
	m.finalized = stateHash
	return nil
}

// RevertToFinalized implements VM.
func (m *MemoryVM) RevertToFinalized() ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.root = m.finalized
	return m.finalized, nil
}

// Revert implements VM.
func (m *MemoryVM) Revert(stateHash [32]byte) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[stateHash]; !ok {
		return [32]byte{}, errors.Errorf("vm: unknown state %x", stateHash)
	}
	m.root = stateHash
	return stateHash, nil
}

// GetFinalizedStateRoot implements VM.
func (m *MemoryVM) GetFinalizedStateRoot() ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized, nil
}

// GetStateRoot implements VM.
func (m *MemoryVM) GetStateRoot() ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root, nil
}

// GetProvisioners implements VM.
func (m *MemoryVM) GetProvisioners(stateHash [32]byte) (*user.Provisioners, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[stateHash]
	if !ok {
		return nil, errors.Errorf("vm: unknown state %x", stateHash)
	}
	return cloneProvisioners(state), nil
}

// GetProvisioner implements VM.
func (m *MemoryVM) GetProvisioner(stateHash [32]byte, pubKey []byte) (user.Stake, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[stateHash]
	if !ok {
		return user.Stake{}, false, errors.Errorf("vm: unknown state %x", stateHash)
	}

	member, ok := state.Members[string(pubKey)]
	if !ok || len(member.Stakes) == 0 {
		return user.Stake{}, false, nil
	}
	return member.Stakes[0], true, nil
}

func encodeHeight(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}

func cloneProvisioners(p *user.Provisioners) *user.Provisioners {
	out := user.NewProvisioners()
	if p == nil {
		return out
	}
	for k, m := range p.Members {
		cp := &user.Member{PublicKeyBLS: append([]byte(nil), m.PublicKeyBLS...)}
		cp.Stakes = append([]user.Stake(nil), m.Stakes...)
		out.Members[k] = cp
	}
	out.Set = append(sortedset.New(), p.Set...)
	return out
}
