// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package user holds the provisioner set sortition draws from: every
// staked BLS public key, its eligible stake windows, and the total weight
// queries the committee and quorum packages need (spec §3 Provisioners).
package user

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/encoding"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/sortedset"
)

// PubKeySize is the length of a provisioner's compressed BLS public key.
const PubKeySize = 96

type (
	// Member is one provisioner: a BLS public key and its (possibly
	// several, non-contiguous) eligible stakes.
	Member struct {
		PublicKeyBLS []byte  `json:"bls_key"`
		Stakes       []Stake `json:"stakes"`
	}

	// Provisioners is the full set of known provisioners, keyed by BLS
	// public key, plus the canonically ordered Set sortition draws walk.
	Provisioners struct {
		Set     sortedset.Set
		Members map[string]*Member
	}

	// Stake is one eligibility window of a provisioner's stake: it only
	// counts toward sortition between StartHeight and EndHeight inclusive
	// (spec §3 Stake "eligible" definition).
	Stake struct {
		Amount      uint64 `json:"amount"`
		StartHeight uint64 `json:"start_height"`
		EndHeight   uint64 `json:"end_height"`
	}
)

// AddStake appends a stake window to the member.
func (m *Member) AddStake(stake Stake) {
	m.Stakes = append(m.Stakes, stake)
}

// RemoveStake removes the stake window at idx, typically because it has
// expired or been fully consumed by a slash/unstake.
func (m *Member) RemoveStake(idx int) {
	m.Stakes[idx] = m.Stakes[len(m.Stakes)-1]
	m.Stakes = m.Stakes[:len(m.Stakes)-1]
}

// SubtractFromStake detracts amount from the member's first non-empty
// stake, returning how much was actually subtracted (it may be less than
// amount if the stake runs out first).
func (m *Member) SubtractFromStake(amount uint64) uint64 {
	for i := range m.Stakes {
		if m.Stakes[i].Amount == 0 {
			continue
		}
		if m.Stakes[i].Amount < amount {
			subtracted := m.Stakes[i].Amount
			m.Stakes[i].Amount = 0
			return subtracted
		}
		m.Stakes[i].Amount -= amount
		return amount
	}
	return 0
}

// EligibleStake sums the stakes of m that are active at round.
func (m Member) EligibleStake(round uint64) uint64 {
	var total uint64
	for _, s := range m.Stakes {
		if s.StartHeight <= round && round <= s.EndHeight {
			total += s.Amount
		}
	}
	return total
}

// NewProvisioners returns an empty provisioner set.
func NewProvisioners() *Provisioners {
	return &Provisioners{
		Set:     sortedset.New(),
		Members: make(map[string]*Member),
	}
}

// Add inserts or updates a member's stake in the set, creating the member
// if this is its first stake (spec §4.6 selective update, Stake case).
func (p *Provisioners) Add(pubKeyBLS []byte, stake Stake) {
	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		m = &Member{PublicKeyBLS: append([]byte(nil), pubKeyBLS...)}
		p.Members[string(pubKeyBLS)] = m
		p.Set = p.Set.Insert(pubKeyBLS)
	}
	m.AddStake(stake)
}

// ReplaceStake overwrites pubKeyBLS's entire stake with a single window,
// the VM's authoritative post-block stake (spec §4.6 step 5 selective
// update). It reports whether the provisioner already existed.
func (p *Provisioners) ReplaceStake(pubKeyBLS []byte, stake Stake) bool {
	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		m = &Member{PublicKeyBLS: append([]byte(nil), pubKeyBLS...)}
		p.Members[string(pubKeyBLS)] = m
		p.Set = p.Set.Insert(pubKeyBLS)
	}
	m.Stakes = []Stake{stake}
	return found
}

// RemoveProvisioner deletes pubKeyBLS entirely, used when the VM reports
// it no longer holds any stake (spec §4.6 step 5). It reports whether the
// provisioner existed.
func (p *Provisioners) RemoveProvisioner(pubKeyBLS []byte) bool {
	if _, found := p.Members[string(pubKeyBLS)]; !found {
		return false
	}
	delete(p.Members, string(pubKeyBLS))
	p.Set = p.Set.Remove(pubKeyBLS)
	return true
}

// SubsetSizeAt returns how many provisioners have at least one eligible
// stake at round, which is also the most distinct members a sortition draw
// at round can yield. Sortition itself does not call it.
func (p Provisioners) SubsetSizeAt(round uint64) int {
	var size int
	for _, member := range p.Members {
		if member.EligibleStake(round) > 0 {
			size++
		}
	}
	return size
}

// MemberAt returns the member at position i of the canonical ordering.
func (p Provisioners) MemberAt(i int) (*Member, error) {
	if i < 0 || i >= len(p.Set) {
		return nil, errors.New("user: index out of bound")
	}
	return p.Members[string(p.Set.Bytes(i))], nil
}

// GetMember looks up a member by BLS public key.
func (p Provisioners) GetMember(pubKeyBLS []byte) *Member {
	return p.Members[string(pubKeyBLS)]
}

// GetStake returns the total (all-windows) stake of a provisioner.
func (p Provisioners) GetStake(pubKeyBLS []byte) (uint64, error) {
	if len(pubKeyBLS) != PubKeySize {
		return 0, fmt.Errorf("user: public key is %d bytes long instead of %d", len(pubKeyBLS), PubKeySize)
	}

	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		return 0, fmt.Errorf("user: public key %x not found among provisioner set", pubKeyBLS)
	}

	var total uint64
	for _, stake := range m.Stakes {
		total += stake.Amount
	}
	return total, nil
}

// EligibleStake returns pubKeyBLS's stake eligible at round, 0 if absent.
func (p Provisioners) EligibleStake(pubKeyBLS []byte, round uint64) uint64 {
	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		return 0
	}
	return m.EligibleStake(round)
}

// TotalWeightAt is the sum of every member's stake eligible at round - the
// denominator sortition's interval mapping divides against (spec §4.1).
func (p Provisioners) TotalWeightAt(round uint64) uint64 {
	var total uint64
	for _, member := range p.Members {
		total += member.EligibleStake(round)
	}
	return total
}

// MarshalProvisioners serializes the full provisioner set.
func MarshalProvisioners(r *bytes.Buffer, p *Provisioners) error {
	if err := encoding.WriteVarInt(r, uint64(len(p.Members))); err != nil {
		return err
	}

	for _, member := range p.Members {
		if err := marshalMember(r, *member); err != nil {
			return err
		}
	}

	return nil
}

func marshalMember(r *bytes.Buffer, member Member) error {
	if err := encoding.WriteVarBytes(r, member.PublicKeyBLS); err != nil {
		return err
	}

	if err := encoding.WriteVarInt(r, uint64(len(member.Stakes))); err != nil {
		return err
	}

	for _, stake := range member.Stakes {
		if err := marshalStake(r, stake); err != nil {
			return err
		}
	}

	return nil
}

func marshalStake(r *bytes.Buffer, stake Stake) error {
	if err := encoding.WriteUint64LE(r, stake.Amount); err != nil {
		return err
	}
	if err := encoding.WriteUint64LE(r, stake.StartHeight); err != nil {
		return err
	}
	return encoding.WriteUint64LE(r, stake.EndHeight)
}

// UnmarshalProvisioners deserializes a provisioner set.
func UnmarshalProvisioners(r *bytes.Buffer) (Provisioners, error) {
	lMembers, err := encoding.ReadVarInt(r)
	if err != nil {
		return Provisioners{}, err
	}

	members := make([]*Member, lMembers)
	for i := uint64(0); i < lMembers; i++ {
		members[i], err = unmarshalMember(r)
		if err != nil {
			return Provisioners{}, err
		}
	}

	set := sortedset.New()
	memberMap := make(map[string]*Member)
	for _, member := range members {
		set = set.Insert(member.PublicKeyBLS)
		memberMap[string(member.PublicKeyBLS)] = member
	}

	return Provisioners{Set: set, Members: memberMap}, nil
}

func unmarshalMember(r *bytes.Buffer) (*Member, error) {
	member := &Member{}
	if err := encoding.ReadVarBytes(r, &member.PublicKeyBLS); err != nil {
		return nil, err
	}

	lStakes, err := encoding.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	member.Stakes = make([]Stake, lStakes)
	for i := uint64(0); i < lStakes; i++ {
		member.Stakes[i], err = unmarshalStake(r)
		if err != nil {
			return nil, err
		}
	}

	return member, nil
}

func unmarshalStake(r *bytes.Buffer) (Stake, error) {
	stake := Stake{}
	if err := encoding.ReadUint64LE(r, &stake.Amount); err != nil {
		return Stake{}, err
	}
	if err := encoding.ReadUint64LE(r, &stake.StartHeight); err != nil {
		return Stake{}, err
	}
	if err := encoding.ReadUint64LE(r, &stake.EndHeight); err != nil {
		return Stake{}, err
	}
	return stake, nil
}
