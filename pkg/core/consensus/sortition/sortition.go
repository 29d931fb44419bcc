// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package sortition implements the deterministic, stake-weighted sampling
// without replacement every honest node must reproduce byte-for-byte
// (spec §4.1), grounded on the teacher's CreateCommittee/Verify call
// contract (pkg/core/consensus/blockreduction.go,
// other_examples' msg-processing.go) generalized from the teacher's single
// VoteLimit knob to the full (seed, round, iteration, step, exclusion,
// size) config spec §4.1 fixes.
package sortition

import (
	"math/big"

	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/crypto/hash"
)

// Config pins down one sortition draw: everything two honest nodes need
// to compute an identical committee (spec §4.1 cfg tuple).
type Config struct {
	Seed      []byte
	Round     uint64
	Iteration uint8
	Step      uint8
	Exclusion [][]byte
	Size      int
}

// Draw is one member of a drawn committee: its public key and how many of
// the size slots it won (spec glossary "Committee").
type Draw struct {
	PubKey      []byte
	Multiplicity int
}

func excluded(pubKey []byte, exclusion [][]byte) bool {
	for _, e := range exclusion {
		if string(e) == string(pubKey) {
			return true
		}
	}
	return false
}

// eligibleMember is one provisioner snapshot entry used during the draw:
// its public key and remaining (deductible) stake.
type eligibleMember struct {
	pubKey []byte
	stake  uint64
}

// CreateCommittee draws a committee of cfg.Size members from p's
// provisioners eligible at cfg.Round, deterministically, per spec §4.1.
func CreateCommittee(cfg Config, p *user.Provisioners) ([]Draw, error) {
	members := snapshotEligible(cfg, p)
	if len(members) == 0 {
		return nil, nil
	}

	tally := make(map[string]int)
	order := make([]string, 0, len(members))

	for i := 0; i < cfg.Size; i++ {
		totalStake := sumStake(members)
		if totalStake == 0 {
			break
		}

		point := pickPoint(cfg, i, totalStake)
		idx := locate(members, point)
		if idx < 0 {
			break
		}

		key := string(members[idx].pubKey)
		if _, seen := tally[key]; !seen {
			order = append(order, key)
		}
		tally[key]++

		if members[idx].stake > 0 {
			members[idx].stake--
		}
	}

	draws := make([]Draw, len(order))
	for i, key := range order {
		draws[i] = Draw{PubKey: []byte(key), Multiplicity: tally[key]}
	}
	return draws, nil
}

// Verify returns how many slots of a previously-drawn committee pubKey
// occupies, 0 if it is not a member (sortition.Verify call sites across
// the example pack).
func Verify(committee []Draw, pubKey []byte) int {
	for _, d := range committee {
		if string(d.PubKey) == string(pubKey) {
			return d.Multiplicity
		}
	}
	return 0
}

// GetGenerator draws a single-winner committee (size 1) for the given
// iteration/seed/round, the deterministic block generator election
// (spec §4.2 get_generator).
func GetGenerator(p *user.Provisioners, round uint64, iteration uint8, seed []byte) ([]byte, error) {
	cfg := Config{Seed: seed, Round: round, Iteration: iteration, Step: 0, Size: 1}
	draws, err := CreateCommittee(cfg, p)
	if err != nil {
		return nil, err
	}
	if len(draws) == 0 {
		return nil, nil
	}
	return draws[0].PubKey, nil
}

func snapshotEligible(cfg Config, p *user.Provisioners) []eligibleMember {
	out := make([]eligibleMember, 0, len(p.Set))
	for i := range p.Set {
		pk := p.Set.Bytes(i)
		if excluded(pk, cfg.Exclusion) {
			continue
		}
		stake := p.EligibleStake(pk, cfg.Round)
		if stake == 0 {
			continue
		}
		out = append(out, eligibleMember{pubKey: pk, stake: stake})
	}
	return out
}

func sumStake(members []eligibleMember) uint64 {
	var total uint64
	for _, m := range members {
		total += m.stake
	}
	return total
}

// pickPoint derives h_i = H(seed || round || iteration || step || i) and
// maps it into [0, totalStake) (spec §4.1 step 3).
func pickPoint(cfg Config, i int, totalStake uint64) *big.Int {
	digest := hash.Sum(
		cfg.Seed,
		uint64Bytes(cfg.Round),
		[]byte{cfg.Iteration},
		[]byte{cfg.Step},
		uint64Bytes(uint64(i)),
	)

	n := new(big.Int).SetBytes(digest[:])
	mod := new(big.Int).SetUint64(totalStake)
	return n.Mod(n, mod)
}

// locate finds the member whose cumulative-stake interval contains point,
// walking the snapshot in canonical (ascending public key) order so ties
// at interval boundaries resolve identically on every node.
func locate(members []eligibleMember, point *big.Int) int {
	cursor := new(big.Int)
	for i, m := range members {
		cursor.Add(cursor, new(big.Int).SetUint64(m.stake))
		if point.Cmp(cursor) < 0 {
			return i
		}
	}
	return -1
}

func uint64Bytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
