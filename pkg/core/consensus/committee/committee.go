// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package committee memoizes sortition draws and answers the vote-weight
// and quorum-threshold queries the phase handlers and the quorum verifier
// depend on (spec §4.2), grounded on the teacher's committee.Handler
// contract (pkg/core/consensus/agreement/handler.go: NewHandler,
// IntersectCluster, VotesFor) generalized from a single cached committee to
// the full memoizing CommitteeSet spec §4.2 describes.
package committee

import (
	"math"
	"sync"

	"github.com/vireo-chain/vireo/pkg/core/consensus/sortition"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/sortedset"
)

// Committee is one sortition draw, cached so repeated queries for the same
// config never re-run the draw.
type Committee struct {
	cfg   sortition.Config
	draws []sortition.Draw
	set   sortedset.Set
}

// Size is the committee's configured slot count (spec glossary Committee:
// "Sum(weight) = committee_size").
func (c *Committee) Size() int { return c.cfg.Size }

// VotesFor returns pubKey's multiplicity in this committee, 0 if absent.
func (c *Committee) VotesFor(pubKey []byte) int {
	return sortition.Verify(c.draws, pubKey)
}

// IsMember reports whether pubKey occupies at least one slot.
func (c *Committee) IsMember(pubKey []byte) bool {
	return c.VotesFor(pubKey) > 0
}

// Set returns the canonically ordered set of distinct members drawn. A
// StepVotes bitset's bit positions do not follow this ordering: Bits and
// IntersectCluster index members in the order the draw first picked them.
func (c *Committee) Set() sortedset.Set { return c.set }

// IntersectCluster maps a StepVotes bitset back to the sub-committee of
// members it claims to represent, with their multiplicities (occurrence
// counts) preserved - the reconstruction the quorum verifier needs before
// it can aggregate public keys and tally weight.
func (c *Committee) IntersectCluster(bitSet uint64) sortedset.Cluster {
	cluster := sortedset.NewCluster()
	for i, d := range c.draws {
		if bitSet&(1<<uint(i)) == 0 {
			continue
		}
		for n := 0; n < d.Multiplicity; n++ {
			cluster.Insert(d.PubKey)
		}
	}
	return cluster
}

// Bits returns the StepVotes bitset that represents exactly the members of
// set, the inverse of IntersectCluster's membership test.
func (c *Committee) Bits(set sortedset.Set) uint64 {
	var bits uint64
	for i, d := range c.draws {
		if _, found := set.IndexOf(d.PubKey); found {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// QuorumForVote returns the number of occurrences (spec §4.2 quorum):
// super-majority (⌈2·size/3⌉+1) for a Valid vote, simple majority
// otherwise (Invalid/NoQuorum/NoCandidate).
func (c *Committee) QuorumForVote(isValid bool) int {
	if isValid {
		return SuperMajority(c.cfg.Size)
	}
	return Majority(c.cfg.Size)
}

// SuperMajority is ⌈2·size/3⌉+1, the threshold a Valid vote must cross.
func SuperMajority(size int) int {
	return int(math.Ceil(float64(2*size)/3)) + 1
}

// Majority is a simple majority of size, the threshold Invalid/NoQuorum
// votes must cross.
func Majority(size int) int {
	return size/2 + 1
}

// Set is the memoizing cache of committees keyed by sortition config
// (spec §4.2 CommitteeSet). Safe for concurrent use: concurrent callers
// drawing the same config block on the same underlying draw and observe
// the same cached Committee (spec §4.2 get_or_create "idempotent").
type Set struct {
	mu    sync.Mutex
	cache map[string]*Committee
	prov  *user.Provisioners
}

// NewSet returns an empty CommitteeSet backed by the given provisioner
// snapshot.
func NewSet(p *user.Provisioners) *Set {
	return &Set{cache: make(map[string]*Committee), prov: p}
}

// GetOrCreate draws (or returns the cached draw for) cfg.
func (s *Set) GetOrCreate(cfg sortition.Config) (*Committee, error) {
	key := cacheKey(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, found := s.cache[key]; found {
		return c, nil
	}

	draws, err := sortition.CreateCommittee(cfg, s.prov)
	if err != nil {
		return nil, err
	}

	set := sortedset.New()
	for _, d := range draws {
		set = set.Insert(d.PubKey)
	}

	c := &Committee{cfg: cfg, draws: draws, set: set}
	s.cache[key] = c
	return c, nil
}

// VotesFor is a convenience wrapper returning 0, not an error, on a draw
// failure - callers never fail on an unknown member (spec §4.2 Failure:
// "never fails; returns neutral values for unknown members").
func (s *Set) VotesFor(pubKey []byte, cfg sortition.Config) int {
	c, err := s.GetOrCreate(cfg)
	if err != nil || c == nil {
		return 0
	}
	return c.VotesFor(pubKey)
}

// Quorum returns the vote-occurrence threshold for cfg, 0 on a draw
// failure.
func (s *Set) Quorum(cfg sortition.Config, isValid bool) int {
	c, err := s.GetOrCreate(cfg)
	if err != nil || c == nil {
		return 0
	}
	return c.QuorumForVote(isValid)
}

// GetGenerator draws a size-1 committee for (round, iteration, seed) and
// returns its single winner (spec §4.2 get_generator).
func (s *Set) GetGenerator(iteration uint8, seed []byte, round uint64) ([]byte, error) {
	return sortition.GetGenerator(s.prov, round, iteration, seed)
}

func cacheKey(cfg sortition.Config) string {
	buf := make([]byte, 0, len(cfg.Seed)+8+1+1+4)
	buf = append(buf, cfg.Seed...)
	buf = appendUint64(buf, cfg.Round)
	buf = append(buf, cfg.Iteration, cfg.Step, byte(cfg.Size), byte(cfg.Size>>8))
	for _, e := range cfg.Exclusion {
		buf = append(buf, e...)
	}
	return string(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
