// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package sortedset provides the canonically-ordered member set and
// occurrence cluster the committee/bitset machinery is built on, in the
// shape the teacher's agreement and reduction packages consume
// (committee.IntersectCluster(bits).Set, cluster.TotalOccurrences(), ...)
// even though the teacher's own copy of this package was not part of the
// retrieved snapshot.
package sortedset

import (
	"math/big"
	"sort"
)

// Set is a canonically (ascending big-integer) ordered, duplicate-free set
// of member identities (BLS public keys), used as the tie-break ordering
// sortition's "canonical member ordering" rule depends on.
type Set []*big.Int

// New returns an empty Set.
func New() Set {
	return Set{}
}

// IndexOf returns the index of b in the set and whether it was already
// present.
func (s Set) IndexOf(b []byte) (int, bool) {
	n := new(big.Int).SetBytes(b)
	i := sort.Search(len(s), func(i int) bool { return s[i].Cmp(n) >= 0 })
	return i, i < len(s) && s[i].Cmp(n) == 0
}

// Insert adds b to the set, preserving ascending order, and is a no-op if
// b is already present. Returns the (possibly unchanged) set.
func (s Set) Insert(b []byte) Set {
	i, found := s.IndexOf(b)
	if found {
		return s
	}

	n := new(big.Int).SetBytes(b)
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = n
	return s
}

// Remove deletes b from the set if present, returning the (possibly
// unchanged) set. Used when a provisioner's stake disappears entirely
// (spec §4.6 step 5 selective update).
func (s Set) Remove(b []byte) Set {
	i, found := s.IndexOf(b)
	if !found {
		return s
	}
	return append(s[:i], s[i+1:]...)
}

// pubKeySize is the fixed width Bytes pads to: a compressed BLS12-381
// public key, the only member identity this set encodes.
const pubKeySize = 96

// Bytes returns the 96-byte-aligned big-endian encoding of an element at
// index i. Callers compare this against a provisioner's BLS public key;
// zero-padding on the left preserves keys whose leading byte is zero,
// which big.Int.Bytes() would otherwise silently drop.
func (s Set) Bytes(i int) []byte {
	out := make([]byte, pubKeySize)
	return s[i].FillBytes(out)
}

// Cluster pairs a Set with the number of sortition "occurrences"
// (multiplicity) each member accumulated, mirroring sortedset.Cluster's
// role in the teacher's Aggregator (a.voteSets[...].Cluster).
type Cluster struct {
	Set   Set
	Occur map[string]int
}

// NewCluster returns an empty Cluster.
func NewCluster() Cluster {
	return Cluster{Set: New(), Occur: make(map[string]int)}
}

// Insert records one occurrence of member b.
func (c *Cluster) Insert(b []byte) {
	c.Set = c.Set.Insert(b)
	c.Occur[string(b)]++
}

// TotalOccurrences sums the occurrence counts across all members in the
// cluster - the stake-weighted vote tally the Accumulator compares against
// quorum.
func (c Cluster) TotalOccurrences() int {
	total := 0
	for _, n := range c.Occur {
		total += n
	}
	return total
}
