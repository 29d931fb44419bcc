// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package agreement implements the vote Accumulator (spec §4.4), grounded
// on original_source/consensus/src/agreement/accumulator.rs's worker pool
// and the teacher's committee-backed handler
// (pkg/core/consensus/agreement/handler.go, superseded here) generalized
// from a fixed two-step Agreement payload to the single-step StepVotes
// tally spec §4.4 describes.
package agreement

import (
	"context"
	"sync"

	"github.com/vireo-chain/vireo/internal/log"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/sortition"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/sortedset"
)

var lg = log.WithProcess("agreement")

// Event is one signed vote a provisioner cast for a given round/step/vote,
// the unit the Accumulator tallies (accumulator.rs's Agreement message).
type Event struct {
	Header    ledger.ConsensusHeader
	Seed      ledger.Seed
	Step      ledger.StepName
	Signer    []byte
	Vote      ledger.Vote
	Signature [48]byte
}

// CollectedVotes is the Accumulator's output once a (block_hash, step)
// pair crosses quorum: the StepVotes evidence ready to be embedded in an
// Attestation.
type CollectedVotes struct {
	Header ledger.ConsensusHeader
	Step   ledger.StepName
	Vote   ledger.Vote
	Votes  ledger.StepVotes
}

// store is the per-(block_hash, step) tally: which signers have already
// voted (dedup) plus the running occurrence cluster and signature
// aggregate (accumulator.rs's AgreementsPerStep/StorePerHash).
type store struct {
	seen    map[string]struct{}
	cluster sortedset.Cluster
	sigs    [][]byte
	done    bool
}

func newStore() *store {
	return &store{seen: make(map[string]struct{}), cluster: sortedset.NewCluster()}
}

// Accumulator is the worker-pool based vote aggregator (spec §4.4).
type Accumulator struct {
	handler  *committee.Set
	out      chan CollectedVotes
	in       chan Event
	mu       sync.Mutex
	stores   map[string]map[ledger.StepName]*store
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewAccumulator spawns workerCount workers reading from a buffered input
// queue of 256 events, each independently verifying an incoming vote
// before serializing on the shared store (spec §4.4 Concurrency). The
// queue is bounded: once 256 events are waiting, CollectVote blocks.
func NewAccumulator(handler *committee.Set, workerCount int) *Accumulator {
	if workerCount < 1 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Accumulator{
		handler: handler,
		out:     make(chan CollectedVotes, 1),
		in:      make(chan Event, 256),
		stores:  make(map[string]map[ledger.StepName]*store),
		cancel:  cancel,
	}

	for i := 0; i < workerCount; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}

	return a
}

// CollectVote submits an incoming vote for processing. Never blocks the
// caller beyond the input channel's buffer.
func (a *Accumulator) CollectVote(ev Event) {
	a.in <- ev
}

// Output is the channel CollectedVotes are published on, at most once per
// (block_hash, step) that reaches quorum. The channel holds one value; an
// emission made while that slot is still full is dropped.
func (a *Accumulator) Output() <-chan CollectedVotes {
	return a.out
}

// Stop aborts every worker; partial state is discarded, matching spec
// §4.4 Shutdown ("on drop, all workers are aborted").
func (a *Accumulator) Stop() {
	a.cancel()
	a.wg.Wait()
}

func (a *Accumulator) worker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.in:
			a.accumulate(ev)
		}
	}
}

var zeroHash [32]byte

func (a *Accumulator) accumulate(ev Event) {
	// Empty-hash rule: zero-hash votes are "no candidate" placeholders
	// handled elsewhere (spec §4.4).
	if ev.Vote.Kind == ledger.VoteValid && ev.Vote.Hash == zeroHash {
		return
	}

	cfg := sortition.Config{
		Seed:      ev.Seed[:],
		Round:     ev.Header.Round,
		Iteration: ev.Header.Iteration,
		Step:      uint8(ev.Step),
		Size:      64,
	}

	weight := a.handler.VotesFor(ev.Signer, cfg)
	if weight == 0 {
		lg.WithField("round", ev.Header.Round).Warn("rejecting vote from non-member signer")
		return
	}

	blockKey := string(ev.Vote.Hash[:])

	a.mu.Lock()
	defer a.mu.Unlock()

	perStep, found := a.stores[blockKey]
	if !found {
		perStep = make(map[ledger.StepName]*store)
		a.stores[blockKey] = perStep
	}

	s, found := perStep[ev.Step]
	if !found {
		s = newStore()
		perStep[ev.Step] = s
	}

	if s.done {
		return
	}

	signerKey := string(ev.Signer)
	if _, dup := s.seen[signerKey]; dup {
		lg.WithField("round", ev.Header.Round).Warn("discarding duplicate vote")
		return
	}
	s.seen[signerKey] = struct{}{}

	for n := 0; n < weight; n++ {
		s.cluster.Insert(ev.Signer)
	}
	s.sigs = append(s.sigs, ev.Signature[:])

	quorum := a.handler.Quorum(cfg, ev.Vote.Kind == ledger.VoteValid)
	if s.cluster.TotalOccurrences() < quorum {
		return
	}

	// Only the first worker to cross the threshold emits; tearing down
	// s.done before releasing the lock makes the emission exactly once.
	s.done = true

	c, err := a.handler.GetOrCreate(cfg)
	if err != nil {
		lg.WithError(err).Error("failed to reconstruct committee for quorum emission")
		return
	}

	bits := c.Bits(s.cluster.Set)

	agg, err := aggregateSignatures(s.sigs)
	if err != nil {
		lg.WithError(err).Error("failed to aggregate signatures for quorum emission")
		return
	}

	select {
	case a.out <- CollectedVotes{
		Header: ev.Header,
		Step:   ev.Step,
		Vote:   ev.Vote,
		Votes:  ledger.StepVotes{BitSet: bits, AggregateSignature: agg},
	}:
	default:
	}
}

func aggregateSignatures(raw [][]byte) ([48]byte, error) {
	var out [48]byte

	sigs := make([]*bls.Signature, 0, len(raw))
	for _, s := range raw {
		sig, err := bls.SignatureFromBytes(s)
		if err != nil {
			return out, err
		}
		sigs = append(sigs, sig)
	}

	agg, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return out, err
	}

	copy(out[:], agg.Compress())
	return out, nil
}
