// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package driver runs one round's Proposal -> Validation -> Ratification
// iterations (spec §2 leaf "drives the per-iteration state machine,
// wiring the Accumulator into the inbound vote queue, advancing
// iterations on timeout or failed quorum"), grounded on
// original_source/consensus/src/execution_ctx.rs's per-iteration loop and
// the teacher's initiator.go round bootstrap. Candidate content and
// transaction selection are out of scope here (spec.md Non-goals); a
// RoundTask collaborator supplies the candidate, so the driver only ever
// deals in block hashes and votes.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vireo-chain/vireo/internal/log"
	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/msghandler"
	"github.com/vireo-chain/vireo/pkg/core/consensus/phase"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

var lg = log.WithProcess("driver")

// RoundTask supplies the Proposal step's candidate block. failed carries
// every prior iteration's failure evidence this round has accumulated so
// far, for the task to embed in the candidate's FailedIterations field.
// What the candidate actually contains (which transactions, in what
// order) is left entirely to the task: that policy is out of scope here.
type RoundTask interface {
	Propose(ctx context.Context, ru phase.RoundUpdate, iteration uint8, failed []ledger.FailedIterationEntry) (ledger.Block, error)
}

// VoteCaster signs this node's own vote for a step, returning the
// compressed signature and the signer's public key (kept behind an
// interface so the driver never touches raw key material directly).
type VoteCaster interface {
	CastVote(hdr ledger.ConsensusHeader, seed ledger.Seed, step ledger.StepName, vote ledger.Vote) (signature [48]byte, signer []byte, err error)
}

// Broadcaster gossips a freshly cast vote to the rest of the committee.
type Broadcaster interface {
	BroadcastVote(ev agreement.Event) error
}

// Outcome is the result of running a round to completion: either a
// successfully attested block, or Success=false if every iteration up to
// the configured max ran out without one (spec §4.3/§4.6).
type Outcome struct {
	Success     bool
	Block       ledger.Block
	Attestation ledger.Attestation
}

// Supervisor runs a single round at a time, exposing CollectVote so an
// external message router can feed inbound votes into whichever
// accumulator is currently live (spec §5: CommitteeSet and Accumulator
// state belong to the round in progress).
type Supervisor struct {
	committees    *committee.Set
	caster        VoteCaster
	broadcaster   Broadcaster
	onStepElapsed func(ledger.StepName, time.Duration)

	mu              sync.Mutex
	accValidation   *agreement.Accumulator
	accRatification *agreement.Accumulator
	running         bool
}

// NewSupervisor builds a Supervisor. caster and broadcaster may be nil for
// a purely listen-only node that never casts its own votes.
func NewSupervisor(committees *committee.Set, caster VoteCaster, broadcaster Broadcaster, onStepElapsed func(ledger.StepName, time.Duration)) *Supervisor {
	return &Supervisor{
		committees:    committees,
		caster:        caster,
		broadcaster:   broadcaster,
		onStepElapsed: onStepElapsed,
	}
}

// IsRunning reports whether a round is currently in flight.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CollectVote feeds an externally-received vote into the round currently
// in flight. Votes received while no round is running, or for a step the
// current iteration isn't waiting on, are simply dropped - a harmless
// no-op, since a live Accumulator only ever reaches quorum on the steps
// actually in progress.
func (s *Supervisor) CollectVote(ev agreement.Event) {
	s.mu.Lock()
	accV, accR, running := s.accValidation, s.accRatification, s.running
	s.mu.Unlock()

	if !running {
		return
	}

	switch ev.Step {
	case ledger.StepValidation:
		accV.CollectVote(ev)
	case ledger.StepRatification:
		accR.CollectVote(ev)
	}
}

// Run drives a round's iterations until a block is agreed or ctx is
// cancelled, surfacing the decided block and its attestation. Each
// iteration's failure (timeout or a non-Success ratification) is folded
// into the FailedIterations evidence passed to the next iteration's
// candidate (spec §4.6 step 5, §3 Block.Header).
func (s *Supervisor) Run(ctx context.Context, ru phase.RoundUpdate, task RoundTask) (Outcome, error) {
	accV := agreement.NewAccumulator(s.committees, config.Get().Consensus.AccumulatorWorkers)
	accR := agreement.NewAccumulator(s.committees, config.Get().Consensus.AccumulatorWorkers)

	s.mu.Lock()
	s.accValidation, s.accRatification, s.running = accV, accR, true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.accValidation, s.accRatification = nil, nil
		s.mu.Unlock()
		accV.Stop()
		accR.Stop()
	}()

	maxIter := int(config.Get().Consensus.MaxIter)
	failed := make([]ledger.FailedIterationEntry, 0, maxIter+1)

	for it := 0; it <= maxIter; it++ {
		iteration := uint8(it)

		result, err := s.runIteration(ctx, ru, task, iteration, failed, accV, accR)
		if err != nil {
			return Outcome{}, err
		}

		if result.decided {
			if result.result.IsSuccess() {
				return Outcome{Success: true, Block: result.block, Attestation: result.attestation}, nil
			}
			failed = append(failed, ledger.FailedIterationEntry{
				Present: true,
				Cert:    ledger.Certificate{Validation: result.validationSV, Ratification: result.ratificationSV},
				PubKey:  result.block.Header.GeneratorBLSPub,
			})
		} else {
			entry := ledger.FailedIterationEntry{}
			if gen, gerr := s.committees.GetGenerator(iteration, ru.Seed[:], ru.Round); gerr == nil && len(gen) == ledger.PubKeySize {
				entry.Present = true
				copy(entry.PubKey[:], gen)
			}
			failed = append(failed, entry)
		}

		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
	}

	lg.WithField("round", ru.Round).Warn("round exhausted every iteration without agreement")
	return Outcome{Success: false}, nil
}

type iterationResult struct {
	decided        bool
	block          ledger.Block
	result         ledger.RatificationResult
	validationSV   ledger.StepVotes
	ratificationSV ledger.StepVotes
	attestation    ledger.Attestation
}

// runIteration runs one iteration's three steps in sequence, returning a
// zero iterationResult (decided=false) if any step times out.
func (s *Supervisor) runIteration(ctx context.Context, ru phase.RoundUpdate, task RoundTask, iteration uint8, failed []ledger.FailedIterationEntry, accV, accR *agreement.Accumulator) (iterationResult, error) {
	m := phase.NewMachine(iteration, ru.BaseTimeouts)

	var candidate ledger.Block
	proposalRunner := func(stepCtx context.Context) (msghandler.Output, error) {
		blk, err := task.Propose(stepCtx, ru, iteration, failed)
		if err != nil {
			if stepCtx.Err() != nil {
				return msghandler.Pending(), nil
			}
			return msghandler.Output{}, errors.Wrap(err, "driver: propose candidate")
		}
		candidate = blk
		candidate.Header = candidate.Header.WithHash()
		return msghandler.Ready(ledger.Valid(candidate.Header.Hash)), nil
	}

	start := time.Now()
	_, state, err := m.RunStep(ctx, phase.StateAwaitProposal, proposalRunner)
	if err != nil {
		return iterationResult{}, err
	}
	if state == phase.StateTimeout {
		lg.WithField("iteration", iteration).Trace("proposal step timed out")
		return iterationResult{}, nil
	}
	s.observeElapsed(ledger.StepProposal, time.Since(start))

	hdr := candidate.Header.ConsensusHeader()

	validationVote, validationSV, state, err := s.runVoteStep(ctx, m, state, ru, hdr, ledger.StepValidation, ledger.Valid(candidate.Header.Hash), accV)
	if err != nil {
		return iterationResult{}, err
	}
	if state == phase.StateTimeout {
		lg.WithField("iteration", iteration).Trace("validation step timed out")
		return iterationResult{}, nil
	}

	ratificationVote, ratificationSV, state, err := s.runVoteStep(ctx, m, state, ru, hdr, ledger.StepRatification, validationVote, accR)
	if err != nil {
		return iterationResult{}, err
	}
	if state == phase.StateTimeout {
		lg.WithField("iteration", iteration).Trace("ratification step timed out")
		return iterationResult{}, nil
	}

	result := ledger.Fail(ratificationVote)
	if ratificationVote.Kind == ledger.VoteValid {
		result = ledger.Success(ratificationVote)
	}

	return iterationResult{
		decided:        true,
		block:          candidate,
		result:         result,
		validationSV:   validationSV,
		ratificationSV: ratificationSV,
		attestation: ledger.Attestation{
			Result:       result,
			Validation:   validationSV,
			Ratification: ratificationSV,
		},
	}, nil
}

// runVoteStep casts and broadcasts this node's own vote for step, then
// waits for the step's accumulator to reach quorum or its deadline to
// expire.
func (s *Supervisor) runVoteStep(ctx context.Context, m *phase.Machine, curState phase.State, ru phase.RoundUpdate, hdr ledger.ConsensusHeader, step ledger.StepName, ownVote ledger.Vote, acc *agreement.Accumulator) (ledger.Vote, ledger.StepVotes, phase.State, error) {
	if err := s.castAndBroadcast(hdr, ru.Seed, step, ownVote, acc); err != nil {
		return ledger.Vote{}, ledger.StepVotes{}, curState, err
	}

	var collected agreement.CollectedVotes
	runner := func(stepCtx context.Context) (msghandler.Output, error) {
		select {
		case cv := <-acc.Output():
			collected = cv
			return msghandler.Ready(cv.Vote), nil
		case <-stepCtx.Done():
			return msghandler.Pending(), nil
		}
	}

	start := time.Now()
	_, next, err := m.RunStep(ctx, curState, runner)
	if err != nil {
		return ledger.Vote{}, ledger.StepVotes{}, curState, err
	}
	if next != phase.StateTimeout {
		s.observeElapsed(step, time.Since(start))
	}
	return collected.Vote, collected.Votes, next, nil
}

func (s *Supervisor) castAndBroadcast(hdr ledger.ConsensusHeader, seed ledger.Seed, step ledger.StepName, vote ledger.Vote, acc *agreement.Accumulator) error {
	if s.caster == nil {
		return nil
	}

	sig, signer, err := s.caster.CastVote(hdr, seed, step, vote)
	if err != nil {
		return errors.Wrap(err, "driver: cast vote")
	}

	ev := agreement.Event{Header: hdr, Seed: seed, Step: step, Signer: signer, Vote: vote, Signature: sig}
	acc.CollectVote(ev)

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastVote(ev); err != nil {
			lg.WithError(err).Warn("failed to broadcast own vote")
		}
	}
	return nil
}

func (s *Supervisor) observeElapsed(step ledger.StepName, d time.Duration) {
	if s.onStepElapsed != nil {
		s.onStepElapsed(step, d)
	}
}
