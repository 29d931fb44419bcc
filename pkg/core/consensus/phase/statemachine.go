// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package phase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vireo-chain/vireo/internal/log"
	"github.com/vireo-chain/vireo/pkg/core/consensus/msghandler"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

// State is one state of the per-iteration machine (spec §4.3 States).
type State uint8

const (
	StateIdle State = iota
	StateAwaitProposal
	StateAwaitValidation
	StateAwaitRatification
	StateDone
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitProposal:
		return "AwaitProposal"
	case StateAwaitValidation:
		return "AwaitValidation"
	case StateAwaitRatification:
		return "AwaitRatification"
	case StateDone:
		return "Done"
	case StateTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// StepForState exposes stepOf's state-to-step mapping for callers (the
// driver package) that need to know which step governs a given state.
func StepForState(s State) (ledger.StepName, bool) {
	return stepOf(s)
}

// stepOf maps a machine state to the step whose timeout governs it.
func stepOf(s State) (ledger.StepName, bool) {
	switch s {
	case StateAwaitProposal:
		return ledger.StepProposal, true
	case StateAwaitValidation:
		return ledger.StepValidation, true
	case StateAwaitRatification:
		return ledger.StepRatification, true
	default:
		return 0, false
	}
}

// Outcome is what an Iteration produced: either an attested block or a
// timeout that advances to the next iteration (spec §4.3 Done/Timeout).
type Outcome struct {
	Done        bool
	Block       ledger.Block
	Attestation ledger.Attestation
}

// StepRunner executes a single step and reports whether it produced a
// decision before its deadline. Phase-specific collaborators (msghandler
// implementations) satisfy this by running their collect loop until
// Ready or ctx cancellation.
type StepRunner func(ctx context.Context) (msghandler.Output, error)

// Machine drives one iteration's Proposal -> Validation -> Ratification
// sequence, advancing on Done or Timeout exactly as spec §4.3 describes.
type Machine struct {
	iteration uint8
	timeouts  TimeoutSet
}

// NewMachine returns a Machine starting at Idle for the given iteration.
func NewMachine(iteration uint8, timeouts TimeoutSet) *Machine {
	return &Machine{iteration: iteration, timeouts: timeouts}
}

// RunStep executes one step with an absolute deadline derived from the
// step's current base timeout (spec §5 "Timeouts use absolute deadlines
// (Instant + Duration) to avoid drift across suspensions"). On timeout it
// doubles (capped) the step's base timeout for the next iteration's
// attempt at the same step, per spec §4.3.
func (m *Machine) RunStep(ctx context.Context, state State, run StepRunner) (Outcome, State, error) {
	step, ok := stepOf(state)
	if !ok {
		return Outcome{}, state, errors.Errorf("phase: state %s has no associated step", state)
	}

	deadline := time.Now().Add(m.timeouts[step])
	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	out, err := run(stepCtx)
	if err != nil {
		return Outcome{}, state, err
	}

	if !out.Ready {
		if stepCtx.Err() != nil {
			m.timeouts[step] = DoubleOnTimeout(m.timeouts[step])
			log.WithProcess("phase").WithField("step", step.String()).
				WithField("iteration", m.iteration).
				Warn("step timed out, doubling base timeout")
			return Outcome{}, StateTimeout, nil
		}
		return Outcome{}, state, nil
	}

	return Outcome{}, nextState(state), nil
}

func nextState(s State) State {
	switch s {
	case StateIdle:
		return StateAwaitProposal
	case StateAwaitProposal:
		return StateAwaitValidation
	case StateAwaitValidation:
		return StateAwaitRatification
	case StateAwaitRatification:
		return StateDone
	default:
		return s
	}
}
