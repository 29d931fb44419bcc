// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package phase implements the per-iteration Proposal/Validation/
// Ratification state machine (spec §4.3), grounded on
// original_source/consensus/src/commons.rs's RoundUpdate/TimeoutSet and
// original_source/node/src/chain/acceptor.rs's AverageElapsedTime ring
// buffer (adjust_round_base_timeouts/read_avg_timeout).
package phase

import (
	"time"

	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

// TimeoutSet maps each step to its current base timeout (commons.rs's
// TimeoutSet = HashMap<StepName, Duration>).
type TimeoutSet map[ledger.StepName]time.Duration

// DefaultTimeoutSet seeds every step at MinStepTimeout, the starting point
// before any rolling average has been observed.
func DefaultTimeoutSet() TimeoutSet {
	min := config.Get().Consensus.MinStepTimeout
	return TimeoutSet{
		ledger.StepProposal:     min,
		ledger.StepValidation:   min,
		ledger.StepRatification: min,
	}
}

// RoundUpdate carries everything a round's phases need to run: the
// round's provisioner-facing identity, the previous block's outputs, and
// the current base timeouts (commons.rs's RoundUpdate).
type RoundUpdate struct {
	Round         uint64
	PubKeyBLS     []byte
	SecretKeyBLS  []byte
	Seed          ledger.Seed
	TipHash       [32]byte
	StateRoot     [32]byte
	Attestation   ledger.Attestation
	AttVoters     [][]byte
	Timestamp     int64
	BaseTimeouts  TimeoutSet
}

// NewRoundUpdate derives a RoundUpdate for the round following tip, the
// way commons.rs's constructor computes round = tip_header.height + 1.
func NewRoundUpdate(tip ledger.Header, pubKeyBLS, secretKeyBLS []byte, timeouts TimeoutSet) RoundUpdate {
	return RoundUpdate{
		Round:        tip.Height + 1,
		PubKeyBLS:    pubKeyBLS,
		SecretKeyBLS: secretKeyBLS,
		Seed:         tip.Seed,
		TipHash:      tip.Hash,
		StateRoot:    tip.StateHash,
		Attestation:  tip.Attestation,
		BaseTimeouts: timeouts,
	}
}

// AverageElapsedTime is a bounded ring buffer of observed step durations,
// the rolling-average source for a step's next base timeout (spec §4.3,
// §9 "Timeouts as rolling averages").
type AverageElapsedTime struct {
	samples []time.Duration
	cap     int
	next    int
	filled  bool
}

// NewAverageElapsedTime returns a ring buffer holding up to size samples.
func NewAverageElapsedTime(size int) *AverageElapsedTime {
	if size < 1 {
		size = 1
	}
	return &AverageElapsedTime{samples: make([]time.Duration, size), cap: size}
}

// Observe records one elapsed duration.
func (a *AverageElapsedTime) Observe(d time.Duration) {
	a.samples[a.next] = d
	a.next = (a.next + 1) % a.cap
	if a.next == 0 {
		a.filled = true
	}
}

// Average returns the mean of all recorded samples, 0 if none yet.
func (a *AverageElapsedTime) Average() time.Duration {
	n := a.next
	if a.filled {
		n = a.cap
	}
	if n == 0 {
		return 0
	}

	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += a.samples[i]
	}
	return sum / time.Duration(n)
}

// Clamped returns the average clamped to [MinStepTimeout, MaxStepTimeout],
// falling back to MinStepTimeout absent any samples (spec §4.3).
func (a *AverageElapsedTime) Clamped() time.Duration {
	cfg := config.Get().Consensus
	avg := a.Average()
	if avg == 0 {
		return cfg.MinStepTimeout
	}
	if avg < cfg.MinStepTimeout {
		return cfg.MinStepTimeout
	}
	if avg > cfg.MaxStepTimeout {
		return cfg.MaxStepTimeout
	}
	return avg
}

// DoubleOnTimeout computes the next (per-iteration, not persisted) timeout
// after a step times out: doubling, capped at MaxStepTimeout (spec §4.3
// "On Timeout ... its base timeout is adjusted upward (doubling, capped at
// MAX)").
func DoubleOnTimeout(current time.Duration) time.Duration {
	max := config.Get().Consensus.MaxStepTimeout
	doubled := current * 2
	if doubled > max {
		return max
	}
	return doubled
}
