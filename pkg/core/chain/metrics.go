// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"time"

	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/consensus/phase"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/database"
)

// avgKeys maps each step to the metadata key its rolling average is
// persisted under (acceptor.rs's MD_AVG_PROPOSAL/VALIDATION/RATIFICATION).
var avgKeys = map[ledger.StepName]string{
	ledger.StepProposal:     database.MDAvgProposalKey,
	ledger.StepValidation:   database.MDAvgValidationKey,
	ledger.StepRatification: database.MDAvgRatificationKey,
}

// averageRingSize is how many recent per-step durations each rolling
// average keeps.
const averageRingSize = 10

// adjustRoundBaseTimeouts rebuilds a TimeoutSet from each step's
// persisted rolling average (acceptor.rs's adjust_round_base_timeouts).
func adjustRoundBaseTimeouts(db database.DB) phase.TimeoutSet {
	timeouts := phase.TimeoutSet{}
	for step, key := range avgKeys {
		timeouts[step] = readAvgTimeout(db, key)
	}
	return timeouts
}

// readAvgTimeout reads and clamps the rolling average stored under key,
// defaulting to MaxStepTimeout the first time a step has no history
// (acceptor.rs's read_avg_timeout: an unset metric pushes one sample of
// MAX_STEP_TIMEOUT so a fresh node starts conservative, not optimistic).
func readAvgTimeout(db database.DB, key string) time.Duration {
	cfg := config.Get().Consensus

	var avg *phase.AverageElapsedTime
	_ = db.View(func(t database.Transaction) error {
		raw, ok, err := t.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			avg = phase.NewAverageElapsedTime(averageRingSize)
			avg.Observe(cfg.MaxStepTimeout)
			return nil
		}

		decoded, err := phase.UnmarshalAverageElapsedTime(raw)
		if err != nil {
			avg = phase.NewAverageElapsedTime(averageRingSize)
			avg.Observe(cfg.MaxStepTimeout)
			return nil
		}
		avg = decoded
		return nil
	})

	return avg.Clamped()
}

// observeStepElapsed records d against step's rolling average and
// persists the updated ring buffer (the write half of
// adjust_round_base_timeouts/read_avg_timeout).
func observeStepElapsed(db database.DB, step ledger.StepName, d time.Duration) error {
	key := avgKeys[step]

	return db.Update(func(t database.Transaction) error {
		var avg *phase.AverageElapsedTime
		raw, ok, err := t.Get(key)
		if err != nil {
			return err
		}
		if ok {
			avg, err = phase.UnmarshalAverageElapsedTime(raw)
			if err != nil {
				avg = phase.NewAverageElapsedTime(averageRingSize)
			}
		} else {
			avg = phase.NewAverageElapsedTime(averageRingSize)
		}

		avg.Observe(d)
		return t.Put(key, phase.MarshalAverageElapsedTime(avg))
	})
}
