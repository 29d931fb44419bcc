// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package config centralizes every environment constant the consensus core
// needs, the way the teacher's pkg/config does for the wider node
// (config.Get().General.TimeoutGetCandidate, config.MaxInvBlocks, ...).
package config

import (
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v2"
)

// Consensus holds the fixed environment constants named in spec §6.
type Consensus struct {
	MaxIter                     uint8         `yaml:"max_iter"`
	RollingFinalityThreshold    uint64        `yaml:"rolling_finality_threshold"`
	MinStepTimeout              time.Duration `yaml:"min_step_timeout"`
	MaxStepTimeout              time.Duration `yaml:"max_step_timeout"`
	CandidatesDeletionOffset    uint64        `yaml:"candidates_deletion_offset"`
	OffsetFutureMsgs            uint64        `yaml:"offset_future_msgs"`
	RedundancyPeerCount         int           `yaml:"redundancy_peer_count"`
	CommitteeSize               int           `yaml:"committee_size"`
	MinimumStake                uint64        `yaml:"minimum_stake"`
	AccumulatorWorkers          int           `yaml:"accumulator_workers"`
}

// General carries node-wide knobs unrelated to consensus timing, mirroring
// the teacher's config.Get().General.* accessors.
type General struct {
	TimeoutGetCandidate         time.Duration `yaml:"timeout_get_candidate"`
	TimeoutVerifyCandidateBlock time.Duration `yaml:"timeout_verify_candidate_block"`
	MaxInvBlocks                uint64        `yaml:"max_inv_blocks"`
}

// Config is the root configuration document.
type Config struct {
	Consensus Consensus `yaml:"consensus"`
	General   General   `yaml:"general"`

	// TreasuryKey is the process-wide constant public key that receives a
	// Reward alongside the block generator on every accepted block (the
	// dusk-treasury equivalent; spec §9 "Global keys").
	TreasuryKey []byte `yaml:"-"`
}

// Default returns the configuration the node boots with absent any YAML
// override, matching the bounds spec §6 fixes.
func Default() *Config {
	return &Config{
		Consensus: Consensus{
			MaxIter:                  16,
			RollingFinalityThreshold: 5,
			MinStepTimeout:           5 * time.Second,
			MaxStepTimeout:           40 * time.Second,
			CandidatesDeletionOffset: 10,
			OffsetFutureMsgs:         5,
			RedundancyPeerCount:      8,
			CommitteeSize:            64,
			MinimumStake:             1_000,
			AccumulatorWorkers:       4,
		},
		General: General{
			TimeoutGetCandidate:         5 * time.Second,
			TimeoutVerifyCandidateBlock: 5 * time.Second,
			MaxInvBlocks:                500,
		},
	}
}

var current atomic.Value

func init() {
	current.Store(Default())
}

// Get returns the active configuration. Safe for concurrent use.
func Get() *Config {
	return current.Load().(*Config)
}

// Load reads a YAML document from path and installs it as the active
// configuration, starting from Default() so a partial document only
// overrides the fields it sets.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	current.Store(cfg)
	return cfg, nil
}

// Store installs cfg as the active configuration, bypassing YAML loading
// - tests use this to exercise bounds (MaxIter, timeouts) other than the
// defaults without writing a document to disk.
func Store(cfg *Config) {
	current.Store(cfg)
}

// MaxInvBlocks is a package-level shortcut mirroring the teacher's
// config.MaxInvBlocks, used by sync-window calculations.
func MaxInvBlocks() uint64 {
	return Get().General.MaxInvBlocks
}
