// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package database defines the DB contract the Acceptor persists
// against (spec §6 "DB contract"): transactional block/label storage
// and the metadata keys try_accept_block reads and writes.
package database

import (
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

// Metadata keys the Acceptor reads and writes every accepted block
// (spec §6, §4.6 step 4). Average-timeout keys are written by the
// phase package's rolling-average observation.
const (
	MDHashKey            = "metadata:tip_hash"
	MDStateRootKey       = "metadata:state_root"
	MDAvgProposalKey     = "metadata:avg_proposal"
	MDAvgValidationKey   = "metadata:avg_validation"
	MDAvgRatificationKey = "metadata:avg_ratification"
)

// DB is the persistence contract. Implementations must serialize
// Update calls against the same instance (spec §5 "single-writer").
type DB interface {
	// Update runs fn inside a read-write transaction. fn's changes are
	// committed only if it returns nil; any error aborts the
	// transaction and propagates unchanged.
	Update(fn func(Transaction) error) error

	// View runs fn inside a read-only, point-in-time consistent
	// transaction.
	View(fn func(Transaction) error) error

	// Close releases the underlying storage handle.
	Close() error
}

// Transaction is the unit of work passed to Update/View.
type Transaction interface {
	// StoreBlock persists blk's header, transactions and Label
	// keyed by its hash.
	StoreBlock(blk ledger.Block, label ledger.Label) error

	// FetchBlock retrieves a previously stored block by hash.
	FetchBlock(hash [32]byte) (ledger.Block, error)

	// FetchBlockLabel retrieves a previously stored block's Label.
	FetchBlockLabel(hash [32]byte) (ledger.Label, error)

	// UpdateBlockLabel rewrites a stored block's Label in place, used
	// by rolling-finality promotion (spec §4.6 step 3) and by
	// try_revert's unwind.
	UpdateBlockLabel(hash [32]byte, label ledger.Label) error

	// DeleteBlock removes a block and its label, used by
	// try_revert's unwind and candidate-deletion housekeeping.
	DeleteBlock(hash [32]byte) error

	// FetchBlockHashByHeight resolves the canonical-chain block hash
	// at a given height, or ok=false if none is stored.
	FetchBlockHashByHeight(height uint64) (hash [32]byte, ok bool, err error)

	// Get reads a raw metadata value (the MD* keys above), or
	// ok=false if unset.
	Get(key string) (value []byte, ok bool, err error)

	// Put writes a raw metadata value.
	Put(key string, value []byte) error
}
