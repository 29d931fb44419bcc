// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package metrics exposes the counters/histograms fixed observable points
// from spec §2 item 10 and §9, grounded on
// original_source/node/src/chain/acceptor.rs's metrics::{counter,gauge,
// histogram} call sites, translated to the prometheus/client_golang idiom.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TxnCount is the cumulative number of executed transactions.
	TxnCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vireo_txn_count",
		Help: "Cumulative number of executed transactions.",
	})

	// BlocksByLabel counts accepted blocks, partitioned by their final label.
	BlocksByLabel = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vireo_block_total",
		Help: "Cumulative number of accepted blocks by label.",
	}, []string{"label"})

	// BlockTime histograms the wall-clock gap between consecutive blocks.
	BlockTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vireo_block_time_seconds",
		Help: "Wall-clock time between consecutive block timestamps.",
	})

	// BlockIteration histograms which iteration produced the accepted block.
	BlockIteration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vireo_block_iteration",
		Help:    "Iteration number that produced the accepted block.",
		Buckets: prometheus.LinearBuckets(0, 1, 16),
	})

	// AcceptElapsed histograms the duration of VM accept + commit.
	AcceptElapsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vireo_block_accept_elapsed_seconds",
		Help: "Time spent applying a block to the VM and persisting it.",
	})

	// SlashedCount histograms how many generators were slashed per block.
	SlashedCount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vireo_slashed_count",
		Help:    "Number of provisioners slashed for missed iterations per block.",
		Buckets: prometheus.LinearBuckets(0, 1, 16),
	})

	// BlockDiskSize histograms the stored block size.
	BlockDiskSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vireo_block_disk_size_bytes",
		Help: "Size of a stored block on disk.",
	})

	// StoredCandidatesCount gauges the candidate pool size after cleanup.
	StoredCandidatesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vireo_stored_candidates_count",
		Help: "Number of candidate blocks retained after an accept's cleanup pass.",
	})

	// FutureMsgCount gauges the future-message buffer size after pruning.
	FutureMsgCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vireo_future_msg_count",
		Help: "Number of buffered future-round consensus messages.",
	})

	// HeaderVerificationElapsed histograms block header verification time.
	HeaderVerificationElapsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vireo_block_header_elapsed_seconds",
		Help: "Time spent verifying a block header and its attestation.",
	})
)

func init() {
	prometheus.MustRegister(
		TxnCount,
		BlocksByLabel,
		BlockTime,
		BlockIteration,
		AcceptElapsed,
		SlashedCount,
		BlockDiskSize,
		StoredCandidatesCount,
		FutureMsgCount,
		HeaderVerificationElapsed,
	)
}
