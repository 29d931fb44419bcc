// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"sync"

	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
)

// futureMsgBuffer holds votes that arrived for a round beyond the one
// currently in flight, bounded to a window ahead of the tip so a node
// that is merely a few rounds behind its peers does not lose votes while
// it catches up (spec §4.6 step 7 housekeeping, acceptor.rs's
// future_msg.remove_msgs_out_of_range).
type futureMsgBuffer struct {
	mu      sync.Mutex
	byRound map[uint64][]agreement.Event
}

func newFutureMsgBuffer() *futureMsgBuffer {
	return &futureMsgBuffer{byRound: make(map[uint64][]agreement.Event)}
}

// add stages ev under its round.
func (f *futureMsgBuffer) add(ev agreement.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byRound[ev.Header.Round] = append(f.byRound[ev.Header.Round], ev)
}

// drain removes and returns every event staged for round.
func (f *futureMsgBuffer) drain(round uint64) []agreement.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.byRound[round]
	delete(f.byRound, round)
	return evs
}

// pruneOutOfRange discards every staged round outside [lo, lo+offset).
func (f *futureMsgBuffer) pruneOutOfRange(lo, offset uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hi := lo + offset
	for round := range f.byRound {
		if round < lo || round >= hi {
			delete(f.byRound, round)
		}
	}
}

// count returns the total number of buffered events, for metrics.
func (f *futureMsgBuffer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, evs := range f.byRound {
		n += len(evs)
	}
	return n
}
