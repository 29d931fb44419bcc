// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package network defines the Network contract the consensus core
// sends wire messages through (spec §6 "Network contract"): broadcast,
// direct send, flood, route/filter registration and a deadline-bounded
// request/response call. Grounded on the teacher's peer/gossip
// vocabulary (pkg/core/chain/synchronizer.go's use of config.
// RedundancyPeerCount when choosing how many peers to flood to) and
// generalized to an explicit interface since no Network type exists
// in the retrieved snapshot (only eventbus's listener-store half
// survived).
package network

import (
	"time"

	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
)

// PeerID identifies a connected peer.
type PeerID string

// Handler processes an inbound Message for a registered route.
type Handler func(from PeerID, msg eventbus.Message) error

// Filter inspects (and may reject) an inbound Message before it
// reaches any route's Handler.
type Filter func(from PeerID, msg eventbus.Message) bool

// Network is the transport contract: everything the consensus core
// needs to gossip votes, fetch a missing candidate from a specific
// peer, or register inbound routes and filters.
type Network interface {
	// Broadcast gossips msg to the network at large (spec §6
	// broadcast()).
	Broadcast(msg eventbus.Message) error

	// SendToPeer sends msg directly to one peer.
	SendToPeer(peer PeerID, msg eventbus.Message) error

	// SendToAlivePeers sends msg to up to n currently-connected peers
	// (spec §6 send_to_alive_peers(), RedundancyPeerCount's consumer).
	SendToAlivePeers(msg eventbus.Message, n int) error

	// FloodRequest gossips msg and lets every receiving peer re-gossip
	// it once, used to pull a missing candidate block from the wider
	// network (spec §6 flood_request()).
	FloodRequest(msg eventbus.Message) error

	// AddRoute registers handler for every inbound message on topic.
	AddRoute(topic string, handler Handler)

	// AddFilter registers filter to run on topic before any route's
	// handler.
	AddFilter(topic string, filter Filter)

	// SendAndWait sends msg to a peer and blocks for a topic-matching
	// reply until timeout elapses (spec §6 send_and_wait(), backing
	// try_accept_block's out-of-band candidate fetch).
	SendAndWait(peer PeerID, msg eventbus.Message, replyTopic string, timeout time.Duration) (eventbus.Message, error)
}
