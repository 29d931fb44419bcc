// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package network

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
)

// peerInbox is a registered peer's inbound message queue.
type peerInbox struct {
	id PeerID
	ch chan eventbus.Message
}

// Local is an in-process Network backed by an eventbus.EventBus,
// suitable for single-process test harnesses and as the default
// transport before a real peer-to-peer dialer is wired in (spec §6
// leaves transport mechanics out of scope for the consensus core
// itself).
type Local struct {
	bus *eventbus.EventBus

	mu    sync.RWMutex
	peers map[PeerID]*peerInbox

	filterMu sync.RWMutex
	filters  map[string][]Filter
}

// NewLocal returns an empty Local network over bus.
func NewLocal(bus *eventbus.EventBus) *Local {
	return &Local{
		bus:     bus,
		peers:   make(map[PeerID]*peerInbox),
		filters: make(map[string][]Filter),
	}
}

// Connect registers a peer and returns the inbox it should drain.
func (l *Local) Connect(id PeerID) <-chan eventbus.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	inbox := &peerInbox{id: id, ch: make(chan eventbus.Message, 64)}
	l.peers[id] = inbox
	return inbox.ch
}

// Disconnect removes a peer.
func (l *Local) Disconnect(id PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if inbox, ok := l.peers[id]; ok {
		close(inbox.ch)
		delete(l.peers, id)
	}
}

func (l *Local) passesFilters(from PeerID, msg eventbus.Message) bool {
	l.filterMu.RLock()
	defer l.filterMu.RUnlock()

	for _, f := range l.filters[msg.Topic] {
		if !f(from, msg) {
			return false
		}
	}
	return true
}

// Broadcast implements Network.
func (l *Local) Broadcast(msg eventbus.Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for id, inbox := range l.peers {
		if !l.passesFilters(id, msg) {
			continue
		}
		select {
		case inbox.ch <- msg:
		default:
		}
	}
	return nil
}

// SendToPeer implements Network.
func (l *Local) SendToPeer(peer PeerID, msg eventbus.Message) error {
	l.mu.RLock()
	inbox, ok := l.peers[peer]
	l.mu.RUnlock()

	if !ok {
		return errors.Errorf("network: unknown peer %q", peer)
	}
	if !l.passesFilters(peer, msg) {
		return nil
	}

	select {
	case inbox.ch <- msg:
		return nil
	default:
		return errors.Errorf("network: peer %q inbox full, message dropped", peer)
	}
}

// SendToAlivePeers implements Network, picking up to n peers in
// arbitrary (map iteration) order.
func (l *Local) SendToAlivePeers(msg eventbus.Message, n int) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sent := 0
	for id, inbox := range l.peers {
		if sent >= n {
			break
		}
		if !l.passesFilters(id, msg) {
			continue
		}
		select {
		case inbox.ch <- msg:
			sent++
		default:
		}
	}
	return nil
}

// FloodRequest implements Network as an alias of Broadcast: in a
// single logical process there is no re-gossip hop to perform.
func (l *Local) FloodRequest(msg eventbus.Message) error {
	return l.Broadcast(msg)
}

// AddRoute implements Network by subscribing handler to topic on the
// underlying bus.
func (l *Local) AddRoute(topic string, handler Handler) {
	l.bus.Subscribe(topic, routeListener{handler: handler})
}

// AddFilter implements Network.
func (l *Local) AddFilter(topic string, filter Filter) {
	l.filterMu.Lock()
	defer l.filterMu.Unlock()
	l.filters[topic] = append(l.filters[topic], filter)
}

// SendAndWait implements Network by sending msg to peer and waiting
// for the next message peer publishes on replyTopic.
func (l *Local) SendAndWait(peer PeerID, msg eventbus.Message, replyTopic string, timeout time.Duration) (eventbus.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	replies := make(chan eventbus.Message, 1)
	id := l.bus.Subscribe(replyTopic, routeListener{handler: func(_ PeerID, m eventbus.Message) error {
		select {
		case replies <- m:
		default:
		}
		return nil
	}})
	defer l.bus.Unsubscribe(replyTopic, id)

	if err := l.SendToPeer(peer, msg); err != nil {
		return eventbus.Message{}, err
	}

	select {
	case m := <-replies:
		return m, nil
	case <-ctx.Done():
		return eventbus.Message{}, errors.Errorf("network: send_and_wait timed out waiting for %q", replyTopic)
	}
}

// routeListener adapts a Handler to eventbus.Listener; the "from"
// peer is not carried by eventbus.Message, so it is passed as the
// zero PeerID for bus-internal deliveries.
type routeListener struct {
	handler Handler
}

func (r routeListener) Notify(msg eventbus.Message) error {
	return r.handler("", msg)
}
