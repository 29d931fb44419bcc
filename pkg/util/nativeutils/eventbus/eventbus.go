// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package eventbus is the in-process publish/subscribe fabric the
// Network contract's add_route/add_filter and the Acceptor's
// consensus-restart notifications are built on (spec §6 "Network
// contract", §4.9 "init_consensus"). Generalized from the teacher's
// listener-store half (subscriber.go) which referenced a dropped
// internal topics.Topic enum; topics here are plain strings so the
// bus carries both wire-protocol message topics (candidate,
// agreement, ...) and internal ones (e.g. "round.restart").
package eventbus

import (
	"sync"

	lg "github.com/sirupsen/logrus"
)

var logEB = lg.WithField("process", "eventbus")

// Listener receives messages delivered to a topic it subscribed to.
type Listener interface {
	Notify(msg Message) error
}

// Message is the payload carried across the bus: a topic tag plus an
// opaque body the listener is responsible for decoding.
type Message struct {
	Topic   string
	Payload []byte
}

// listenerStore is a concurrency-safe map of topic -> (id -> Listener).
type listenerStore struct {
	mu    sync.RWMutex
	byTop map[string]map[uint32]Listener
	next  uint32
}

func newListenerStore() *listenerStore {
	return &listenerStore{byTop: make(map[string]map[uint32]Listener)}
}

func (s *listenerStore) Store(topic string, l Listener) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := s.next
	if s.byTop[topic] == nil {
		s.byTop[topic] = make(map[uint32]Listener)
	}
	s.byTop[topic][id] = l
	return id
}

func (s *listenerStore) Delete(topic string, id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byTop[topic]
	if !ok {
		return false
	}
	if _, found := m[id]; !found {
		return false
	}
	delete(m, id)
	return true
}

func (s *listenerStore) snapshot(topic string) []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.byTop[topic]
	out := make([]Listener, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	return out
}

// EventBus fans a published Message out to every Listener subscribed
// to its topic.
type EventBus struct {
	listeners *listenerStore
}

// New returns an empty EventBus.
func New() *EventBus {
	return &EventBus{listeners: newListenerStore()}
}

// Publish delivers msg to every listener subscribed to msg.Topic,
// synchronously and in arbitrary order. It returns the number of
// listeners that did not return an error.
func (bus *EventBus) Publish(msg Message) int {
	delivered := 0
	for _, l := range bus.listeners.snapshot(msg.Topic) {
		if err := l.Notify(msg); err != nil {
			logEB.WithFields(lg.Fields{
				"topic": msg.Topic,
				"error": err,
			}).Warnln("listener notify failed")
			continue
		}
		delivered++
	}
	return delivered
}
