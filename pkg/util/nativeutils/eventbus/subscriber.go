// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package eventbus

import (
	lg "github.com/sirupsen/logrus"
)

// Subscriber subscribes a Listener to Message notifications on a
// specific topic.
type Subscriber interface {
	Subscribe(topic string, listener Listener) uint32
	Unsubscribe(topic string, id uint32)
}

// Subscribe subscribes listener to topic, returning an id usable with
// Unsubscribe.
func (bus *EventBus) Subscribe(topic string, listener Listener) uint32 {
	return bus.listeners.Store(topic, listener)
}

// Unsubscribe removes the listener identified by id from topic.
func (bus *EventBus) Unsubscribe(topic string, id uint32) {
	found := bus.listeners.Delete(topic, id)

	logEB.WithFields(lg.Fields{
		"found": found,
		"topic": topic,
	}).Traceln("unsubscribing")
}
