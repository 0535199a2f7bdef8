// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster_buddy

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
)

// defaultSubscriberBuffer is the per-subscriber channel depth. A slow
// websocket client loses events rather than stalling the investigation.
const defaultSubscriberBuffer = 64

// EventBus fans investigation events out to live subscribers.
//
// Description:
//
//	The agent core reports progress through a single EventHandler
//	callback. The bus receives that stream and copies each event to
//	every matching subscriber: the websocket stream handler, metrics
//	recording, and anything else observing an investigation. Delivery
//	is best effort; a subscriber whose buffer is full misses events
//	and the publisher never blocks.
//
// Thread Safety: EventBus is safe for concurrent use.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*busSubscription
	buffer int
	closed bool
}

type busSubscription struct {
	id        uint64
	sessionID string // empty subscribes to every session
	ch        chan agent.Event
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithSubscriberBuffer sets the per-subscriber channel depth.
func WithSubscriberBuffer(n int) EventBusOption {
	return func(b *EventBus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewEventBus creates an event bus with no subscribers.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		subs:   make(map[uint64]*busSubscription),
		buffer: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the bus as an agent event handler.
func (b *EventBus) Handler() agent.EventHandler {
	return b.Publish
}

// Publish delivers an event to every matching subscriber.
//
// Description:
//
//	Matching subscribers are those registered for the event's session
//	and those registered for all sessions. Sends never block: if a
//	subscriber's buffer is full the event is dropped for that
//	subscriber only.
//
// Inputs:
//
//	event - The event to deliver.
//
// Thread Safety: Safe for concurrent use.
func (b *EventBus) Publish(event agent.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.sessionID != "" && sub.sessionID != event.SessionID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slog.Debug("event dropped for slow subscriber",
				"session_id", event.SessionID,
				"event_type", event.Type,
			)
		}
	}
}

// Subscribe registers a subscriber for one session's events.
//
// Description:
//
//	Returns a receive channel and a cancel function. Pass an empty
//	sessionID to receive events for every session. The cancel function
//	removes the subscription and closes the channel; it is safe to
//	call more than once.
//
// Inputs:
//
//	sessionID - Session to observe, or "" for all sessions.
//
// Outputs:
//
//	<-chan agent.Event - The event stream.
//	func() - Cancel function. Must be called when done.
//
// Thread Safety: Safe for concurrent use.
func (b *EventBus) Subscribe(sessionID string) (<-chan agent.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &busSubscription{
		id:        b.nextID,
		sessionID: sessionID,
		ch:        make(chan agent.Event, b.buffer),
	}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub.id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sub.id]; ok {
				delete(b.subs, sub.id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes all subscribers and closes their channels.
//
// Description:
//
//	After Close, Publish is a no-op and new subscriptions receive an
//	already-closed channel. Safe to call more than once.
//
// Thread Safety: Safe for concurrent use.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
