// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"sync"
	"time"
)

// SessionStore manages session persistence.
type SessionStore interface {
	// Get retrieves a session by ID.
	Get(id string) (*Session, bool)

	// Put stores a session.
	Put(session *Session)

	// Delete removes a session.
	Delete(id string)

	// List returns all stored session IDs.
	List() []string
}

// InMemorySessionStore is a bounded in-memory session store.
//
// Description:
//
//	Holds at most capacity sessions. When full, expired sessions are
//	reaped first; if still full, the least-recently-active terminated
//	session is evicted, then the least-recently-active session overall.
//	An investigation that is still running is only evicted as a last
//	resort.
//
// Thread Safety: InMemorySessionStore is safe for concurrent use.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// capacity is the maximum number of stored sessions (0 = unlimited).
	capacity int

	// ttl is how long an inactive session is retained (0 = forever).
	ttl time.Duration
}

// StoreOption configures an InMemorySessionStore.
type StoreOption func(*InMemorySessionStore)

// WithCapacity bounds the number of stored sessions.
//
// Inputs:
//
//	capacity - Maximum sessions retained (0 = unlimited).
func WithCapacity(capacity int) StoreOption {
	return func(s *InMemorySessionStore) {
		s.capacity = capacity
	}
}

// WithTTL sets the retention window for inactive sessions.
//
// Inputs:
//
//	ttl - Time since last activity after which a session expires (0 = never).
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *InMemorySessionStore) {
		s.ttl = ttl
	}
}

// NewInMemorySessionStore creates a new in-memory session store.
//
// Outputs:
//
//	*InMemorySessionStore - The new store.
func NewInMemorySessionStore(opts ...StoreOption) *InMemorySessionStore {
	s := &InMemorySessionStore{
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements SessionStore.
func (s *InMemorySessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Put implements SessionStore.
//
// When the store is at capacity, Put evicts before inserting; it never
// fails and never drops the incoming session.
func (s *InMemorySessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists && s.capacity > 0 {
		for len(s.sessions) >= s.capacity {
			if !s.evictOneLocked() {
				break
			}
		}
	}
	s.sessions[session.ID] = session
}

// Delete implements SessionStore.
func (s *InMemorySessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// List implements SessionStore.
func (s *InMemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of stored sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictExpired removes sessions inactive for longer than the TTL.
//
// Description:
//
//	Call periodically from a background goroutine. A no-op when the store
//	has no TTL.
//
// Outputs:
//
//	int - Number of sessions removed.
func (s *InMemorySessionStore) EvictExpired() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	var removed int
	for id, session := range s.sessions {
		if session.GetLastActiveAt().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// evictOneLocked removes the best eviction candidate. Caller holds the lock.
//
// Preference order: expired, then least-recently-active terminated, then
// least-recently-active overall. Returns false when the store is empty.
func (s *InMemorySessionStore) evictOneLocked() bool {
	if len(s.sessions) == 0 {
		return false
	}

	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl)
		for id, session := range s.sessions {
			if session.GetLastActiveAt().Before(cutoff) {
				delete(s.sessions, id)
				return true
			}
		}
	}

	var victim string
	var victimAt time.Time
	var victimTerminated bool
	for id, session := range s.sessions {
		terminated := session.IsTerminated()
		lastActive := session.GetLastActiveAt()
		switch {
		case victim == "":
			victim, victimAt, victimTerminated = id, lastActive, terminated
		case terminated && !victimTerminated:
			victim, victimAt, victimTerminated = id, lastActive, terminated
		case terminated == victimTerminated && lastActive.Before(victimAt):
			victim, victimAt = id, lastActive
		}
	}
	delete(s.sessions, victim)
	return true
}
