/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package session

import (
	"sync"
	"time"
)

// Store is the client's shared copy of the session and of the server clock
type Store struct {
	mu        sync.RWMutex
	current   *Session
	skew      time.Duration
	updatedAt time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Update replaces the session. clientNow is the clock-corrected time at
// which the server produced it; the difference to the server's own clock is
// kept as skew.
func (s *Store) Update(sess *Session, clientNow time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.updatedAt = clientNow
	if sess != nil && !sess.ServerTime.IsZero() {
		s.skew = sess.ServerTime.Sub(clientNow)
	}
}

// Current returns the stored session, or nil
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Identity returns the identity of the stored session
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Identity()
}

// Skew is server time minus client time as of the last update
func (s *Store) Skew() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skew
}

// UpdatedAt is the clock-corrected client time of the last update
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// ServerNow converts a local time to the server's clock
func (s *Store) ServerNow(local time.Time) time.Time {
	return local.Add(s.Skew())
}

// Clear forgets the session, e.g. after a sign-out
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
