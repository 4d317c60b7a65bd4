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

package connection

import (
	"sync"
	"time"
)

// State is the process-wide view of server reachability. It is created once
// by the agent and handed to every component that reads or writes it.
//
// The store does not enforce that ReconnectTime is set iff Connected is false;
// writers keep that invariant by using MarkDisconnected and MarkConnected.
type State struct {
	mu                sync.RWMutex
	connected         bool
	reconnectTime     *time.Duration
	reloadOnReconnect bool
}

// Snapshot is a point-in-time copy of State for readers
type Snapshot struct {
	Connected         bool           `json:"connected"`
	ReconnectTime     *time.Duration `json:"-"`
	ReloadOnReconnect bool           `json:"reloadOnReconnect"`
}

// ReconnectSeconds returns the reconnect time in whole seconds, or nil while connected
func (s Snapshot) ReconnectSeconds() *int {
	if s.ReconnectTime == nil {
		return nil
	}
	secs := int(s.ReconnectTime.Round(time.Second) / time.Second)
	return &secs
}

// NewState returns a State that starts out connected
func NewState() *State {
	return &State{connected: true}
}

// Connected reports whether the server is currently considered reachable
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetConnected sets the connected flag without touching the reconnect time
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// ReconnectTime returns the delay until the next reconnection attempt
func (s *State) ReconnectTime() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reconnectTime == nil {
		return 0, false
	}
	return *s.reconnectTime, true
}

// SetReconnectTime sets the reconnect time. A nil value clears it.
func (s *State) SetReconnectTime(d *time.Duration) {
	s.mu.Lock()
	if d == nil {
		s.reconnectTime = nil
	} else {
		v := *d
		s.reconnectTime = &v
	}
	s.mu.Unlock()
}

// ReloadOnReconnect reports whether a reconnection must force a full reload
func (s *State) ReloadOnReconnect() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloadOnReconnect
}

// SetReloadOnReconnect is set externally, e.g. when a navigation was interrupted
func (s *State) SetReloadOnReconnect(reload bool) {
	s.mu.Lock()
	s.reloadOnReconnect = reload
	s.mu.Unlock()
}

// MarkDisconnected atomically records an outage and the first retry delay.
// It returns false if the state was already disconnected, in which case
// nothing is changed.
func (s *State) MarkDisconnected(reconnect time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.connected = false
	s.reconnectTime = &reconnect
	return true
}

// MarkConnected atomically clears an outage. It returns false if the state
// was already connected.
func (s *State) MarkConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return false
	}
	s.connected = true
	s.reconnectTime = nil
	return true
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Connected:         s.connected,
		ReloadOnReconnect: s.reloadOnReconnect,
	}
	if s.reconnectTime != nil {
		v := *s.reconnectTime
		snap.ReconnectTime = &v
	}
	return snap
}
