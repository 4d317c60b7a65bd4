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

package heartbeat

import "sync"

// ActivityTracker is the user-interaction listener. Once armed it reports the
// first interaction only and then detaches itself until armed again.
type ActivityTracker struct {
	mu         sync.Mutex
	armed      bool
	onActivity func()
}

// NewActivityTracker creates a detached tracker
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{}
}

// Arm attaches the listener. Arming an armed tracker is a no-op.
func (a *ActivityTracker) Arm(onActivity func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed {
		return
	}
	a.armed = true
	a.onActivity = onActivity
}

// Disarm detaches the listener
func (a *ActivityTracker) Disarm() {
	a.mu.Lock()
	a.armed = false
	a.onActivity = nil
	a.mu.Unlock()
}

// Armed reports whether the listener is attached
func (a *ActivityTracker) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

// Signal records a user interaction. It returns true if the interaction was
// delivered, i.e. the tracker was armed.
func (a *ActivityTracker) Signal() bool {
	a.mu.Lock()
	if !a.armed {
		a.mu.Unlock()
		return false
	}
	cb := a.onActivity
	a.armed = false
	a.onActivity = nil
	a.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}
