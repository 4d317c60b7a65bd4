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

import (
	"sync"
	"time"

	"github.com/learningequality/kolibri-sub006/pkg/notification"
)

// countdown keeps the disconnected banner's "reconnect in N seconds" text live
type countdown struct {
	clock    Clock
	interval time.Duration
	relay    notification.Relay

	mu       sync.Mutex
	gen      uint64
	deadline time.Time
	timer    Timer
}

func (c *countdown) start(remaining time.Duration) {
	c.mu.Lock()
	c.gen++
	c.deadline = c.clock.Now().Add(remaining)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	gen := c.gen
	c.mu.Unlock()

	c.tick(gen)
}

func (c *countdown) stop() {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

// tick updates the banner; the relay is called under the lock so that a
// stop never races with a late update
func (c *countdown) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	remaining := c.deadline.Sub(c.clock.Now())
	if remaining <= 0 {
		c.timer = nil
		c.relay.SetSnackbarText(textTrying)
		return
	}

	c.relay.SetSnackbarText(disconnectedText(remaining))
	c.timer = c.clock.AfterFunc(c.interval, func() { c.tick(gen) })
}
