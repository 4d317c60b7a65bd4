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
	"context"
	"time"
)

// Poll is one session heartbeat request. Concurrent callers asking for a
// poll while one is in flight receive the same *Poll.
type Poll struct {
	done                chan struct{}
	err                 error
	startedAt           time.Time
	startedDisconnected bool
}

func newPoll(startedAt time.Time, disconnected bool) *Poll {
	return &Poll{
		done:                make(chan struct{}),
		startedAt:           startedAt,
		startedDisconnected: disconnected,
	}
}

func completedPoll() *Poll {
	p := &Poll{done: make(chan struct{})}
	close(p.done)
	return p
}

// Done is closed once the poll has been fully handled
func (p *Poll) Done() <-chan struct{} {
	return p.done
}

// Err is the request error, if any. Only valid after Done is closed.
func (p *Poll) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the poll completes or ctx is done
func (p *Poll) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poll) complete(err error) {
	p.err = err
	close(p.done)
}
