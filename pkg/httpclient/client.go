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

// Package httpclient is the request pipeline shared by application traffic
// and the session heartbeat. Every response is classified for connectivity;
// application requests are additionally gated while disconnected and have
// their 403s checked against the session.
package httpclient

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/session"
)

// RequestIDHeader carries the per-request id
const RequestIDHeader = "X-Request-ID"

// Options configures a Client
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	MaxErrorBodyBytes int64
	Disconnections    connection.DisconnectionSet
	// Transport defaults to http.DefaultTransport
	Transport http.RoundTripper
}

// Client is the gated, classifying HTTP client
type Client struct {
	state  *connection.State
	http   *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	monitor ConnectionMonitor
	guard   SessionGuard

	app     Handler
	session Handler
}

// New creates a Client. Bind must be called before responses can be
// classified; until then they pass through untouched.
func New(state *connection.State, opts Options, logger *zap.Logger) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	maxBody := opts.MaxErrorBodyBytes
	if maxBody <= 0 {
		maxBody = 4096
	}

	c := &Client{
		state:  state,
		http:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		logger: logger,
	}

	headers := RequestHeaders(opts.UserAgent, uuid.NewString)
	classify := Classify(state, opts.Disconnections, c.currentMonitor, logger)

	c.app = Chain(c.send,
		Gate(state, logger),
		StatusErrors(maxBody),
		Forbidden(c.currentGuard, logger),
		classify,
		Instrument("app"),
		headers,
	)
	c.session = Chain(c.send,
		StatusErrors(maxBody),
		classify,
		Instrument("session"),
		headers,
	)
	return c
}

// Bind attaches the collaborators that react to classified responses
func (c *Client) Bind(monitor ConnectionMonitor, guard SessionGuard) {
	c.mu.Lock()
	c.monitor = monitor
	c.guard = guard
	c.mu.Unlock()
}

// Do sends application traffic. While disconnected it fails with
// ErrRequestCancelled without touching the network. Non-2xx responses are
// returned as *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.app(req)
}

// SessionDoer returns the pipeline used for heartbeat and session check traffic,
// which must reach the server while disconnected
func (c *Client) SessionDoer() session.Doer {
	return doerFunc(c.session)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func (c *Client) currentMonitor() ConnectionMonitor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitor
}

func (c *Client) currentGuard() SessionGuard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guard
}

type doerFunc Handler

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
