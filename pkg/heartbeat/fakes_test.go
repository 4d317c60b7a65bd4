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
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/notification"
	"github.com/learningequality/kolibri-sub006/pkg/session"
	"github.com/learningequality/kolibri-sub006/pkg/storage"
	"github.com/learningequality/kolibri-sub006/pkg/useragent"
)

// fakeClock fires timers only when advanced
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// Advance moves time forward, firing due timers in order. Callbacks run
// without the clock lock held so they may schedule new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the remaining durations of active timers, sorted
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at.Sub(c.now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type pollResult struct {
	session *session.Session
	err     error
}

// pendingCall is a PutCurrent waiting for the test to answer it
type pendingCall struct {
	body   session.HeartbeatRequest
	result chan pollResult
}

func (c *pendingCall) respond(sess *session.Session, err error) {
	c.result <- pollResult{session: sess, err: err}
}

// fakeEndpoint blocks every PutCurrent until the test responds
type fakeEndpoint struct {
	calls chan *pendingCall

	mu       sync.Mutex
	count    int
	current  *session.Session
	checkErr error
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{calls: make(chan *pendingCall, 16)}
}

func (e *fakeEndpoint) PutCurrent(ctx context.Context, body session.HeartbeatRequest) (*session.Session, error) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()

	call := &pendingCall{body: body, result: make(chan pollResult, 1)}
	e.calls <- call
	select {
	case r := <-call.result:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *fakeEndpoint) GetCurrent(ctx context.Context) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.checkErr
}

func (e *fakeEndpoint) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// next waits for the next PutCurrent
func (e *fakeEndpoint) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-e.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a session poll")
		return nil
	}
}

type snackbar struct {
	text string
	opts notification.Options
}

type fakeRelay struct {
	mu        sync.Mutex
	snackbars []snackbar
	texts     []string
	clears    int
}

func (r *fakeRelay) CreateSnackbar(text string, opts notification.Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snackbars = append(r.snackbars, snackbar{text: text, opts: opts})
}

func (r *fakeRelay) SetSnackbarText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *fakeRelay) ClearSnackbar() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *fakeRelay) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

func (r *fakeRelay) Snackbars() []snackbar {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]snackbar(nil), r.snackbars...)
}

func (r *fakeRelay) LastText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

type fakeNavigator struct {
	mu        sync.Mutex
	redirects []string
	reloads   int
}

func (n *fakeNavigator) Redirect(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, url)
}

func (n *fakeNavigator) Reload() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
}

func (n *fakeNavigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

func (n *fakeNavigator) Reloads() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reloads
}

type harness struct {
	hb         *HeartBeat
	clock      *fakeClock
	endpoint   *fakeEndpoint
	state      *connection.State
	store      *session.Store
	flags      storage.FlagStore
	relay      *fakeRelay
	navigator  *fakeNavigator
	activity   *ActivityTracker
	visibility *VisibilityTracker
}

func testOptions() Options {
	return Options{
		ActiveDelay:          240 * time.Second,
		HiddenDelayFactor:    2,
		MinReconnectTime:     5 * time.Second,
		TimeoutReconnectTime: 60 * time.Second,
		MaxReconnectTime:     600 * time.Second,
		ReconnectMultiplier:  2,
		CountdownInterval:    time.Second,
		BaseURL:              "http://learn.test/",
		SignOutURL:           "http://learn.test/signout",
		Fingerprint: useragent.Fingerprint{
			Browser: useragent.Version{Name: "Firefox", Major: "120"},
			OS:      useragent.Version{Name: "Linux"},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithNoResponse(t, true)
}

// newHarnessWithNoResponse controls whether a missing response counts as a
// disconnection
func newHarnessWithNoResponse(t *testing.T, includeNoResponse bool) *harness {
	t.Helper()
	set, err := connection.NewDisconnectionSet([]int{502, 503, 504}, includeNoResponse)
	require.NoError(t, err)

	h := &harness{
		clock:      newFakeClock(),
		endpoint:   newFakeEndpoint(),
		state:      connection.NewState(),
		store:      session.NewStore(),
		flags:      storage.NewMemoryFlagStore(),
		relay:      &fakeRelay{},
		navigator:  &fakeNavigator{},
		activity:   NewActivityTracker(),
		visibility: NewVisibilityTracker(),
	}
	h.hb = New(testOptions(), Dependencies{
		State:          h.state,
		Disconnections: set,
		Endpoint:       h.endpoint,
		Store:          h.store,
		Flags:          h.flags,
		Relay:          h.relay,
		Navigator:      h.navigator,
		Activity:       h.activity,
		Visibility:     h.visibility,
		Clock:          h.clock,
	}, zap.NewNop())
	t.Cleanup(h.hb.Close)
	return h
}

func wait(t *testing.T, p *Poll) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-p.Done():
	case <-ctx.Done():
		t.Fatal("timed out waiting for poll to complete")
	}
}

// answer responds to the next poll and waits until it has been handled
func (h *harness) answer(t *testing.T, sess *session.Session, err error) *pendingCall {
	t.Helper()
	call := h.endpoint.next(t)
	p := h.hb.PollSessionEndPoint()
	call.respond(sess, err)
	wait(t, p)
	return call
}

func userSession(id, userID string) *session.Session {
	s := &session.Session{ID: id}
	if userID != "" {
		s.UserID = &userID
	}
	return s
}
