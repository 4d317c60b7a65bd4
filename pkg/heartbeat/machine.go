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
	"time"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/httpclient"
	"github.com/learningequality/kolibri-sub006/pkg/session"
)

// Phase is the polling state of the heartbeat
type Phase int

const (
	// PhaseDisabled means polling is stopped
	PhaseDisabled Phase = iota
	// PhaseIdle means connected and waiting for the next poll
	PhaseIdle
	// PhaseInFlight means a session poll is outstanding
	PhaseInFlight
	// PhaseBackoff means disconnected and waiting for the next reconnection attempt
	PhaseBackoff
)

func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhaseIdle:
		return "idle"
	case PhaseInFlight:
		return "in_flight"
	case PhaseBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Events fed to the machine
type (
	startEvent      struct{}
	stopEvent       struct{}
	pollEvent       struct{}
	activityEvent   struct{}
	reconnectEvent  struct{}
	disconnectEvent struct{ status connection.Status }
	timerEvent      struct{ gen uint64 }
	signOutEvent    struct{ reason string }
	pollDoneEvent   struct {
		poll    *Poll
		session *session.Session
		err     error
		t0, t1  time.Time
	}
)

// Actions produced by the machine and executed outside its lock
type (
	armActivity    struct{}
	disarmActivity struct{}
	cancelTimer    struct{}
	stopCountdown  struct{}
	showTrying     struct{}
	clearBanner    struct{}
	reloadPage     struct{}
	persistSignOut struct{}
	clearSession   struct{}
	schedule       struct {
		delay time.Duration
		gen   uint64
	}
	sendPoll struct {
		poll   *Poll
		active bool
	}
	completePoll struct {
		poll   *Poll
		err    error
		result string
	}
	showDisconnected struct {
		reconnect time.Duration
		reason    string
	}
	showReconnected struct{}
	startCountdown  struct{ remaining time.Duration }
	backedOff       struct{ reconnect time.Duration }
	redirect        struct {
		url    string
		reason string
	}
	updateSession struct {
		session   *session.Session
		clientNow time.Time
	}
	logPollError struct{ err error }
)

type event any

type action any

// outcome is what a transition returns: the side effects to run and, for
// start and poll requests, the poll handed back to the caller
type outcome struct {
	actions []action
	poll    *Poll
}

// machine is the heartbeat's state. It is only touched through transition.
type machine struct {
	opts     Options
	state    *connection.State
	set      connection.DisconnectionSet
	visible  func() bool
	identity func() session.Identity
	now      func() time.Time

	phase        Phase
	enabled      bool
	active       bool
	inflight     *Poll
	timerGen     uint64
	timerPending bool
	nextDelay    time.Duration
	signedOut    bool
}

// transition applies ev and returns the resulting side effects
func (m *machine) transition(ev event) outcome {
	var out outcome

	switch e := ev.(type) {
	case startEvent:
		if m.enabled {
			out.poll = completedPoll()
			break
		}
		m.enabled = true
		m.signedOut = false
		out.actions = append(out.actions, armActivity{})
		out.actions = append(out.actions, m.requestPoll()...)
		out.poll = m.inflight

	case stopEvent:
		out.actions = m.stop()

	case pollEvent:
		out.actions = m.requestPoll()
		out.poll = m.inflight

	case pollDoneEvent:
		out.actions = m.pollDone(e)

	case activityEvent:
		m.active = true
		out.actions = []action{disarmActivity{}}

	case disconnectEvent:
		out.actions = m.disconnect(e.status)
		if len(out.actions) > 0 && m.inflight == nil {
			out.actions = append(out.actions, m.scheduleNext()...)
		}

	case reconnectEvent:
		out.actions = m.reconnect()
		if len(out.actions) > 0 && m.inflight == nil {
			out.actions = append(out.actions, m.cancelTimer()...)
			out.actions = append(out.actions, m.scheduleNext()...)
		}

	case timerEvent:
		if e.gen != m.timerGen || !m.timerPending {
			break
		}
		m.timerPending = false
		if m.enabled || !m.state.Connected() {
			out.actions = m.requestPoll()
		}

	case signOutEvent:
		out.actions = m.signOut(e.reason)
	}

	m.phase = m.currentPhase()
	return out
}

func (m *machine) currentPhase() Phase {
	switch {
	case !m.enabled:
		return PhaseDisabled
	case m.inflight != nil:
		return PhaseInFlight
	case !m.state.Connected():
		return PhaseBackoff
	default:
		return PhaseIdle
	}
}

// requestPoll starts a poll unless one is already in flight
func (m *machine) requestPoll() []action {
	if m.inflight != nil {
		return nil
	}

	connected := m.state.Connected()
	p := newPoll(m.now(), !connected)
	m.inflight = p

	var acts []action
	if m.enabled && !m.active {
		acts = append(acts, armActivity{})
	}
	acts = append(acts, m.cancelTimer()...)
	if !connected {
		acts = append(acts, stopCountdown{}, showTrying{})
	}
	return append(acts, sendPoll{poll: p, active: connected && m.active})
}

func (m *machine) pollDone(e pollDoneEvent) []action {
	if e.poll != m.inflight {
		// Dropped by stop: resolve waiters, schedule nothing
		return []action{completePoll{poll: e.poll, err: e.err, result: "dropped"}}
	}
	m.inflight = nil

	var acts []action
	result := "success"
	if e.err == nil {
		acts = m.pollSucceeded(e)
	} else {
		var failed []action
		failed, result = m.pollFailed(e)
		acts = failed
	}

	m.active = false
	if m.enabled {
		acts = append(acts, armActivity{})
	}
	acts = append(acts, m.scheduleNext()...)
	return append(acts, completePoll{poll: e.poll, err: e.err, result: result})
}

func (m *machine) pollSucceeded(e pollDoneEvent) []action {
	// The heartbeat's own response counts as a non-disconnection response
	acts := m.reconnect()

	known := m.identity()
	if known.ID != "" && !session.SameUser(known.UserID, e.session.UserID) {
		if e.session.UserID == nil {
			return append(acts, m.signOut("session_expired")...)
		}
		// Another login happened in this browser profile
		return append(acts,
			updateSession{session: e.session, clientNow: session.ClientNow(e.t0, e.t1)},
			redirect{url: m.opts.BaseURL, reason: "different_user"},
		)
	}

	return append(acts, updateSession{session: e.session, clientNow: session.ClientNow(e.t0, e.t1)})
}

func (m *machine) pollFailed(e pollDoneEvent) ([]action, string) {
	status, ok := httpclient.StatusOf(e.err)
	if !ok {
		return append([]action{logPollError{err: e.err}}, m.resumeCountdown()...), "error"
	}

	if m.set.Matches(status) {
		if e.poll.startedDisconnected && !m.state.Connected() {
			return m.backoff(), "disconnected"
		}
		return m.disconnect(status), "disconnected"
	}

	acts := []action{logPollError{err: e.err}}
	if !status.IsNoResponse() {
		acts = append(acts, m.reconnect()...)
	}
	return append(acts, m.resumeCountdown()...), "error"
}

// resumeCountdown restarts the banner countdown after an attempt that
// neither reconnected nor backed off
func (m *machine) resumeCountdown() []action {
	d, ok := m.state.ReconnectTime()
	if !ok || m.state.Connected() {
		return nil
	}
	return []action{startCountdown{remaining: d}}
}

// disconnect records an outage; it is a no-op while already disconnected
func (m *machine) disconnect(status connection.Status) []action {
	var d time.Duration
	var reason string
	switch {
	case !m.visible():
		d, reason = m.opts.MaxReconnectTime, "hidden"
	case status.IsNoResponse():
		d, reason = m.opts.MinReconnectTime, "no_response"
	default:
		d, reason = m.opts.TimeoutReconnectTime, "timeout"
	}

	if !m.state.MarkDisconnected(d) {
		return nil
	}
	return []action{
		showDisconnected{reconnect: d, reason: reason},
		startCountdown{remaining: d},
	}
}

// backoff grows the reconnect time after a failed reconnection attempt
func (m *machine) backoff() []action {
	current, ok := m.state.ReconnectTime()
	if !ok {
		current = m.opts.MinReconnectTime
	}
	next := time.Duration(float64(current) * m.opts.ReconnectMultiplier)
	if next > m.opts.MaxReconnectTime {
		next = m.opts.MaxReconnectTime
	}
	m.state.SetReconnectTime(&next)
	return []action{
		backedOff{reconnect: next},
		startCountdown{remaining: next},
	}
}

// reconnect clears an outage; it is a no-op while connected
func (m *machine) reconnect() []action {
	if !m.state.MarkConnected() {
		return nil
	}
	acts := []action{stopCountdown{}, showReconnected{}}
	if m.state.ReloadOnReconnect() {
		m.state.SetReloadOnReconnect(false)
		acts = append(acts, reloadPage{})
	}
	return acts
}

func (m *machine) signOut(reason string) []action {
	if m.signedOut {
		return nil
	}
	m.signedOut = true
	acts := m.stop()
	return append(acts,
		persistSignOut{},
		clearSession{},
		redirect{url: m.opts.SignOutURL, reason: reason},
	)
}

func (m *machine) stop() []action {
	m.enabled = false
	// Dropping the reference keeps a late completion from scheduling
	m.inflight = nil
	acts := []action{disarmActivity{}}
	acts = append(acts, m.cancelTimer()...)
	acts = append(acts, stopCountdown{})
	if !m.state.Connected() {
		// Nothing will retry, so the banner's countdown and action are stale
		acts = append(acts, clearBanner{})
	}
	return acts
}

func (m *machine) cancelTimer() []action {
	m.timerGen++
	if !m.timerPending {
		return nil
	}
	m.timerPending = false
	return []action{cancelTimer{}}
}

// scheduleNext arms the next poll: the normal cadence while enabled, and a
// reconnection attempt whenever disconnected
func (m *machine) scheduleNext() []action {
	if !m.enabled && m.state.Connected() {
		return nil
	}
	m.timerGen++
	m.timerPending = true
	m.nextDelay = m.delay()
	return []action{schedule{delay: m.nextDelay, gen: m.timerGen}}
}

// delay is the wait before the next poll: the reconnect time while
// disconnected, otherwise the active delay, stretched while hidden
func (m *machine) delay() time.Duration {
	if d, ok := m.state.ReconnectTime(); ok && !m.state.Connected() {
		return d
	}
	if !m.visible() {
		return time.Duration(float64(m.opts.ActiveDelay) * m.opts.HiddenDelayFactor)
	}
	return m.opts.ActiveDelay
}
