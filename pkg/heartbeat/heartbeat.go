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

// Package heartbeat keeps the server session alive and owns reconnection.
//
// All state changes go through a single transition function on an explicit
// machine (see machine.go); the side effects it returns are executed in order
// outside the state lock.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/config"
	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/httpclient"
	"github.com/learningequality/kolibri-sub006/pkg/metrics"
	"github.com/learningequality/kolibri-sub006/pkg/notification"
	"github.com/learningequality/kolibri-sub006/pkg/session"
	"github.com/learningequality/kolibri-sub006/pkg/storage"
	"github.com/learningequality/kolibri-sub006/pkg/useragent"
)

const persistTimeout = 5 * time.Second

// Options holds polling cadence, backoff and redirect settings
type Options struct {
	ActiveDelay          time.Duration
	HiddenDelayFactor    float64
	MinReconnectTime     time.Duration
	TimeoutReconnectTime time.Duration
	MaxReconnectTime     time.Duration
	ReconnectMultiplier  float64
	CountdownInterval    time.Duration
	BaseURL              string
	SignOutURL           string
	Fingerprint          useragent.Fingerprint
}

// OptionsFromConfig builds Options from the agent configuration
func OptionsFromConfig(cfg *config.Config) Options {
	hb := cfg.Heartbeat
	return Options{
		ActiveDelay:          hb.ActiveDelay,
		HiddenDelayFactor:    hb.HiddenDelayFactor,
		MinReconnectTime:     hb.MinReconnectTime,
		TimeoutReconnectTime: hb.TimeoutReconnectTime,
		MaxReconnectTime:     hb.MaxReconnectTime,
		ReconnectMultiplier:  hb.ReconnectMultiplier,
		CountdownInterval:    hb.CountdownInterval,
		BaseURL:              cfg.Session.BaseURL,
		SignOutURL:           cfg.Session.SignOutURL,
		Fingerprint:          useragent.Parse(cfg.Session.UserAgent),
	}
}

// SessionEndpoint is the session resource polled by the heartbeat
type SessionEndpoint interface {
	PutCurrent(ctx context.Context, body session.HeartbeatRequest) (*session.Session, error)
	GetCurrent(ctx context.Context) (*session.Session, error)
}

// Dependencies are the collaborators a HeartBeat drives
type Dependencies struct {
	State          *connection.State
	Disconnections connection.DisconnectionSet
	Endpoint       SessionEndpoint
	Store          *session.Store
	Flags          storage.FlagStore
	Relay          notification.Relay
	Navigator      notification.Navigator
	Activity       *ActivityTracker
	Visibility     *VisibilityTracker
	// Clock defaults to the real clock
	Clock Clock
}

// Snapshot describes the heartbeat for status reporting
type Snapshot struct {
	Phase     Phase          `json:"phase"`
	Enabled   bool           `json:"enabled"`
	Active    bool           `json:"active"`
	NextPoll  *time.Duration `json:"-"`
	SignedOut bool           `json:"signedOut"`
}

// HeartBeat is the session polling and reconnection controller
type HeartBeat struct {
	deps      Dependencies
	opts      Options
	clock     Clock
	logger    *zap.Logger
	countdown *countdown

	ctx    context.Context
	cancel context.CancelFunc

	// runMu orders effect execution across dispatches; mu guards the machine
	runMu   sync.Mutex
	mu      sync.Mutex
	machine *machine
	timer   Timer
	wg      sync.WaitGroup
}

// New creates a HeartBeat in the Disabled phase
func New(opts Options, deps Dependencies, logger *zap.Logger) *HeartBeat {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &HeartBeat{
		deps:   deps,
		opts:   opts,
		clock:  clock,
		logger: logger,
		countdown: &countdown{
			clock:    clock,
			interval: opts.CountdownInterval,
			relay:    deps.Relay,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	h.machine = &machine{
		opts:     opts,
		state:    deps.State,
		set:      deps.Disconnections,
		visible:  deps.Visibility.Visible,
		identity: deps.Store.Identity,
		now:      clock.Now,
	}
	return h
}

// StartPolling enables polling and polls immediately. The returned poll
// completes after the first poll; if polling was already enabled it is
// already complete.
func (h *HeartBeat) StartPolling() *Poll {
	poll := h.dispatch(startEvent{})
	h.logger.Info("Session polling started")
	return poll
}

// StopPolling disables polling and cancels anything scheduled
func (h *HeartBeat) StopPolling() {
	h.dispatch(stopEvent{})
	h.logger.Info("Session polling stopped")
}

// PollSessionEndPoint polls the session now, or returns the poll already in
// flight
func (h *HeartBeat) PollSessionEndPoint() *Poll {
	return h.dispatch(pollEvent{})
}

// MonitorDisconnect records that status indicates the server is unreachable.
// It is a no-op while already disconnected.
func (h *HeartBeat) MonitorDisconnect(status connection.Status) {
	h.dispatch(disconnectEvent{status: status})
}

// Reconnect records that the server answered while disconnected
func (h *HeartBeat) Reconnect() {
	h.dispatch(reconnectEvent{})
}

// SignOutDueToInactivity stops polling, persists the inactivity flag and
// redirects to the sign-out page. Only the first call has an effect.
func (h *HeartBeat) SignOutDueToInactivity() {
	h.dispatch(signOutEvent{reason: "inactivity"})
}

// Identity returns the identity of the last known session
func (h *HeartBeat) Identity() session.Identity {
	return h.deps.Store.Identity()
}

// CheckSession fetches the current session without reporting activity
func (h *HeartBeat) CheckSession(ctx context.Context) (*session.Session, error) {
	return h.deps.Endpoint.GetCurrent(ctx)
}

// Snapshot returns the current heartbeat state
func (h *HeartBeat) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.machine
	snap := Snapshot{
		Phase:     m.phase,
		Enabled:   m.enabled,
		Active:    m.active,
		SignedOut: m.signedOut,
	}
	if m.timerPending {
		d := m.nextDelay
		snap.NextPoll = &d
	}
	return snap
}

// Close stops polling and aborts any request in flight
func (h *HeartBeat) Close() {
	h.StopPolling()
	h.cancel()
	h.wg.Wait()
}

func (h *HeartBeat) dispatch(ev event) *Poll {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	h.mu.Lock()
	out := h.machine.transition(ev)
	h.mu.Unlock()

	for _, a := range out.actions {
		h.execute(a)
	}
	return out.poll
}

func (h *HeartBeat) execute(a action) {
	switch a := a.(type) {
	case armActivity:
		h.deps.Activity.Arm(func() { h.dispatch(activityEvent{}) })

	case disarmActivity:
		h.deps.Activity.Disarm()

	case cancelTimer:
		h.stopTimer()

	case schedule:
		h.stopTimer()
		gen := a.gen
		h.timer = h.clock.AfterFunc(a.delay, func() { h.dispatch(timerEvent{gen: gen}) })
		h.logger.Debug("Next session poll scheduled", zap.Duration("delay", a.delay))

	case sendPoll:
		h.wg.Add(1)
		go h.runPoll(a.poll, a.active)

	case completePoll:
		metrics.PollsTotal.WithLabelValues(a.result).Inc()
		a.poll.complete(a.err)

	case showDisconnected:
		h.logger.Warn("Server disconnected",
			zap.String("reason", a.reason),
			zap.Duration("reconnect_time", a.reconnect))
		metrics.DisconnectionsTotal.WithLabelValues(a.reason).Inc()
		metrics.ConnectionState.Set(0)
		metrics.ReconnectDelaySeconds.Set(a.reconnect.Seconds())
		h.deps.Relay.CreateSnackbar(disconnectedText(a.reconnect), notification.Options{
			ActionText:     textTryAgain,
			ActionCallback: func() { h.PollSessionEndPoint() },
			AutoDismiss:    false,
			Backdrop:       true,
			ForceReuse:     true,
		})

	case backedOff:
		h.logger.Info("Reconnection attempt failed, backing off",
			zap.Duration("reconnect_time", a.reconnect))
		metrics.ReconnectDelaySeconds.Set(a.reconnect.Seconds())

	case startCountdown:
		h.countdown.start(a.remaining)

	case stopCountdown:
		h.countdown.stop()

	case showTrying:
		h.deps.Relay.SetSnackbarText(textTrying)

	case clearBanner:
		h.deps.Relay.ClearSnackbar()

	case showReconnected:
		h.logger.Info("Server reconnected")
		metrics.ReconnectionsTotal.Inc()
		metrics.ConnectionState.Set(1)
		metrics.ReconnectDelaySeconds.Set(0)
		h.deps.Relay.CreateSnackbar(textReconnected, notification.Options{AutoDismiss: true})

	case reloadPage:
		h.logger.Info("Reloading after reconnection")
		h.deps.Navigator.Reload()

	case persistSignOut:
		h.persistSignOut()

	case clearSession:
		h.deps.Store.Clear()

	case redirect:
		h.logger.Info("Redirecting", zap.String("url", a.url), zap.String("reason", a.reason))
		metrics.SignOutsTotal.WithLabelValues(a.reason).Inc()
		h.deps.Navigator.Redirect(a.url)

	case updateSession:
		h.deps.Store.Update(a.session, a.clientNow)

	case logPollError:
		h.logger.Warn("Session poll failed", zap.Error(a.err))
	}
}

func (h *HeartBeat) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *HeartBeat) runPoll(p *Poll, active bool) {
	defer h.wg.Done()

	body := session.HeartbeatRequest{
		Active:  active,
		Browser: h.opts.Fingerprint.Browser,
		OS:      h.opts.Fingerprint.OS,
	}

	t0 := h.clock.Now()
	sess, err := h.deps.Endpoint.PutCurrent(h.ctx, body)
	t1 := h.clock.Now()
	metrics.PollDurationSeconds.Observe(t1.Sub(t0).Seconds())

	h.dispatch(pollDoneEvent{poll: p, session: sess, err: err, t0: t0, t1: t1})
}

func (h *HeartBeat) persistSignOut() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	status := "success"
	if err := h.deps.Flags.SetFlag(ctx, storage.FlagSignedOutDueToInactivity, true); err != nil {
		status = "error"
		h.logger.Error("Failed to persist inactivity sign-out flag", zap.Error(err))
	}
	metrics.FlagStoreOperationsTotal.WithLabelValues("set", status).Inc()
}

var (
	_ httpclient.ConnectionMonitor = (*HeartBeat)(nil)
	_ httpclient.SessionGuard      = (*HeartBeat)(nil)
)
