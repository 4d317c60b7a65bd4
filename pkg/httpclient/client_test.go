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

package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/session"
)

// fakeMonitor applies the state changes a heartbeat would
type fakeMonitor struct {
	state *connection.State

	mu          sync.Mutex
	disconnects []connection.Status
	reconnects  int
}

func (m *fakeMonitor) MonitorDisconnect(status connection.Status) {
	m.mu.Lock()
	m.disconnects = append(m.disconnects, status)
	m.mu.Unlock()
	m.state.MarkDisconnected(5 * time.Second)
}

func (m *fakeMonitor) Reconnect() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
	m.state.MarkConnected()
}

func (m *fakeMonitor) Disconnects() []connection.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]connection.Status(nil), m.disconnects...)
}

type fakeGuard struct {
	identity session.Identity
	current  *session.Session
	checkErr error

	checks   atomic.Int32
	signOuts atomic.Int32
}

func (g *fakeGuard) Identity() session.Identity { return g.identity }

func (g *fakeGuard) CheckSession(ctx context.Context) (*session.Session, error) {
	g.checks.Add(1)
	return g.current, g.checkErr
}

func (g *fakeGuard) SignOutDueToInactivity() { g.signOuts.Add(1) }

func testSet(t *testing.T) connection.DisconnectionSet {
	t.Helper()
	set, err := connection.NewDisconnectionSet([]int{502, 503, 504}, true)
	require.NoError(t, err)
	return set
}

func newTestClient(t *testing.T, state *connection.State) (*Client, *fakeMonitor, *fakeGuard) {
	t.Helper()
	c := New(state, Options{
		Timeout:        2 * time.Second,
		UserAgent:      "heartbeat-test",
		Disconnections: testSet(t),
	}, zap.NewNop())
	monitor := &fakeMonitor{state: state}
	guard := &fakeGuard{}
	c.Bind(monitor, guard)
	return c, monitor, guard
}

func get(t *testing.T, c *Client, rawURL string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	return c.Do(req)
}

func TestClient_SuccessPassesThrough(t *testing.T) {
	var gotRequestID, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(RequestIDHeader)
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c, monitor, _ := newTestClient(t, connection.NewState())
	resp, err := get(t, c, ts.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "heartbeat-test", gotUA)
	assert.Empty(t, monitor.Disconnects())
}

func TestClient_DisconnectionStatusMonitored(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	state := connection.NewState()
	c, monitor, _ := newTestClient(t, state)

	_, err := get(t, c, ts.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)

	require.Equal(t, []connection.Status{connection.Received(503)}, monitor.Disconnects())
	assert.False(t, state.Connected())
}

func TestClient_NoResponseMonitored(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := ts.URL
	ts.Close()

	state := connection.NewState()
	c, monitor, _ := newTestClient(t, state)

	_, err := get(t, c, serverURL)
	require.Error(t, err)
	status, ok := StatusOf(err)
	require.True(t, ok)
	assert.True(t, status.IsNoResponse())

	disconnects := monitor.Disconnects()
	require.Len(t, disconnects, 1)
	assert.True(t, disconnects[0].IsNoResponse())
}

func TestClient_GateCancelsWhileDisconnected(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	state := connection.NewState()
	state.MarkDisconnected(5 * time.Second)
	c, monitor, _ := newTestClient(t, state)

	_, err := get(t, c, ts.URL)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, int32(0), hits.Load(), "cancelled request must not reach the transport")

	_, ok := StatusOf(err)
	assert.False(t, ok, "cancellation must not be classified")
	assert.Empty(t, monitor.Disconnects())
}

func TestClient_SessionDoerReconnects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"s1","user_id":"u1"}`))
	}))
	defer ts.Close()

	state := connection.NewState()
	state.MarkDisconnected(5 * time.Second)
	c, monitor, _ := newTestClient(t, state)

	req, err := http.NewRequest(http.MethodPut, ts.URL, nil)
	require.NoError(t, err)
	resp, err := c.SessionDoer().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, state.Connected())
	_, ok := state.ReconnectTime()
	assert.False(t, ok)
	assert.Equal(t, 1, monitor.reconnects)
}

func TestClient_NonDisconnectionErrorReconnects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	state := connection.NewState()
	state.MarkDisconnected(5 * time.Second)
	c, monitor, _ := newTestClient(t, state)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	_, err = c.SessionDoer().Do(req)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)

	assert.True(t, state.Connected(), "a response outside the disconnection set proves the server is reachable")
	assert.Equal(t, 1, monitor.reconnects)
}

func TestClient_Forbidden(t *testing.T) {
	userID := "u1"
	tests := []struct {
		name         string
		identity     session.Identity
		current      *session.Session
		checkErr     error
		wantChecks   int32
		wantSignOuts int32
	}{
		{
			name:         "session without user signs out immediately",
			identity:     session.Identity{ID: "s1"},
			wantChecks:   0,
			wantSignOuts: 1,
		},
		{
			name:         "check confirms absent user",
			identity:     session.Identity{ID: "s1", UserID: &userID},
			current:      &session.Session{ID: "s1"},
			wantChecks:   1,
			wantSignOuts: 1,
		},
		{
			name:         "check finds the user, request was just unauthorized",
			identity:     session.Identity{ID: "s1", UserID: &userID},
			current:      &session.Session{ID: "s1", UserID: &userID},
			wantChecks:   1,
			wantSignOuts: 0,
		},
		{
			name:         "unknown session is checked with the server",
			identity:     session.Identity{},
			current:      &session.Session{ID: "s2"},
			wantChecks:   1,
			wantSignOuts: 1,
		},
		{
			name:         "check failure does not sign out",
			identity:     session.Identity{ID: "s1", UserID: &userID},
			checkErr:     errors.New("unreachable"),
			wantChecks:   1,
			wantSignOuts: 0,
		},
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, monitor, guard := newTestClient(t, connection.NewState())
			guard.identity = tt.identity
			guard.current = tt.current
			guard.checkErr = tt.checkErr

			_, err := get(t, c, ts.URL)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusForbidden, statusErr.Code)

			assert.Equal(t, tt.wantChecks, guard.checks.Load())
			assert.Equal(t, tt.wantSignOuts, guard.signOuts.Load())
			assert.Empty(t, monitor.Disconnects())
		})
	}
}

func TestClient_SessionDoerSkipsForbiddenCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c, _, guard := newTestClient(t, connection.NewState())
	guard.identity = session.Identity{ID: "s1"}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	_, err = c.SessionDoer().Do(req)
	require.Error(t, err)
	assert.Equal(t, int32(0), guard.signOuts.Load())
}

func TestClient_UnboundPassesThrough(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	state := connection.NewState()
	c := New(state, Options{Timeout: time.Second, Disconnections: testSet(t)}, zap.NewNop())

	_, err := get(t, c, ts.URL)
	require.Error(t, err)
	assert.True(t, state.Connected())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantOK     bool
		wantStatus connection.Status
	}{
		{"nil", nil, false, connection.Status{}},
		{"cancelled by gate", ErrRequestCancelled, false, connection.Status{}},
		{"caller cancelled", context.Canceled, false, connection.Status{}},
		{"deadline", context.DeadlineExceeded, true, connection.NoResponse()},
		{"transport", &TransportError{Err: &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}}, true, connection.NoResponse()},
		{"status", &StatusError{Code: 504}, true, connection.Received(504)},
		{"wrapped status", errors.Join(errors.New("ctx"), &StatusError{Code: 403}), true, connection.Received(403)},
		{"other", errors.New("decode failed"), false, connection.Status{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := StatusOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantStatus, status)
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next(req)
			}
		}
	}
	h := Chain(func(*http.Request) (*http.Response, error) {
		order = append(order, "handler")
		return &http.Response{StatusCode: http.StatusOK}, nil
	}, mark("outer"), mark("inner"))

	_, err := h(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
