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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learningequality/kolibri-sub006/pkg/useragent"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantID     string
		wantUserID *string
		wantTime   bool
		wantErr    bool
	}{
		{
			name:       "logged in",
			body:       `{"id":"abc","user_id":"u1","kind":["learner"],"server_time":"2026-01-02T03:04:05.5Z"}`,
			wantID:     "abc",
			wantUserID: strPtr("u1"),
			wantTime:   true,
		},
		{
			name:   "anonymous with null user",
			body:   `{"id":"abc","user_id":null}`,
			wantID: "abc",
		},
		{
			name:   "user id missing",
			body:   `{"id":"current"}`,
			wantID: "current",
		},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "not an object", body: `[1,2]`, wantErr: true},
		{name: "bad server time", body: `{"id":"x","server_time":"yesterday"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSession))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, s.ID)
			assert.Equal(t, tt.wantUserID, s.UserID)
			assert.Equal(t, tt.wantTime, !s.ServerTime.IsZero())
			assert.JSONEq(t, tt.body, string(s.Raw))
		})
	}
}

func TestSession_MarshalForwardsRaw(t *testing.T) {
	body := `{"id":"abc","user_id":"u1","full_name":"Ada"}`
	s, err := Parse([]byte(body))
	require.NoError(t, err)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestSameUser(t *testing.T) {
	assert.True(t, SameUser(nil, nil))
	assert.True(t, SameUser(strPtr("a"), strPtr("a")))
	assert.False(t, SameUser(strPtr("a"), strPtr("b")))
	assert.False(t, SameUser(strPtr("a"), nil))
	assert.False(t, SameUser(nil, strPtr("a")))
}

func TestClientNow(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(300 * time.Millisecond)
	assert.Equal(t, t0.Add(150*time.Millisecond), ClientNow(t0, t1))
	assert.Equal(t, t0, ClientNow(t0, t0))
}

type recordingDoer struct {
	requests []*http.Request
	bodies   []string
	status   int
	response string
	err      error
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(b))
	}
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader(d.response)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func newTestResource(t *testing.T, doer Doer) *Resource {
	t.Helper()
	u, err := url.Parse("http://learn.test/api/auth/session/")
	require.NoError(t, err)
	return NewResource(doer, u)
}

func TestResource_PutCurrent(t *testing.T) {
	doer := &recordingDoer{status: http.StatusOK, response: `{"id":"s1","user_id":"u1"}`}
	r := newTestResource(t, doer)

	s, err := r.PutCurrent(context.Background(), HeartbeatRequest{
		Active:  true,
		Browser: useragent.Version{Name: "Firefox", Major: "120", Minor: "0"},
		OS:      useragent.Version{Name: "Linux"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	require.Len(t, doer.requests, 1)
	req := doer.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "http://learn.test/api/auth/session/current/", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t,
		`{"active":true,"browser":{"name":"Firefox","major":"120","minor":"0"},"os":{"name":"Linux"}}`,
		doer.bodies[0])
}

func TestResource_GetCurrent(t *testing.T) {
	doer := &recordingDoer{status: http.StatusOK, response: `{"id":"s1","user_id":null}`}
	r := newTestResource(t, doer)

	s, err := r.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.UserID)
	require.Len(t, doer.requests, 1)
	assert.Equal(t, http.MethodGet, doer.requests[0].Method)
}

func TestResource_PropagatesDoerError(t *testing.T) {
	wantErr := errors.New("boom")
	r := newTestResource(t, &recordingDoer{err: wantErr})

	_, err := r.GetCurrent(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestStore(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.Current())
	assert.False(t, store.Identity().HasUser())
	assert.Equal(t, "", store.Identity().ID)

	clientNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sess := &Session{
		ID:         "s1",
		UserID:     strPtr("u1"),
		ServerTime: clientNow.Add(90 * time.Second),
	}
	store.Update(sess, clientNow)

	assert.Same(t, sess, store.Current())
	assert.Equal(t, Identity{ID: "s1", UserID: strPtr("u1")}, store.Identity())
	assert.Equal(t, 90*time.Second, store.Skew())
	assert.Equal(t, clientNow, store.UpdatedAt())
	assert.Equal(t, clientNow.Add(time.Minute+90*time.Second), store.ServerNow(clientNow.Add(time.Minute)))

	// A session without server time keeps the last known skew
	store.Update(&Session{ID: "s1"}, clientNow.Add(time.Hour))
	assert.Equal(t, 90*time.Second, store.Skew())

	store.Clear()
	assert.Nil(t, store.Current())
}

func strPtr(s string) *string {
	return &s
}
