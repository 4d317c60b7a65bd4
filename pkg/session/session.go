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

// Package session models the server-side session record polled by the
// heartbeat and keeps the client's copy of it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/learningequality/kolibri-sub006/pkg/useragent"
)

// ErrInvalidSession is returned when a session body cannot be interpreted
var ErrInvalidSession = errors.New("invalid session payload")

// Session is the server's session record. Only the fields below are
// interpreted; Raw carries the whole body for whoever consumes it next.
type Session struct {
	ID         string
	UserID     *string
	ServerTime time.Time
	Raw        json.RawMessage
}

// HeartbeatRequest is the body of PUT <session-resource>/current
type HeartbeatRequest struct {
	Active  bool              `json:"active"`
	Browser useragent.Version `json:"browser"`
	OS      useragent.Version `json:"os"`
}

// Identity is who the client believes is logged in
type Identity struct {
	ID     string
	UserID *string
}

// HasUser reports whether a user id is known
func (i Identity) HasUser() bool {
	return i.UserID != nil
}

// Parse reads a session object from a response body
func Parse(body []byte) (*Session, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidSession)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidSession)
	}

	s := &Session{
		ID:  root.Get("id").String(),
		Raw: append(json.RawMessage(nil), body...),
	}

	if userID := root.Get("user_id"); userID.Exists() && userID.Type != gjson.Null {
		id := userID.String()
		s.UserID = &id
	}

	if serverTime := root.Get("server_time"); serverTime.Exists() && serverTime.Type == gjson.String {
		t, err := time.Parse(time.RFC3339Nano, serverTime.String())
		if err != nil {
			return nil, fmt.Errorf("%w: server_time: %v", ErrInvalidSession, err)
		}
		s.ServerTime = t
	}

	return s, nil
}

// Identity returns the identity described by the session
func (s *Session) Identity() Identity {
	if s == nil {
		return Identity{}
	}
	return Identity{ID: s.ID, UserID: s.UserID}
}

// MarshalJSON forwards the original body
func (s *Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// SameUser compares two optional user ids
func SameUser(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ClientNow is the clock-corrected client time for a response received at
// t1 to a request sent at t0: the midpoint of the round trip.
func ClientNow(t0, t1 time.Time) time.Time {
	return t0.Add(t1.Sub(t0) / 2)
}
