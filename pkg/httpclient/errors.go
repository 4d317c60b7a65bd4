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
	"fmt"
	"net/http"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
)

// ErrRequestCancelled is returned for requests short-circuited locally while
// the server is considered unreachable. It never reaches the transport.
var ErrRequestCancelled = errors.New("request cancelled: server is disconnected")

// IsCancelled reports whether err is a local backpressure cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrRequestCancelled)
}

// StatusError is returned for responses outside the 2xx range, after the
// response interceptors have seen them
type StatusError struct {
	Code   int
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// TransportError wraps a failure where no response was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("no response received: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusOf classifies a request error. The second result is false for errors
// that say nothing about the server: local cancellations, caller-initiated
// context cancellation, or failures after a successful response.
func StatusOf(err error) (connection.Status, bool) {
	if err == nil || IsCancelled(err) {
		return connection.Status{}, false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return connection.Received(statusErr.Code), true
	}

	if errors.Is(err, context.Canceled) {
		return connection.Status{}, false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.DeadlineExceeded) {
		return connection.NoResponse(), true
	}

	return connection.Status{}, false
}
