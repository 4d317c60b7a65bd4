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

package connection

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Status is the outcome of a request as seen by the classifier: either an
// HTTP status code, or the fact that no response was received at all.
type Status struct {
	code     int
	received bool
}

// NoResponse is the status of a request that never got an answer
// (network down, timeout, connection reset).
func NoResponse() Status {
	return Status{}
}

// Received wraps an HTTP status code returned by the server
func Received(code int) Status {
	return Status{code: code, received: true}
}

// Code returns the HTTP status code and whether a response was received
func (s Status) Code() (int, bool) {
	return s.code, s.received
}

// IsNoResponse reports whether no response was received
func (s Status) IsNoResponse() bool {
	return !s.received
}

// String returns "no response" or the numeric code
func (s Status) String() string {
	if !s.received {
		return "no response"
	}
	return strconv.Itoa(s.code)
}

// DisconnectionSet is the configured set of statuses that mean the server
// is unreachable or overloaded.
type DisconnectionSet struct {
	codes      map[int]struct{}
	noResponse bool
}

// NewDisconnectionSet builds a set from HTTP codes. includeNoResponse adds
// the "no response received" outcome.
func NewDisconnectionSet(codes []int, includeNoResponse bool) (DisconnectionSet, error) {
	set := DisconnectionSet{
		codes:      make(map[int]struct{}, len(codes)),
		noResponse: includeNoResponse,
	}
	for _, code := range codes {
		if http.StatusText(code) == "" && (code < 100 || code > 599) {
			return DisconnectionSet{}, fmt.Errorf("invalid HTTP status code in disconnection set: %d", code)
		}
		set.codes[code] = struct{}{}
	}
	return set, nil
}

// Matches reports whether status indicates a disconnection
func (d DisconnectionSet) Matches(status Status) bool {
	code, received := status.Code()
	if !received {
		return d.noResponse
	}
	_, ok := d.codes[code]
	return ok
}

// String lists the members, sorted
func (d DisconnectionSet) String() string {
	parts := make([]string, 0, len(d.codes)+1)
	codes := make([]int, 0, len(d.codes))
	for code := range d.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		parts = append(parts, strconv.Itoa(code))
	}
	if d.noResponse {
		parts = append(parts, NoResponse().String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
