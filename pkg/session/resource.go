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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxSessionBody bounds how much of a session response is read
const maxSessionBody = 1 << 20

// Doer executes HTTP requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resource talks to the session endpoint
type Resource struct {
	doer       Doer
	collection *url.URL
}

// NewResource creates a resource for the session collection at collection,
// e.g. http://host/api/auth/session/
func NewResource(doer Doer, collection *url.URL) *Resource {
	return &Resource{doer: doer, collection: collection}
}

// CurrentURL is the URL of the current session
func (r *Resource) CurrentURL() string {
	return r.collection.ResolveReference(&url.URL{Path: "current/"}).String()
}

// PutCurrent sends a heartbeat and returns the refreshed session
func (r *Resource) PutCurrent(ctx context.Context, body HeartbeatRequest) (*Session, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal heartbeat: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.CurrentURL(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req)
}

// GetCurrent fetches the current session without marking activity
func (r *Resource) GetCurrent(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.CurrentURL(), nil)
	if err != nil {
		return nil, err
	}
	return r.do(req)
}

func (r *Resource) do(req *http.Request) (*Session, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := r.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}
	return Parse(body)
}
