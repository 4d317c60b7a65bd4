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

// Package api holds the request and response types of the agent's local API
package api

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string `json:"status"`
}

// HeartbeatStatus describes the polling controller
type HeartbeatStatus struct {
	Phase           string `json:"phase"`
	Enabled         bool   `json:"enabled"`
	Active          bool   `json:"active"`
	NextPollSeconds *int   `json:"nextPollSeconds"`
	SignedOut       bool   `json:"signedOut"`
}

// ConnectionResponse is the shared connection state
type ConnectionResponse struct {
	Connected         bool            `json:"connected"`
	ReconnectTime     *int            `json:"reconnectTime"`
	ReloadOnReconnect bool            `json:"reloadOnReconnect"`
	Visible           bool            `json:"visible"`
	Heartbeat         HeartbeatStatus `json:"heartbeat"`
}

// ReloadOnReconnectRequest sets the reload-on-reconnect flag
type ReloadOnReconnectRequest struct {
	ReloadOnReconnect *bool `json:"reloadOnReconnect" binding:"required"`
}

// VisibilityRequest reports a page visibility change
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// ActivityResponse reports whether an interaction was recorded for the
// current polling interval
type ActivityResponse struct {
	Recorded bool `json:"recorded"`
}

// PollResponse is returned after a poll has completed
type PollResponse struct {
	Error      string             `json:"error,omitempty"`
	Connection ConnectionResponse `json:"connection"`
}

// SignedOutFlagResponse carries the consumed inactivity sign-out flag
type SignedOutFlagResponse struct {
	SignedOutDueToInactivity bool `json:"signedOutDueToInactivity"`
}
