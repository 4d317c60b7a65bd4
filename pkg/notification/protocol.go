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

package notification

// EventType names a message sent to subscribers
type EventType string

const (
	EventSnackbarCreate EventType = "snackbar.create"
	EventSnackbarText   EventType = "snackbar.text"
	EventSnackbarClear  EventType = "snackbar.clear"
	EventNavigate       EventType = "navigate"
	EventReload         EventType = "reload"
)

// MessageSnackbarAction is sent by a subscriber when the snackbar action is clicked
const MessageSnackbarAction = "snackbar.action"

// Event is the envelope of every message sent to subscribers
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// SnackbarPayload describes a snackbar
type SnackbarPayload struct {
	Text        string `json:"text"`
	ActionText  string `json:"actionText,omitempty"`
	AutoDismiss bool   `json:"autoDismiss"`
	Backdrop    bool   `json:"backdrop"`
	ForceReuse  bool   `json:"forceReuse"`
}

// TextPayload updates the text of the visible snackbar
type TextPayload struct {
	Text string `json:"text"`
}

// NavigatePayload carries a redirect target
type NavigatePayload struct {
	URL string `json:"url"`
}

// ClientMessage is a message received from a subscriber
type ClientMessage struct {
	Type string `json:"type"`
}
