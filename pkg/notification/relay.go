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

// Package notification delivers user-facing banners and navigation commands
// to whatever UI is attached to the agent.
package notification

// Options controls how a snackbar is shown
type Options struct {
	ActionText     string
	ActionCallback func()
	AutoDismiss    bool
	Backdrop       bool
	// ForceReuse replaces the text of a visible snackbar instead of
	// dismissing it and showing a new one
	ForceReuse bool
}

// Relay shows, updates and clears the single snackbar
type Relay interface {
	CreateSnackbar(text string, opts Options)
	SetSnackbarText(text string)
	ClearSnackbar()
}

// Navigator moves the UI to another page
type Navigator interface {
	Redirect(url string)
	Reload()
}
