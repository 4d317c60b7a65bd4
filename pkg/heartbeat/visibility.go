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

package heartbeat

import "sync/atomic"

// VisibilityTracker holds whether the page is currently visible
type VisibilityTracker struct {
	hidden atomic.Bool
}

// NewVisibilityTracker creates a tracker for a visible page
func NewVisibilityTracker() *VisibilityTracker {
	return &VisibilityTracker{}
}

// Visible reports whether the page is visible
func (v *VisibilityTracker) Visible() bool {
	return !v.hidden.Load()
}

// SetVisible records a visibility change and reports whether it changed
func (v *VisibilityTracker) SetVisible(visible bool) bool {
	return v.hidden.Swap(!visible) == visible
}
