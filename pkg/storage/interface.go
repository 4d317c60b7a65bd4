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

package storage

import "context"

// Flag names persisted across agent restarts
const (
	// FlagSignedOutDueToInactivity is written before the forced sign-out
	// redirect and read (then cleared) on the next page load.
	FlagSignedOutDueToInactivity = "signed_out_due_to_inactivity"
)

// FlagStore persists boolean flags that must survive a page load
type FlagStore interface {
	// SetFlag writes a flag value
	SetFlag(ctx context.Context, name string, value bool) error

	// Flag reads a flag value; unknown flags read as false
	Flag(ctx context.Context, name string) (bool, error)

	// ConsumeFlag reads a flag and clears it in one step
	ConsumeFlag(ctx context.Context, name string) (bool, error)

	// Close releases the underlying resources
	Close() error
}
