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

import (
	"context"
	"sync"
)

// MemoryFlagStore keeps flags in memory; values are lost on restart
type MemoryFlagStore struct {
	mu     sync.Mutex
	flags  map[string]bool
	closed bool
}

// NewMemoryFlagStore creates an empty in-memory flag store
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{flags: make(map[string]bool)}
}

// SetFlag writes a flag value
func (m *MemoryFlagStore) SetFlag(_ context.Context, name string, value bool) error {
	if name == "" {
		return ErrInvalidFlagName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.flags[name] = value
	return nil
}

// Flag reads a flag value
func (m *MemoryFlagStore) Flag(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrInvalidFlagName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	return m.flags[name], nil
}

// ConsumeFlag reads a flag and clears it
func (m *MemoryFlagStore) ConsumeFlag(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrInvalidFlagName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	value := m.flags[name]
	delete(m.flags, name)
	return value, nil
}

// Close marks the store closed
func (m *MemoryFlagStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
