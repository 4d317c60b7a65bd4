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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig("../../config/config.toml")
	require.NoError(t, err)
	assert.Equal(t, []int{502, 503, 504}, cfg.HTTPClient.DisconnectionStatusCodes)
	assert.True(t, cfg.IsPersistentMode())
	assert.Equal(t, defaultConfig().Heartbeat, cfg.Heartbeat)
}
