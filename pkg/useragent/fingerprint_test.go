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

package useragent

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		userAgent   string
		wantBrowser string
		wantMajor   string
		wantOS      string
	}{
		{
			name:        "firefox on linux",
			userAgent:   "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/118.0",
			wantBrowser: "Firefox",
			wantMajor:   "118",
		},
		{
			name:        "chrome on windows",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.5938.132 Safari/537.36",
			wantBrowser: "Chrome",
			wantMajor:   "117",
			wantOS:      "Windows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := Parse(tt.userAgent)
			assert.Equal(t, tt.wantBrowser, fp.Browser.Name)
			assert.Equal(t, tt.wantMajor, fp.Browser.Major)
			if tt.wantOS != "" {
				assert.Equal(t, tt.wantOS, fp.OS.Name)
			}
		})
	}
}

func TestParse_EmptyUsesRuntime(t *testing.T) {
	fp := Parse("  ")
	assert.Equal(t, "Go", fp.Browser.Name)
	assert.NotEmpty(t, fp.Browser.Major)
	assert.Equal(t, runtime.GOOS, fp.OS.Name)
}

func TestNewVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"117.0.5938.132", Version{Name: "x", Major: "117", Minor: "0", Patch: "5938"}},
		{"10_15_7", Version{Name: "x", Major: "10", Minor: "15", Patch: "7"}},
		{"16", Version{Name: "x", Major: "16"}},
		{"1.24rc1", Version{Name: "x", Major: "1"}},
		{"", Version{Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, newVersion("x", tt.in))
		})
	}
}
