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

// Package useragent turns a browser user-agent string into the browser and
// OS version tuples reported with every session heartbeat.
package useragent

import (
	"runtime"
	"strconv"
	"strings"

	ua "github.com/mssola/user_agent"
)

// Version is a {name, major, minor, patch} tuple
type Version struct {
	Name  string `json:"name"`
	Major string `json:"major,omitempty"`
	Minor string `json:"minor,omitempty"`
	Patch string `json:"patch,omitempty"`
}

// Fingerprint describes the client that is polling the session endpoint
type Fingerprint struct {
	Browser Version `json:"browser"`
	OS      Version `json:"os"`
}

// Parse extracts the browser and OS from a user-agent string. An empty string
// describes the agent process itself.
func Parse(userAgent string) Fingerprint {
	if strings.TrimSpace(userAgent) == "" {
		return runtimeFingerprint()
	}

	agent := ua.New(userAgent)
	name, version := agent.Browser()
	osInfo := agent.OSInfo()

	return Fingerprint{
		Browser: newVersion(name, version),
		OS:      newVersion(osInfo.Name, osInfo.Version),
	}
}

func runtimeFingerprint() Fingerprint {
	// runtime.Version() looks like "go1.24.2"
	goVersion := strings.TrimPrefix(runtime.Version(), "go")
	return Fingerprint{
		Browser: newVersion("Go", goVersion),
		OS:      Version{Name: runtime.GOOS},
	}
}

// newVersion splits "12.1.4" or "10_15_7" into its parts
func newVersion(name, version string) Version {
	v := Version{Name: name}
	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '_'
	})
	fields := []*string{&v.Major, &v.Minor, &v.Patch}
	for i := 0; i < len(parts) && i < len(fields); i++ {
		if _, err := strconv.Atoi(parts[i]); err != nil {
			// Anything after a non-numeric component is build metadata
			break
		}
		*fields[i] = parts[i]
	}
	return v
}
