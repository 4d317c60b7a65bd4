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

import (
	"fmt"
	"math"
	"time"
)

const (
	textTryAgain      = "Try again"
	textTrying        = "Trying to reconnect…"
	textReconnected   = "Successfully reconnected!"
	textDisconnectedN = "Disconnected from server. Will try to reconnect in %d %s"
)

// disconnectedText renders the countdown banner for the remaining time
func disconnectedText(remaining time.Duration) string {
	secs := int(math.Ceil(remaining.Seconds()))
	unit := "seconds"
	if secs == 1 {
		unit = "second"
	}
	return fmt.Sprintf(textDisconnectedN, secs, unit)
}
