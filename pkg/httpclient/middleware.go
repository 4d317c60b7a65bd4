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

package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/metrics"
	"github.com/learningequality/kolibri-sub006/pkg/session"
)

// Handler executes one request
type Handler func(req *http.Request) (*http.Response, error)

// Middleware decorates a Handler
type Middleware func(next Handler) Handler

// Chain wraps h so that the first middleware is the outermost
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ConnectionMonitor receives the classification of every response
type ConnectionMonitor interface {
	MonitorDisconnect(status connection.Status)
	Reconnect()
}

// SessionGuard resolves 403 responses into "this request was refused" or
// "the session is gone"
type SessionGuard interface {
	Identity() session.Identity
	CheckSession(ctx context.Context) (*session.Session, error)
	SignOutDueToInactivity()
}

// Gate rejects every request while the server is considered unreachable
func Gate(state *connection.State, logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			if !state.Connected() {
				metrics.RequestsCancelledTotal.Inc()
				logger.Debug("Request cancelled while disconnected",
					zap.String("method", req.Method),
					zap.String("url", req.URL.String()))
				return nil, ErrRequestCancelled
			}
			return next(req)
		}
	}
}

// Classify reports disconnection statuses to the monitor, and any other
// response to it while the state is disconnected
func Classify(state *connection.State, set connection.DisconnectionSet, monitor func() ConnectionMonitor, logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			resp, err := next(req)

			var status connection.Status
			switch {
			case err == nil:
				status = connection.Received(resp.StatusCode)
			case errors.Is(err, context.Canceled) || IsCancelled(err):
				return resp, err
			default:
				status = connection.NoResponse()
			}

			m := monitor()
			if m == nil {
				return resp, err
			}

			if set.Matches(status) {
				logger.Debug("Disconnection status observed",
					zap.String("url", req.URL.String()),
					zap.Stringer("status", status))
				m.MonitorDisconnect(status)
			} else if !status.IsNoResponse() && !state.Connected() {
				m.Reconnect()
			}
			return resp, err
		}
	}
}

// Forbidden disambiguates 403 responses on application traffic
func Forbidden(guard func() SessionGuard, logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			resp, err := next(req)
			if err != nil || resp.StatusCode != http.StatusForbidden {
				return resp, err
			}

			g := guard()
			if g == nil {
				return resp, err
			}

			identity := g.Identity()
			if identity.ID != "" && !identity.HasUser() {
				logger.Info("Request forbidden for a session without a user, signing out",
					zap.String("url", req.URL.String()))
				g.SignOutDueToInactivity()
				return resp, err
			}

			// One-off check: was it this request, or the whole session?
			current, checkErr := g.CheckSession(req.Context())
			if checkErr != nil {
				logger.Warn("Session check after 403 failed",
					zap.String("url", req.URL.String()),
					zap.Error(checkErr))
				return resp, err
			}
			if !current.Identity().HasUser() {
				logger.Info("Session expired, signing out",
					zap.String("url", req.URL.String()))
				g.SignOutDueToInactivity()
			}
			return resp, err
		}
	}
}

// StatusErrors turns non-2xx responses into *StatusError
func StatusErrors(maxBody int64) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			resp, err := next(req)
			if err != nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
				return resp, err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			return nil, &StatusError{Code: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
		}
	}
}

// RequestHeaders stamps every request with a request id and user agent
func RequestHeaders(userAgent string, newID func() string) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) == "" {
				req.Header.Set(RequestIDHeader, newID())
			}
			if userAgent != "" && req.Header.Get("User-Agent") == "" {
				req.Header.Set("User-Agent", userAgent)
			}
			return next(req)
		}
	}
}

// Instrument records request outcomes
func Instrument(client string) Middleware {
	return func(next Handler) Handler {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next(req)
			outcome := "no_response"
			if err == nil {
				outcome = statusClass(resp.StatusCode)
			} else if errors.Is(err, context.Canceled) {
				outcome = "cancelled"
			}
			metrics.RequestsTotal.WithLabelValues(client, req.Method, outcome).Inc()
			metrics.RequestDurationSeconds.WithLabelValues(client).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
