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

// Package handlers implements the agent's local HTTP API
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/api"
	"github.com/learningequality/kolibri-sub006/pkg/api/middleware"
	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/heartbeat"
	"github.com/learningequality/kolibri-sub006/pkg/httpclient"
	"github.com/learningequality/kolibri-sub006/pkg/session"
	"github.com/learningequality/kolibri-sub006/pkg/storage"
)

// Doer sends application requests through the resilient client
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Heartbeat is the polling controller driven by the API
type Heartbeat interface {
	StartPolling() *heartbeat.Poll
	StopPolling()
	PollSessionEndPoint() *heartbeat.Poll
	Snapshot() heartbeat.Snapshot
}

// Dependencies are the components exposed through the API
type Dependencies struct {
	State         *connection.State
	Heartbeat     Heartbeat
	Activity      *heartbeat.ActivityTracker
	Visibility    *heartbeat.VisibilityTracker
	Sessions      *session.Store
	Flags         storage.FlagStore
	Client        Doer
	Notifications http.Handler
	// BaseURL is the learning-platform server proxied under /api/v1/proxy
	BaseURL *url.URL
}

// APIServer serves the local agent API
type APIServer struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewAPIServer creates a new API server
func NewAPIServer(deps Dependencies, logger *zap.Logger) *APIServer {
	return &APIServer{deps: deps, logger: logger}
}

// RegisterRoutes registers all API routes on the router
func (s *APIServer) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/connection", s.GetConnection)
		v1.PUT("/connection/reload-on-reconnect", s.SetReloadOnReconnect)
		v1.POST("/activity", s.RecordActivity)
		v1.PUT("/visibility", s.SetVisibility)

		v1.POST("/heartbeat/start", s.StartPolling)
		v1.POST("/heartbeat/stop", s.StopPolling)
		v1.POST("/heartbeat/poll", s.Poll)

		v1.GET("/session", s.GetSession)
		v1.POST("/session/signed-out-flag/consume", s.ConsumeSignedOutFlag)

		v1.Any("/proxy/*path", s.Proxy)
	}

	if s.deps.Notifications != nil {
		router.GET("/ws/notifications", gin.WrapH(s.deps.Notifications))
	}
}

// NewRouter builds a gin engine with the standard middleware chain and routes
func NewRouter(deps Dependencies, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.CorrelationIDMiddleware(logger))
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(gin.Recovery())

	NewAPIServer(deps, logger).RegisterRoutes(router)
	return router
}

// HealthCheck handles GET /health
func (s *APIServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// GetConnection handles GET /api/v1/connection
func (s *APIServer) GetConnection(c *gin.Context) {
	c.JSON(http.StatusOK, s.connectionResponse())
}

// SetReloadOnReconnect handles PUT /api/v1/connection/reload-on-reconnect
func (s *APIServer) SetReloadOnReconnect(c *gin.Context) {
	var req api.ReloadOnReconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.deps.State.SetReloadOnReconnect(*req.ReloadOnReconnect)
	c.JSON(http.StatusOK, s.connectionResponse())
}

// RecordActivity handles POST /api/v1/activity
func (s *APIServer) RecordActivity(c *gin.Context) {
	c.JSON(http.StatusOK, api.ActivityResponse{Recorded: s.deps.Activity.Signal()})
}

// SetVisibility handles PUT /api/v1/visibility
func (s *APIServer) SetVisibility(c *gin.Context) {
	var req api.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if s.deps.Visibility.SetVisible(*req.Visible) {
		middleware.GetLogger(c, s.logger).Debug("Page visibility changed", zap.Bool("visible", *req.Visible))
	}
	c.JSON(http.StatusOK, s.connectionResponse())
}

// StartPolling handles POST /api/v1/heartbeat/start and waits for the first poll
func (s *APIServer) StartPolling(c *gin.Context) {
	s.respondAfterPoll(c, s.deps.Heartbeat.StartPolling())
}

// StopPolling handles POST /api/v1/heartbeat/stop
func (s *APIServer) StopPolling(c *gin.Context) {
	s.deps.Heartbeat.StopPolling()
	c.JSON(http.StatusOK, s.connectionResponse())
}

// Poll handles POST /api/v1/heartbeat/poll
func (s *APIServer) Poll(c *gin.Context) {
	s.respondAfterPoll(c, s.deps.Heartbeat.PollSessionEndPoint())
}

func (s *APIServer) respondAfterPoll(c *gin.Context, p *heartbeat.Poll) {
	ctx := c.Request.Context()
	err := p.Wait(ctx)
	if ctx.Err() != nil {
		// The caller went away; the poll itself keeps running
		c.JSON(http.StatusRequestTimeout, api.ErrorResponse{
			Status:  "error",
			Message: "poll still in progress",
		})
		return
	}

	resp := api.PollResponse{Connection: s.connectionResponse()}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession handles GET /api/v1/session
func (s *APIServer) GetSession(c *gin.Context) {
	current := s.deps.Sessions.Current()
	if current == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Status:  "error",
			Message: "no session",
		})
		return
	}
	c.Data(http.StatusOK, "application/json", current.Raw)
}

// ConsumeSignedOutFlag handles POST /api/v1/session/signed-out-flag/consume
func (s *APIServer) ConsumeSignedOutFlag(c *gin.Context) {
	value, err := s.deps.Flags.ConsumeFlag(c.Request.Context(), storage.FlagSignedOutDueToInactivity)
	if err != nil {
		middleware.GetLogger(c, s.logger).Error("Failed to consume sign-out flag", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Status:  "error",
			Message: "failed to read sign-out flag",
		})
		return
	}
	c.JSON(http.StatusOK, api.SignedOutFlagResponse{SignedOutDueToInactivity: value})
}

// Proxy handles ANY /api/v1/proxy/*path by forwarding the request to the
// learning-platform server through the resilient client
func (s *APIServer) Proxy(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	target := s.deps.BaseURL.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(c.Param("path"), "/"),
		RawQuery: c.Request.URL.RawQuery,
	})

	body := c.Request.Body
	if c.Request.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), body)
	if err != nil {
		badRequest(c, err)
		return
	}
	copyHeaders(req.Header, c.Request.Header, "Accept", "Accept-Language", "Content-Type", "Cookie", "X-CSRFToken")
	req.Header.Set(middleware.CorrelationIDHeader, middleware.GetCorrelationID(c))

	resp, err := s.deps.Client.Do(req)
	if err != nil {
		s.proxyError(c, log, err)
		return
	}
	defer resp.Body.Close()

	copyHeaders(c.Writer.Header(), resp.Header, "Content-Type", "Cache-Control", "Set-Cookie")
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Warn("Failed to relay proxied response", zap.Error(err))
	}
}

func (s *APIServer) proxyError(c *gin.Context, log *zap.Logger, err error) {
	var statusErr *httpclient.StatusError
	switch {
	case httpclient.IsCancelled(err):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{
			Status:  "error",
			Message: "request cancelled",
		})
	case errors.As(err, &statusErr):
		contentType := statusErr.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		c.Data(statusErr.Code, contentType, statusErr.Body)
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		log.Warn("Proxied request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, api.ErrorResponse{
			Status:  "error",
			Message: "upstream unavailable",
		})
	}
}

func (s *APIServer) connectionResponse() api.ConnectionResponse {
	snap := s.deps.State.Snapshot()
	hb := s.deps.Heartbeat.Snapshot()

	var next *int
	if hb.NextPoll != nil {
		seconds := int(hb.NextPoll.Seconds())
		next = &seconds
	}

	return api.ConnectionResponse{
		Connected:         snap.Connected,
		ReconnectTime:     snap.ReconnectSeconds(),
		ReloadOnReconnect: snap.ReloadOnReconnect,
		Visible:           s.deps.Visibility.Visible(),
		Heartbeat: api.HeartbeatStatus{
			Phase:           hb.Phase.String(),
			Enabled:         hb.Enabled,
			Active:          hb.Active,
			NextPollSeconds: next,
			SignedOut:       hb.SignedOut,
		},
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Status:  "error",
		Message: err.Error(),
	})
}

func copyHeaders(dst, src http.Header, names ...string) {
	for _, name := range names {
		for _, v := range src.Values(name) {
			dst.Add(name, v)
		}
	}
}
