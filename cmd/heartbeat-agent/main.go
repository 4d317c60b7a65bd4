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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learningequality/kolibri-sub006/pkg/api/handlers"
	"github.com/learningequality/kolibri-sub006/pkg/config"
	"github.com/learningequality/kolibri-sub006/pkg/connection"
	"github.com/learningequality/kolibri-sub006/pkg/heartbeat"
	"github.com/learningequality/kolibri-sub006/pkg/httpclient"
	"github.com/learningequality/kolibri-sub006/pkg/logger"
	"github.com/learningequality/kolibri-sub006/pkg/metrics"
	"github.com/learningequality/kolibri-sub006/pkg/notification"
	"github.com/learningequality/kolibri-sub006/pkg/session"
	"github.com/learningequality/kolibri-sub006/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config/config.toml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting heartbeat agent",
		zap.String("config_file", *configPath),
		zap.String("base_url", cfg.Session.BaseURL),
		zap.String("storage_type", cfg.Storage.Type),
		zap.Ints("disconnection_status_codes", cfg.HTTPClient.DisconnectionStatusCodes),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)

	metrics.SetEnabled(cfg.Metrics.Enabled)
	metrics.Init()

	var flags storage.FlagStore
	if cfg.IsPersistentMode() {
		log.Info("Initializing SQLite flag store", zap.String("path", cfg.Storage.SQLite.Path))
		flags, err = storage.NewSQLiteFlagStore(cfg.Storage.SQLite.Path, log)
		if err != nil {
			if storage.IsDatabaseLockedError(err) {
				log.Fatal("Database is locked by another process",
					zap.String("database_path", cfg.Storage.SQLite.Path),
					zap.String("troubleshooting", "Check if another heartbeat agent is running or remove stale WAL files"))
			}
			log.Fatal("Failed to initialize SQLite database", zap.Error(err))
		}
	} else {
		log.Info("Running in memory-only mode (no persistent storage)")
		flags = storage.NewMemoryFlagStore()
	}
	defer flags.Close()

	baseURL, err := url.Parse(cfg.Session.BaseURL)
	if err != nil {
		log.Fatal("Invalid session base URL", zap.Error(err))
	}
	collection, err := cfg.SessionResourceURL()
	if err != nil {
		log.Fatal("Invalid session resource URL", zap.Error(err))
	}

	disconnections, err := connection.NewDisconnectionSet(
		cfg.HTTPClient.DisconnectionStatusCodes,
		cfg.HTTPClient.IncludeNoResponse,
	)
	if err != nil {
		log.Fatal("Invalid disconnection status codes", zap.Error(err))
	}

	state := connection.NewState()
	client := httpclient.New(state, httpclient.Options{
		Timeout:           cfg.HTTPClient.Timeout,
		UserAgent:         cfg.Session.UserAgent,
		MaxErrorBodyBytes: cfg.HTTPClient.MaxErrorBodyBytes,
		Disconnections:    disconnections,
	}, log)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.Metrics, state.Connected, log)
		if err := metricsServer.Start(); err != nil {
			log.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	hub := notification.NewHub(cfg.Notifications, log)
	activity := heartbeat.NewActivityTracker()
	visibility := heartbeat.NewVisibilityTracker()
	sessions := session.NewStore()

	hb := heartbeat.New(heartbeat.OptionsFromConfig(cfg), heartbeat.Dependencies{
		State:          state,
		Disconnections: disconnections,
		Endpoint:       session.NewResource(client.SessionDoer(), collection),
		Store:          sessions,
		Flags:          flags,
		Relay:          hub,
		Navigator:      hub,
		Activity:       activity,
		Visibility:     visibility,
	}, log)
	client.Bind(hb, hb)

	if cfg.Heartbeat.AutoStart {
		hb.StartPolling()
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Dependencies{
		State:         state,
		Heartbeat:     hb,
		Activity:      activity,
		Visibility:    visibility,
		Sessions:      sessions,
		Flags:         flags,
		Client:        client,
		Notifications: hub,
		BaseURL:       baseURL,
	}, log)

	log.Info("Starting REST API server", zap.Int("port", cfg.Server.APIPort))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start REST API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down heartbeat agent")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	hb.Close()
	hub.Close()

	if metricsServer != nil {
		if err := metricsServer.Stop(ctx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	log.Info("Heartbeat agent stopped")
}
