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

// Package metrics defines the agent's Prometheus metrics. All metric
// variables are no-ops until Init has run with metrics enabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "heartbeat_agent"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	ConnectionState       Gauge      = noopGauge{}
	ReconnectDelaySeconds Gauge      = noopGauge{}
	DisconnectionsTotal   CounterVec = noopCounterVec{}
	ReconnectionsTotal    Counter    = noopCounter{}

	PollsTotal          CounterVec = noopCounterVec{}
	PollDurationSeconds Histogram  = noopHistogram{}
	SignOutsTotal       CounterVec = noopCounterVec{}

	RequestsTotal          CounterVec   = noopCounterVec{}
	RequestDurationSeconds HistogramVec = noopHistogramVec{}
	RequestsCancelledTotal Counter      = noopCounter{}

	NotificationSubscribers Gauge      = noopGauge{}
	NotificationEventsTotal CounterVec = noopCounterVec{}

	FlagStoreOperationsTotal CounterVec = noopCounterVec{}

	Up Gauge = noopGauge{}
)

// initMetrics initializes all metric variables.
// This must be called after SetEnabled() to get real collectors.
func initMetrics() {
	ConnectionState = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Server reachability (1 = connected, 0 = disconnected)",
	})

	ReconnectDelaySeconds = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconnect_delay_seconds",
		Help:      "Current delay before the next reconnection attempt (0 while connected)",
	})

	DisconnectionsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnections_total",
			Help:      "Total number of detected disconnections by initial backoff tier",
		},
		[]string{"reason"},
	)

	ReconnectionsTotal = newCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnections_total",
		Help:      "Total number of reconnections",
	})

	PollsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_polls_total",
			Help:      "Total number of session heartbeat polls by result",
		},
		[]string{"result"},
	)

	PollDurationSeconds = newHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_poll_duration_seconds",
		Help:      "Round-trip duration of session heartbeat polls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})

	SignOutsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signouts_total",
			Help:      "Total number of forced sign-outs and identity-change redirects",
		},
		[]string{"reason"},
	)

	RequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of outgoing requests by client and outcome",
		},
		[]string{"client", "method", "outcome"},
	)

	RequestDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of outgoing requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"client"},
	)

	RequestsCancelledTotal = newCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_cancelled_total",
		Help:      "Total number of requests cancelled locally while disconnected",
	})

	NotificationSubscribers = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_subscribers",
		Help:      "Number of connected notification subscribers",
	})

	NotificationEventsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_events_total",
			Help:      "Total number of notification events published by type",
		},
		[]string{"type"},
	)

	FlagStoreOperationsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_store_operations_total",
			Help:      "Total number of persisted flag operations",
		},
		[]string{"operation", "status"},
	)

	Up = newGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "up",
		Help:      "Whether the agent is up",
	})
}

func register(c any) {
	if !Enabled {
		return
	}
	var collector prometheus.Collector
	switch v := c.(type) {
	case *counterVecWrapper:
		collector = v.CounterVec
	case *gaugeVecWrapper:
		collector = v.GaugeVec
	case *histogramVecWrapper:
		collector = v.HistogramVec
	case prometheus.Collector:
		collector = v
	default:
		return
	}
	if err := registry.Register(collector); err != nil {
		// Already registered or other error - ignore
	}
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	register(ConnectionState)
	register(ReconnectDelaySeconds)
	register(DisconnectionsTotal)
	register(ReconnectionsTotal)

	register(PollsTotal)
	register(PollDurationSeconds)
	register(SignOutsTotal)

	register(RequestsTotal)
	register(RequestDurationSeconds)
	register(RequestsCancelledTotal)

	register(NotificationSubscribers)
	register(NotificationEventsTotal)

	register(FlagStoreOperationsTotal)

	register(Up)

	ConnectionState.Set(1)
	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// This must be called after SetEnabled() has been called.
func Init() *prometheus.Registry {
	once.Do(func() {
		initMetrics()

		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}
