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

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Enabled controls whether metrics are real collectors or no-ops. It must be
// set (see SetEnabled) before Init is called.
var Enabled bool

// SetEnabled sets whether metrics collection is enabled
func SetEnabled(enabled bool) {
	Enabled = enabled
}

// IsEnabled reports whether metrics collection is enabled
func IsEnabled() bool {
	return Enabled
}

// Counter is the subset of prometheus.Counter used by the agent
type Counter interface {
	Inc()
	Add(float64)
}

// Gauge is the subset of prometheus.Gauge used by the agent
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// Histogram is the subset of prometheus.Histogram used by the agent
type Histogram interface {
	Observe(float64)
}

// CounterVec is a labelled Counter family
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// GaugeVec is a labelled Gauge family
type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

// HistogramVec is a labelled Histogram family
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}
func (noopGauge) Add(float64) {}
func (noopGauge) Sub(float64) {}

type noopHistogram struct{}

func (noopHistogram) Observe(float64) {}

type noopCounterVec struct{}

func (noopCounterVec) WithLabelValues(...string) Counter { return noopCounter{} }

type noopGaugeVec struct{}

func (noopGaugeVec) WithLabelValues(...string) Gauge { return noopGauge{} }

type noopHistogramVec struct{}

func (noopHistogramVec) WithLabelValues(...string) Histogram { return noopHistogram{} }

type counterVecWrapper struct {
	*prometheus.CounterVec
}

func (w *counterVecWrapper) WithLabelValues(lvs ...string) Counter {
	return w.CounterVec.WithLabelValues(lvs...)
}

type gaugeVecWrapper struct {
	*prometheus.GaugeVec
}

func (w *gaugeVecWrapper) WithLabelValues(lvs ...string) Gauge {
	return w.GaugeVec.WithLabelValues(lvs...)
}

type histogramVecWrapper struct {
	*prometheus.HistogramVec
}

func (w *histogramVecWrapper) WithLabelValues(lvs ...string) Histogram {
	return w.HistogramVec.WithLabelValues(lvs...)
}

func newCounter(opts prometheus.CounterOpts) Counter {
	if !Enabled {
		return noopCounter{}
	}
	return prometheus.NewCounter(opts)
}

func newGauge(opts prometheus.GaugeOpts) Gauge {
	if !Enabled {
		return noopGauge{}
	}
	return prometheus.NewGauge(opts)
}

func newHistogram(opts prometheus.HistogramOpts) Histogram {
	if !Enabled {
		return noopHistogram{}
	}
	return prometheus.NewHistogram(opts)
}

func newCounterVec(opts prometheus.CounterOpts, labels []string) CounterVec {
	if !Enabled {
		return noopCounterVec{}
	}
	return &counterVecWrapper{prometheus.NewCounterVec(opts, labels)}
}

func newGaugeVec(opts prometheus.GaugeOpts, labels []string) GaugeVec {
	if !Enabled {
		return noopGaugeVec{}
	}
	return &gaugeVecWrapper{prometheus.NewGaugeVec(opts, labels)}
}

func newHistogramVec(opts prometheus.HistogramOpts, labels []string) HistogramVec {
	if !Enabled {
		return noopHistogramVec{}
	}
	return &histogramVecWrapper{prometheus.NewHistogramVec(opts, labels)}
}
