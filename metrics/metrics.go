// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides the prometheus collectors shared by the transport
// backends. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/blinklabs-io/goton/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "goton"

// Metrics holds the collectors for one transport instance
type Metrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	rotations *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	state     *prometheus.GaugeVec
	notified  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Backend requests by operation and outcome.",
		}, []string{"backend", "op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_rotations_total",
			Help:      "Switches to the next endpoint or peer after repeated failures.",
		}, []string{"backend"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollback_anomalies_total",
			Help:      "Observations older than the tracked cursor of an address.",
		}, []string{"backend"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0 idle, 1 connecting, 2 ready, 3 degraded, 4 closed).",
		}, []string{"backend"}),
		notified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Account state notifications delivered to subscribers.",
		}, []string{"backend"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.rotations, err = register(reg, m.rotations); err != nil {
		return nil, err
	}
	if m.anomalies, err = register(reg, m.anomalies); err != nil {
		return nil, err
	}
	if m.state, err = register(reg, m.state); err != nil {
		return nil, err
	}
	if m.notified, err = register(reg, m.notified); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already registered
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Result returns the outcome label for err
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return protocol.KindOf(err).String()
}

// ObserveRequest records a finished request started at start
func (m *Metrics) ObserveRequest(backend string, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, op, Result(err)).Inc()
	m.latency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Rotation records a switch to the next endpoint
func (m *Metrics) Rotation(backend string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(backend).Inc()
}

// Anomaly records a rollback anomaly
func (m *Metrics) Anomaly(backend string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(backend).Inc()
}

// Notification records a delivered subscription notification
func (m *Metrics) Notification(backend string) {
	if m == nil {
		return
	}
	m.notified.WithLabelValues(backend).Inc()
}

// SetState records the connection state
func (m *Metrics) SetState(backend string, state protocol.ConnState) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(backend).Set(float64(state))
}
