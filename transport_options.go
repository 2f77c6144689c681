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

package goton

import (
	"log/slog"
	"net/http"

	"github.com/blinklabs-io/goton/config"
	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// TransportOptionFunc is a type that represents functions that modify the Transport config
type TransportOptionFunc func(*Transport)

// WithConfig specifies the static configuration. The config is copied, so
// later changes to it have no effect. If none is provided, config.Default is used
func WithConfig(cfg *config.Config) TransportOptionFunc {
	return func(t *Transport) {
		t.config = cfg
	}
}

// WithNetwork specifies a network preset that supplies endpoints when the config has none
func WithNetwork(network Network) TransportOptionFunc {
	return func(t *Transport) {
		t.network = &network
	}
}

// WithLogger specifies the logger. If none is provided, slog.Default is used
func WithLogger(logger *slog.Logger) TransportOptionFunc {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics specifies the metrics collectors to update
func WithMetrics(m *metrics.Metrics) TransportOptionFunc {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithPrometheusRegisterer creates metrics collectors registered with reg.
// It is ignored when WithMetrics is also given
func WithPrometheusRegisterer(reg prometheus.Registerer) TransportOptionFunc {
	return func(t *Transport) {
		t.registerer = reg
	}
}

// WithTracerProvider specifies the tracer provider. If none is provided, the
// global provider is used
func WithTracerProvider(provider trace.TracerProvider) TransportOptionFunc {
	return func(t *Transport) {
		t.tracerProvider = provider
	}
}

// WithHTTPClient specifies the HTTP client used by the GraphQL and JSON-RPC backends
func WithHTTPClient(client *http.Client) TransportOptionFunc {
	return func(t *Transport) {
		t.httpClient = client
	}
}

// WithBackend specifies an already constructed backend. The config is not
// used to build one in that case, and the Transport takes ownership of it
func WithBackend(backend transport.Backend) TransportOptionFunc {
	return func(t *Transport) {
		t.backend = backend
	}
}

// WithStateChangeFunc specifies a function to call on connection state changes
func WithStateChangeFunc(stateChangeFunc protocol.StateChangeFunc) TransportOptionFunc {
	return func(t *Transport) {
		t.stateChangeFunc = stateChangeFunc
	}
}
