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

package gql

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
)

// Config contains the configuration for a GraphQL backend
type Config struct {
	Endpoints         []string
	Timeout           time.Duration
	Retry             protocol.RetryPolicy
	RotateAfter       int
	RequestsPerSecond float64
	Headers           map[string]string
	HTTPClient        *http.Client
	PollInterval      time.Duration
	MaxPollInterval   time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
	StateChangeFunc   protocol.StateChangeFunc
}

// GqlOptionFunc is a function that modifies a Config
type GqlOptionFunc func(*Config)

// NewConfig returns a Config with default values and the provided options applied
func NewConfig(options ...GqlOptionFunc) Config {
	c := Config{
		Timeout:         transport.DefaultHTTPTimeout,
		Retry:           protocol.DefaultRetryPolicy(),
		RotateAfter:     protocol.DefaultRotateAfter,
		PollInterval:    transport.DefaultPollInterval,
		MaxPollInterval: transport.DefaultMaxPollInterval,
		Headers:         make(map[string]string),
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithEndpoints specifies the endpoint URLs, in order of preference
func WithEndpoints(endpoints ...string) GqlOptionFunc {
	return func(c *Config) {
		c.Endpoints = append(c.Endpoints, endpoints...)
	}
}

// WithTimeout specifies the timeout of a single request attempt
func WithTimeout(timeout time.Duration) GqlOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetryPolicy specifies the retry policy for network failures and timeouts
func WithRetryPolicy(retry protocol.RetryPolicy) GqlOptionFunc {
	return func(c *Config) {
		c.Retry = retry
	}
}

// WithRotateAfter specifies the number of consecutive failed requests after which the next endpoint is used
func WithRotateAfter(rotateAfter int) GqlOptionFunc {
	return func(c *Config) {
		c.RotateAfter = rotateAfter
	}
}

// WithRequestsPerSecond limits the request rate. Zero means no limit
func WithRequestsPerSecond(rps float64) GqlOptionFunc {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// WithHeader adds a header sent with every request
func WithHeader(name string, value string) GqlOptionFunc {
	return func(c *Config) {
		c.Headers[name] = value
	}
}

// WithHTTPClient specifies the base HTTP client
func WithHTTPClient(client *http.Client) GqlOptionFunc {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithPollInterval specifies the bounds of the polling interval used by subscriptions
func WithPollInterval(interval time.Duration, maxInterval time.Duration) GqlOptionFunc {
	return func(c *Config) {
		c.PollInterval = interval
		c.MaxPollInterval = maxInterval
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) GqlOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) GqlOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithStateChangeFunc specifies a callback for connection state changes
func WithStateChangeFunc(stateChangeFunc protocol.StateChangeFunc) GqlOptionFunc {
	return func(c *Config) {
		c.StateChangeFunc = stateChangeFunc
	}
}
