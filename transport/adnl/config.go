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

package adnl

import (
	"log/slog"
	"time"

	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/protocol/liteserver"
	"github.com/blinklabs-io/goton/transport"
)

const (
	DefaultDialTimeout = 5 * time.Second
	DefaultConcurrency = 8
)

// Config contains the configuration for an ADNL backend
type Config struct {
	Peers           []Peer
	RotateAfter     int
	Retry           protocol.RetryPolicy
	DialTimeout     time.Duration
	QueryTimeout    time.Duration
	PingPeriod      time.Duration
	PingTimeout     time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Concurrency     int
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	StateChangeFunc protocol.StateChangeFunc
}

// AdnlOptionFunc is a function that modifies a Config
type AdnlOptionFunc func(*Config)

// NewConfig returns a Config with default values and the provided options applied
func NewConfig(options ...AdnlOptionFunc) Config {
	c := Config{
		RotateAfter:     protocol.DefaultRotateAfter,
		Retry:           protocol.DefaultRetryPolicy(),
		DialTimeout:     DefaultDialTimeout,
		QueryTimeout:    liteserver.DefaultQueryTimeout,
		PingPeriod:      liteserver.DefaultPingPeriod,
		PingTimeout:     liteserver.DefaultPingTimeout,
		PollInterval:    transport.DefaultPollInterval,
		MaxPollInterval: transport.DefaultMaxPollInterval,
		Concurrency:     DefaultConcurrency,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithPeers specifies the lite servers, in order of preference
func WithPeers(peers ...Peer) AdnlOptionFunc {
	return func(c *Config) {
		c.Peers = append(c.Peers, peers...)
	}
}

// WithRotateAfter specifies the number of consecutive unanswered requests after which the next peer is used
func WithRotateAfter(rotateAfter int) AdnlOptionFunc {
	return func(c *Config) {
		c.RotateAfter = rotateAfter
	}
}

// WithRetryPolicy specifies the retry policy for network failures and timeouts
func WithRetryPolicy(retry protocol.RetryPolicy) AdnlOptionFunc {
	return func(c *Config) {
		c.Retry = retry
	}
}

// WithDialTimeout specifies the timeout for connecting to a peer
func WithDialTimeout(timeout time.Duration) AdnlOptionFunc {
	return func(c *Config) {
		c.DialTimeout = timeout
	}
}

// WithQueryTimeout specifies the default timeout of a single query
func WithQueryTimeout(timeout time.Duration) AdnlOptionFunc {
	return func(c *Config) {
		c.QueryTimeout = timeout
	}
}

// WithPingPeriod specifies the keepalive interval. A zero period disables keepalive
func WithPingPeriod(period time.Duration) AdnlOptionFunc {
	return func(c *Config) {
		c.PingPeriod = period
	}
}

// WithPingTimeout specifies how long to wait for a keepalive answer
func WithPingTimeout(timeout time.Duration) AdnlOptionFunc {
	return func(c *Config) {
		c.PingTimeout = timeout
	}
}

// WithResubscribeInterval specifies the bounds of the backoff between resubscription attempts
func WithResubscribeInterval(interval time.Duration, maxInterval time.Duration) AdnlOptionFunc {
	return func(c *Config) {
		c.PollInterval = interval
		c.MaxPollInterval = maxInterval
	}
}

// WithConcurrency specifies the number of concurrent queries used by batch operations
func WithConcurrency(concurrency int) AdnlOptionFunc {
	return func(c *Config) {
		c.Concurrency = concurrency
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) AdnlOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) AdnlOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithStateChangeFunc specifies a callback for connection state changes
func WithStateChangeFunc(stateChangeFunc protocol.StateChangeFunc) AdnlOptionFunc {
	return func(c *Config) {
		c.StateChangeFunc = stateChangeFunc
	}
}
