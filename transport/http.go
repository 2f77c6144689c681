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

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	// MaxResponseSize limits the body read from a single HTTP response
	MaxResponseSize = 32 << 20
)

// ResponseFunc interprets an HTTP response body. It is only called for
// statuses below 500 other than 429, which are treated as network errors
type ResponseFunc func(endpoint string, status int, body []byte) error

// HTTPConfig configures an HTTPClient
type HTTPConfig struct {
	// Name is the backend name used in logs and metrics
	Name              string
	Endpoints         []string
	Timeout           time.Duration
	Retry             protocol.RetryPolicy
	RotateAfter       int
	RequestsPerSecond float64
	Headers           map[string]string
	// HTTPClient is an optional base client. Its transport is wrapped for tracing
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// StateChangeFunc is called on every connection state change
	StateChangeFunc protocol.StateChangeFunc
}

// HTTPClient posts requests to a list of equivalent endpoints, moving to the
// next endpoint after repeated network failures
type HTTPClient struct {
	config     HTTPConfig
	client     *http.Client
	rotator    *protocol.Rotator[string]
	limiter    *rate.Limiter
	state      *protocol.StateMachine
	logger     *slog.Logger
	doneSignal *utils.DoneSignal
}

// NewHTTPClient returns an HTTPClient for cfg
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%s: no endpoints configured", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = protocol.DefaultRetryPolicy()
	}
	c := &HTTPClient{
		config:     cfg,
		rotator:    protocol.NewRotator(cfg.Endpoints, cfg.RotateAfter),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		doneSignal: utils.NewDoneSignal(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(
			rate.Limit(cfg.RequestsPerSecond),
			max(1, int(cfg.RequestsPerSecond)),
		)
	}
	c.logger = cfg.Logger
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", cfg.Name)
	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	c.client = &http.Client{
		Transport: otelhttp.NewTransport(base),
	}
	c.state = protocol.NewStateMachine(func(from, to protocol.ConnState) {
		c.logger.Debug("connection state changed", "from", from.String(), "to", to.String())
		cfg.Metrics.SetState(cfg.Name, to)
		if cfg.StateChangeFunc != nil {
			cfg.StateChangeFunc(from, to)
		}
	})
	return c, nil
}

// State returns the connection state
func (c *HTTPClient) State() protocol.ConnState {
	return c.state.State()
}

// Endpoint returns the active endpoint
func (c *HTTPClient) Endpoint() string {
	endpoint, _ := c.rotator.Current()
	return endpoint
}

// Close marks the client closed and drops idle connections
func (c *HTTPClient) Close() error {
	c.doneSignal.Close()
	c.state.Close()
	c.client.CloseIdleConnections()
	return nil
}

// PayloadFunc builds the request body for the endpoint an attempt is sent to
type PayloadFunc func(endpoint string) ([]byte, error)

// Post sends payload to the active endpoint and passes the response to
// handle, retrying network failures and timeouts per the retry policy
func (c *HTTPClient) Post(ctx context.Context, op string, payload []byte, handle ResponseFunc) error {
	return c.PostFunc(
		ctx,
		op,
		func(string) ([]byte, error) { return payload, nil },
		handle,
	)
}

// PostFunc is like Post, but builds the payload again for every attempt so
// that it can depend on the endpoint
func (c *HTTPClient) PostFunc(ctx context.Context, op string, build PayloadFunc, handle ResponseFunc) error {
	if c.doneSignal.IsClosed() {
		return fmt.Errorf("%s: %w", op, protocol.ErrClosed)
	}
	start := time.Now()
	err := c.config.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		endpoint, idx := c.rotator.Current()
		payload, err := build(endpoint)
		if err != nil {
			return protocol.ProtocolError(op, endpoint, err)
		}
		err = c.attempt(ctx, op, endpoint, payload, handle)
		c.record(idx, endpoint, op, attempt, err)
		return err
	})
	c.config.Metrics.ObserveRequest(c.config.Name, op, start, err)
	return err
}

func (c *HTTPClient) record(idx int, endpoint string, op string, attempt int, err error) {
	if err == nil || !protocol.IsRetryable(err) {
		// The endpoint answered, even if the answer was an error
		if err == nil || protocol.KindOf(err) != 0 {
			c.rotator.Success(idx)
			MarkReady(c.state)
		}
		return
	}
	c.logger.Debug(
		"request failed",
		"op", op,
		"endpoint", endpoint,
		"attempt", attempt,
		"error", err,
	)
	if c.rotator.Failure(idx) {
		next, _ := c.rotator.Current()
		c.logger.Warn(
			"rotating endpoint after repeated failures",
			"endpoint", endpoint,
			"next", next,
		)
		c.config.Metrics.Rotation(c.config.Name)
	}
	if c.rotator.Unhealthy() {
		MarkDegraded(c.state)
	}
}

func (c *HTTPClient) attempt(
	ctx context.Context,
	op string,
	endpoint string,
	payload []byte,
	handle ResponseFunc,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		// The limiter fails early when the wait would outlast the deadline
		return protocol.TimeoutError(op, endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return protocol.ProtocolError(op, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return c.classify(ctx, op, endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return c.classify(ctx, op, endpoint, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests {
		return protocol.NetworkError(
			op,
			endpoint,
			fmt.Errorf("HTTP status %d", resp.StatusCode),
		)
	}
	return handle(endpoint, resp.StatusCode, body)
}

// classify maps a request failure to the error taxonomy
func (c *HTTPClient) classify(ctx context.Context, op string, endpoint string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.TimeoutError(op, endpoint, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.TimeoutError(op, endpoint, err)
	}
	return protocol.NetworkError(op, endpoint, err)
}
