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

// Package goton provides a client for reading and writing blockchain account
// state over one of several transports. A Transport wraps the selected backend
// with per-address consistency checks, tracing and in-flight call accounting.
package goton

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/config"
	"github.com/blinklabs-io/goton/consistency"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
	"github.com/blinklabs-io/goton/transport/adnl"
	"github.com/blinklabs-io/goton/transport/gql"
	"github.com/blinklabs-io/goton/transport/jrpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/blinklabs-io/goton"

// Transport is a blockchain client over a single backend
type Transport struct {
	config          *config.Config
	network         *Network
	backend         transport.Backend
	guard           *consistency.Guard
	logger          *slog.Logger
	metrics         *metrics.Metrics
	registerer      prometheus.Registerer
	tracerProvider  trace.TracerProvider
	tracer          trace.Tracer
	httpClient      *http.Client
	stateChangeFunc protocol.StateChangeFunc
	mutex           sync.Mutex
	closed          bool
	subs            map[uint64]*transport.Subscription
	nextSubId       uint64
	waitGroup       sync.WaitGroup
	onceClose       sync.Once
}

// StateResult is an account state together with the consistency check outcome
type StateResult struct {
	State ledger.RawContractState
	// Anomaly is set when the state is older than one already returned for the address
	Anomaly *consistency.RollbackAnomaly
}

// Full returns the flattened view of the state, or nil if the account does not exist
func (r StateResult) Full() *ledger.FullContractState {
	return ledger.NewFullContractState(r.State)
}

// New returns a Transport using the backend selected by the config
func New(options ...TransportOptionFunc) (*Transport, error) {
	t := &Transport{
		guard: consistency.NewGuard(),
		subs:  make(map[uint64]*transport.Subscription),
	}
	// Apply provided options functions
	for _, option := range options {
		option(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	// Backends add their own component attribute
	backendLogger := t.logger
	t.logger = t.logger.With("component", "goton")
	if t.metrics == nil && t.registerer != nil {
		m, err := metrics.New(t.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		t.metrics = m
	}
	if t.tracerProvider == nil {
		t.tracerProvider = otel.GetTracerProvider()
	}
	t.tracer = t.tracerProvider.Tracer(tracerName)
	if t.backend != nil {
		return t, nil
	}
	cfg, err := t.prepareConfig()
	if err != nil {
		return nil, err
	}
	t.config = cfg
	backend, err := t.newBackend(cfg, backendLogger)
	if err != nil {
		return nil, err
	}
	t.backend = backend
	t.logger.Debug(
		"transport created",
		"backend", backend.Name(),
		"network", cfg.Network,
	)
	return t, nil
}

func (t *Transport) prepareConfig() (*config.Config, error) {
	src := t.config
	if src == nil {
		src = config.Default()
	}
	cfg, err := src.Clone()
	if err != nil {
		return nil, fmt.Errorf("copy config: %w", err)
	}
	network := t.network
	if network == nil && cfg.Network != "" {
		tmp := NetworkByName(cfg.Network)
		if tmp.Name == NetworkInvalid.Name {
			return nil, fmt.Errorf("%w: unknown network %q", config.ErrInvalidConfig, cfg.Network)
		}
		network = &tmp
	}
	if network != nil {
		cfg.Network = network.Name
		if len(cfg.Endpoints) == 0 {
			cfg.Endpoints = network.Endpoints(cfg.Kind)
			if cfg.Timeout == 0 {
				cfg.Timeout = network.Timeout
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind != config.KindAdnl && len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf(
			"%w: network %s has no %s endpoints",
			config.ErrInvalidConfig,
			cfg.Network,
			cfg.Kind,
		)
	}
	return cfg, nil
}

func (t *Transport) newBackend(cfg *config.Config, logger *slog.Logger) (transport.Backend, error) {
	switch cfg.Kind {
	case config.KindAdnl:
		peers := make([]adnl.Peer, 0, len(cfg.Peers))
		for _, peer := range cfg.Peers {
			key, err := peer.PublicKey()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
			peers = append(peers, adnl.Peer{Address: peer.Address, PublicKey: key})
		}
		options := []adnl.AdnlOptionFunc{
			adnl.WithPeers(peers...),
			adnl.WithRotateAfter(cfg.RotateAfter),
			adnl.WithRetryPolicy(cfg.RetryPolicy()),
			adnl.WithPingPeriod(cfg.KeepAlivePeriod),
			adnl.WithResubscribeInterval(cfg.PollInterval, cfg.MaxPollInterval),
			adnl.WithLogger(logger),
			adnl.WithMetrics(t.metrics),
			adnl.WithStateChangeFunc(t.stateChangeFunc),
		}
		if cfg.Timeout > 0 {
			options = append(options, adnl.WithQueryTimeout(cfg.Timeout))
		}
		return adnl.New(options...)
	case config.KindGraphQL:
		options := []gql.GqlOptionFunc{
			gql.WithEndpoints(cfg.Endpoints...),
			gql.WithRotateAfter(cfg.RotateAfter),
			gql.WithRetryPolicy(cfg.RetryPolicy()),
			gql.WithRequestsPerSecond(cfg.RequestsPerSecond),
			gql.WithPollInterval(cfg.PollInterval, cfg.MaxPollInterval),
			gql.WithHTTPClient(t.httpClient),
			gql.WithLogger(logger),
			gql.WithMetrics(t.metrics),
			gql.WithStateChangeFunc(t.stateChangeFunc),
		}
		for name, value := range cfg.Headers {
			options = append(options, gql.WithHeader(name, value))
		}
		if cfg.Timeout > 0 {
			options = append(options, gql.WithTimeout(cfg.Timeout))
		}
		return gql.New(options...)
	case config.KindJsonRpc:
		options := []jrpc.JrpcOptionFunc{
			jrpc.WithEndpoints(cfg.Endpoints...),
			jrpc.WithRotateAfter(cfg.RotateAfter),
			jrpc.WithRetryPolicy(cfg.RetryPolicy()),
			jrpc.WithRequestsPerSecond(cfg.RequestsPerSecond),
			jrpc.WithPollInterval(cfg.PollInterval, cfg.MaxPollInterval),
			jrpc.WithHTTPClient(t.httpClient),
			jrpc.WithLogger(logger),
			jrpc.WithMetrics(t.metrics),
			jrpc.WithStateChangeFunc(t.stateChangeFunc),
		}
		for name, value := range cfg.Headers {
			options = append(options, jrpc.WithHeader(name, value))
		}
		if cfg.Timeout > 0 {
			options = append(options, jrpc.WithTimeout(cfg.Timeout))
		}
		return jrpc.New(options...)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", config.ErrInvalidConfig, cfg.Kind)
	}
}

// Backend returns the active backend
func (t *Transport) Backend() transport.Backend {
	return t.backend
}

// Guard returns the per-address consistency tracker
func (t *Transport) Guard() *consistency.Guard {
	return t.guard
}

// State returns the connection state of the backend
func (t *Transport) State() protocol.ConnState {
	return t.backend.State()
}

// acquire registers an in-flight call. Close waits for all of them to be released
func (t *Transport) acquire(op string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return fmt.Errorf("%s: %w", op, protocol.ErrClosed)
	}
	t.waitGroup.Add(1)
	return nil
}

func (t *Transport) release() {
	t.waitGroup.Done()
}

func (t *Transport) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("goton.backend", t.backend.Name()))
	return t.tracer.Start(
		ctx,
		"goton."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// observe runs a state through the guard, reporting any anomaly
func (t *Transport) observe(addr address.Address, state ledger.RawContractState) *consistency.RollbackAnomaly {
	anomaly := t.guard.Observe(addr, state)
	if anomaly != nil {
		t.metrics.Anomaly(t.backend.Name())
		t.logger.Warn(
			"received state older than one already seen",
			"address", addr.String(),
			"tracked_gen_lt", anomaly.Tracked.GenLt,
			"observed_gen_lt", anomaly.Observed.GenLt,
		)
	}
	return anomaly
}

// GetContractState returns the current state of an account
func (t *Transport) GetContractState(ctx context.Context, addr address.Address) (StateResult, error) {
	if err := t.acquire("get contract state"); err != nil {
		return StateResult{}, err
	}
	defer t.release()
	ctx, span := t.startSpan(ctx, "GetContractState", attribute.String("goton.address", addr.String()))
	state, err := t.backend.GetContractState(ctx, addr)
	if err != nil {
		endSpan(span, err)
		return StateResult{}, err
	}
	ret := StateResult{
		State:   state,
		Anomaly: t.observe(addr, state),
	}
	span.SetAttributes(
		attribute.Bool("goton.exists", state.IsExists()),
		attribute.Bool("goton.anomaly", ret.Anomaly != nil),
	)
	endSpan(span, nil)
	return ret, nil
}

// GetContractStates returns the states of several accounts, in input order
func (t *Transport) GetContractStates(ctx context.Context, addrs []address.Address) ([]StateResult, error) {
	if err := t.acquire("get contract states"); err != nil {
		return nil, err
	}
	defer t.release()
	ctx, span := t.startSpan(ctx, "GetContractStates", attribute.Int("goton.count", len(addrs)))
	states, err := t.backend.GetContractStates(ctx, addrs)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	if len(states) != len(addrs) {
		err := protocol.ProtocolError(
			"get contract states",
			"",
			fmt.Errorf("backend returned %d states for %d addresses", len(states), len(addrs)),
		)
		endSpan(span, err)
		return nil, err
	}
	ret := make([]StateResult, len(states))
	for i, state := range states {
		ret[i] = StateResult{
			State:   state,
			Anomaly: t.observe(addrs[i], state),
		}
	}
	endSpan(span, nil)
	return ret, nil
}

// SendExternalMessage submits a serialized external message for relay. The
// returned ack means the message was accepted, not that it was included in a block
func (t *Transport) SendExternalMessage(ctx context.Context, boc []byte) (transport.SubmissionAck, error) {
	if err := t.acquire("send external message"); err != nil {
		return transport.SubmissionAck{}, err
	}
	defer t.release()
	ctx, span := t.startSpan(ctx, "SendExternalMessage", attribute.Int("goton.size", len(boc)))
	ack, err := t.backend.SendExternalMessage(ctx, boc)
	if err == nil {
		span.SetAttributes(attribute.String("goton.endpoint", ack.Endpoint))
	}
	endSpan(span, err)
	return ack, err
}

// GetTransactions returns up to count transactions of an account, newest
// first, starting at from (inclusive). A zero from starts at the latest one
func (t *Transport) GetTransactions(
	ctx context.Context,
	addr address.Address,
	from ledger.TransactionId,
	count int,
) (ledger.TransactionsBatch, error) {
	if err := t.acquire("get transactions"); err != nil {
		return ledger.TransactionsBatch{}, err
	}
	defer t.release()
	ctx, span := t.startSpan(
		ctx,
		"GetTransactions",
		attribute.String("goton.address", addr.String()),
		attribute.Int64("goton.from_lt", int64(from.Lt)),
		attribute.Int("goton.count", count),
	)
	batch, err := t.backend.GetTransactions(ctx, addr, from, count)
	if err == nil {
		span.SetAttributes(attribute.Int("goton.returned", len(batch.Transactions)))
	}
	endSpan(span, err)
	return batch, err
}

// Subscribe returns a sequence of state notifications for an account. Each
// notification passes through the same consistency check as GetContractState
func (t *Transport) Subscribe(ctx context.Context, addr address.Address) (*transport.Subscription, error) {
	if err := t.acquire("subscribe"); err != nil {
		return nil, err
	}
	defer t.release()
	_, span := t.startSpan(ctx, "Subscribe", attribute.String("goton.address", addr.String()))
	inner, err := t.backend.Subscribe(ctx, addr)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	t.mutex.Lock()
	id := t.nextSubId
	t.nextSubId++
	t.mutex.Unlock()
	// The worker may end before the subscription is tracked
	registered := make(chan struct{})
	sub := transport.NewSubscription(ctx, func(ctx context.Context, emit func(transport.Notification) bool) error {
		defer func() {
			<-registered
			t.forgetSubscription(id)
		}()
		defer func() {
			_ = inner.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case n, ok := <-inner.Notifications():
				if !ok {
					return inner.Err()
				}
				n.Anomaly = t.observe(addr, n.State)
				if !emit(n) {
					return nil
				}
			}
		}
	})
	t.mutex.Lock()
	if t.closed {
		t.mutex.Unlock()
		close(registered)
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", protocol.ErrClosed)
	}
	t.subs[id] = sub
	t.mutex.Unlock()
	close(registered)
	return sub, nil
}

// Subscriptions returns the number of subscriptions that are still running
func (t *Transport) Subscriptions() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.subs)
}

func (t *Transport) forgetSubscription(id uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.subs, id)
}

// Close stops accepting calls, waits for in-flight calls to finish, ends all
// subscriptions and closes the backend. It is safe to call more than once
func (t *Transport) Close() error {
	var err error
	t.onceClose.Do(func() {
		t.mutex.Lock()
		t.closed = true
		t.mutex.Unlock()
		t.waitGroup.Wait()
		err = t.backend.Close()
		t.mutex.Lock()
		subs := make([]*transport.Subscription, 0, len(t.subs))
		for _, sub := range t.subs {
			subs = append(subs, sub)
		}
		t.mutex.Unlock()
		for _, sub := range subs {
			_ = sub.Close()
		}
		t.logger.Debug("transport closed", "backend", t.backend.Name())
	})
	return err
}
