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

package goton_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/goton"
	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/config"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/internal/test/gqlserver"
	"github.com/blinklabs-io/goton/internal/test/jrpcserver"
	"github.com/blinklabs-io/goton/internal/test/liteservermock"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testAddr = address.MustParse("0:abc" + strings.Repeat("0", 61))

func existing(genLt uint64) ledger.RawContractState {
	return ledger.Exists(
		ledger.ExistingContract{
			Account: *chain.ActiveAccount(testAddr, 1_000_000_000, genLt-1),
			Timings: ledger.GenTimings{GenLt: genLt},
		},
	)
}

// scriptedBackend returns queued states and can hold calls until released
type scriptedBackend struct {
	mutex   sync.Mutex
	states  []ledger.RawContractState
	hold    chan struct{}
	started chan struct{}
	closed  bool
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) State() protocol.ConnState { return protocol.StateReady }

func (b *scriptedBackend) next() (ledger.RawContractState, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if len(b.states) == 0 {
		return ledger.RawContractState{}, protocol.NetworkError("get contract state", "scripted", errors.New("no more states"))
	}
	ret := b.states[0]
	b.states = b.states[1:]
	return ret, nil
}

func (b *scriptedBackend) GetContractState(ctx context.Context, addr address.Address) (ledger.RawContractState, error) {
	if b.hold != nil {
		b.started <- struct{}{}
		<-b.hold
	}
	return b.next()
}

func (b *scriptedBackend) GetContractStates(ctx context.Context, addrs []address.Address) ([]ledger.RawContractState, error) {
	ret := make([]ledger.RawContractState, 0, len(addrs))
	for range addrs {
		state, err := b.next()
		if err != nil {
			return nil, err
		}
		ret = append(ret, state)
	}
	return ret, nil
}

func (b *scriptedBackend) SendExternalMessage(ctx context.Context, boc []byte) (transport.SubmissionAck, error) {
	return transport.SubmissionAck{Endpoint: "scripted", AcceptedAt: time.Now()}, nil
}

func (b *scriptedBackend) GetTransactions(
	ctx context.Context,
	addr address.Address,
	from ledger.TransactionId,
	count int,
) (ledger.TransactionsBatch, error) {
	return ledger.TransactionsBatch{}, nil
}

func (b *scriptedBackend) Subscribe(ctx context.Context, addr address.Address) (*transport.Subscription, error) {
	return transport.NewSubscription(ctx, func(ctx context.Context, emit func(transport.Notification) bool) error {
		for {
			state, err := b.next()
			if err != nil {
				<-ctx.Done()
				return nil
			}
			if !emit(transport.Notification{Address: addr, State: state}) {
				return nil
			}
		}
	}), nil
}

func (b *scriptedBackend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	return nil
}

func (b *scriptedBackend) isClosed() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.closed
}

func TestRollbackAnomaly(t *testing.T) {
	c := chain.New()
	c.SetGenLt(5000)
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1_000_000_000, 4900)))
	srv := jrpcserver.New(c)
	defer srv.Close()
	cfg := config.Default()
	cfg.Kind = config.KindJsonRpc
	cfg.Endpoints = []string{srv.URL}
	reg := prometheus.NewRegistry()
	tr, err := goton.New(
		goton.WithConfig(cfg),
		goton.WithPrometheusRegisterer(reg),
	)
	require.NoError(t, err)
	defer tr.Close()

	res, err := tr.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Nil(t, res.Anomaly)
	full := res.Full()
	require.NotNil(t, full)
	assert.Equal(t, "1000000000", full.Balance)
	assert.Equal(t, "5000", full.GenTimings.GenLt)
	assert.True(t, full.IsDeployed)

	// A lagging server answers from an older block
	c.SetGenLt(4000)
	res, err = tr.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	require.NotNil(t, res.Anomaly)
	assert.Equal(t, uint64(5000), res.Anomaly.Tracked.GenLt)
	assert.Equal(t, uint64(4000), res.Anomaly.Observed.GenLt)
	assert.Equal(t, uint64(4000), res.State.Existing.Timings.GenLt)
	cursor, ok := tr.Guard().Cursor(testAddr)
	require.True(t, ok)
	assert.Equal(t, uint64(5000), cursor.GenLt)

	count, err := testutil.GatherAndCount(reg, "goton_rollback_anomalies_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewFromNetworkPreset(t *testing.T) {
	cfg := config.Default()
	cfg.Network = "testnet"
	tr, err := goton.New(goton.WithConfig(cfg))
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "graphql", tr.Backend().Name())
	// The caller's config is not modified
	assert.Empty(t, cfg.Endpoints)

	cfg.Network = "devnet"
	_, err = goton.New(goton.WithConfig(cfg))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg.Network = ""
	cfg.Kind = config.KindJsonRpc
	_, err = goton.New(goton.WithConfig(cfg), goton.WithNetwork(goton.NetworkMainnet))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestIsDeployedParity(t *testing.T) {
	active := address.MustParse("0:" + strings.Repeat("01", 32))
	uninit := address.MustParse("0:" + strings.Repeat("02", 32))
	frozen := address.MustParse("0:" + strings.Repeat("03", 32))
	missing := address.MustParse("0:" + strings.Repeat("04", 32))
	addrs := []address.Address{active, uninit, frozen, missing}

	c := chain.New()
	c.SetGenLt(7000)
	require.NoError(t, c.SetAccount(chain.ActiveAccount(active, 5_000, 6_900)))
	require.NoError(t, c.SetAccount(chain.UninitAccount(uninit, 1_000)))
	require.NoError(t, c.SetAccount(chain.FrozenAccount(frozen, [32]byte{1, 2, 3})))

	gqlSrv := gqlserver.New(c)
	defer gqlSrv.Close()
	jrpcSrv := jrpcserver.New(c)
	defer jrpcSrv.Close()
	liteSrv, err := liteservermock.New(c)
	require.NoError(t, err)
	defer liteSrv.Close()

	configs := map[string]*config.Config{}
	cfg := config.Default()
	cfg.Endpoints = []string{gqlSrv.URL}
	configs["graphql"] = cfg
	cfg = config.Default()
	cfg.Kind = config.KindJsonRpc
	cfg.Endpoints = []string{jrpcSrv.URL}
	configs["jsonrpc"] = cfg
	cfg = config.Default()
	cfg.Kind = config.KindAdnl
	cfg.KeepAlivePeriod = 0
	cfg.Timeout = 2 * time.Second
	cfg.Peers = []config.Peer{
		{
			Address: liteSrv.Addr(),
			Key:     base64.StdEncoding.EncodeToString(liteSrv.PublicKey()),
		},
	}
	configs["adnl"] = cfg

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			tr, err := goton.New(goton.WithConfig(cfg))
			require.NoError(t, err)
			defer tr.Close()
			assert.Equal(t, name, tr.Backend().Name())
			results, err := tr.GetContractStates(context.Background(), addrs)
			require.NoError(t, err)
			require.Len(t, results, len(addrs))
			expectDeployed := []bool{true, false, false}
			for i, deployed := range expectDeployed {
				full := results[i].Full()
				require.NotNil(t, full, "address %s", addrs[i])
				assert.Equal(t, deployed, full.IsDeployed, "address %s", addrs[i])
				assert.Equal(t, "7000", full.GenTimings.GenLt)
				assert.Equal(
					t,
					base64.StdEncoding.EncodeToString(c.Snapshot(addrs[i]).Boc),
					full.Boc,
				)
			}
			assert.Nil(t, results[3].Full())
			assert.False(t, results[3].State.IsExists())
		})
	}
}

func TestSubscribeReportsAnomaly(t *testing.T) {
	defer goleak.VerifyNone(t)
	backend := &scriptedBackend{
		states: []ledger.RawContractState{existing(5000), existing(4000), existing(6000)},
	}
	tr, err := goton.New(goton.WithBackend(backend))
	require.NoError(t, err)
	sub, err := tr.Subscribe(context.Background(), testAddr)
	require.NoError(t, err)
	var got []transport.Notification
	for len(got) < 3 {
		select {
		case n := <-sub.Notifications():
			got = append(got, n)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
	assert.Nil(t, got[0].Anomaly)
	require.NotNil(t, got[1].Anomaly)
	assert.Equal(t, uint64(5000), got[1].Anomaly.Tracked.GenLt)
	assert.Nil(t, got[2].Anomaly)

	require.NoError(t, tr.Close())
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end on close")
	}
	assert.True(t, backend.isClosed())
}

// endedBackend hands out subscriptions whose worker has already finished
type endedBackend struct {
	scriptedBackend
}

func (b *endedBackend) Subscribe(ctx context.Context, addr address.Address) (*transport.Subscription, error) {
	sub := transport.NewSubscription(ctx, func(ctx context.Context, emit func(transport.Notification) bool) error {
		return nil
	})
	<-sub.Done()
	return sub, nil
}

func TestSubscriptionEndingAtOnceIsForgotten(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr, err := goton.New(goton.WithBackend(&endedBackend{}))
	require.NoError(t, err)
	defer tr.Close()
	for range 20 {
		sub, err := tr.Subscribe(context.Background(), testAddr)
		require.NoError(t, err)
		select {
		case <-sub.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("subscription did not end")
		}
	}
	assert.Equal(t, 0, tr.Subscriptions())
}

func TestCloseWaitsForInFlightCalls(t *testing.T) {
	defer goleak.VerifyNone(t)
	backend := &scriptedBackend{
		states:  []ledger.RawContractState{existing(5000)},
		hold:    make(chan struct{}),
		started: make(chan struct{}),
	}
	tr, err := goton.New(goton.WithBackend(backend))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := tr.GetContractState(context.Background(), testAddr)
		result <- err
	}()
	<-backend.started

	closed := make(chan struct{})
	go func() {
		_ = tr.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("close returned while a call was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, backend.isClosed())

	close(backend.hold)
	require.NoError(t, <-result)
	<-closed
	assert.True(t, backend.isClosed())

	_, err = tr.GetContractState(context.Background(), testAddr)
	assert.ErrorIs(t, err, protocol.ErrClosed)
	_, err = tr.SendExternalMessage(context.Background(), nil)
	assert.ErrorIs(t, err, protocol.ErrClosed)
	_, err = tr.Subscribe(context.Background(), testAddr)
	assert.ErrorIs(t, err, protocol.ErrClosed)
	assert.NoError(t, tr.Close())
}
