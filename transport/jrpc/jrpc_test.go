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

package jrpc_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/internal/test/jrpcserver"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport/jrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = address.MustParse("0:abababababababababababababababababababababababababababababababab")

func newBackend(t *testing.T, endpoints []string, options ...jrpc.JrpcOptionFunc) *jrpc.Backend {
	t.Helper()
	opts := []jrpc.JrpcOptionFunc{
		jrpc.WithEndpoints(endpoints...),
		jrpc.WithRetryPolicy(protocol.RetryPolicy{
			Attempts:        3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		}),
		jrpc.WithPollInterval(10*time.Millisecond, 20*time.Millisecond),
	}
	b, err := jrpc.New(append(opts, options...)...)
	require.NoError(t, err)
	return b
}

func TestGetContractState(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1_000_000_000, 0)))
	history, err := c.AddTransactions(testAddr, 1)
	require.NoError(t, err)
	srv := jrpcserver.New(c)
	defer srv.Close()
	b := newBackend(t, []string{srv.URL})
	defer b.Close()

	state, err := b.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	require.True(t, state.IsExists())
	assert.Equal(t, "1000000000", state.Existing.Account.Balance.Dec())
	assert.Equal(t, c.GenLt(), state.Existing.Timings.GenLt)
	last := state.Existing.LastTransactionId
	assert.True(t, last.IsExact)
	assert.Equal(t, history[0].Id(), ledger.TransactionId{Lt: last.Lt, Hash: last.Hash})
	assert.Equal(t, c.Snapshot(testAddr).Boc, state.Existing.Account.Bytes())

	srv.SetInexact(true)
	state, err = b.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, state.Existing.LastTransactionId.IsExact)
	assert.Equal(t, history[0].Lt, state.Existing.LastTransactionId.Lt)

	other := address.MustParse("0:0303030303030303030303030303030303030303030303030303030303030303")
	state, err = b.GetContractState(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, state.IsExists())
}

func TestGetContractStates(t *testing.T) {
	c := chain.New()
	addrs := make([]address.Address, 0, 6)
	for i := 0; i < 6; i++ {
		var hash [32]byte
		hash[5] = byte(i + 1)
		addr := address.New(0, hash)
		addrs = append(addrs, addr)
		require.NoError(t, c.SetAccount(chain.UninitAccount(addr, uint64(i+1))))
	}
	srv := jrpcserver.New(c)
	defer srv.Close()
	b := newBackend(t, []string{srv.URL}, jrpc.WithConcurrency(2))
	defer b.Close()

	states, err := b.GetContractStates(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, states, len(addrs))
	for i, state := range states {
		require.True(t, state.IsExists())
		assert.Equal(t, addrs[i], state.Existing.Account.Address)
	}
	assert.Equal(t, int64(len(addrs)), srv.Requests())
}

func TestFailover(t *testing.T) {
	c := chain.New()
	srv := jrpcserver.New(c)
	defer srv.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	b := newBackend(t, []string{down.URL, srv.URL}, jrpc.WithRotateAfter(1))
	defer b.Close()

	state, err := b.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, state.IsExists())
	assert.Equal(t, protocol.StateReady, b.State())
}

func TestSendExternalMessage(t *testing.T) {
	c := chain.New()
	srv := jrpcserver.New(c)
	defer srv.Close()
	b := newBackend(t, []string{srv.URL})
	defer b.Close()

	body, err := cell.NewBuilder().StoreUint(2, 8).EndCell()
	require.NoError(t, err)
	boc, err := ledger.NewExternalMessage(testAddr, body)
	require.NoError(t, err)
	ack, err := b.SendExternalMessage(context.Background(), boc)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, ack.Endpoint)
	assert.False(t, ack.AcceptedAt.IsZero())
	assert.Equal(t, [][]byte{boc}, c.Sent())

	c.RejectMessages(true)
	_, err = b.SendExternalMessage(context.Background(), boc)
	require.ErrorIs(t, err, protocol.ErrRejected)
	assert.Len(t, c.Sent(), 1)
}

func TestGetTransactions(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1, 0)))
	history, err := c.AddTransactions(testAddr, 3)
	require.NoError(t, err)
	srv := jrpcserver.New(c)
	defer srv.Close()
	b := newBackend(t, []string{srv.URL})
	defer b.Close()
	ctx := context.Background()

	batch, err := b.GetTransactions(ctx, testAddr, ledger.TransactionId{}, 2)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, history[0].Id(), batch.Transactions[0].Id())
	require.NotNil(t, batch.Next)
	assert.Equal(t, history[2].Id(), *batch.Next)

	batch, err = b.GetTransactions(ctx, testAddr, *batch.Next, 2)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)
	assert.Nil(t, batch.Next)

	batch, err = b.GetTransactions(ctx, testAddr, ledger.TransactionId{}, 0)
	require.NoError(t, err)
	assert.Empty(t, batch.Transactions)

	_, err = b.GetTransactions(ctx, testAddr, ledger.TransactionId{Lt: 1, Hash: [32]byte{1}}, 2)
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestHistoryGapIsRejected(t *testing.T) {
	c := chain.New()
	history, err := c.AddTransactions(testAddr, 3)
	require.NoError(t, err)
	// Serve the newest and the oldest transaction, skipping the middle one
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, _ := json.Marshal([]string{
			encode(history[0].Bytes()),
			encode(history[2].Bytes()),
		})
		_ = json.NewEncoder(w).Encode(jrpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
	defer srv.Close()
	b := newBackend(t, []string{srv.URL})
	defer b.Close()

	_, err = b.GetTransactions(context.Background(), testAddr, ledger.TransactionId{}, 5)
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestResponseErrors(t *testing.T) {
	testDefs := []struct {
		name   string
		body   string
		target error
	}{
		{name: "method error", body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, target: protocol.ErrProtocol},
		{name: "garbage", body: `{`, target: protocol.ErrDecode},
		{name: "wrong id", body: `{"jsonrpc":"2.0","id":99,"result":{"type":"notExists"}}`, target: protocol.ErrProtocol},
		{name: "unknown type", body: `{"jsonrpc":"2.0","id":1,"result":{"type":"maybe"}}`, target: protocol.ErrDecode},
		{name: "no result", body: `{"jsonrpc":"2.0","id":1}`, target: protocol.ErrProtocol},
		{name: "bad account", body: `{"jsonrpc":"2.0","id":1,"result":{"type":"exists","account":"AAAA","timings":{"genLt":"1","genUtime":1},"lastTransactionId":{"isExact":false,"lt":"0"}}}`, target: protocol.ErrDecode},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(testDef.body))
			}))
			defer srv.Close()
			b := newBackend(t, []string{srv.URL})
			defer b.Close()
			_, err := b.GetContractState(context.Background(), testAddr)
			require.ErrorIs(t, err, testDef.target)
		})
	}
}

func TestSubscribePolls(t *testing.T) {
	c := chain.New()
	srv := jrpcserver.New(c)
	defer srv.Close()
	b := newBackend(t, []string{srv.URL})
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), testAddr)
	require.NoError(t, err)
	defer sub.Close()
	baseline := <-sub.Notifications()
	assert.False(t, baseline.State.IsExists())

	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 9, 0)))
	select {
	case n := <-sub.Notifications():
		require.True(t, n.State.IsExists())
		assert.Equal(t, "9", n.State.Existing.Account.Balance.Dec())
	case <-time.After(5 * time.Second):
		t.Fatal("no notification after deploy")
	}
	require.NoError(t, b.Close())
	_, ok := <-sub.Notifications()
	assert.False(t, ok)
}

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
