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

package gql_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/internal/test/gqlserver"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport/gql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = address.MustParse("0:abababababababababababababababababababababababababababababababab")

func newBackend(t *testing.T, endpoint string, options ...gql.GqlOptionFunc) *gql.Backend {
	t.Helper()
	opts := []gql.GqlOptionFunc{
		gql.WithEndpoints(endpoint),
		gql.WithRetryPolicy(protocol.RetryPolicy{
			Attempts:        2,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		}),
		gql.WithPollInterval(10*time.Millisecond, 20*time.Millisecond),
	}
	b, err := gql.New(append(opts, options...)...)
	require.NoError(t, err)
	return b
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := gql.New()
	require.Error(t, err)
}

func TestGetContractState(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1_000_000_000, 900)))
	srv := gqlserver.New(c)
	defer srv.Close()
	b := newBackend(t, srv.URL)
	defer b.Close()

	state, err := b.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	require.True(t, state.IsExists())
	assert.Equal(t, "1000000000", state.Existing.Account.Balance.Dec())
	assert.Equal(t, c.GenLt(), state.Existing.Timings.GenLt)
	assert.Equal(t, c.Snapshot(testAddr).GenUtime, state.Existing.Timings.GenUtime)
	assert.False(t, state.Existing.LastTransactionId.IsExact)
	assert.Equal(t, uint64(900), state.Existing.LastTransactionId.Lt)
	assert.Equal(t, c.Snapshot(testAddr).Boc, state.Existing.Account.Bytes())
	assert.Equal(t, protocol.StateReady, b.State())

	c.DeleteAccount(testAddr)
	state, err = b.GetContractState(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, state.IsExists())
}

func TestGetContractStatesSingleRequest(t *testing.T) {
	c := chain.New()
	addrs := make([]address.Address, 0, 4)
	for i := 0; i < 4; i++ {
		var hash [32]byte
		hash[31] = byte(i + 1)
		addr := address.New(0, hash)
		addrs = append(addrs, addr)
		if i != 2 {
			require.NoError(t, c.SetAccount(chain.ActiveAccount(addr, uint64(i+1), 0)))
		}
	}
	srv := gqlserver.New(c)
	defer srv.Close()
	b := newBackend(t, srv.URL)
	defer b.Close()

	states, err := b.GetContractStates(context.Background(), addrs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.Requests())
	require.Len(t, states, 4)
	for i, state := range states {
		if i == 2 {
			assert.False(t, state.IsExists())
			continue
		}
		require.True(t, state.IsExists())
		assert.Equal(t, addrs[i], state.Existing.Account.Address)
		assert.Equal(t, c.GenLt(), state.Existing.Timings.GenLt)
	}

	states, err = b.GetContractStates(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Equal(t, int64(1), srv.Requests())
}

func TestSendExternalMessage(t *testing.T) {
	c := chain.New()
	srv := gqlserver.New(c)
	defer srv.Close()
	b := newBackend(t, srv.URL)
	defer b.Close()

	body, err := cell.NewBuilder().StoreUint(1, 8).EndCell()
	require.NoError(t, err)
	boc, err := ledger.NewExternalMessage(testAddr, body)
	require.NoError(t, err)
	ack, err := b.SendExternalMessage(context.Background(), boc)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, ack.Endpoint)
	assert.Len(t, c.Sent(), 1)

	c.RejectMessages(true)
	_, err = b.SendExternalMessage(context.Background(), boc)
	require.ErrorIs(t, err, protocol.ErrRejected)

	requests := srv.Requests()
	_, err = b.SendExternalMessage(context.Background(), []byte{0x01})
	require.ErrorIs(t, err, protocol.ErrRejected)
	assert.Equal(t, requests, srv.Requests())
}

func TestGetTransactionsPagination(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1, 0)))
	history, err := c.AddTransactions(testAddr, 5)
	require.NoError(t, err)
	srv := gqlserver.New(c)
	defer srv.Close()
	b := newBackend(t, srv.URL)
	defer b.Close()
	ctx := context.Background()

	var got []ledger.TransactionId
	from := ledger.TransactionId{}
	for {
		batch, err := b.GetTransactions(ctx, testAddr, from, 2)
		require.NoError(t, err)
		for _, tx := range batch.Transactions {
			got = append(got, tx.Id())
		}
		if batch.Next == nil {
			break
		}
		from = *batch.Next
	}
	require.Len(t, got, len(history))
	for i, tx := range history {
		assert.Equal(t, tx.Id(), got[i])
	}

	// Without a remembered cursor the page starts from the logical time
	fresh := newBackend(t, srv.URL)
	defer fresh.Close()
	batch, err := fresh.GetTransactions(ctx, testAddr, history[2].Id(), 2)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, history[2].Id(), batch.Transactions[0].Id())
	assert.Equal(t, history[3].Id(), batch.Transactions[1].Id())
	assert.Equal(t, history[4].Id(), *batch.Next)

	// A cursor that does not match the stored transaction is a protocol error
	wrong := history[2].Id()
	wrong.Hash[0] ^= 0xff
	_, err = fresh.GetTransactions(ctx, testAddr, wrong, 2)
	require.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestCursorStaysWithEndpoint(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 1, 0)))
	history, err := c.AddTransactions(testAddr, 6)
	require.NoError(t, err)
	first := gqlserver.New(c)
	second := gqlserver.New(c)
	defer second.Close()
	b, err := gql.New(
		gql.WithEndpoints(first.URL, second.URL),
		gql.WithRetryPolicy(protocol.RetryPolicy{
			Attempts:        3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		}),
		gql.WithRotateAfter(1),
	)
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	batch, err := b.GetTransactions(ctx, testAddr, ledger.TransactionId{}, 2)
	require.NoError(t, err)
	require.NotNil(t, batch.Next)

	// The first endpoint goes away, so the next page is served by the second
	// one from the logical time instead of the first endpoint's cursor
	first.Close()
	batch, err = b.GetTransactions(ctx, testAddr, *batch.Next, 2)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, history[2].Id(), batch.Transactions[0].Id())
	assert.Equal(t, int64(0), second.CursorRequests())

	// Cursors from the second endpoint are used with it
	batch, err = b.GetTransactions(ctx, testAddr, *batch.Next, 2)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, history[4].Id(), batch.Transactions[0].Id())
	assert.Equal(t, int64(1), second.CursorRequests())
}

func TestResponseErrors(t *testing.T) {
	testDefs := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{name: "graphql error", status: http.StatusOK, body: `{"errors":[{"message":"boom"}]}`, target: protocol.ErrProtocol},
		{name: "invalid message", status: http.StatusOK, body: `{"errors":[{"message":"bad","extensions":{"code":"INVALID_MESSAGE"}}]}`, target: protocol.ErrRejected},
		{name: "garbage", status: http.StatusOK, body: `not json`, target: protocol.ErrDecode},
		{name: "no data", status: http.StatusOK, body: `{"data":null}`, target: protocol.ErrProtocol},
		{name: "bad request", status: http.StatusBadRequest, body: `oops`, target: protocol.ErrProtocol},
		{name: "server error", status: http.StatusServiceUnavailable, body: ``, target: protocol.ErrNetwork},
		{name: "bad lt", status: http.StatusOK, body: `{"data":{"blockchain":{"masterchainBlock":{"seqno":1,"endLt":"x","genUtime":1},"account":{"info":{"id":"0:abababababababababababababababababababababababababababababababab","boc":"","lastTransLt":"1"}}}}}`, target: protocol.ErrDecode},
		{name: "other account", status: http.StatusOK, body: `{"data":{"blockchain":{"masterchainBlock":{"seqno":1,"endLt":"1","genUtime":1},"account":{"info":{"id":"0:00","boc":"","lastTransLt":"1"}}}}}`, target: protocol.ErrProtocol},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testDef.status)
				_, _ = w.Write([]byte(testDef.body))
			}))
			defer srv.Close()
			b := newBackend(t, srv.URL)
			defer b.Close()
			_, err := b.GetContractState(context.Background(), testAddr)
			require.ErrorIs(t, err, testDef.target)
		})
	}
}

func TestSubscribePolls(t *testing.T) {
	c := chain.New()
	require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 5, 0)))
	srv := gqlserver.New(c)
	defer srv.Close()
	b := newBackend(t, srv.URL)
	defer b.Close()

	func() {
		sub, err := b.Subscribe(context.Background(), testAddr)
		require.NoError(t, err)
		defer sub.Close()
		baseline := <-sub.Notifications()
		require.True(t, baseline.State.IsExists())
		assert.Equal(t, "5", baseline.State.Existing.Account.Balance.Dec())

		c.SetGenLt(c.GenLt() + 50)
		require.NoError(t, c.SetAccount(chain.ActiveAccount(testAddr, 6, 0)))
		select {
		case n := <-sub.Notifications():
			require.True(t, n.State.IsExists())
			assert.Equal(t, "6", n.State.Existing.Account.Balance.Dec())
		case <-time.After(5 * time.Second):
			t.Fatal("no notification after change")
		}
	}()

	require.NoError(t, b.Close())
	_, err := b.Subscribe(context.Background(), testAddr)
	require.ErrorIs(t, err, protocol.ErrClosed)
	_, err = b.GetContractState(context.Background(), testAddr)
	require.ErrorIs(t, err, protocol.ErrClosed)
	assert.Equal(t, protocol.StateClosed, b.State())
}
