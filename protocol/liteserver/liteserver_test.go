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

package liteserver_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/goton/handshake"
	"github.com/blinklabs-io/goton/muxer"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/protocol/liteserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newPair(
	t *testing.T,
	serverOpts []liteserver.LiteServerOptionFunc,
	clientOpts []liteserver.LiteServerOptionFunc,
) (*liteserver.Client, *liteserver.Server, func()) {
	t.Helper()
	serverPub, serverPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	packet, clientSession, err := handshake.Client(serverPub, rand.Reader)
	require.NoError(t, err)
	serverSession, err := handshake.Server(serverPriv, packet)
	require.NoError(t, err)
	clientConn, serverConn := net.Pipe()
	serverCfg := liteserver.NewConfig(serverOpts...)
	server := liteserver.NewServer(muxer.New(serverConn, serverSession), "pipe", &serverCfg)
	clientCfg := liteserver.NewConfig(
		append([]liteserver.LiteServerOptionFunc{liteserver.WithPingPeriod(0)}, clientOpts...)...,
	)
	client := liteserver.NewClient(muxer.New(clientConn, clientSession), "pipe", &clientCfg)
	server.Start()
	client.Start()
	return client, server, func() {
		client.Stop()
		server.Stop()
	}
}

func TestQueryRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	account := liteserver.AccountId{Workchain: 0, Id: make([]byte, 32)}
	func() {
		client, _, stop := newPair(
			t,
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithGetMasterchainInfoFunc(
					func(liteserver.CallbackContext) (*liteserver.MsgMasterchainInfo, error) {
						return liteserver.NewMsgMasterchainInfo(7, 1000, 1700000000), nil
					},
				),
				liteserver.WithGetAccountStateFunc(
					func(_ liteserver.CallbackContext, id liteserver.AccountId) (liteserver.AccountStateData, error) {
						return liteserver.AccountStateData{
							Account:     id,
							GenLt:       1000,
							GenUtime:    1700000000,
							LastTransLt: 900,
							State:       []byte{0x01, 0x02},
						}, nil
					},
				),
			},
			nil,
		)
		defer stop()
		info, err := client.GetMasterchainInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint32(7), info.Seqno)
		assert.Equal(t, uint64(1000), info.GenLt)
		state, err := client.GetAccountState(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, account.Id, state.Account.Id)
		assert.Equal(t, uint64(900), state.LastTransLt)
		assert.Equal(t, []byte{0x01, 0x02}, state.State)
		require.NoError(t, client.Ping(context.Background()))
	}()
}

func TestQueryErrorClassification(t *testing.T) {
	defer goleak.VerifyNone(t)
	func() {
		client, _, stop := newPair(
			t,
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithSendMessageFunc(
					func(_ liteserver.CallbackContext, body []byte) error {
						if len(body) == 0 {
							return liteserver.NewMsgError(liteserver.ErrorCodeInvalidMessage, "empty message")
						}
						return errors.New("backend unavailable")
					},
				),
			},
			nil,
		)
		defer stop()
		err := client.SendMessage(context.Background(), nil)
		assert.ErrorIs(t, err, protocol.ErrRejected)
		err = client.SendMessage(context.Background(), []byte{0x01})
		assert.ErrorIs(t, err, protocol.ErrProtocol)
		// No callback configured
		_, err = client.GetMasterchainInfo(context.Background())
		assert.ErrorIs(t, err, protocol.ErrProtocol)
	}()
}

func TestQueryTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	func() {
		client, _, stop := newPair(
			t,
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithGetTransactionsFunc(
					func(ctx liteserver.CallbackContext, _ *liteserver.MsgGetTransactions) ([][]byte, error) {
						<-ctx.Context.Done()
						return nil, ctx.Context.Err()
					},
				),
				liteserver.WithGetMasterchainInfoFunc(
					func(liteserver.CallbackContext) (*liteserver.MsgMasterchainInfo, error) {
						return liteserver.NewMsgMasterchainInfo(1, 2, 3), nil
					},
				),
			},
			nil,
		)
		defer stop()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.GetTransactions(ctx, liteserver.AccountId{Id: make([]byte, 32)}, 10, 0, nil)
		assert.ErrorIs(t, err, protocol.ErrTimeout)
		// The connection stays usable after a timed out query
		info, err := client.GetMasterchainInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), info.Seqno)
	}()
}

func TestQueryTimeoutUnderCallerDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)
	func() {
		client, _, stop := newPair(
			t,
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithGetTransactionsFunc(
					func(ctx liteserver.CallbackContext, _ *liteserver.MsgGetTransactions) ([][]byte, error) {
						<-ctx.Context.Done()
						return nil, ctx.Context.Err()
					},
				),
			},
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithQueryTimeout(50 * time.Millisecond),
			},
		)
		defer stop()
		// The shorter query timeout applies even though the caller allows more time
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		_, err := client.GetTransactions(ctx, liteserver.AccountId{Id: make([]byte, 32)}, 10, 0, nil)
		assert.ErrorIs(t, err, protocol.ErrTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.NoError(t, ctx.Err())
	}()
}

func TestAccountPush(t *testing.T) {
	defer goleak.VerifyNone(t)
	func() {
		pushed := make(chan *liteserver.MsgAccountStateChanged, 1)
		client, server, stop := newPair(
			t,
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithSubscribeAccountFunc(
					func(liteserver.CallbackContext, liteserver.AccountId) (uint64, error) {
						return 77, nil
					},
				),
			},
			[]liteserver.LiteServerOptionFunc{
				liteserver.WithAccountStateChangedFunc(
					func(_ liteserver.CallbackContext, msg *liteserver.MsgAccountStateChanged) error {
						pushed <- msg
						return nil
					},
				),
			},
		)
		defer stop()
		id, err := client.SubscribeAccount(context.Background(), liteserver.AccountId{Id: make([]byte, 32)})
		require.NoError(t, err)
		assert.Equal(t, uint64(77), id)
		require.NoError(t, server.PushAccountStateChanged(id, liteserver.AccountStateData{GenLt: 55}))
		select {
		case msg := <-pushed:
			assert.Equal(t, uint64(77), msg.SubscriptionId)
			assert.Equal(t, uint64(55), msg.State.GenLt)
		case <-time.After(2 * time.Second):
			t.Fatal("did not receive pushed state")
		}
	}()
}

func TestQueryAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	func() {
		client, server, stop := newPair(t, nil, nil)
		defer stop()
		server.Stop()
		select {
		case <-client.DoneChan():
		case <-time.After(2 * time.Second):
			t.Fatal("client did not notice closed connection")
		}
		_, err := client.GetMasterchainInfo(context.Background())
		assert.ErrorIs(t, err, protocol.ErrNetwork)
	}()
}
