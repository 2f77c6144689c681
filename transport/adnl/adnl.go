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

// Package adnl implements a transport backend that talks to lite servers over
// encrypted ADNL channels.
package adnl

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/protocol/liteserver"
	"github.com/blinklabs-io/goton/transport"
	"golang.org/x/sync/errgroup"
)

// Name is the backend name
const Name = "adnl"

// Backend is a transport backend over a list of lite servers. Requests go to
// one peer at a time and move to the next peer after repeated failures
type Backend struct {
	config      Config
	logger      *slog.Logger
	rotator     *protocol.Rotator[Peer]
	state       *protocol.StateMachine
	lifetime    *transport.Lifetime
	connMutex   sync.Mutex
	conn        *Connection
	connIdx     int
	subsMutex   sync.Mutex
	subscribers map[address.Address]map[*pushSubscriber]struct{}
	waitGroup   sync.WaitGroup
	onceClose   sync.Once
}

var _ transport.Backend = (*Backend)(nil)

// New returns a Backend. No connection is made until the first request
func New(options ...AdnlOptionFunc) (*Backend, error) {
	cfg := NewConfig(options...)
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("%s: no peers configured", Name)
	}
	for _, peer := range cfg.Peers {
		if len(peer.PublicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%s: invalid key for peer %s", Name, peer.Address)
		}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	b := &Backend{
		config:      cfg,
		rotator:     protocol.NewRotator(cfg.Peers, cfg.RotateAfter),
		lifetime:    transport.NewLifetime(),
		subscribers: make(map[address.Address]map[*pushSubscriber]struct{}),
	}
	b.logger = cfg.Logger
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", Name)
	b.state = protocol.NewStateMachine(func(from, to protocol.ConnState) {
		b.logger.Debug("connection state changed", "from", from.String(), "to", to.String())
		cfg.Metrics.SetState(Name, to)
		if cfg.StateChangeFunc != nil {
			cfg.StateChangeFunc(from, to)
		}
	})
	return b, nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) State() protocol.ConnState {
	return b.state.State()
}

// Close drops the connection, stops all subscriptions and waits for them
func (b *Backend) Close() error {
	b.onceClose.Do(func() {
		b.lifetime.Close()
		b.connMutex.Lock()
		conn := b.conn
		b.conn = nil
		b.connMutex.Unlock()
		if conn != nil {
			conn.Close()
		}
		b.waitGroup.Wait()
		b.state.Close()
	})
	return nil
}

func (b *Backend) liteServerConfig() liteserver.Config {
	return liteserver.NewConfig(
		liteserver.WithQueryTimeout(b.config.QueryTimeout),
		liteserver.WithPingPeriod(b.config.PingPeriod),
		liteserver.WithPingTimeout(b.config.PingTimeout),
		liteserver.WithLogger(b.logger),
		liteserver.WithAccountStateChangedFunc(b.handlePush),
	)
}

// connection returns a live connection to the active peer, dialing if needed
func (b *Backend) connection(ctx context.Context) (*Connection, int, error) {
	b.connMutex.Lock()
	defer b.connMutex.Unlock()
	peer, idx := b.rotator.Current()
	if b.lifetime.IsClosed() {
		return nil, idx, protocol.ErrClosed
	}
	if b.conn != nil && b.connIdx == idx && !b.conn.IsClosed() {
		return b.conn, idx, nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	if b.state.State() == protocol.StateIdle {
		_ = b.state.Transition(protocol.StateConnecting)
	}
	dialCtx, cancel := context.WithTimeout(ctx, b.config.DialTimeout)
	defer cancel()
	conn, err := Dial(dialCtx, peer, b.liteServerConfig(), b.logger)
	if err != nil {
		return nil, idx, err
	}
	b.logger.Debug("connected to peer", "peer", peer.Address)
	b.conn = conn
	b.connIdx = idx
	b.waitGroup.Add(1)
	go b.watch(conn, idx)
	return conn, idx, nil
}

// watch counts an unexpected loss of the connection, such as a failed
// keepalive, as a failed request against the peer
func (b *Backend) watch(conn *Connection, idx int) {
	defer b.waitGroup.Done()
	<-conn.DoneChan()
	b.connMutex.Lock()
	current := b.conn == conn
	if current {
		b.conn = nil
	}
	b.connMutex.Unlock()
	if !current || b.lifetime.IsClosed() {
		return
	}
	b.logger.Warn("lost connection to peer", "peer", conn.peer.Address, "error", conn.Err())
	b.failure(idx)
}

func (b *Backend) dropConnection(conn *Connection) {
	if conn == nil {
		return
	}
	b.connMutex.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.connMutex.Unlock()
	conn.Close()
}

func (b *Backend) failure(idx int) bool {
	peer := b.config.Peers[idx]
	rotated := b.rotator.Failure(idx)
	if rotated {
		next, _ := b.rotator.Current()
		b.logger.Warn(
			"rotating peer after repeated failures",
			"peer", peer.Address,
			"next", next.Address,
		)
		b.config.Metrics.Rotation(Name)
	}
	if b.rotator.Unhealthy() {
		transport.MarkDegraded(b.state)
	}
	return rotated
}

func (b *Backend) record(idx int, conn *Connection, op string, attempt int, err error) {
	if err == nil || !protocol.IsRetryable(err) {
		if err == nil || protocol.KindOf(err) != 0 {
			b.rotator.Success(idx)
			transport.MarkReady(b.state)
		}
		return
	}
	b.logger.Debug(
		"request failed",
		"op", op,
		"peer", b.config.Peers[idx].Address,
		"attempt", attempt,
		"error", err,
	)
	if b.failure(idx) {
		b.dropConnection(conn)
	}
}

// do runs f against the active peer, retrying network failures and timeouts
func (b *Backend) do(ctx context.Context, op string, f func(context.Context, *Connection) error) error {
	if b.lifetime.IsClosed() {
		return fmt.Errorf("%s: %w", op, protocol.ErrClosed)
	}
	start := time.Now()
	err := b.config.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		conn, idx, err := b.connection(ctx)
		if err == nil {
			err = f(ctx, conn)
		}
		b.record(idx, conn, op, attempt, err)
		return err
	})
	if errors.Is(err, protocol.ErrClosed) && protocol.KindOf(err) == 0 {
		err = fmt.Errorf("%s: %w", op, err)
	}
	b.config.Metrics.ObserveRequest(Name, op, start, err)
	return err
}

func accountId(addr address.Address) liteserver.AccountId {
	return liteserver.AccountId{
		Workchain: addr.Workchain,
		Id:        addr.Hash[:],
	}
}

func hash32(op string, endpoint string, data []byte) ([32]byte, error) {
	var ret [32]byte
	if len(data) == 0 {
		return ret, nil
	}
	if len(data) != len(ret) {
		return ret, protocol.ProtocolError(op, endpoint, fmt.Errorf("invalid hash length %d", len(data)))
	}
	copy(ret[:], data)
	return ret, nil
}

// decodeAccountState converts a lite-server answer into a contract state.
// Lite servers report the exact last transaction of the account
func decodeAccountState(
	op string,
	endpoint string,
	addr address.Address,
	data *liteserver.AccountStateData,
) (ledger.RawContractState, error) {
	if data.Account.Workchain != addr.Workchain || !bytes.Equal(data.Account.Id, addr.Hash[:]) {
		return ledger.RawContractState{}, protocol.ProtocolError(
			op,
			endpoint,
			fmt.Errorf("answer is for another account"),
		)
	}
	lastHash, err := hash32(op, endpoint, data.LastTransHash)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	return ledger.DecodeContractState(
		data.State,
		ledger.GenTimings{GenLt: data.GenLt, GenUtime: data.GenUtime},
		ledger.LastTransactionId{IsExact: true, Lt: data.LastTransLt, Hash: lastHash},
	)
}

func (b *Backend) GetContractState(ctx context.Context, addr address.Address) (ledger.RawContractState, error) {
	const op = "getContractState"
	var ret ledger.RawContractState
	err := b.do(ctx, op, func(ctx context.Context, conn *Connection) error {
		data, err := conn.client.GetAccountState(ctx, accountId(addr))
		if err != nil {
			return err
		}
		ret, err = decodeAccountState(op, conn.peer.Address, addr, data)
		return err
	})
	if err != nil {
		return ledger.RawContractState{}, err
	}
	return ret, nil
}

// GetContractStates queries the accounts concurrently over the same channel
func (b *Backend) GetContractStates(ctx context.Context, addrs []address.Address) ([]ledger.RawContractState, error) {
	ret := make([]ledger.RawContractState, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			state, err := b.GetContractState(ctx, addr)
			if err != nil {
				return err
			}
			ret[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (b *Backend) SendExternalMessage(ctx context.Context, boc []byte) (transport.SubmissionAck, error) {
	msg, err := ledger.ParseExternalMessage(boc)
	if err != nil {
		return transport.SubmissionAck{}, err
	}
	var endpoint string
	err = b.do(ctx, "sendMessage", func(ctx context.Context, conn *Connection) error {
		endpoint = conn.peer.Address
		return conn.client.SendMessage(ctx, msg.Bytes)
	})
	if err != nil {
		return transport.SubmissionAck{}, err
	}
	return transport.SubmissionAck{
		MessageHash: msg.Hash,
		Endpoint:    endpoint,
		AcceptedAt:  time.Now(),
	}, nil
}

func (b *Backend) GetTransactions(
	ctx context.Context,
	addr address.Address,
	from ledger.TransactionId,
	count int,
) (ledger.TransactionsBatch, error) {
	const op = "getTransactions"
	if count <= 0 {
		return ledger.TransactionsBatch{}, nil
	}
	var ret ledger.TransactionsBatch
	err := b.do(ctx, op, func(ctx context.Context, conn *Connection) error {
		start := from
		if start.IsZero() {
			// Lite servers need an exact starting point, so resolve the latest one first
			data, err := conn.client.GetAccountState(ctx, accountId(addr))
			if err != nil {
				return err
			}
			if data.LastTransLt == 0 {
				ret = ledger.TransactionsBatch{}
				return nil
			}
			lastHash, err := hash32(op, conn.peer.Address, data.LastTransHash)
			if err != nil {
				return err
			}
			start = ledger.TransactionId{Lt: data.LastTransLt, Hash: lastHash}
		}
		raw, err := conn.client.GetTransactions(ctx, accountId(addr), uint32(count), start.Lt, start.Hash[:])
		if err != nil {
			return err
		}
		if len(raw) > count {
			return protocol.ProtocolError(
				op,
				conn.peer.Address,
				fmt.Errorf("requested %d transactions, received %d", count, len(raw)),
			)
		}
		txs := make([]*ledger.Transaction, 0, len(raw))
		for _, data := range raw {
			tx, err := ledger.NewTransactionFromBoc(data)
			if err != nil {
				return err
			}
			txs = append(txs, tx)
		}
		ret, err = transport.BuildTransactionsBatch(op, conn.peer.Address, start, txs)
		return err
	})
	if err != nil {
		return ledger.TransactionsBatch{}, err
	}
	return ret, nil
}
