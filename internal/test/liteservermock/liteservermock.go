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

// Package liteservermock provides a lite server backed by an in-memory chain
// for use in tests
package liteservermock

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/handshake"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/muxer"
	"github.com/blinklabs-io/goton/protocol/liteserver"
)

type subscription struct {
	server *liteserver.Server
	addr   address.Address
}

// Server is a mock lite server listening on a local TCP port
type Server struct {
	chain      *chain.Chain
	listener   net.Listener
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	logger     *slog.Logger
	silent     atomic.Bool
	queries    atomic.Int64
	mutex      sync.Mutex
	servers    map[*liteserver.Server]struct{}
	subs       map[uint64]subscription
	nextSubId  uint64
	waitGroup  sync.WaitGroup
	onceClose  sync.Once
}

// New starts a mock lite server serving c
func New(c *chain.Chain) (*Server, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		chain:      c,
		listener:   listener,
		publicKey:  pub,
		privateKey: priv,
		logger:     slog.New(slog.DiscardHandler),
		servers:    make(map[*liteserver.Server]struct{}),
		subs:       make(map[uint64]subscription),
	}
	c.Watch(s.onChange)
	s.waitGroup.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// PublicKey returns the server identity key
func (s *Server) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// SetSilent makes the server accept queries without ever answering them
func (s *Server) SetSilent(silent bool) {
	s.silent.Store(silent)
}

// Queries returns the number of queries received
func (s *Server) Queries() int64 {
	return s.queries.Load()
}

// Subscriptions returns the number of active subscriptions
func (s *Server) Subscriptions() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.subs)
}

// Close stops the listener and all connections
func (s *Server) Close() {
	s.onceClose.Do(func() {
		_ = s.listener.Close()
		s.mutex.Lock()
		servers := make([]*liteserver.Server, 0, len(s.servers))
		for srv := range s.servers {
			servers = append(servers, srv)
		}
		s.mutex.Unlock()
		for _, srv := range servers {
			srv.Stop()
		}
		s.waitGroup.Wait()
	})
}

func (s *Server) acceptLoop() {
	defer s.waitGroup.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.waitGroup.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.waitGroup.Done()
	packet := make([]byte, handshake.PacketSize)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, packet); err != nil {
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	session, err := handshake.Server(s.privateKey, packet)
	if err != nil {
		_ = conn.Close()
		return
	}
	mux := muxer.New(conn, session, muxer.WithLogger(s.logger))
	cfg := s.config()
	srv := liteserver.NewServer(mux, conn.RemoteAddr().String(), &cfg)
	s.mutex.Lock()
	s.servers[srv] = struct{}{}
	s.mutex.Unlock()
	srv.Start()
	if err := mux.SendEmpty(); err != nil {
		srv.Stop()
	}
	<-srv.DoneChan()
	s.mutex.Lock()
	delete(s.servers, srv)
	for id, sub := range s.subs {
		if sub.server == srv {
			delete(s.subs, id)
		}
	}
	s.mutex.Unlock()
	srv.Stop()
}

func (s *Server) config() liteserver.Config {
	return liteserver.NewConfig(
		liteserver.WithLogger(s.logger),
		liteserver.WithGetMasterchainInfoFunc(s.getMasterchainInfo),
		liteserver.WithGetAccountStateFunc(s.getAccountState),
		liteserver.WithSendMessageFunc(s.sendMessage),
		liteserver.WithGetTransactionsFunc(s.getTransactions),
		liteserver.WithSubscribeAccountFunc(s.subscribeAccount),
		liteserver.WithUnsubscribeFunc(s.unsubscribe),
	)
}

// begin counts a query and blocks it for good while the server is silent
func (s *Server) begin(ctx liteserver.CallbackContext) error {
	s.queries.Add(1)
	if s.silent.Load() {
		<-ctx.Context.Done()
		return ctx.Context.Err()
	}
	return nil
}

func addressOf(id liteserver.AccountId) (address.Address, error) {
	if len(id.Id) != 32 {
		return address.Address{}, liteserver.NewMsgError(liteserver.ErrorCodeInvalidQuery, "invalid account id")
	}
	var hash [32]byte
	copy(hash[:], id.Id)
	return address.New(id.Workchain, hash), nil
}

func stateData(id liteserver.AccountId, snap chain.Snapshot) liteserver.AccountStateData {
	ret := liteserver.AccountStateData{
		Account:     id,
		GenLt:       snap.GenLt,
		GenUtime:    snap.GenUtime,
		LastTransLt: snap.LastTransLt,
		State:       snap.Boc,
	}
	if snap.LastTransHash != ([32]byte{}) {
		ret.LastTransHash = snap.LastTransHash[:]
	}
	return ret
}

func (s *Server) getMasterchainInfo(ctx liteserver.CallbackContext) (*liteserver.MsgMasterchainInfo, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	snap := s.chain.Snapshot(address.Address{})
	return liteserver.NewMsgMasterchainInfo(snap.Seqno, snap.GenLt, snap.GenUtime), nil
}

func (s *Server) getAccountState(
	ctx liteserver.CallbackContext,
	id liteserver.AccountId,
) (liteserver.AccountStateData, error) {
	if err := s.begin(ctx); err != nil {
		return liteserver.AccountStateData{}, err
	}
	addr, err := addressOf(id)
	if err != nil {
		return liteserver.AccountStateData{}, err
	}
	return stateData(id, s.chain.Snapshot(addr)), nil
}

func (s *Server) sendMessage(ctx liteserver.CallbackContext, body []byte) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.chain.Submit(body); err != nil {
		return liteserver.NewMsgError(liteserver.ErrorCodeInvalidMessage, err.Error())
	}
	return nil
}

func (s *Server) getTransactions(
	ctx liteserver.CallbackContext,
	msg *liteserver.MsgGetTransactions,
) ([][]byte, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	addr, err := addressOf(msg.Account)
	if err != nil {
		return nil, err
	}
	from := ledger.TransactionId{Lt: msg.Lt}
	copy(from.Hash[:], msg.Hash)
	txs, err := s.chain.Transactions(addr, from, int(msg.Count))
	if err != nil {
		if errors.Is(err, chain.ErrUnknownTransaction) {
			return nil, liteserver.NewMsgError(liteserver.ErrorCodeInvalidQuery, err.Error())
		}
		return nil, err
	}
	ret := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		ret = append(ret, tx.Bytes())
	}
	return ret, nil
}

func (s *Server) subscribeAccount(ctx liteserver.CallbackContext, id liteserver.AccountId) (uint64, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	addr, err := addressOf(id)
	if err != nil {
		return 0, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.nextSubId++
	s.subs[s.nextSubId] = subscription{server: ctx.Server, addr: addr}
	return s.nextSubId, nil
}

func (s *Server) unsubscribe(ctx liteserver.CallbackContext, subscriptionId uint64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subs, subscriptionId)
	return nil
}

func (s *Server) onChange(addr address.Address) {
	s.mutex.Lock()
	var targets []uint64
	servers := make(map[uint64]*liteserver.Server)
	for id, sub := range s.subs {
		if sub.addr == addr {
			targets = append(targets, id)
			servers[id] = sub.server
		}
	}
	s.mutex.Unlock()
	if len(targets) == 0 {
		return
	}
	snap := s.chain.Snapshot(addr)
	accountId := liteserver.AccountId{Workchain: addr.Workchain, Id: addr.Hash[:]}
	for _, id := range targets {
		_ = servers[id].PushAccountStateChanged(id, stateData(accountId, snap))
	}
}
