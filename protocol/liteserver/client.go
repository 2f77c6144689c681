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

package liteserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/goton/cbor"
	"github.com/blinklabs-io/goton/muxer"
	"github.com/blinklabs-io/goton/protocol"
)

var errConnectionClosed = errors.New("connection closed")

// Client issues queries to a lite server over a single muxer
type Client struct {
	mux             *muxer.Muxer
	config          *Config
	endpoint        string
	logger          *slog.Logger
	callbackContext CallbackContext
	nextQueryId     atomic.Uint64
	nextCookie      atomic.Uint64
	pendingMutex    sync.Mutex
	pending         map[uint64]chan *muxer.Message
	pings           map[uint64]chan struct{}
	timer           *time.Timer
	timerMutex      sync.Mutex
	onceStart       sync.Once
	errMutex        sync.Mutex
	err             error
}

// NewClient returns a client for the lite server at endpoint. Call Start before issuing queries
func NewClient(mux *muxer.Muxer, endpoint string, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		mux:      mux,
		config:   cfg,
		endpoint: endpoint,
		pending:  make(map[uint64]chan *muxer.Message),
		pings:    make(map[uint64]chan struct{}),
	}
	c.logger = cfg.Logger
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "liteserver", "role", "client", "endpoint", endpoint)
	c.callbackContext = CallbackContext{
		Context:  context.Background(),
		Endpoint: endpoint,
		Client:   c,
	}
	return c
}

// Start begins processing inbound messages and the periodic liveness check
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.mux.Start(c.messageHandler)
		// Start goroutine to cleanup resources on shutdown
		go func() {
			<-c.mux.DoneChan()
			c.timerMutex.Lock()
			if c.timer != nil {
				c.timer.Stop()
			}
			c.timerMutex.Unlock()
			select {
			case err := <-c.mux.ErrorChan():
				c.setErr(err)
			default:
				c.setErr(errConnectionClosed)
			}
		}()
		c.startTimer()
	})
}

// DoneChan returns a channel that is closed when the connection is gone
func (c *Client) DoneChan() <-chan struct{} {
	return c.mux.DoneChan()
}

// Err returns the error that ended the connection, if any
func (c *Client) Err() error {
	c.errMutex.Lock()
	defer c.errMutex.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMutex.Lock()
	defer c.errMutex.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Stop closes the connection
func (c *Client) Stop() {
	c.mux.Stop()
}

func (c *Client) startTimer() {
	if c.config.PingPeriod <= 0 {
		return
	}
	c.timerMutex.Lock()
	defer c.timerMutex.Unlock()
	// Stop any existing timer
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.config.PingPeriod, c.keepAlive)
}

func (c *Client) keepAlive() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		c.logger.Warn("liveness check failed, closing connection", "error", err)
		c.setErr(err)
		c.mux.Stop()
		return
	}
	c.startTimer()
}

// Ping sends a ping and waits for the matching pong
func (c *Client) Ping(ctx context.Context) error {
	cookie := c.nextCookie.Add(1)
	ch := make(chan struct{}, 1)
	c.pendingMutex.Lock()
	c.pings[cookie] = ch
	c.pendingMutex.Unlock()
	defer func() {
		c.pendingMutex.Lock()
		delete(c.pings, cookie)
		c.pendingMutex.Unlock()
	}()
	if err := c.mux.Send(muxer.NewMessage(muxer.MessageKindPing, cookie, nil)); err != nil {
		return protocol.NetworkError("ping", c.endpoint, err)
	}
	select {
	case <-ch:
		return nil
	case <-c.mux.DoneChan():
		return protocol.NetworkError("ping", c.endpoint, c.closedErr())
	case <-ctx.Done():
		return c.contextError("ping", ctx)
	}
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return errConnectionClosed
}

func (c *Client) contextError(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return protocol.TimeoutError(op, c.endpoint, ctx.Err())
	}
	return ctx.Err()
}

// Query sends a request and waits for its answer. An error answer from the
// server is returned as a rejected or protocol error. The configured query
// timeout bounds every attempt, and an earlier ctx deadline wins
func (c *Client) Query(ctx context.Context, op string, msg protocol.Message) (protocol.Message, error) {
	if c.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.QueryTimeout)
		defer cancel()
	}
	data, err := cbor.Encode(msg)
	if err != nil {
		return nil, protocol.ProtocolError(op, c.endpoint, err)
	}
	queryId := c.nextQueryId.Add(1)
	ch := make(chan *muxer.Message, 1)
	c.pendingMutex.Lock()
	c.pending[queryId] = ch
	c.pendingMutex.Unlock()
	// The pending entry is always dropped so that a late answer is discarded
	defer func() {
		c.pendingMutex.Lock()
		delete(c.pending, queryId)
		c.pendingMutex.Unlock()
	}()
	if err := c.mux.Send(muxer.NewMessage(muxer.MessageKindQuery, queryId, data)); err != nil {
		return nil, protocol.NetworkError(op, c.endpoint, err)
	}
	var answer *muxer.Message
	select {
	case answer = <-ch:
	case <-c.mux.DoneChan():
		return nil, protocol.NetworkError(op, c.endpoint, c.closedErr())
	case <-ctx.Done():
		return nil, c.contextError(op, ctx)
	}
	resp, err := DecodeMessage(answer.Payload)
	if err != nil {
		return nil, protocol.DecodeError(op, c.endpoint, err)
	}
	if msgErr, ok := resp.(*MsgError); ok {
		if msgErr.Code == ErrorCodeInvalidMessage {
			return nil, protocol.RejectedError(op, c.endpoint, msgErr)
		}
		return nil, protocol.ProtocolError(op, c.endpoint, msgErr)
	}
	return resp, nil
}

func unexpectedAnswer(op string, endpoint string, msg protocol.Message) error {
	return protocol.ProtocolError(
		op,
		endpoint,
		fmt.Errorf("%s: unexpected answer type %d", ProtocolName, msg.Type()),
	)
}

// GetMasterchainInfo returns the latest masterchain block known to the server
func (c *Client) GetMasterchainInfo(ctx context.Context) (*MsgMasterchainInfo, error) {
	const op = "getMasterchainInfo"
	resp, err := c.Query(ctx, op, NewMsgGetMasterchainInfo())
	if err != nil {
		return nil, err
	}
	ret, ok := resp.(*MsgMasterchainInfo)
	if !ok {
		return nil, unexpectedAnswer(op, c.endpoint, resp)
	}
	return ret, nil
}

// GetAccountState returns the current state of an account
func (c *Client) GetAccountState(ctx context.Context, account AccountId) (*AccountStateData, error) {
	const op = "getAccountState"
	resp, err := c.Query(ctx, op, NewMsgGetAccountState(account))
	if err != nil {
		return nil, err
	}
	ret, ok := resp.(*MsgAccountState)
	if !ok {
		return nil, unexpectedAnswer(op, c.endpoint, resp)
	}
	return &ret.State, nil
}

// SendMessage submits a serialized external message
func (c *Client) SendMessage(ctx context.Context, body []byte) error {
	const op = "sendMessage"
	resp, err := c.Query(ctx, op, NewMsgSendMessage(body))
	if err != nil {
		return err
	}
	if _, ok := resp.(*MsgSendMsgStatus); !ok {
		return unexpectedAnswer(op, c.endpoint, resp)
	}
	return nil
}

// GetTransactions returns up to count serialized transactions, newest first,
// starting at the transaction identified by lt and hash
func (c *Client) GetTransactions(
	ctx context.Context,
	account AccountId,
	count uint32,
	lt uint64,
	hash []byte,
) ([][]byte, error) {
	const op = "getTransactions"
	resp, err := c.Query(ctx, op, NewMsgGetTransactions(account, count, lt, hash))
	if err != nil {
		return nil, err
	}
	ret, ok := resp.(*MsgTransactionList)
	if !ok {
		return nil, unexpectedAnswer(op, c.endpoint, resp)
	}
	return ret.Transactions, nil
}

// SubscribeAccount asks the server to push every new state of an account
func (c *Client) SubscribeAccount(ctx context.Context, account AccountId) (uint64, error) {
	const op = "subscribeAccount"
	resp, err := c.Query(ctx, op, NewMsgSubscribeAccount(account))
	if err != nil {
		return 0, err
	}
	ret, ok := resp.(*MsgSubscribed)
	if !ok {
		return 0, unexpectedAnswer(op, c.endpoint, resp)
	}
	return ret.SubscriptionId, nil
}

// Unsubscribe cancels a subscription
func (c *Client) Unsubscribe(ctx context.Context, subscriptionId uint64) error {
	const op = "unsubscribe"
	resp, err := c.Query(ctx, op, NewMsgUnsubscribe(subscriptionId))
	if err != nil {
		return err
	}
	if _, ok := resp.(*MsgUnsubscribed); !ok {
		return unexpectedAnswer(op, c.endpoint, resp)
	}
	return nil
}

func (c *Client) messageHandler(msg *muxer.Message) error {
	var err error
	switch msg.Kind {
	case muxer.MessageKindAnswer:
		c.handleAnswer(msg)
	case muxer.MessageKindPong:
		err = c.handlePong(msg)
	case muxer.MessageKindPing:
		err = c.mux.Send(muxer.NewMessage(muxer.MessageKindPong, msg.QueryId, nil))
	case muxer.MessageKindPush:
		err = c.handlePush(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message kind %d",
			ProtocolName,
			msg.Kind,
		)
	}
	return err
}

func (c *Client) handleAnswer(msg *muxer.Message) {
	c.pendingMutex.Lock()
	ch, ok := c.pending[msg.QueryId]
	c.pendingMutex.Unlock()
	if !ok {
		// The query has already given up
		c.logger.Debug("discarding late answer", "query_id", msg.QueryId)
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (c *Client) handlePong(msg *muxer.Message) error {
	c.pendingMutex.Lock()
	ch, ok := c.pings[msg.QueryId]
	c.pendingMutex.Unlock()
	if !ok {
		return fmt.Errorf(
			"%s: unexpected cookie in pong, last sent %d but received %d",
			ProtocolName,
			c.nextCookie.Load(),
			msg.QueryId,
		)
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) handlePush(msgRaw *muxer.Message) error {
	msgGeneric, err := DecodeMessage(msgRaw.Payload)
	if err != nil {
		return err
	}
	msg, ok := msgGeneric.(*MsgAccountStateChanged)
	if !ok {
		return fmt.Errorf(
			"%s: received unexpected push message type %d",
			ProtocolName,
			msgGeneric.Type(),
		)
	}
	if c.config.AccountStateChangedFunc == nil {
		c.logger.Debug("ignoring pushed account state", "subscription_id", msg.SubscriptionId)
		return nil
	}
	return c.config.AccountStateChangedFunc(c.callbackContext, msg)
}
