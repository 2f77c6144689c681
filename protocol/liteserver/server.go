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

	"github.com/blinklabs-io/goton/cbor"
	"github.com/blinklabs-io/goton/muxer"
	"github.com/blinklabs-io/goton/protocol"
)

// Server answers lite-server queries using the configured callbacks. Each
// query is handled on its own goroutine
type Server struct {
	mux             *muxer.Muxer
	config          *Config
	logger          *slog.Logger
	callbackContext CallbackContext
	cancel          context.CancelFunc
	waitGroup       sync.WaitGroup
	onceStart       sync.Once
	onceStop        sync.Once
}

// NewServer returns a server for the peer at endpoint
func NewServer(mux *muxer.Muxer, endpoint string, cfg *Config) *Server {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mux:    mux,
		config: cfg,
		cancel: cancel,
	}
	s.logger = cfg.Logger
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "liteserver", "role", "server", "endpoint", endpoint)
	s.callbackContext = CallbackContext{
		Context:  ctx,
		Endpoint: endpoint,
		Server:   s,
	}
	return s
}

// Start begins processing inbound messages
func (s *Server) Start() {
	s.onceStart.Do(func() {
		s.mux.Start(s.messageHandler)
		go func() {
			<-s.mux.DoneChan()
			s.cancel()
		}()
	})
}

// DoneChan returns a channel that is closed when the connection is gone
func (s *Server) DoneChan() <-chan struct{} {
	return s.mux.DoneChan()
}

// Stop closes the connection and waits for in-flight queries to finish
func (s *Server) Stop() {
	s.onceStop.Do(func() {
		s.cancel()
		s.mux.Stop()
		s.waitGroup.Wait()
	})
}

// PushAccountStateChanged sends a new account state to a subscribed client
func (s *Server) PushAccountStateChanged(subscriptionId uint64, state AccountStateData) error {
	data, err := cbor.Encode(NewMsgAccountStateChanged(subscriptionId, state))
	if err != nil {
		return err
	}
	return s.mux.Send(muxer.NewMessage(muxer.MessageKindPush, subscriptionId, data))
}

func (s *Server) messageHandler(msg *muxer.Message) error {
	var err error
	switch msg.Kind {
	case muxer.MessageKindQuery:
		s.waitGroup.Add(1)
		go s.handleQuery(msg)
	case muxer.MessageKindPing:
		err = s.mux.Send(muxer.NewMessage(muxer.MessageKindPong, msg.QueryId, nil))
	default:
		err = fmt.Errorf(
			"%s: received unexpected message kind %d",
			ProtocolName,
			msg.Kind,
		)
	}
	return err
}

func (s *Server) handleQuery(msg *muxer.Message) {
	defer s.waitGroup.Done()
	resp := s.dispatch(msg.Payload)
	data, err := cbor.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode answer", "error", err, "query_id", msg.QueryId)
		return
	}
	if err := s.mux.Send(muxer.NewMessage(muxer.MessageKindAnswer, msg.QueryId, data)); err != nil {
		s.logger.Debug("failed to send answer", "error", err, "query_id", msg.QueryId)
	}
}

func unsupported(msgType uint8) *MsgError {
	return NewMsgError(
		ErrorCodeUnsupported,
		fmt.Sprintf("query type %d is not supported", msgType),
	)
}

// dispatch runs the callback for a query and returns the answer or error message
func (s *Server) dispatch(payload []byte) protocol.Message {
	msgGeneric, err := DecodeMessage(payload)
	if err != nil {
		return NewMsgError(ErrorCodeInvalidQuery, err.Error())
	}
	var resp protocol.Message
	switch msg := msgGeneric.(type) {
	case *MsgGetMasterchainInfo:
		if s.config.GetMasterchainInfoFunc == nil {
			return unsupported(msg.Type())
		}
		resp, err = s.config.GetMasterchainInfoFunc(s.callbackContext)
	case *MsgGetAccountState:
		if s.config.GetAccountStateFunc == nil {
			return unsupported(msg.Type())
		}
		var state AccountStateData
		state, err = s.config.GetAccountStateFunc(s.callbackContext, msg.Account)
		resp = NewMsgAccountState(state)
	case *MsgSendMessage:
		if s.config.SendMessageFunc == nil {
			return unsupported(msg.Type())
		}
		err = s.config.SendMessageFunc(s.callbackContext, msg.Body)
		resp = NewMsgSendMsgStatus(1)
	case *MsgGetTransactions:
		if s.config.GetTransactionsFunc == nil {
			return unsupported(msg.Type())
		}
		var txs [][]byte
		txs, err = s.config.GetTransactionsFunc(s.callbackContext, msg)
		resp = NewMsgTransactionList(txs)
	case *MsgSubscribeAccount:
		if s.config.SubscribeAccountFunc == nil {
			return unsupported(msg.Type())
		}
		var id uint64
		id, err = s.config.SubscribeAccountFunc(s.callbackContext, msg.Account)
		resp = NewMsgSubscribed(id)
	case *MsgUnsubscribe:
		if s.config.UnsubscribeFunc == nil {
			return unsupported(msg.Type())
		}
		err = s.config.UnsubscribeFunc(s.callbackContext, msg.SubscriptionId)
		resp = NewMsgUnsubscribed()
	default:
		return NewMsgError(
			ErrorCodeInvalidQuery,
			fmt.Sprintf("message type %d is not a query", msgGeneric.Type()),
		)
	}
	if err != nil {
		var msgErr *MsgError
		if errors.As(err, &msgErr) {
			return msgErr
		}
		return NewMsgError(ErrorCodeInternal, err.Error())
	}
	return resp
}
