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

// Package liteserver implements the query protocol spoken with a lite server
// over an ADNL channel: request/answer queries, account subscriptions pushed
// by the server and a ping/pong liveness check.
package liteserver

import (
	"context"
	"log/slog"
	"time"
)

const (
	// ProtocolName is the name of the lite-server protocol
	ProtocolName = "liteserver"
	// DefaultQueryTimeout is the default time a client waits for an answer
	DefaultQueryTimeout = 10 * time.Second
	// DefaultPingPeriod is the default interval between liveness pings
	DefaultPingPeriod = 30 * time.Second
	// DefaultPingTimeout is the default time a client waits for a pong
	DefaultPingTimeout = 5 * time.Second
)

// Config contains the callbacks and timing parameters for both roles
type Config struct {
	GetMasterchainInfoFunc  GetMasterchainInfoFunc
	GetAccountStateFunc     GetAccountStateFunc
	SendMessageFunc         SendMessageFunc
	GetTransactionsFunc     GetTransactionsFunc
	SubscribeAccountFunc    SubscribeAccountFunc
	UnsubscribeFunc         UnsubscribeFunc
	AccountStateChangedFunc AccountStateChangedFunc
	QueryTimeout            time.Duration
	PingPeriod              time.Duration
	PingTimeout             time.Duration
	Logger                  *slog.Logger
}

// CallbackContext provides context information to callbacks
type CallbackContext struct {
	Context  context.Context
	Endpoint string
	Client   *Client
	Server   *Server
}

// Callback function types
type (
	GetMasterchainInfoFunc  func(CallbackContext) (*MsgMasterchainInfo, error)
	GetAccountStateFunc     func(CallbackContext, AccountId) (AccountStateData, error)
	SendMessageFunc         func(CallbackContext, []byte) error
	GetTransactionsFunc     func(CallbackContext, *MsgGetTransactions) ([][]byte, error)
	SubscribeAccountFunc    func(CallbackContext, AccountId) (uint64, error)
	UnsubscribeFunc         func(CallbackContext, uint64) error
	AccountStateChangedFunc func(CallbackContext, *MsgAccountStateChanged) error
)

// LiteServerOptionFunc represents a function used to modify the lite-server protocol config
type LiteServerOptionFunc func(*Config)

// NewConfig returns a new lite-server config object with the provided options
func NewConfig(options ...LiteServerOptionFunc) Config {
	c := Config{
		QueryTimeout: DefaultQueryTimeout,
		PingPeriod:   DefaultPingPeriod,
		PingTimeout:  DefaultPingTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithGetMasterchainInfoFunc specifies the GetMasterchainInfo callback function
func WithGetMasterchainInfoFunc(
	getMasterchainInfoFunc GetMasterchainInfoFunc,
) LiteServerOptionFunc {
	return func(c *Config) {
		c.GetMasterchainInfoFunc = getMasterchainInfoFunc
	}
}

// WithGetAccountStateFunc specifies the GetAccountState callback function
func WithGetAccountStateFunc(
	getAccountStateFunc GetAccountStateFunc,
) LiteServerOptionFunc {
	return func(c *Config) {
		c.GetAccountStateFunc = getAccountStateFunc
	}
}

// WithSendMessageFunc specifies the SendMessage callback function
func WithSendMessageFunc(sendMessageFunc SendMessageFunc) LiteServerOptionFunc {
	return func(c *Config) {
		c.SendMessageFunc = sendMessageFunc
	}
}

// WithGetTransactionsFunc specifies the GetTransactions callback function
func WithGetTransactionsFunc(
	getTransactionsFunc GetTransactionsFunc,
) LiteServerOptionFunc {
	return func(c *Config) {
		c.GetTransactionsFunc = getTransactionsFunc
	}
}

// WithSubscribeAccountFunc specifies the SubscribeAccount callback function
func WithSubscribeAccountFunc(
	subscribeAccountFunc SubscribeAccountFunc,
) LiteServerOptionFunc {
	return func(c *Config) {
		c.SubscribeAccountFunc = subscribeAccountFunc
	}
}

// WithUnsubscribeFunc specifies the Unsubscribe callback function
func WithUnsubscribeFunc(unsubscribeFunc UnsubscribeFunc) LiteServerOptionFunc {
	return func(c *Config) {
		c.UnsubscribeFunc = unsubscribeFunc
	}
}

// WithAccountStateChangedFunc specifies the callback for pushed account states.
// It runs on the connection read loop and must not block
func WithAccountStateChangedFunc(
	accountStateChangedFunc AccountStateChangedFunc,
) LiteServerOptionFunc {
	return func(c *Config) {
		c.AccountStateChangedFunc = accountStateChangedFunc
	}
}

// WithQueryTimeout specifies the default query timeout
func WithQueryTimeout(timeout time.Duration) LiteServerOptionFunc {
	return func(c *Config) {
		c.QueryTimeout = timeout
	}
}

// WithPingPeriod specifies the interval between liveness pings. A zero period disables them
func WithPingPeriod(period time.Duration) LiteServerOptionFunc {
	return func(c *Config) {
		c.PingPeriod = period
	}
}

// WithPingTimeout specifies how long to wait for a pong
func WithPingTimeout(timeout time.Duration) LiteServerOptionFunc {
	return func(c *Config) {
		c.PingTimeout = timeout
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) LiteServerOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
