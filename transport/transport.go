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

// Package transport defines the contract shared by the blockchain transport
// backends and the plumbing they have in common: subscriptions, history
// pagination checks, connection state tracking and the HTTP request path.
package transport

import (
	"context"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/consistency"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
)

// Backend is a single way of talking to the chain. Implementations are safe
// for concurrent use and own their connections until Close is called
type Backend interface {
	// Name returns the backend kind
	Name() string
	// GetContractState returns the current state of an account
	GetContractState(ctx context.Context, addr address.Address) (ledger.RawContractState, error)
	// GetContractStates returns the states of several accounts, in input order
	GetContractStates(ctx context.Context, addrs []address.Address) ([]ledger.RawContractState, error)
	// SendExternalMessage submits a serialized inbound external message for relay
	SendExternalMessage(ctx context.Context, boc []byte) (SubmissionAck, error)
	// GetTransactions returns up to count transactions, newest first, starting
	// at from (inclusive). A zero from starts at the latest transaction
	GetTransactions(
		ctx context.Context,
		addr address.Address,
		from ledger.TransactionId,
		count int,
	) (ledger.TransactionsBatch, error)
	// Subscribe returns a sequence of state notifications for an account
	Subscribe(ctx context.Context, addr address.Address) (*Subscription, error)
	// State returns the connection state
	State() protocol.ConnState
	// Close releases all connections. It is safe to call more than once
	Close() error
}

// SubmissionAck confirms that a message was accepted for relay. It says
// nothing about inclusion in a block
type SubmissionAck struct {
	MessageHash [32]byte
	Endpoint    string
	AcceptedAt  time.Time
}

// Notification is one observed state of a subscribed account. Anomaly is
// set when the state is older than one already seen for the address
type Notification struct {
	Address address.Address
	State   ledger.RawContractState
	Anomaly *consistency.RollbackAnomaly
}
