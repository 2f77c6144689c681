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

// Package gql implements a transport backend over a GraphQL HTTP API.
package gql

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
)

// Name is the backend name
const Name = "graphql"

// CodeInvalidMessage is the error code a server reports for a refused message
const CodeInvalidMessage = "INVALID_MESSAGE"

// maxCursors bounds the number of remembered page cursors
const maxCursors = 1024

// cursorKey identifies a page cursor. Cursors are opaque to the endpoint that
// issued them
type cursorKey struct {
	endpoint string
	addr     address.Address
	id       ledger.TransactionId
}

// Backend is a transport backend over a list of GraphQL endpoints
type Backend struct {
	config      Config
	logger      *slog.Logger
	client      *transport.HTTPClient
	lifetime    *transport.Lifetime
	cursorMutex sync.Mutex
	cursors     map[cursorKey]string
	onceClose   sync.Once
}

var _ transport.Backend = (*Backend)(nil)

// New returns a Backend
func New(options ...GqlOptionFunc) (*Backend, error) {
	cfg := NewConfig(options...)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client, err := transport.NewHTTPClient(transport.HTTPConfig{
		Name:              Name,
		Endpoints:         cfg.Endpoints,
		Timeout:           cfg.Timeout,
		Retry:             cfg.Retry,
		RotateAfter:       cfg.RotateAfter,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Headers:           cfg.Headers,
		HTTPClient:        cfg.HTTPClient,
		Metrics:           cfg.Metrics,
		Logger:            logger,
		StateChangeFunc:   cfg.StateChangeFunc,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{
		config:   cfg,
		logger:   logger.With("component", Name),
		client:   client,
		lifetime: transport.NewLifetime(),
		cursors:  make(map[cursorKey]string),
	}, nil
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) State() protocol.ConnState {
	return b.client.State()
}

// Close stops all subscriptions and releases idle connections
func (b *Backend) Close() error {
	b.onceClose.Do(func() {
		b.lifetime.Close()
		_ = b.client.Close()
	})
	return nil
}

// query posts a GraphQL request and decodes the data member of the response
// into out. It returns the endpoint that answered
func (b *Backend) query(ctx context.Context, op string, req request, out any) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return b.queryFunc(
		ctx,
		op,
		func(string) ([]byte, error) { return payload, nil },
		out,
	)
}

// queryFunc is like query, but builds the request for each endpoint tried
func (b *Backend) queryFunc(ctx context.Context, op string, build transport.PayloadFunc, out any) (string, error) {
	var answered string
	err := b.client.PostFunc(ctx, op, build, func(endpoint string, status int, body []byte) error {
		answered = endpoint
		var resp struct {
			Data   json.RawMessage `json:"data"`
			Errors []responseError `json:"errors"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			if status != http.StatusOK {
				return protocol.ProtocolError(op, endpoint, fmt.Errorf("HTTP status %d", status))
			}
			return protocol.DecodeError(op, endpoint, err)
		}
		if len(resp.Errors) > 0 {
			return responseErrors(op, endpoint, resp.Errors)
		}
		if status != http.StatusOK {
			return protocol.ProtocolError(op, endpoint, fmt.Errorf("HTTP status %d", status))
		}
		if len(resp.Data) == 0 || string(resp.Data) == "null" {
			return protocol.ProtocolError(op, endpoint, errors.New("response has no data"))
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return protocol.DecodeError(op, endpoint, err)
		}
		return nil
	})
	return answered, err
}

func responseErrors(op string, endpoint string, errs []responseError) error {
	msgs := make([]error, 0, len(errs))
	rejected := false
	for _, e := range errs {
		msgs = append(msgs, errors.New(e.Message))
		if e.Extensions.Code == CodeInvalidMessage {
			rejected = true
		}
	}
	err := errors.Join(msgs...)
	if rejected {
		return protocol.RejectedError(op, endpoint, err)
	}
	return protocol.ProtocolError(op, endpoint, err)
}

func parseLt(op string, endpoint string, field string, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	ret, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, protocol.DecodeError(op, endpoint, fmt.Errorf("invalid %s %q: %w", field, s, err))
	}
	return ret, nil
}

// decodeAccount builds a contract state from an account and the block it was
// read at. The API only reports the logical time of the last transaction
func decodeAccount(
	op string,
	endpoint string,
	addr address.Address,
	block blockData,
	data accountData,
) (ledger.RawContractState, error) {
	if data.Info == nil {
		return ledger.NotExists(), nil
	}
	if data.Info.Id != addr.String() {
		return ledger.RawContractState{}, protocol.ProtocolError(
			op,
			endpoint,
			fmt.Errorf("answer is for account %s", data.Info.Id),
		)
	}
	genLt, err := parseLt(op, endpoint, "endLt", block.EndLt)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	lastLt, err := parseLt(op, endpoint, "lastTransLt", data.Info.LastTransLt)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	boc, err := base64.StdEncoding.DecodeString(data.Info.Boc)
	if err != nil {
		return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, err)
	}
	return ledger.DecodeContractState(
		boc,
		ledger.GenTimings{GenLt: genLt, GenUtime: block.GenUtime},
		ledger.LastTransactionId{Lt: lastLt},
	)
}

func (b *Backend) GetContractState(ctx context.Context, addr address.Address) (ledger.RawContractState, error) {
	const op = "getContractState"
	var data accountStateData
	endpoint, err := b.query(
		ctx,
		op,
		request{
			Query:         accountStateQuery,
			OperationName: "accountState",
			Variables:     map[string]any{"address": addr.String()},
		},
		&data,
	)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	return decodeAccount(op, endpoint, addr, data.Blockchain.MasterchainBlock, data.Blockchain.Account)
}

// GetContractStates reads all accounts in a single request, so every state
// shares the same block
func (b *Backend) GetContractStates(ctx context.Context, addrs []address.Address) ([]ledger.RawContractState, error) {
	const op = "getContractStates"
	if len(addrs) == 0 {
		return []ledger.RawContractState{}, nil
	}
	vars := make(map[string]any, len(addrs))
	for i, addr := range addrs {
		vars[accountAlias(i)] = addr.String()
	}
	var data struct {
		Blockchain map[string]json.RawMessage `json:"blockchain"`
	}
	endpoint, err := b.query(
		ctx,
		op,
		request{
			Query:         accountStatesQuery(len(addrs)),
			OperationName: "accountStates",
			Variables:     vars,
		},
		&data,
	)
	if err != nil {
		return nil, err
	}
	var block blockData
	if err := json.Unmarshal(data.Blockchain["masterchainBlock"], &block); err != nil {
		return nil, protocol.DecodeError(op, endpoint, err)
	}
	ret := make([]ledger.RawContractState, len(addrs))
	for i, addr := range addrs {
		raw, ok := data.Blockchain[accountAlias(i)]
		if !ok {
			return nil, protocol.ProtocolError(op, endpoint, fmt.Errorf("missing account %s", addr))
		}
		var account accountData
		if err := json.Unmarshal(raw, &account); err != nil {
			return nil, protocol.DecodeError(op, endpoint, err)
		}
		state, err := decodeAccount(op, endpoint, addr, block, account)
		if err != nil {
			return nil, err
		}
		ret[i] = state
	}
	return ret, nil
}

func (b *Backend) SendExternalMessage(ctx context.Context, boc []byte) (transport.SubmissionAck, error) {
	const op = "sendMessage"
	msg, err := ledger.ParseExternalMessage(boc)
	if err != nil {
		return transport.SubmissionAck{}, err
	}
	var data postRequestsData
	endpoint, err := b.query(
		ctx,
		op,
		request{
			Query:         postRequestsMutation,
			OperationName: "postRequests",
			Variables: map[string]any{
				"requests": []messageRequest{
					{
						Id:   base64.StdEncoding.EncodeToString(msg.Hash[:]),
						Body: base64.StdEncoding.EncodeToString(msg.Bytes),
					},
				},
			},
		},
		&data,
	)
	if err != nil {
		return transport.SubmissionAck{}, err
	}
	return transport.SubmissionAck{
		MessageHash: msg.Hash,
		Endpoint:    endpoint,
		AcceptedAt:  time.Now(),
	}, nil
}

func (b *Backend) cursor(endpoint string, addr address.Address, id ledger.TransactionId) (string, bool) {
	b.cursorMutex.Lock()
	defer b.cursorMutex.Unlock()
	ret, ok := b.cursors[cursorKey{endpoint: endpoint, addr: addr, id: id}]
	return ret, ok
}

func (b *Backend) rememberCursor(endpoint string, addr address.Address, id ledger.TransactionId, cursor string) {
	b.cursorMutex.Lock()
	defer b.cursorMutex.Unlock()
	if len(b.cursors) >= maxCursors {
		clear(b.cursors)
	}
	b.cursors[cursorKey{endpoint: endpoint, addr: addr, id: id}] = cursor
}

// GetTransactions pages backwards through the history of an account. A page
// continues from the server cursor of the previous one when the same endpoint
// issued it, and otherwise from the logical time of from
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
	var data transactionsData
	endpoint, err := b.queryFunc(
		ctx,
		op,
		func(endpoint string) ([]byte, error) {
			vars := map[string]any{
				"address": addr.String(),
				"last":    count,
			}
			if !from.IsZero() {
				if cursor, ok := b.cursor(endpoint, addr, from); ok {
					vars["before"] = cursor
				} else {
					vars["fromLt"] = strconv.FormatUint(from.Lt, 10)
				}
			}
			return json.Marshal(request{
				Query:         transactionsQuery,
				OperationName: "transactions",
				Variables:     vars,
			})
		},
		&data,
	)
	if err != nil {
		return ledger.TransactionsBatch{}, err
	}
	edges := data.Blockchain.Account.Transactions.Edges
	if len(edges) > count {
		return ledger.TransactionsBatch{}, protocol.ProtocolError(
			op,
			endpoint,
			fmt.Errorf("requested %d transactions, received %d", count, len(edges)),
		)
	}
	// Edges come oldest first
	txs := make([]*ledger.Transaction, 0, len(edges))
	for i := len(edges) - 1; i >= 0; i-- {
		tx, err := decodeTransaction(op, endpoint, edges[i].Node)
		if err != nil {
			return ledger.TransactionsBatch{}, err
		}
		txs = append(txs, tx)
	}
	ret, err := transport.BuildTransactionsBatch(op, endpoint, from, txs)
	if err != nil {
		return ledger.TransactionsBatch{}, err
	}
	if ret.Next != nil && edges[0].Cursor != "" {
		b.rememberCursor(endpoint, addr, *ret.Next, edges[0].Cursor)
	}
	return ret, nil
}

func decodeTransaction(op string, endpoint string, node transactionNode) (*ledger.Transaction, error) {
	boc, err := base64.StdEncoding.DecodeString(node.Boc)
	if err != nil {
		return nil, protocol.DecodeError(op, endpoint, err)
	}
	tx, err := ledger.NewTransactionFromBoc(boc)
	if err != nil {
		return nil, err
	}
	hash := tx.Hash()
	if node.Id != hex.EncodeToString(hash[:]) {
		return nil, protocol.ProtocolError(op, endpoint, fmt.Errorf("transaction %s does not match its id %s", hex.EncodeToString(hash[:]), node.Id))
	}
	lt, err := parseLt(op, endpoint, "lt", node.Lt)
	if err != nil {
		return nil, err
	}
	if lt != tx.Lt {
		return nil, protocol.ProtocolError(op, endpoint, fmt.Errorf("transaction lt %d does not match reported %d", tx.Lt, lt))
	}
	return tx, nil
}

// Subscribe polls the state of an account. The API has no push channel
func (b *Backend) Subscribe(ctx context.Context, addr address.Address) (*transport.Subscription, error) {
	run := transport.Poll(addr, b.GetContractState, transport.PollConfig{
		Interval:    b.config.PollInterval,
		MaxInterval: b.config.MaxPollInterval,
		Logger:      b.logger,
		Name:        Name,
		Metrics:     b.config.Metrics,
	})
	sub, ok := b.lifetime.Subscribe(ctx, run)
	if !ok {
		return nil, protocol.ErrClosed
	}
	return sub, nil
}
