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

// Package jrpc implements a transport backend over a JSON-RPC 2.0 HTTP API.
package jrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/transport"
	"golang.org/x/sync/errgroup"
)

// Name is the backend name
const Name = "jsonrpc"

const DefaultConcurrency = 4

// Backend is a transport backend over a list of JSON-RPC endpoints
type Backend struct {
	config    Config
	logger    *slog.Logger
	client    *transport.HTTPClient
	lifetime  *transport.Lifetime
	requestId atomic.Uint64
	onceClose sync.Once
}

var _ transport.Backend = (*Backend)(nil)

// New returns a Backend
func New(options ...JrpcOptionFunc) (*Backend, error) {
	cfg := NewConfig(options...)
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
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

// call invokes method and decodes its result into result. It returns the
// endpoint that answered
func (b *Backend) call(ctx context.Context, method string, params any, result any) (string, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	id := b.requestId.Add(1)
	payload, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return "", err
	}
	var answered string
	err = b.client.Post(ctx, method, payload, func(endpoint string, status int, body []byte) error {
		answered = endpoint
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			if status != http.StatusOK {
				return protocol.ProtocolError(method, endpoint, fmt.Errorf("HTTP status %d", status))
			}
			return protocol.DecodeError(method, endpoint, err)
		}
		if resp.Error != nil {
			return rpcError(method, endpoint, resp.Error)
		}
		if status != http.StatusOK {
			return protocol.ProtocolError(method, endpoint, fmt.Errorf("HTTP status %d", status))
		}
		if resp.ID != id {
			return protocol.ProtocolError(method, endpoint, fmt.Errorf("response id %d does not match request %d", resp.ID, id))
		}
		if result == nil {
			return nil
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return protocol.ProtocolError(method, endpoint, errors.New("response has no result"))
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return protocol.DecodeError(method, endpoint, err)
		}
		return nil
	})
	return answered, err
}

// rpcError classifies an error object. Invalid parameters to sendMessage
// mean the message itself was refused
func rpcError(method string, endpoint string, e *Error) error {
	if method == MethodSendMessage && e.Code == CodeInvalidParams {
		return protocol.RejectedError(method, endpoint, e)
	}
	return protocol.ProtocolError(method, endpoint, e)
}

func decodeLt(op string, endpoint string, s string) (uint64, error) {
	ret, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, protocol.DecodeError(op, endpoint, fmt.Errorf("invalid logical time %q: %w", s, err))
	}
	return ret, nil
}

func decodeContractState(endpoint string, result *ContractState) (ledger.RawContractState, error) {
	const op = MethodGetContractState
	switch result.Type {
	case StateTypeNotExists:
		return ledger.NotExists(), nil
	case StateTypeExists:
	default:
		return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, fmt.Errorf("unknown state type %q", result.Type))
	}
	if result.Timings == nil || result.LastTransactionId == nil {
		return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, errors.New("incomplete contract state"))
	}
	genLt, err := decodeLt(op, endpoint, result.Timings.GenLt)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	lastTx := ledger.LastTransactionId{IsExact: result.LastTransactionId.IsExact}
	if lastTx.Lt, err = decodeLt(op, endpoint, result.LastTransactionId.Lt); err != nil {
		return ledger.RawContractState{}, err
	}
	if result.LastTransactionId.Hash != "" {
		hash, err := base64.StdEncoding.DecodeString(result.LastTransactionId.Hash)
		if err != nil || len(hash) != len(lastTx.Hash) {
			return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, errors.New("invalid transaction hash"))
		}
		copy(lastTx.Hash[:], hash)
	}
	boc, err := base64.StdEncoding.DecodeString(result.Account)
	if err != nil {
		return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, err)
	}
	if len(boc) == 0 {
		return ledger.RawContractState{}, protocol.DecodeError(op, endpoint, errors.New("existing account has no data"))
	}
	return ledger.DecodeContractState(
		boc,
		ledger.GenTimings{GenLt: genLt, GenUtime: result.Timings.GenUtime},
		lastTx,
	)
}

func (b *Backend) GetContractState(ctx context.Context, addr address.Address) (ledger.RawContractState, error) {
	var result ContractState
	endpoint, err := b.call(ctx, MethodGetContractState, AddressParams{Address: addr.String()}, &result)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	state, err := decodeContractState(endpoint, &result)
	if err != nil {
		return ledger.RawContractState{}, err
	}
	if state.IsExists() && state.Existing.Account.Address != addr {
		return ledger.RawContractState{}, protocol.ProtocolError(
			MethodGetContractState,
			endpoint,
			fmt.Errorf("answer is for account %s", state.Existing.Account.Address),
		)
	}
	return state, nil
}

// GetContractStates issues one request per account, a bounded number at a time
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
	endpoint, err := b.call(
		ctx,
		MethodSendMessage,
		SendMessageParams{Message: base64.StdEncoding.EncodeToString(msg.Bytes)},
		nil,
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

func (b *Backend) GetTransactions(
	ctx context.Context,
	addr address.Address,
	from ledger.TransactionId,
	count int,
) (ledger.TransactionsBatch, error) {
	const op = MethodGetTransactionsList
	if count <= 0 {
		return ledger.TransactionsBatch{}, nil
	}
	params := TransactionsParams{
		Account: addr.String(),
		Limit:   count,
	}
	if !from.IsZero() {
		params.Lt = strconv.FormatUint(from.Lt, 10)
		params.Hash = base64.StdEncoding.EncodeToString(from.Hash[:])
	}
	var result []string
	endpoint, err := b.call(ctx, op, params, &result)
	if err != nil {
		return ledger.TransactionsBatch{}, err
	}
	if len(result) > count {
		return ledger.TransactionsBatch{}, protocol.ProtocolError(
			op,
			endpoint,
			fmt.Errorf("requested %d transactions, received %d", count, len(result)),
		)
	}
	txs := make([]*ledger.Transaction, 0, len(result))
	for _, item := range result {
		data, err := base64.StdEncoding.DecodeString(item)
		if err != nil {
			return ledger.TransactionsBatch{}, protocol.DecodeError(op, endpoint, err)
		}
		tx, err := ledger.NewTransactionFromBoc(data)
		if err != nil {
			return ledger.TransactionsBatch{}, err
		}
		if tx.Account != addr.Hash {
			return ledger.TransactionsBatch{}, protocol.ProtocolError(op, endpoint, fmt.Errorf("transaction %s belongs to another account", tx.Id()))
		}
		txs = append(txs, tx)
	}
	return transport.BuildTransactionsBatch(op, endpoint, from, txs)
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
