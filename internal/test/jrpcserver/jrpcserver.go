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

// Package jrpcserver provides a JSON-RPC API backed by an in-memory chain for
// use in tests
package jrpcserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/internal/test/chain"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/transport/jrpc"
)

// Server serves the JSON-RPC API over HTTP
type Server struct {
	*httptest.Server
	chain    *chain.Chain
	requests atomic.Int64
	inexact  atomic.Bool
}

// New starts a Server for c
func New(c *chain.Chain) *Server {
	s := &Server{chain: c}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns the number of requests served
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// SetInexact makes the server report the last transaction by logical time only
func (s *Server) SetInexact(inexact bool) {
	s.inexact.Store(inexact)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	var req jrpc.Request
	resp := jrpc.Response{JSONRPC: "2.0"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error = &jrpc.Error{Code: jrpc.CodeParseError, Message: err.Error()}
	} else {
		resp.ID = req.ID
		result, rpcErr := s.dispatch(&req)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = &jrpc.Error{Code: jrpc.CodeInternalError, Message: err.Error()}
			}
			resp.Result = data
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func invalidParams(err error) *jrpc.Error {
	return &jrpc.Error{Code: jrpc.CodeInvalidParams, Message: err.Error()}
}

func (s *Server) dispatch(req *jrpc.Request) (any, *jrpc.Error) {
	switch req.Method {
	case jrpc.MethodGetContractState:
		var params jrpc.AddressParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(err)
		}
		addr, err := address.Parse(params.Address)
		if err != nil {
			return nil, invalidParams(err)
		}
		return s.contractState(addr), nil
	case jrpc.MethodSendMessage:
		var params jrpc.SendMessageParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(err)
		}
		boc, err := base64.StdEncoding.DecodeString(params.Message)
		if err != nil {
			return nil, invalidParams(err)
		}
		if err := s.chain.Submit(boc); err != nil {
			return nil, invalidParams(err)
		}
		return nil, nil
	case jrpc.MethodGetTransactionsList:
		var params jrpc.TransactionsParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(err)
		}
		return s.transactions(&params)
	default:
		return nil, &jrpc.Error{Code: jrpc.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) contractState(addr address.Address) *jrpc.ContractState {
	snap := s.chain.Snapshot(addr)
	if snap.Boc == nil {
		return &jrpc.ContractState{Type: jrpc.StateTypeNotExists}
	}
	ret := &jrpc.ContractState{
		Type:    jrpc.StateTypeExists,
		Account: base64.StdEncoding.EncodeToString(snap.Boc),
		Timings: &jrpc.Timings{
			GenLt:    strconv.FormatUint(snap.GenLt, 10),
			GenUtime: snap.GenUtime,
		},
		LastTransactionId: &jrpc.LastTransactionId{
			Lt: strconv.FormatUint(snap.LastTransLt, 10),
		},
	}
	if !s.inexact.Load() && snap.LastTransHash != ([32]byte{}) {
		ret.LastTransactionId.IsExact = true
		ret.LastTransactionId.Hash = base64.StdEncoding.EncodeToString(snap.LastTransHash[:])
	}
	return ret
}

func (s *Server) transactions(params *jrpc.TransactionsParams) (any, *jrpc.Error) {
	addr, err := address.Parse(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	if params.Limit < 0 {
		return nil, invalidParams(errors.New("negative limit"))
	}
	var from ledger.TransactionId
	if params.Lt != "" {
		if from.Lt, err = strconv.ParseUint(params.Lt, 10, 64); err != nil {
			return nil, invalidParams(err)
		}
		hash, err := base64.StdEncoding.DecodeString(params.Hash)
		if err != nil || (len(hash) != 0 && len(hash) != 32) {
			return nil, invalidParams(errors.New("invalid hash"))
		}
		copy(from.Hash[:], hash)
	}
	txs, err := s.chain.Transactions(addr, from, params.Limit)
	if err != nil {
		return nil, &jrpc.Error{Code: jrpc.CodeServerError, Message: err.Error()}
	}
	ret := make([]string, 0, len(txs))
	for _, tx := range txs {
		ret = append(ret, base64.StdEncoding.EncodeToString(tx.Bytes()))
	}
	return ret, nil
}
