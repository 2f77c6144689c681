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

package jrpc

import (
	"encoding/json"
	"fmt"
)

// Method names
const (
	MethodGetContractState    = "getContractState"
	MethodSendMessage         = "sendMessage"
	MethodGetTransactionsList = "getTransactionsList"
)

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is used for application errors
	CodeServerError = -32000
)

// Contract state types
const (
	StateTypeExists    = "exists"
	StateTypeNotExists = "notExists"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type AddressParams struct {
	Address string `json:"address"`
}

type SendMessageParams struct {
	// Message is the base64 encoded serialized message
	Message string `json:"message"`
}

type TransactionsParams struct {
	Account string `json:"account"`
	Limit   int    `json:"limit"`
	// Lt and Hash select the newest transaction returned. Both are omitted for the latest
	Lt   string `json:"lt,omitempty"`
	Hash string `json:"hash,omitempty"`
}

type Timings struct {
	GenLt    string `json:"genLt"`
	GenUtime uint32 `json:"genUtime"`
}

type LastTransactionId struct {
	IsExact bool   `json:"isExact"`
	Lt      string `json:"lt"`
	Hash    string `json:"hash,omitempty"`
}

// ContractState is the result of getContractState
type ContractState struct {
	Type              string             `json:"type"`
	Account           string             `json:"account,omitempty"`
	Timings           *Timings           `json:"timings,omitempty"`
	LastTransactionId *LastTransactionId `json:"lastTransactionId,omitempty"`
}
