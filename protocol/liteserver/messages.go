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
	"fmt"

	"github.com/blinklabs-io/goton/cbor"
	"github.com/blinklabs-io/goton/protocol"
)

// Message types
const (
	MessageTypeError               = 0
	MessageTypeGetMasterchainInfo  = 1
	MessageTypeMasterchainInfo     = 2
	MessageTypeGetAccountState     = 3
	MessageTypeAccountState        = 4
	MessageTypeSendMessage         = 5
	MessageTypeSendMsgStatus       = 6
	MessageTypeGetTransactions     = 7
	MessageTypeTransactionList     = 8
	MessageTypeSubscribeAccount    = 9
	MessageTypeSubscribed          = 10
	MessageTypeUnsubscribe         = 11
	MessageTypeUnsubscribed        = 12
	MessageTypeAccountStateChanged = 13
)

// Error codes carried by MsgError
const (
	ErrorCodeInvalidMessage int32 = 1
	ErrorCodeInvalidQuery   int32 = 2
	ErrorCodeInternal       int32 = 3
	ErrorCodeUnsupported    int32 = 4
)

// NewMsgFromCbor parses a lite-server message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeError:
		ret = &MsgError{}
	case MessageTypeGetMasterchainInfo:
		ret = &MsgGetMasterchainInfo{}
	case MessageTypeMasterchainInfo:
		ret = &MsgMasterchainInfo{}
	case MessageTypeGetAccountState:
		ret = &MsgGetAccountState{}
	case MessageTypeAccountState:
		ret = &MsgAccountState{}
	case MessageTypeSendMessage:
		ret = &MsgSendMessage{}
	case MessageTypeSendMsgStatus:
		ret = &MsgSendMsgStatus{}
	case MessageTypeGetTransactions:
		ret = &MsgGetTransactions{}
	case MessageTypeTransactionList:
		ret = &MsgTransactionList{}
	case MessageTypeSubscribeAccount:
		ret = &MsgSubscribeAccount{}
	case MessageTypeSubscribed:
		ret = &MsgSubscribed{}
	case MessageTypeUnsubscribe:
		ret = &MsgUnsubscribe{}
	case MessageTypeUnsubscribed:
		ret = &MsgUnsubscribed{}
	case MessageTypeAccountStateChanged:
		ret = &MsgAccountStateChanged{}
	default:
		return nil, fmt.Errorf("%s: unknown message type %d", ProtocolName, msgType)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

// DecodeMessage parses a lite-server message of any type
func DecodeMessage(data []byte) (protocol.Message, error) {
	msgType, err := cbor.DecodeIdFromList(data)
	if err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	return NewMsgFromCbor(uint(msgType), data)
}

// AccountId identifies an account on the wire
type AccountId struct {
	cbor.StructAsArray
	Workchain int32
	Id        []byte
}

// AccountStateData is a serialized account with the snapshot it was read from
type AccountStateData struct {
	cbor.StructAsArray
	Account       AccountId
	GenLt         uint64
	GenUtime      uint32
	LastTransLt   uint64
	LastTransHash []byte
	// State is the serialized account, empty when the account has no storage entry
	State []byte
}

type MsgError struct {
	protocol.MessageBase
	Code    int32
	Message string
}

func NewMsgError(code int32, message string) *MsgError {
	return &MsgError{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeError,
		},
		Code:    code,
		Message: message,
	}
}

func (m *MsgError) Error() string {
	return fmt.Sprintf("%s: error %d: %s", ProtocolName, m.Code, m.Message)
}

type MsgGetMasterchainInfo struct {
	protocol.MessageBase
}

func NewMsgGetMasterchainInfo() *MsgGetMasterchainInfo {
	return &MsgGetMasterchainInfo{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeGetMasterchainInfo,
		},
	}
}

type MsgMasterchainInfo struct {
	protocol.MessageBase
	Seqno    uint32
	GenLt    uint64
	GenUtime uint32
}

func NewMsgMasterchainInfo(seqno uint32, genLt uint64, genUtime uint32) *MsgMasterchainInfo {
	return &MsgMasterchainInfo{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeMasterchainInfo,
		},
		Seqno:    seqno,
		GenLt:    genLt,
		GenUtime: genUtime,
	}
}

type MsgGetAccountState struct {
	protocol.MessageBase
	Account AccountId
}

func NewMsgGetAccountState(account AccountId) *MsgGetAccountState {
	return &MsgGetAccountState{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeGetAccountState,
		},
		Account: account,
	}
}

type MsgAccountState struct {
	protocol.MessageBase
	State AccountStateData
}

func NewMsgAccountState(state AccountStateData) *MsgAccountState {
	return &MsgAccountState{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeAccountState,
		},
		State: state,
	}
}

type MsgSendMessage struct {
	protocol.MessageBase
	Body []byte
}

func NewMsgSendMessage(body []byte) *MsgSendMessage {
	return &MsgSendMessage{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeSendMessage,
		},
		Body: body,
	}
}

type MsgSendMsgStatus struct {
	protocol.MessageBase
	Status int32
}

func NewMsgSendMsgStatus(status int32) *MsgSendMsgStatus {
	return &MsgSendMsgStatus{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeSendMsgStatus,
		},
		Status: status,
	}
}

// MsgGetTransactions requests up to Count transactions, newest first,
// starting at (and including) the transaction identified by Lt and Hash
type MsgGetTransactions struct {
	protocol.MessageBase
	Account AccountId
	Count   uint32
	Lt      uint64
	Hash    []byte
}

func NewMsgGetTransactions(account AccountId, count uint32, lt uint64, hash []byte) *MsgGetTransactions {
	return &MsgGetTransactions{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeGetTransactions,
		},
		Account: account,
		Count:   count,
		Lt:      lt,
		Hash:    hash,
	}
}

type MsgTransactionList struct {
	protocol.MessageBase
	Transactions [][]byte
}

func NewMsgTransactionList(transactions [][]byte) *MsgTransactionList {
	return &MsgTransactionList{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeTransactionList,
		},
		Transactions: transactions,
	}
}

type MsgSubscribeAccount struct {
	protocol.MessageBase
	Account AccountId
}

func NewMsgSubscribeAccount(account AccountId) *MsgSubscribeAccount {
	return &MsgSubscribeAccount{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeSubscribeAccount,
		},
		Account: account,
	}
}

type MsgSubscribed struct {
	protocol.MessageBase
	SubscriptionId uint64
}

func NewMsgSubscribed(subscriptionId uint64) *MsgSubscribed {
	return &MsgSubscribed{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeSubscribed,
		},
		SubscriptionId: subscriptionId,
	}
}

type MsgUnsubscribe struct {
	protocol.MessageBase
	SubscriptionId uint64
}

func NewMsgUnsubscribe(subscriptionId uint64) *MsgUnsubscribe {
	return &MsgUnsubscribe{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeUnsubscribe,
		},
		SubscriptionId: subscriptionId,
	}
}

type MsgUnsubscribed struct {
	protocol.MessageBase
}

func NewMsgUnsubscribed() *MsgUnsubscribed {
	return &MsgUnsubscribed{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeUnsubscribed,
		},
	}
}

// MsgAccountStateChanged is pushed by the server for every new state of a subscribed account
type MsgAccountStateChanged struct {
	protocol.MessageBase
	SubscriptionId uint64
	State          AccountStateData
}

func NewMsgAccountStateChanged(subscriptionId uint64, state AccountStateData) *MsgAccountStateChanged {
	return &MsgAccountStateChanged{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeAccountStateChanged,
		},
		SubscriptionId: subscriptionId,
		State:          state,
	}
}
