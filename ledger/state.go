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

// Package ledger holds the canonical, backend-independent representation of
// account state and transaction history.
package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/goton/protocol"
)

const decodeOp = "decode"

func decodeError(err error) error {
	return protocol.DecodeError(decodeOp, "", err)
}

// GenTimings identifies the chain snapshot a state was read from
type GenTimings struct {
	GenLt    uint64
	GenUtime uint32
}

// LastTransactionId identifies the most recent transaction of an account.
// When IsExact is false, Lt is only a lower bound and Hash is unset
type LastTransactionId struct {
	IsExact bool
	Lt      uint64
	Hash    [32]byte
}

// TransactionId identifies a transaction and serves as a history cursor
type TransactionId struct {
	Lt   uint64
	Hash [32]byte
}

// IsZero reports whether the id is the zero value, which as a cursor means "latest"
func (t TransactionId) IsZero() bool {
	return t == TransactionId{}
}

func (t TransactionId) String() string {
	return fmt.Sprintf("%d:%s", t.Lt, hex.EncodeToString(t.Hash[:]))
}

// ExistingContract is the full state of an account that exists on chain
type ExistingContract struct {
	Account           AccountRecord
	Timings           GenTimings
	LastTransactionId LastTransactionId
}

// RawContractState is either NotExists (Existing is nil) or Exists
type RawContractState struct {
	Existing *ExistingContract
}

// NotExists returns the state of an account with no storage entry
func NotExists() RawContractState {
	return RawContractState{}
}

// Exists returns the state of an existing account
func Exists(contract ExistingContract) RawContractState {
	return RawContractState{Existing: &contract}
}

// IsExists reports whether the account exists
func (s RawContractState) IsExists() bool {
	return s.Existing != nil
}

func (s RawContractState) String() string {
	if s.Existing == nil {
		return "NotExists"
	}
	return fmt.Sprintf(
		"Exists{address=%s state=%s balance=%s genLt=%d}",
		s.Existing.Account.Address,
		s.Existing.Account.StorageState,
		s.Existing.Account.Balance.Dec(),
		s.Existing.Timings.GenLt,
	)
}

// DecodeContractState builds a RawContractState from a serialized account and
// the snapshot metadata reported alongside it. An empty input or an
// account_none record yields NotExists. Malformed input fails with a decode
// error and never produces a default value
func DecodeContractState(
	boc []byte,
	timings GenTimings,
	lastTx LastTransactionId,
) (RawContractState, error) {
	if len(boc) == 0 {
		return NotExists(), nil
	}
	rec, err := decodeAccount(boc)
	if err != nil {
		return RawContractState{}, err
	}
	if rec == nil {
		return NotExists(), nil
	}
	return Exists(
		ExistingContract{
			Account:           *rec,
			Timings:           timings,
			LastTransactionId: lastTx,
		},
	), nil
}
