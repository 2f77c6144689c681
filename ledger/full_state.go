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

package ledger

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
)

// FullContractState is the flattened view of an existing account exposed to
// callers outside of Go
type FullContractState struct {
	Balance           string                `json:"balance"`
	GenTimings        FullGenTimings        `json:"genTimings"`
	LastTransactionId FullLastTransactionId `json:"lastTransactionId"`
	IsDeployed        bool                  `json:"isDeployed"`
	Boc               string                `json:"boc"`
}

type FullGenTimings struct {
	GenLt    string `json:"genLt"`
	GenUtime uint32 `json:"genUtime"`
}

type FullLastTransactionId struct {
	IsExact bool   `json:"isExact"`
	Lt      string `json:"lt"`
	Hash    string `json:"hash,omitempty"`
}

// NewFullContractState returns the flattened view of state, or nil if the account does not exist
func NewFullContractState(state RawContractState) *FullContractState {
	if state.Existing == nil {
		return nil
	}
	ex := state.Existing
	ret := &FullContractState{
		Balance: ex.Account.Balance.Dec(),
		GenTimings: FullGenTimings{
			GenLt:    strconv.FormatUint(ex.Timings.GenLt, 10),
			GenUtime: ex.Timings.GenUtime,
		},
		LastTransactionId: FullLastTransactionId{
			IsExact: ex.LastTransactionId.IsExact,
			Lt:      strconv.FormatUint(ex.LastTransactionId.Lt, 10),
		},
		IsDeployed: ex.Account.IsDeployed(),
		Boc:        base64.StdEncoding.EncodeToString(ex.Account.Bytes()),
	}
	if ex.LastTransactionId.IsExact {
		ret.LastTransactionId.Hash = hex.EncodeToString(ex.LastTransactionId.Hash[:])
	}
	return ret
}
