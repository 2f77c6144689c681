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

package chain

import (
	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/holiman/uint256"
)

// ActiveAccount returns a deployed account with a small code and data cell
func ActiveAccount(addr address.Address, balance uint64, lastTransLt uint64) *ledger.AccountRecord {
	code, err := cell.NewBuilder().StoreUint(0xff00f4a4, 32).EndCell()
	if err != nil {
		panic(err)
	}
	data, err := cell.NewBuilder().StoreUint(lastTransLt, 64).EndCell()
	if err != nil {
		panic(err)
	}
	return &ledger.AccountRecord{
		Address:      addr,
		StorageUsed:  ledger.StorageUsed{Cells: 3, Bits: 1200},
		LastPaid:     1700000000,
		LastTransLt:  lastTransLt,
		Balance:      *uint256.NewInt(balance),
		StorageState: ledger.StorageActive,
		StateInit: &ledger.StateInit{
			Code: code,
			Data: data,
		},
	}
}

// UninitAccount returns an account that holds a balance but has no code
func UninitAccount(addr address.Address, balance uint64) *ledger.AccountRecord {
	return &ledger.AccountRecord{
		Address:      addr,
		StorageUsed:  ledger.StorageUsed{Cells: 1, Bits: 100},
		LastPaid:     1700000000,
		Balance:      *uint256.NewInt(balance),
		StorageState: ledger.StorageUninit,
	}
}

// FrozenAccount returns a frozen account
func FrozenAccount(addr address.Address, stateHash [32]byte) *ledger.AccountRecord {
	return &ledger.AccountRecord{
		Address:      addr,
		StorageUsed:  ledger.StorageUsed{Cells: 1, Bits: 100},
		LastPaid:     1700000000,
		StorageState: ledger.StorageFrozen,
		FrozenHash:   stateHash,
	}
}
