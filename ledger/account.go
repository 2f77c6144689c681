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
	"errors"
	"fmt"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/holiman/uint256"
)

// StorageState is the lifecycle state of an account's code and data
type StorageState uint8

const (
	StorageUninit StorageState = iota
	StorageActive
	StorageFrozen
)

func (s StorageState) String() string {
	switch s {
	case StorageUninit:
		return "uninit"
	case StorageActive:
		return "active"
	case StorageFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("StorageState(%d)", uint8(s))
	}
}

// StorageUsed is the storage accounting of an account
type StorageUsed struct {
	Cells       uint64
	Bits        uint64
	PublicCells uint64
}

// TickTock marks a special account invoked at the start or end of each block
type TickTock struct {
	Tick bool
	Tock bool
}

// StateInit holds the code and data of a deployed account
type StateInit struct {
	SplitDepth *uint8
	Special    *TickTock
	Code       *cell.Cell
	Data       *cell.Cell
	Library    *cell.Cell
}

// AccountRecord is a parsed account together with the bytes it was decoded from
type AccountRecord struct {
	Address         address.Address
	Anycast         *Anycast
	StorageUsed     StorageUsed
	LastPaid        uint32
	DuePayment      *uint256.Int
	LastTransLt     uint64
	Balance         uint256.Int
	ExtraCurrencies *cell.Cell
	StorageState    StorageState
	StateInit       *StateInit
	FrozenHash      [32]byte
	addrVar         bool
	root            *cell.Cell
	bag             *cell.Bag
}

// IsDeployed reports whether the account has active code and data
func (a *AccountRecord) IsDeployed() bool {
	return a.StorageState == StorageActive
}

// Hash returns the representation hash of the account cell
func (a *AccountRecord) Hash() [32]byte {
	if a.root == nil {
		return [32]byte{}
	}
	return a.root.Hash()
}

// Bytes returns the canonical serialized account, byte for byte as it was
// received. It returns nil for a record that was not decoded from bytes
func (a *AccountRecord) Bytes() []byte {
	if a.bag == nil {
		return nil
	}
	return a.bag.Encode()
}

// Build rebuilds the account cell from the parsed fields
func (a *AccountRecord) Build() (*cell.Cell, error) {
	b := cell.NewBuilder().StoreBit(true)
	storeMsgAddressInt(b, msgAddressInt{addr: a.Address, anycast: a.Anycast, isVar: a.addrVar})
	used := []uint64{a.StorageUsed.Cells, a.StorageUsed.Bits, a.StorageUsed.PublicCells}
	for _, v := range used {
		b.StoreVarUint(uint256.NewInt(v), 3)
	}
	b.StoreUint(uint64(a.LastPaid), 32)
	if a.DuePayment != nil {
		b.StoreBit(true).StoreCoins(a.DuePayment)
	} else {
		b.StoreBit(false)
	}
	b.StoreUint(a.LastTransLt, 64)
	b.StoreCoins(&a.Balance)
	b.StoreMaybeRef(a.ExtraCurrencies)
	switch a.StorageState {
	case StorageActive:
		b.StoreBit(true)
		si := a.StateInit
		if si == nil {
			si = &StateInit{}
		}
		if si.SplitDepth != nil {
			b.StoreBit(true).StoreUint(uint64(*si.SplitDepth), 5)
		} else {
			b.StoreBit(false)
		}
		if si.Special != nil {
			b.StoreBit(true).StoreBit(si.Special.Tick).StoreBit(si.Special.Tock)
		} else {
			b.StoreBit(false)
		}
		b.StoreMaybeRef(si.Code).
			StoreMaybeRef(si.Data).
			StoreMaybeRef(si.Library)
	case StorageUninit:
		b.StoreUint(0b00, 2)
	case StorageFrozen:
		b.StoreUint(0b01, 2).StoreBytes(a.FrozenHash[:])
	default:
		return nil, fmt.Errorf("unknown storage state %d", a.StorageState)
	}
	return b.EndCell()
}

// EncodeAccount returns the canonical bytes of an account record. Decoded
// records return their original bytes, others are serialized from their fields
func EncodeAccount(a *AccountRecord) ([]byte, error) {
	if a.bag != nil {
		return a.bag.Encode(), nil
	}
	root, err := a.Build()
	if err != nil {
		return nil, err
	}
	return cell.Serialize(root)
}

var errAccountNone = errors.New("account does not exist")

// NewAccountRecordFromBoc decodes an account from its serialized cell tree
func NewAccountRecordFromBoc(data []byte) (*AccountRecord, error) {
	rec, err := decodeAccount(data)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, decodeError(errAccountNone)
	}
	return rec, nil
}

// decodeAccount returns a nil record for account_none
func decodeAccount(data []byte) (*AccountRecord, error) {
	bag, err := cell.DecodeBag(data)
	if err != nil {
		return nil, decodeError(err)
	}
	root, err := bag.Root()
	if err != nil {
		return nil, decodeError(err)
	}
	rec, err := parseAccount(root)
	if err != nil {
		return nil, decodeError(fmt.Errorf("account: %w", err))
	}
	if rec == nil {
		return nil, nil
	}
	rec.root = root
	rec.bag = bag
	return rec, nil
}

func parseAccount(root *cell.Cell) (*AccountRecord, error) {
	s := root.BeginParse()
	tag, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !tag {
		// account_none$0
		if s.BitsLeft() != 0 || s.RefsLeft() != 0 {
			return nil, errors.New("unexpected data after account_none")
		}
		return nil, nil
	}
	rec := &AccountRecord{}
	addr, err := loadMsgAddressInt(s)
	if err != nil {
		return nil, err
	}
	rec.Address = addr.addr
	rec.Anycast = addr.anycast
	rec.addrVar = addr.isVar
	used := make([]uint64, 3)
	for i := range used {
		v, err := s.LoadVarUint(3)
		if err != nil {
			return nil, err
		}
		used[i] = v.Uint64()
	}
	rec.StorageUsed = StorageUsed{Cells: used[0], Bits: used[1], PublicCells: used[2]}
	lastPaid, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	rec.LastPaid = uint32(lastPaid)
	hasDue, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if hasDue {
		if rec.DuePayment, err = s.LoadCoins(); err != nil {
			return nil, err
		}
	}
	if rec.LastTransLt, err = s.LoadUint(64); err != nil {
		return nil, err
	}
	balance, err := s.LoadCoins()
	if err != nil {
		return nil, err
	}
	rec.Balance = *balance
	if rec.ExtraCurrencies, err = s.LoadMaybeRef(); err != nil {
		return nil, err
	}
	active, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if active {
		rec.StorageState = StorageActive
		if rec.StateInit, err = parseStateInit(s); err != nil {
			return nil, err
		}
	} else {
		frozen, err := s.LoadBit()
		if err != nil {
			return nil, err
		}
		if frozen {
			rec.StorageState = StorageFrozen
			hash, err := s.LoadBytes(32)
			if err != nil {
				return nil, err
			}
			copy(rec.FrozenHash[:], hash)
		} else {
			rec.StorageState = StorageUninit
		}
	}
	if s.BitsLeft() != 0 || s.RefsLeft() != 0 {
		return nil, fmt.Errorf("%d bits and %d references left unparsed", s.BitsLeft(), s.RefsLeft())
	}
	return rec, nil
}

func parseStateInit(s *cell.Slice) (*StateInit, error) {
	ret := &StateInit{}
	hasSplit, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if hasSplit {
		depth, err := s.LoadUint(5)
		if err != nil {
			return nil, err
		}
		tmp := uint8(depth)
		ret.SplitDepth = &tmp
	}
	hasSpecial, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if hasSpecial {
		tick, err := s.LoadBit()
		if err != nil {
			return nil, err
		}
		tock, err := s.LoadBit()
		if err != nil {
			return nil, err
		}
		ret.Special = &TickTock{Tick: tick, Tock: tock}
	}
	if ret.Code, err = s.LoadMaybeRef(); err != nil {
		return nil, err
	}
	if ret.Data, err = s.LoadMaybeRef(); err != nil {
		return nil, err
	}
	if ret.Library, err = s.LoadMaybeRef(); err != nil {
		return nil, err
	}
	return ret, nil
}
