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

	"github.com/blinklabs-io/goton/cell"
	"github.com/holiman/uint256"
)

const transactionTag = 0b0111

// AccountStatus is the account status recorded before and after a transaction
type AccountStatus uint8

const (
	AccountStatusUninit AccountStatus = iota
	AccountStatusFrozen
	AccountStatusActive
	AccountStatusNonExist
)

func (s AccountStatus) String() string {
	switch s {
	case AccountStatusUninit:
		return "uninit"
	case AccountStatusFrozen:
		return "frozen"
	case AccountStatusActive:
		return "active"
	case AccountStatusNonExist:
		return "nonexist"
	default:
		return fmt.Sprintf("AccountStatus(%d)", uint8(s))
	}
}

// Transaction is a parsed transaction header with its canonical bytes
type Transaction struct {
	Account       [32]byte
	Lt            uint64
	PrevTransHash [32]byte
	PrevTransLt   uint64
	Now           uint32
	OutMsgCount   uint16
	OrigStatus    AccountStatus
	EndStatus     AccountStatus
	InMessage     *cell.Cell
	OutMessages   *cell.Cell
	TotalFees     uint256.Int
	ExtraFees     *cell.Cell
	StateUpdate   *cell.Cell
	Description   *cell.Cell
	root          *cell.Cell
	bag           *cell.Bag
}

// TransactionsBatch is one page of account history, newest first. Next is the
// cursor for the following page and is nil once the start of history is reached
type TransactionsBatch struct {
	Transactions []*Transaction
	Next         *TransactionId
}

// Hash returns the transaction hash
func (t *Transaction) Hash() [32]byte {
	if t.root == nil {
		return [32]byte{}
	}
	return t.root.Hash()
}

// Id returns the transaction id
func (t *Transaction) Id() TransactionId {
	return TransactionId{Lt: t.Lt, Hash: t.Hash()}
}

// PrevId returns the id of the previous transaction of the same account
func (t *Transaction) PrevId() TransactionId {
	return TransactionId{Lt: t.PrevTransLt, Hash: t.PrevTransHash}
}

// Bytes returns the canonical serialized transaction
func (t *Transaction) Bytes() []byte {
	if t.bag == nil {
		return nil
	}
	return t.bag.Encode()
}

// Build rebuilds the transaction cell from its fields
func (t *Transaction) Build() (*cell.Cell, error) {
	msgs, err := cell.NewBuilder().
		StoreMaybeRef(t.InMessage).
		StoreMaybeRef(t.OutMessages).
		EndCell()
	if err != nil {
		return nil, err
	}
	if t.StateUpdate == nil || t.Description == nil {
		return nil, errors.New("transaction: state update and description are required")
	}
	return cell.NewBuilder().
		StoreUint(transactionTag, 4).
		StoreBytes(t.Account[:]).
		StoreUint(t.Lt, 64).
		StoreBytes(t.PrevTransHash[:]).
		StoreUint(t.PrevTransLt, 64).
		StoreUint(uint64(t.Now), 32).
		StoreUint(uint64(t.OutMsgCount), 15).
		StoreUint(uint64(t.OrigStatus), 2).
		StoreUint(uint64(t.EndStatus), 2).
		StoreRef(msgs).
		StoreCoins(&t.TotalFees).
		StoreMaybeRef(t.ExtraFees).
		StoreRef(t.StateUpdate).
		StoreRef(t.Description).
		EndCell()
}

// NewTransactionFromBoc decodes a transaction from its serialized cell tree
func NewTransactionFromBoc(data []byte) (*Transaction, error) {
	bag, err := cell.DecodeBag(data)
	if err != nil {
		return nil, decodeError(err)
	}
	root, err := bag.Root()
	if err != nil {
		return nil, decodeError(err)
	}
	tx, err := parseTransaction(root)
	if err != nil {
		return nil, decodeError(fmt.Errorf("transaction: %w", err))
	}
	tx.root = root
	tx.bag = bag
	return tx, nil
}

func parseTransaction(root *cell.Cell) (*Transaction, error) {
	s := root.BeginParse()
	tag, err := s.LoadUint(4)
	if err != nil {
		return nil, err
	}
	if tag != transactionTag {
		return nil, fmt.Errorf("unexpected tag %04b", tag)
	}
	tx := &Transaction{}
	account, err := s.LoadBytes(32)
	if err != nil {
		return nil, err
	}
	copy(tx.Account[:], account)
	if tx.Lt, err = s.LoadUint(64); err != nil {
		return nil, err
	}
	prevHash, err := s.LoadBytes(32)
	if err != nil {
		return nil, err
	}
	copy(tx.PrevTransHash[:], prevHash)
	if tx.PrevTransLt, err = s.LoadUint(64); err != nil {
		return nil, err
	}
	now, err := s.LoadUint(32)
	if err != nil {
		return nil, err
	}
	tx.Now = uint32(now)
	outCount, err := s.LoadUint(15)
	if err != nil {
		return nil, err
	}
	tx.OutMsgCount = uint16(outCount)
	origStatus, err := s.LoadUint(2)
	if err != nil {
		return nil, err
	}
	endStatus, err := s.LoadUint(2)
	if err != nil {
		return nil, err
	}
	tx.OrigStatus = AccountStatus(origStatus)
	tx.EndStatus = AccountStatus(endStatus)
	msgs, err := s.LoadRef()
	if err != nil {
		return nil, err
	}
	ms := msgs.BeginParse()
	if tx.InMessage, err = ms.LoadMaybeRef(); err != nil {
		return nil, err
	}
	if tx.OutMessages, err = ms.LoadMaybeRef(); err != nil {
		return nil, err
	}
	if ms.BitsLeft() != 0 || ms.RefsLeft() != 0 {
		return nil, errors.New("unexpected data in message references")
	}
	fees, err := s.LoadCoins()
	if err != nil {
		return nil, err
	}
	tx.TotalFees = *fees
	if tx.ExtraFees, err = s.LoadMaybeRef(); err != nil {
		return nil, err
	}
	if tx.StateUpdate, err = s.LoadRef(); err != nil {
		return nil, err
	}
	if tx.Description, err = s.LoadRef(); err != nil {
		return nil, err
	}
	if s.BitsLeft() != 0 || s.RefsLeft() != 0 {
		return nil, fmt.Errorf("%d bits and %d references left unparsed", s.BitsLeft(), s.RefsLeft())
	}
	return tx, nil
}
