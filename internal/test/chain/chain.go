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

// Package chain provides an in-memory chain used by the mock servers in tests
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrMessageRejected    = errors.New("message rejected")
)

// Snapshot is the state of one account as seen at the current block
type Snapshot struct {
	Seqno    uint32
	GenLt    uint64
	GenUtime uint32
	// Boc is the serialized account, nil when the account does not exist
	Boc           []byte
	LastTransLt   uint64
	LastTransHash [32]byte
}

// ChangeFunc is called after an account changed
type ChangeFunc func(addr address.Address)

// Chain holds accounts, their history and submitted messages
type Chain struct {
	mutex     sync.Mutex
	seqno     uint32
	genLt     uint64
	genUtime  uint32
	accounts  map[address.Address][]byte
	history   map[address.Address][]*ledger.Transaction
	sent      [][]byte
	rejectAll bool
	watchers  []ChangeFunc
}

// New returns an empty chain at block 1 with genLt 1000
func New() *Chain {
	return &Chain{
		seqno:    1,
		genLt:    1000,
		genUtime: 1700000000,
		accounts: make(map[address.Address][]byte),
		history:  make(map[address.Address][]*ledger.Transaction),
	}
}

// Watch registers a callback for account changes
func (c *Chain) Watch(f ChangeFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.watchers = append(c.watchers, f)
}

func (c *Chain) notify(addr address.Address) {
	c.mutex.Lock()
	watchers := make([]ChangeFunc, len(c.watchers))
	copy(watchers, c.watchers)
	c.mutex.Unlock()
	for _, f := range watchers {
		f(addr)
	}
}

// SetGenLt moves the chain to a new block with the given logical time
func (c *Chain) SetGenLt(genLt uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.genLt = genLt
	c.seqno++
	c.genUtime++
}

// GenLt returns the logical time of the current block
func (c *Chain) GenLt() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.genLt
}

// SetAccount stores a record, serialized with the default bag options
func (c *Chain) SetAccount(rec *ledger.AccountRecord) error {
	boc, err := ledger.EncodeAccount(rec)
	if err != nil {
		return err
	}
	c.SetAccountBoc(rec.Address, boc)
	return nil
}

// SetAccountBoc stores serialized account bytes as they are
func (c *Chain) SetAccountBoc(addr address.Address, boc []byte) {
	c.mutex.Lock()
	c.accounts[addr] = boc
	c.mutex.Unlock()
	c.notify(addr)
}

// DeleteAccount removes an account
func (c *Chain) DeleteAccount(addr address.Address) {
	c.mutex.Lock()
	delete(c.accounts, addr)
	c.mutex.Unlock()
	c.notify(addr)
}

// Snapshot returns the current state of an account
func (c *Chain) Snapshot(addr address.Address) Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := Snapshot{
		Seqno:    c.seqno,
		GenLt:    c.genLt,
		GenUtime: c.genUtime,
		Boc:      c.accounts[addr],
	}
	if txs := c.history[addr]; len(txs) > 0 {
		ret.LastTransLt = txs[0].Lt
		ret.LastTransHash = txs[0].Hash()
	} else if ret.Boc != nil {
		if rec, err := ledger.NewAccountRecordFromBoc(ret.Boc); err == nil {
			ret.LastTransLt = rec.LastTransLt
		}
	}
	return ret
}

// AddTransactions appends n transactions to the history of an account, each
// linked to the previous one, and returns the whole history newest first
func (c *Chain) AddTransactions(addr address.Address, n int) ([]*ledger.Transaction, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	empty, err := cell.NewBuilder().EndCell()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		var prev ledger.TransactionId
		if txs := c.history[addr]; len(txs) > 0 {
			prev = txs[0].Id()
		}
		c.genLt += 10
		inMsg, err := cell.NewBuilder().StoreUint(c.genLt, 64).EndCell()
		if err != nil {
			return nil, err
		}
		tx := &ledger.Transaction{
			Account:       addr.Hash,
			Lt:            c.genLt,
			PrevTransHash: prev.Hash,
			PrevTransLt:   prev.Lt,
			Now:           c.genUtime,
			OrigStatus:    ledger.AccountStatusActive,
			EndStatus:     ledger.AccountStatusActive,
			InMessage:     inMsg,
			TotalFees:     *uint256.NewInt(1000),
			StateUpdate:   empty,
			Description:   empty,
		}
		root, err := tx.Build()
		if err != nil {
			return nil, err
		}
		boc, err := cell.Serialize(root)
		if err != nil {
			return nil, err
		}
		// Decode again so the transaction carries its canonical bytes
		decoded, err := ledger.NewTransactionFromBoc(boc)
		if err != nil {
			return nil, err
		}
		c.history[addr] = append([]*ledger.Transaction{decoded}, c.history[addr]...)
	}
	ret := make([]*ledger.Transaction, len(c.history[addr]))
	copy(ret, c.history[addr])
	return ret, nil
}

// Transactions returns up to count transactions, newest first, starting at
// from. A zero from starts at the latest transaction
func (c *Chain) Transactions(
	addr address.Address,
	from ledger.TransactionId,
	count int,
) ([]*ledger.Transaction, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	txs := c.history[addr]
	start := 0
	if !from.IsZero() {
		start = -1
		for i, tx := range txs {
			if tx.Lt == from.Lt && (from.Hash == [32]byte{} || tx.Hash() == from.Hash) {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, from)
		}
	}
	end := min(start+count, len(txs))
	ret := make([]*ledger.Transaction, end-start)
	copy(ret, txs[start:end])
	return ret, nil
}

// RejectMessages makes Submit refuse every message
func (c *Chain) RejectMessages(reject bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rejectAll = reject
}

// Submit accepts a serialized external message
func (c *Chain) Submit(boc []byte) error {
	if _, err := ledger.ParseExternalMessage(boc); err != nil {
		return fmt.Errorf("%w: %w", ErrMessageRejected, err)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.rejectAll {
		return ErrMessageRejected
	}
	tmp := make([]byte, len(boc))
	copy(tmp, boc)
	c.sent = append(c.sent, tmp)
	return nil
}

// Sent returns the accepted messages
func (c *Chain) Sent() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ret := make([][]byte, len(c.sent))
	copy(ret, c.sent)
	return ret
}
