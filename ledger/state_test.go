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

package ledger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = address.MustParse("0:" + strings.Repeat("abc", 21) + "a")

func mustCell(t *testing.T, b *cell.Builder) *cell.Cell {
	t.Helper()
	c, err := b.EndCell()
	require.NoError(t, err)
	return c
}

func activeAccount(t *testing.T) *ledger.AccountRecord {
	t.Helper()
	code := mustCell(t, cell.NewBuilder().StoreUint(0xff00f4a4, 32))
	data := mustCell(t, cell.NewBuilder().StoreUint(42, 64))
	return &ledger.AccountRecord{
		Address:      testAddr,
		StorageUsed:  ledger.StorageUsed{Cells: 3, Bits: 1200, PublicCells: 0},
		LastPaid:     1700000000,
		LastTransLt:  4999,
		Balance:      *uint256.NewInt(1_000_000_000),
		StorageState: ledger.StorageActive,
		StateInit: &ledger.StateInit{
			Code: code,
			Data: data,
		},
	}
}

func serializeAccount(t *testing.T, rec *ledger.AccountRecord, opts cell.Options) []byte {
	t.Helper()
	root, err := rec.Build()
	require.NoError(t, err)
	bag, err := cell.NewBag(opts, root)
	require.NoError(t, err)
	return bag.Encode()
}

func TestDecodeContractStateActive(t *testing.T) {
	boc := serializeAccount(t, activeAccount(t), cell.DefaultOptions)
	timings := ledger.GenTimings{GenLt: 5000, GenUtime: 1700000100}
	lastTx := ledger.LastTransactionId{IsExact: true, Lt: 4999}
	state, err := ledger.DecodeContractState(boc, timings, lastTx)
	require.NoError(t, err)
	require.True(t, state.IsExists())
	ex := state.Existing
	assert.Equal(t, testAddr, ex.Account.Address)
	assert.Equal(t, "1000000000", ex.Account.Balance.Dec())
	assert.True(t, ex.Account.IsDeployed())
	assert.Equal(t, ledger.StorageActive, ex.Account.StorageState)
	assert.Equal(t, uint64(4999), ex.Account.LastTransLt)
	assert.Equal(t, uint64(1200), ex.Account.StorageUsed.Bits)
	assert.Equal(t, timings, ex.Timings)
	assert.Equal(t, lastTx, ex.LastTransactionId)
	require.NotNil(t, ex.Account.StateInit)
	assert.NotNil(t, ex.Account.StateInit.Code)
	assert.NotNil(t, ex.Account.StateInit.Data)
}

func TestAccountRoundTrip(t *testing.T) {
	frozen := activeAccount(t)
	frozen.StorageState = ledger.StorageFrozen
	frozen.StateInit = nil
	frozen.FrozenHash = [32]byte{1, 2, 3}
	uninit := activeAccount(t)
	uninit.StorageState = ledger.StorageUninit
	uninit.StateInit = nil
	uninit.DuePayment = uint256.NewInt(17)
	special := activeAccount(t)
	depth := uint8(4)
	special.StateInit.SplitDepth = &depth
	special.StateInit.Special = &ledger.TickTock{Tick: true}
	special.Anycast = &ledger.Anycast{Depth: 3, Prefix: []byte{0xa0}}
	records := []*ledger.AccountRecord{activeAccount(t), frozen, uninit, special}
	optsList := []cell.Options{
		{},
		{CRC32C: true},
		{Index: true, CacheBits: true, CRC32C: true},
		{SizeBytes: 3, OffsetBytes: 5},
	}
	for _, rec := range records {
		for _, opts := range optsList {
			boc := serializeAccount(t, rec, opts)
			state, err := ledger.DecodeContractState(boc, ledger.GenTimings{GenLt: 1}, ledger.LastTransactionId{})
			require.NoError(t, err)
			require.True(t, state.IsExists())
			decoded := state.Existing.Account
			if !bytes.Equal(decoded.Bytes(), boc) {
				t.Fatalf("account bytes did not round-trip for state %s and options %+v", rec.StorageState, opts)
			}
			encoded, err := ledger.EncodeAccount(&decoded)
			require.NoError(t, err)
			assert.Equal(t, boc, encoded)
			rebuilt, err := decoded.Build()
			require.NoError(t, err)
			assert.Equal(t, decoded.Hash(), rebuilt.Hash())
			assert.Equal(t, rec.StorageState == ledger.StorageActive, decoded.IsDeployed())
		}
	}
}

func TestDecodeContractStateNotExists(t *testing.T) {
	state, err := ledger.DecodeContractState(nil, ledger.GenTimings{}, ledger.LastTransactionId{})
	require.NoError(t, err)
	assert.False(t, state.IsExists())

	none := mustCell(t, cell.NewBuilder().StoreBit(false))
	boc, err := cell.Serialize(none)
	require.NoError(t, err)
	state, err = ledger.DecodeContractState(boc, ledger.GenTimings{GenLt: 10}, ledger.LastTransactionId{})
	require.NoError(t, err)
	assert.False(t, state.IsExists())
	assert.Nil(t, ledger.NewFullContractState(state))
}

func TestDecodeContractStateMalformed(t *testing.T) {
	good := serializeAccount(t, activeAccount(t), cell.DefaultOptions)
	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1] ^= 0x01
	truncatedRoot := mustCell(t, cell.NewBuilder().StoreBit(true).StoreUint(0b10, 2))
	truncated, err := cell.Serialize(truncatedRoot)
	require.NoError(t, err)
	rec := activeAccount(t)
	root, err := rec.Build()
	require.NoError(t, err)
	trailingRoot := mustCell(t, cell.NewBuilder().StoreSlice(root.BeginParse()).StoreBit(true))
	trailing, err := cell.Serialize(trailingRoot)
	require.NoError(t, err)
	for _, boc := range [][]byte{corrupt, truncated, trailing, {0xb5, 0xee}} {
		_, err := ledger.DecodeContractState(boc, ledger.GenTimings{}, ledger.LastTransactionId{})
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrDecode)
	}
}

func TestFullContractState(t *testing.T) {
	boc := serializeAccount(t, activeAccount(t), cell.DefaultOptions)
	state, err := ledger.DecodeContractState(
		boc,
		ledger.GenTimings{GenLt: 5000, GenUtime: 1700000100},
		ledger.LastTransactionId{IsExact: true, Lt: 4999, Hash: [32]byte{0xaa}},
	)
	require.NoError(t, err)
	full := ledger.NewFullContractState(state)
	require.NotNil(t, full)
	assert.Equal(t, "1000000000", full.Balance)
	assert.True(t, full.IsDeployed)
	data, err := json.Marshal(full)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "5000", generic["genTimings"].(map[string]any)["genLt"])
	assert.Equal(t, "4999", generic["lastTransactionId"].(map[string]any)["lt"])
	assert.Equal(t, true, generic["lastTransactionId"].(map[string]any)["isExact"])
	assert.Equal(t, true, generic["isDeployed"])
	assert.NotEmpty(t, generic["boc"])
}
