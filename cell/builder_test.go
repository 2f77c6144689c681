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

package cell_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/goton/cell"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSliceValues(t *testing.T) {
	coins := uint256.NewInt(1_000_000_000)
	ref, err := cell.NewBuilder().StoreUint(1, 1).EndCell()
	require.NoError(t, err)
	c, err := cell.NewBuilder().
		StoreBit(true).
		StoreUint(0x1234, 16).
		StoreInt(-1, 8).
		StoreInt(-5, 32).
		StoreCoins(coins).
		StoreMaybeRef(nil).
		StoreMaybeRef(ref).
		EndCell()
	require.NoError(t, err)

	s := c.BeginParse()
	bit, err := s.LoadBit()
	require.NoError(t, err)
	assert.True(t, bit)
	u, err := s.LoadUint(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), u)
	i8, err := s.LoadInt(8)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i8)
	i32, err := s.LoadInt(32)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), i32)
	gotCoins, err := s.LoadCoins()
	require.NoError(t, err)
	assert.Equal(t, coins.Uint64(), gotCoins.Uint64())
	none, err := s.LoadMaybeRef()
	require.NoError(t, err)
	assert.Nil(t, none)
	some, err := s.LoadMaybeRef()
	require.NoError(t, err)
	assert.True(t, some.Equal(ref))
	assert.Equal(t, 0, s.BitsLeft())
	assert.Equal(t, 0, s.RefsLeft())

	_, err = s.LoadBit()
	assert.ErrorIs(t, err, cell.ErrCellUnderflow)
	_, err = s.LoadRef()
	assert.ErrorIs(t, err, cell.ErrCellUnderflow)
}

func TestBuilderOverflow(t *testing.T) {
	b := cell.NewBuilder()
	for i := 0; i < 16; i++ {
		b.StoreUint(0, 64)
	}
	_, err := b.EndCell()
	assert.ErrorIs(t, err, cell.ErrCellOverflow)

	leaf, err := cell.NewBuilder().EndCell()
	require.NoError(t, err)
	b = cell.NewBuilder()
	for i := 0; i < cell.MaxRefs+1; i++ {
		b.StoreRef(leaf)
	}
	_, err = b.EndCell()
	assert.ErrorIs(t, err, cell.ErrCellOverflow)
}

func TestBuilderRejectsWideValue(t *testing.T) {
	_, err := cell.NewBuilder().StoreUint(8, 3).EndCell()
	assert.Error(t, err)
	_, err = cell.NewBuilder().StoreInt(4, 3).EndCell()
	assert.Error(t, err)
}

func TestEmptyCellHash(t *testing.T) {
	c, err := cell.NewBuilder().EndCell()
	require.NoError(t, err)
	// Well-known representation hash of the empty ordinary cell
	h := c.Hash()
	assert.Equal(
		t,
		"96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7",
		hex.EncodeToString(h[:]),
	)
}

func TestStoreSliceCopiesRemainder(t *testing.T) {
	ref, err := cell.NewBuilder().StoreUint(3, 2).EndCell()
	require.NoError(t, err)
	src, err := cell.NewBuilder().StoreUint(0xab, 8).StoreUint(0x5, 3).StoreRef(ref).EndCell()
	require.NoError(t, err)
	s := src.BeginParse()
	_, err = s.LoadUint(8)
	require.NoError(t, err)
	rest, err := s.ToCell()
	require.NoError(t, err)
	assert.Equal(t, 3, rest.BitLen())
	assert.Equal(t, 1, rest.RefCount())
	v, err := rest.BeginParse().LoadUint(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
}
