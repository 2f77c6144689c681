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

package cell

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Slice is a read cursor over the bits and references of a cell
type Slice struct {
	cell   *Cell
	bitPos int
	bitEnd int
	refPos int
}

func (s *Slice) clone() *Slice {
	tmp := *s
	return &tmp
}

// BitsLeft returns the number of unread data bits
func (s *Slice) BitsLeft() int {
	return s.bitEnd - s.bitPos
}

// RefsLeft returns the number of unread references
func (s *Slice) RefsLeft() int {
	return len(s.cell.refs) - s.refPos
}

func (s *Slice) need(bits int) error {
	if bits < 0 || s.BitsLeft() < bits {
		return fmt.Errorf("%w: need %d bits, have %d", ErrCellUnderflow, bits, s.BitsLeft())
	}
	return nil
}

func (s *Slice) readBit() bool {
	ret := s.cell.data[s.bitPos/8]>>(7-uint(s.bitPos%8))&1 == 1
	s.bitPos++
	return ret
}

// LoadBit reads a single bit
func (s *Slice) LoadBit() (bool, error) {
	if err := s.need(1); err != nil {
		return false, err
	}
	return s.readBit(), nil
}

// LoadUint reads an unsigned integer of the given bit width
func (s *Slice) LoadUint(bits int) (uint64, error) {
	if bits > 64 {
		return 0, fmt.Errorf("cell: invalid integer width %d", bits)
	}
	if err := s.need(bits); err != nil {
		return 0, err
	}
	var ret uint64
	for i := 0; i < bits; i++ {
		ret <<= 1
		if s.readBit() {
			ret |= 1
		}
	}
	return ret, nil
}

// LoadInt reads a two's complement signed integer of the given bit width
func (s *Slice) LoadInt(bits int) (int64, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("cell: invalid integer width %d", bits)
	}
	v, err := s.LoadUint(bits)
	if err != nil {
		return 0, err
	}
	if bits < 64 && v&(uint64(1)<<uint(bits-1)) != 0 {
		v |= ^uint64(0) << uint(bits)
	}
	return int64(v), nil
}

// LoadBits reads the given number of bits, returned left-aligned in a byte slice
func (s *Slice) LoadBits(bits int) ([]byte, error) {
	if err := s.need(bits); err != nil {
		return nil, err
	}
	ret := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		if s.readBit() {
			ret[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return ret, nil
}

// LoadBytes reads n whole bytes
func (s *Slice) LoadBytes(n int) ([]byte, error) {
	return s.LoadBits(n * 8)
}

// LoadRef reads the next reference
func (s *Slice) LoadRef() (*Cell, error) {
	if s.RefsLeft() < 1 {
		return nil, fmt.Errorf("%w: no references left", ErrCellUnderflow)
	}
	ret := s.cell.refs[s.refPos]
	s.refPos++
	return ret, nil
}

// LoadMaybeRef reads a Maybe ^Cell, returning nil when absent
func (s *Slice) LoadMaybeRef() (*Cell, error) {
	present, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return s.LoadRef()
}

// LoadVarUint reads a variable-length unsigned integer with a lenBits-bit byte length prefix
func (s *Slice) LoadVarUint(lenBits int) (*uint256.Int, error) {
	byteLen, err := s.LoadUint(lenBits)
	if err != nil {
		return nil, err
	}
	if byteLen > 32 {
		return nil, fmt.Errorf("cell: variable integer length %d too large", byteLen)
	}
	data, err := s.LoadBytes(int(byteLen))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

// LoadCoins reads a currency amount (VarUInteger 16)
func (s *Slice) LoadCoins() (*uint256.Int, error) {
	return s.LoadVarUint(4)
}

// ToCell builds a new cell from the unread remainder of the slice
func (s *Slice) ToCell() (*Cell, error) {
	return NewBuilder().StoreSlice(s).EndCell()
}
