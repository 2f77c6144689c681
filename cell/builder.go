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
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrCellOverflow  = errors.New("cell overflow")
	ErrCellUnderflow = errors.New("cell underflow")
)

// Builder accumulates bits and references for a new cell. The first error
// encountered is retained and returned by EndCell, which allows chaining
// store calls without checking each one
type Builder struct {
	data   []byte
	bitLen int
	refs   []*Cell
	err    error
}

// NewBuilder returns an empty Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// BitLen returns the number of bits stored so far
func (b *Builder) BitLen() int {
	return b.bitLen
}

// Err returns the first error encountered by the builder, if any
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) reserve(bits int) bool {
	if b.err != nil {
		return false
	}
	if b.bitLen+bits > MaxBits {
		b.fail(fmt.Errorf("%w: cannot store %d bits after %d", ErrCellOverflow, bits, b.bitLen))
		return false
	}
	return true
}

func (b *Builder) appendBit(bit bool) {
	if b.bitLen%8 == 0 {
		b.data = append(b.data, 0)
	}
	if bit {
		b.data[b.bitLen/8] |= 1 << (7 - uint(b.bitLen%8))
	}
	b.bitLen++
}

// StoreBit stores a single bit
func (b *Builder) StoreBit(bit bool) *Builder {
	if !b.reserve(1) {
		return b
	}
	b.appendBit(bit)
	return b
}

// StoreUint stores an unsigned integer using the given number of bits
func (b *Builder) StoreUint(v uint64, bits int) *Builder {
	if bits < 0 || bits > 64 {
		return b.fail(fmt.Errorf("cell: invalid integer width %d", bits))
	}
	if bits < 64 && v>>uint(bits) != 0 {
		return b.fail(fmt.Errorf("cell: value %d does not fit in %d bits", v, bits))
	}
	if !b.reserve(bits) {
		return b
	}
	for i := bits - 1; i >= 0; i-- {
		b.appendBit((v>>uint(i))&1 == 1)
	}
	return b
}

// StoreInt stores a signed integer in two's complement using the given number of bits
func (b *Builder) StoreInt(v int64, bits int) *Builder {
	if bits <= 0 || bits > 64 {
		return b.fail(fmt.Errorf("cell: invalid integer width %d", bits))
	}
	if bits < 64 {
		limit := int64(1) << uint(bits-1)
		if v < -limit || v >= limit {
			return b.fail(fmt.Errorf("cell: value %d does not fit in %d signed bits", v, bits))
		}
		return b.StoreUint(uint64(v)&(uint64(1)<<uint(bits)-1), bits)
	}
	return b.StoreUint(uint64(v), bits)
}

// StoreBits stores the first bitLen bits of data
func (b *Builder) StoreBits(data []byte, bitLen int) *Builder {
	if bitLen < 0 || bitLen > len(data)*8 {
		return b.fail(fmt.Errorf("cell: bit length %d exceeds data length", bitLen))
	}
	if !b.reserve(bitLen) {
		return b
	}
	for i := 0; i < bitLen; i++ {
		b.appendBit(data[i/8]>>(7-uint(i%8))&1 == 1)
	}
	return b
}

// StoreBytes stores all bits of data
func (b *Builder) StoreBytes(data []byte) *Builder {
	return b.StoreBits(data, len(data)*8)
}

// StoreVarUint stores a variable-length unsigned integer, prefixed by its byte
// length in lenBits bits (VarUInteger n where lenBits = ceil(log2(n)))
func (b *Builder) StoreVarUint(v *uint256.Int, lenBits int) *Builder {
	if v == nil {
		v = new(uint256.Int)
	}
	byteLen := v.ByteLen()
	if byteLen >= 1<<uint(lenBits) {
		return b.fail(fmt.Errorf("cell: value needs %d bytes, more than a %d-bit length allows", byteLen, lenBits))
	}
	b.StoreUint(uint64(byteLen), lenBits)
	if byteLen > 0 {
		b.StoreBytes(v.Bytes())
	}
	return b
}

// StoreCoins stores a currency amount (VarUInteger 16)
func (b *Builder) StoreCoins(v *uint256.Int) *Builder {
	return b.StoreVarUint(v, 4)
}

// StoreRef adds a reference to another cell
func (b *Builder) StoreRef(ref *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if ref == nil {
		return b.fail(errors.New("cell: cannot store nil reference"))
	}
	if len(b.refs) >= MaxRefs {
		return b.fail(fmt.Errorf("%w: more than %d references", ErrCellOverflow, MaxRefs))
	}
	b.refs = append(b.refs, ref)
	return b
}

// StoreMaybeRef stores a Maybe ^Cell: a zero bit for nil, otherwise a one bit and the reference
func (b *Builder) StoreMaybeRef(ref *Cell) *Builder {
	if ref == nil {
		return b.StoreBit(false)
	}
	return b.StoreBit(true).StoreRef(ref)
}

// StoreSlice copies the remaining bits and references of a slice
func (b *Builder) StoreSlice(s *Slice) *Builder {
	if b.err != nil {
		return b
	}
	bitsLeft := s.BitsLeft()
	data, err := s.clone().LoadBits(bitsLeft)
	if err != nil {
		return b.fail(err)
	}
	b.StoreBits(data, bitsLeft)
	for i := s.refPos; i < len(s.cell.refs); i++ {
		b.StoreRef(s.cell.refs[i])
	}
	return b
}

// EndCell finalizes the builder into a new cell
func (b *Builder) EndCell() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	data := make([]byte, len(b.data))
	copy(data, b.data)
	refs := make([]*Cell, len(b.refs))
	copy(refs, b.refs)
	return newCell(data, b.bitLen, refs, false), nil
}
