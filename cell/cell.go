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

// Package cell implements the cell tree used to represent account state,
// transactions and messages, along with its "bag of cells" binary encoding.
//
// A cell holds up to 1023 bits of data and up to 4 references to other
// cells. Cells are immutable once built, and are identified by their
// representation hash.
package cell

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
)

const (
	// MaxBits is the maximum number of data bits in a single cell
	MaxBits = 1023
	// MaxRefs is the maximum number of references from a single cell
	MaxRefs = 4
	// MaxDepth is the maximum depth of a cell tree accepted by the decoder
	MaxDepth = 1024
)

// Cell is an immutable node in a cell tree
type Cell struct {
	data     []byte
	bitLen   int
	refs     []*Cell
	exotic   bool
	hashOnce sync.Once
	hash     [32]byte
	depth    uint16
}

func newCell(data []byte, bitLen int, refs []*Cell, exotic bool) *Cell {
	return &Cell{
		data:   data,
		bitLen: bitLen,
		refs:   refs,
		exotic: exotic,
	}
}

// BitLen returns the number of data bits stored in the cell
func (c *Cell) BitLen() int {
	return c.bitLen
}

// Data returns a copy of the cell data. Unused trailing bits are zero
func (c *Cell) Data() []byte {
	ret := make([]byte, len(c.data))
	copy(ret, c.data)
	return ret
}

// RefCount returns the number of references from this cell
func (c *Cell) RefCount() int {
	return len(c.refs)
}

// Ref returns the referenced cell at the given index
func (c *Cell) Ref(idx int) (*Cell, error) {
	if idx < 0 || idx >= len(c.refs) {
		return nil, fmt.Errorf("cell: reference index %d out of range", idx)
	}
	return c.refs[idx], nil
}

// IsExotic returns whether the cell is an exotic (special) cell
func (c *Cell) IsExotic() bool {
	return c.exotic
}

// Hash returns the representation hash of the cell
func (c *Cell) Hash() [32]byte {
	c.hashOnce.Do(c.computeHash)
	return c.hash
}

// Depth returns the depth of the cell tree rooted at this cell
func (c *Cell) Depth() uint16 {
	c.hashOnce.Do(c.computeHash)
	return c.depth
}

// Equal reports whether two cells have the same representation hash
func (c *Cell) Equal(other *Cell) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Hash() == other.Hash()
}

// BeginParse returns a new Slice for reading the cell contents
func (c *Cell) BeginParse() *Slice {
	return &Slice{
		cell:   c,
		bitEnd: c.bitLen,
	}
}

func (c *Cell) String() string {
	return fmt.Sprintf(
		"cell{bits=%d refs=%d hash=%s}",
		c.bitLen,
		len(c.refs),
		hex.EncodeToString(c.hashSlice()),
	)
}

func (c *Cell) hashSlice() []byte {
	h := c.Hash()
	return h[:]
}

// descriptors returns the two descriptor bytes that prefix the cell data in
// both the representation hash and the serialized form
func (c *Cell) descriptors() (byte, byte) {
	d1 := byte(len(c.refs))
	if c.exotic {
		d1 |= 8
	}
	d2 := byte(c.bitLen/8 + (c.bitLen+7)/8)
	return d1, d2
}

// paddedData returns the cell data with the completion tag appended when the
// bit length is not a multiple of 8
func (c *Cell) paddedData() []byte {
	n := (c.bitLen + 7) / 8
	ret := make([]byte, n)
	copy(ret, c.data)
	if c.bitLen%8 != 0 {
		ret[n-1] |= 1 << (7 - uint(c.bitLen%8))
	}
	return ret
}

func (c *Cell) computeHash() {
	h := sha256.New()
	d1, d2 := c.descriptors()
	h.Write([]byte{d1, d2})
	h.Write(c.paddedData())
	var depth uint16
	var depthBuf [2]byte
	for _, ref := range c.refs {
		refDepth := ref.Depth()
		binary.BigEndian.PutUint16(depthBuf[:], refDepth)
		h.Write(depthBuf[:])
		if refDepth+1 > depth {
			depth = refDepth + 1
		}
	}
	for _, ref := range c.refs {
		refHash := ref.Hash()
		h.Write(refHash[:])
	}
	copy(c.hash[:], h.Sum(nil))
	c.depth = depth
}
