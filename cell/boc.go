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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var ErrInvalidBag = errors.New("invalid bag of cells")

var bocMagic = []byte{0xb5, 0xee, 0x9c, 0x72}

const (
	flagIndex     = 0x80
	flagCRC32C    = 0x40
	flagCacheBits = 0x20
	flagReserved  = 0x18
	flagSizeMask  = 0x07
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Options controls the layout of an encoded bag of cells
type Options struct {
	// Index includes the per-cell offset index
	Index bool
	// CRC32C appends a CRC32-C checksum of the preceding bytes
	CRC32C bool
	// CacheBits marks index entries with a cache flag. Requires Index
	CacheBits bool
	// SizeBytes is the width of cell indexes and counts. Zero picks the minimum
	SizeBytes int
	// OffsetBytes is the width of byte offsets. Zero picks the minimum
	OffsetBytes int
}

// DefaultOptions are used by Serialize
var DefaultOptions = Options{
	CRC32C: true,
}

// Bag is a decoded bag of cells. It retains the layout of its source so that
// Encode reproduces the original bytes exactly
type Bag struct {
	Options   Options
	roots     []int
	cells     []*Cell
	refIdx    [][]int
	cacheBits []bool
}

func invalidBag(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBag, fmt.Sprintf(format, args...))
}

func readUint(data []byte) uint64 {
	var ret uint64
	for _, b := range data {
		ret = ret<<8 | uint64(b)
	}
	return ret
}

func appendUint(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

func minBytes(v uint64) int {
	ret := 1
	for v >= 1<<(uint(ret)*8) && ret < 8 {
		ret++
	}
	return ret
}

// DecodeBag parses and validates a bag of cells
func DecodeBag(data []byte) (*Bag, error) {
	if len(data) < 6 {
		return nil, invalidBag("truncated header")
	}
	if !bytes.Equal(data[:4], bocMagic) {
		return nil, invalidBag("bad magic %x", data[:4])
	}
	flags := data[4]
	if flags&flagReserved != 0 {
		return nil, invalidBag("reserved flags set")
	}
	opts := Options{
		Index:       flags&flagIndex != 0,
		CRC32C:      flags&flagCRC32C != 0,
		CacheBits:   flags&flagCacheBits != 0,
		SizeBytes:   int(flags & flagSizeMask),
		OffsetBytes: int(data[5]),
	}
	if opts.SizeBytes < 1 || opts.SizeBytes > 4 {
		return nil, invalidBag("invalid size width %d", opts.SizeBytes)
	}
	if opts.OffsetBytes < 1 || opts.OffsetBytes > 8 {
		return nil, invalidBag("invalid offset width %d", opts.OffsetBytes)
	}
	if opts.CacheBits && !opts.Index {
		return nil, invalidBag("cache bits without index")
	}
	sz := opts.SizeBytes
	off := opts.OffsetBytes
	pos := 6
	if len(data) < pos+3*sz+off {
		return nil, invalidBag("truncated header")
	}
	cellCount := readUint(data[pos : pos+sz])
	pos += sz
	rootCount := readUint(data[pos : pos+sz])
	pos += sz
	absent := readUint(data[pos : pos+sz])
	pos += sz
	totSize := readUint(data[pos : pos+off])
	pos += off
	if absent != 0 {
		return nil, invalidBag("absent cells are not supported")
	}
	if cellCount == 0 || rootCount == 0 || rootCount > cellCount {
		return nil, invalidBag("invalid counts: %d cells, %d roots", cellCount, rootCount)
	}
	// Each cell needs at least its two descriptor bytes
	if cellCount*2 > uint64(len(data)) || totSize > uint64(len(data)) {
		return nil, invalidBag("counts exceed input length")
	}
	expected := uint64(pos) + rootCount*uint64(sz) + totSize
	if opts.Index {
		expected += cellCount * uint64(off)
	}
	if opts.CRC32C {
		expected += 4
	}
	if expected != uint64(len(data)) {
		return nil, invalidBag("length mismatch: expected %d bytes, got %d", expected, len(data))
	}
	if opts.CRC32C {
		body := data[:len(data)-4]
		want := binary.LittleEndian.Uint32(data[len(data)-4:])
		if got := crc32.Checksum(body, crcTable); got != want {
			return nil, invalidBag("checksum mismatch: expected %08x, got %08x", want, got)
		}
	}
	n := int(cellCount)
	bag := &Bag{
		Options:   opts,
		roots:     make([]int, rootCount),
		cells:     make([]*Cell, n),
		refIdx:    make([][]int, n),
		cacheBits: make([]bool, n),
	}
	for i := range bag.roots {
		idx := readUint(data[pos : pos+sz])
		pos += sz
		if idx >= cellCount {
			return nil, invalidBag("root index %d out of range", idx)
		}
		bag.roots[i] = int(idx)
	}
	var index []byte
	if opts.Index {
		index = data[pos : pos+n*off]
		pos += n * off
	}
	cellData := data[pos : pos+int(totSize)]
	type rawCell struct {
		data   []byte
		bitLen int
		exotic bool
	}
	raw := make([]rawCell, n)
	cpos := 0
	for i := 0; i < n; i++ {
		if len(cellData)-cpos < 2 {
			return nil, invalidBag("cell %d: truncated descriptors", i)
		}
		d1, d2 := cellData[cpos], cellData[cpos+1]
		cpos += 2
		refCount := int(d1 & 7)
		if refCount > MaxRefs {
			return nil, invalidBag("cell %d: %d references", i, refCount)
		}
		if d1&16 != 0 {
			return nil, invalidBag("cell %d: stored hashes are not supported", i)
		}
		if d1>>5 != 0 {
			return nil, invalidBag("cell %d: non-zero level", i)
		}
		dataLen := (int(d2) + 1) / 2
		if len(cellData)-cpos < dataLen+refCount*sz {
			return nil, invalidBag("cell %d: truncated data", i)
		}
		cd := make([]byte, dataLen)
		copy(cd, cellData[cpos:cpos+dataLen])
		cpos += dataLen
		bitLen := dataLen * 8
		if d2%2 == 1 {
			last := cd[dataLen-1]
			if last == 0 || last == 0x80 {
				return nil, invalidBag("cell %d: non-canonical completion tag", i)
			}
			tz := 0
			for last&(1<<uint(tz)) == 0 {
				tz++
			}
			bitLen = (dataLen-1)*8 + 7 - tz
			cd[dataLen-1] &^= 1 << uint(tz)
		}
		if bitLen > MaxBits {
			return nil, invalidBag("cell %d: %d bits", i, bitLen)
		}
		refs := make([]int, refCount)
		for j := range refs {
			idx := readUint(cellData[cpos : cpos+sz])
			cpos += sz
			if idx <= uint64(i) || idx >= cellCount {
				return nil, invalidBag("cell %d: reference %d does not point forward", i, idx)
			}
			refs[j] = int(idx)
		}
		if opts.Index {
			entry := readUint(index[i*off : (i+1)*off])
			if opts.CacheBits {
				bag.cacheBits[i] = entry&1 == 1
				entry >>= 1
			}
			if entry != uint64(cpos) {
				return nil, invalidBag("cell %d: index entry %d does not match offset %d", i, entry, cpos)
			}
		}
		raw[i] = rawCell{data: cd, bitLen: bitLen, exotic: d1&8 != 0}
		bag.refIdx[i] = refs
	}
	if cpos != len(cellData) {
		return nil, invalidBag("cell data size mismatch: %d of %d bytes used", cpos, len(cellData))
	}
	for i := n - 1; i >= 0; i-- {
		refs := make([]*Cell, len(bag.refIdx[i]))
		for j, idx := range bag.refIdx[i] {
			refs[j] = bag.cells[idx]
		}
		c := newCell(raw[i].data, raw[i].bitLen, refs, raw[i].exotic)
		if c.Depth() > MaxDepth {
			return nil, invalidBag("cell %d: depth exceeds %d", i, MaxDepth)
		}
		bag.cells[i] = c
	}
	return bag, nil
}

// NewBag builds a bag of cells from the given roots. Identical cells are
// stored once and parents always precede their children
func NewBag(opts Options, roots ...*Cell) (*Bag, error) {
	if len(roots) == 0 {
		return nil, errors.New("cell: bag needs at least one root")
	}
	if opts.CacheBits && !opts.Index {
		return nil, errors.New("cell: cache bits require an index")
	}
	var order []*Cell
	seen := make(map[[32]byte]bool)
	var visit func(c *Cell)
	visit = func(c *Cell) {
		h := c.Hash()
		if seen[h] {
			return
		}
		seen[h] = true
		for _, ref := range c.refs {
			visit(ref)
		}
		order = append(order, c)
	}
	for _, root := range roots {
		if root == nil {
			return nil, errors.New("cell: nil root")
		}
		visit(root)
	}
	// Reverse post-order
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	indexOf := make(map[[32]byte]int, len(order))
	for i, c := range order {
		indexOf[c.Hash()] = i
	}
	bag := &Bag{
		roots:     make([]int, len(roots)),
		cells:     order,
		refIdx:    make([][]int, len(order)),
		cacheBits: make([]bool, len(order)),
	}
	for i, root := range roots {
		bag.roots[i] = indexOf[root.Hash()]
	}
	for i, c := range order {
		refs := make([]int, len(c.refs))
		for j, ref := range c.refs {
			refs[j] = indexOf[ref.Hash()]
		}
		bag.refIdx[i] = refs
	}
	minSize := minBytes(uint64(len(order)))
	if opts.SizeBytes == 0 {
		opts.SizeBytes = minSize
	}
	if opts.SizeBytes < minSize || opts.SizeBytes > 4 {
		return nil, fmt.Errorf("cell: size width %d cannot address %d cells", opts.SizeBytes, len(order))
	}
	bag.Options = opts
	minOff := minBytes(uint64(bag.cellDataSize()))
	if bag.Options.OffsetBytes == 0 {
		bag.Options.OffsetBytes = minOff
	}
	if bag.Options.OffsetBytes < minOff || bag.Options.OffsetBytes > 8 {
		return nil, fmt.Errorf("cell: offset width %d too small", bag.Options.OffsetBytes)
	}
	return bag, nil
}

// Roots returns the root cells of the bag
func (b *Bag) Roots() []*Cell {
	ret := make([]*Cell, len(b.roots))
	for i, idx := range b.roots {
		ret[i] = b.cells[idx]
	}
	return ret
}

// Root returns the single root cell of the bag
func (b *Bag) Root() (*Cell, error) {
	if len(b.roots) != 1 {
		return nil, fmt.Errorf("%w: expected 1 root, found %d", ErrInvalidBag, len(b.roots))
	}
	return b.cells[b.roots[0]], nil
}

// CellCount returns the number of distinct serialized cells
func (b *Bag) CellCount() int {
	return len(b.cells)
}

func (b *Bag) serializedCellSize(i int) int {
	c := b.cells[i]
	return 2 + (c.bitLen+7)/8 + len(c.refs)*b.Options.SizeBytes
}

func (b *Bag) cellDataSize() int {
	ret := 0
	for i := range b.cells {
		ret += b.serializedCellSize(i)
	}
	return ret
}

// Encode serializes the bag
func (b *Bag) Encode() []byte {
	sz := b.Options.SizeBytes
	off := b.Options.OffsetBytes
	flags := byte(sz)
	if b.Options.Index {
		flags |= flagIndex
	}
	if b.Options.CRC32C {
		flags |= flagCRC32C
	}
	if b.Options.CacheBits {
		flags |= flagCacheBits
	}
	ret := make([]byte, 0, 64+b.cellDataSize())
	ret = append(ret, bocMagic...)
	ret = append(ret, flags, byte(off))
	ret = appendUint(ret, uint64(len(b.cells)), sz)
	ret = appendUint(ret, uint64(len(b.roots)), sz)
	ret = appendUint(ret, 0, sz)
	ret = appendUint(ret, uint64(b.cellDataSize()), off)
	for _, idx := range b.roots {
		ret = appendUint(ret, uint64(idx), sz)
	}
	if b.Options.Index {
		end := 0
		for i := range b.cells {
			end += b.serializedCellSize(i)
			entry := uint64(end)
			if b.Options.CacheBits {
				entry <<= 1
				if b.cacheBits[i] {
					entry |= 1
				}
			}
			ret = appendUint(ret, entry, off)
		}
	}
	for i, c := range b.cells {
		d1, d2 := c.descriptors()
		ret = append(ret, d1, d2)
		ret = append(ret, c.paddedData()...)
		for _, idx := range b.refIdx[i] {
			ret = appendUint(ret, uint64(idx), sz)
		}
	}
	if b.Options.CRC32C {
		ret = binary.LittleEndian.AppendUint32(ret, crc32.Checksum(ret, crcTable))
	}
	return ret
}

// Serialize encodes a single cell tree using DefaultOptions
func Serialize(root *Cell) ([]byte, error) {
	bag, err := NewBag(DefaultOptions, root)
	if err != nil {
		return nil, err
	}
	return bag.Encode(), nil
}

// Deserialize decodes a bag of cells with exactly one root
func Deserialize(data []byte) (*Cell, error) {
	bag, err := DecodeBag(data)
	if err != nil {
		return nil, err
	}
	return bag.Root()
}
