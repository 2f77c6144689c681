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
)

const (
	addrTagNone   = 0b00
	addrTagExtern = 0b01
	addrTagStd    = 0b10
	addrTagVar    = 0b11
)

// Anycast is the optional anycast rewrite prefix of an internal address
type Anycast struct {
	Depth  int
	Prefix []byte
}

// msgAddressInt holds an internal address along with the encoding details
// needed to store it back bit for bit
type msgAddressInt struct {
	addr    address.Address
	anycast *Anycast
	isVar   bool
}

func loadMsgAddressInt(s *cell.Slice) (msgAddressInt, error) {
	var ret msgAddressInt
	tag, err := s.LoadUint(2)
	if err != nil {
		return ret, err
	}
	if tag != addrTagStd && tag != addrTagVar {
		return ret, fmt.Errorf("expected internal address, found tag %02b", tag)
	}
	hasAnycast, err := s.LoadBit()
	if err != nil {
		return ret, err
	}
	if hasAnycast {
		depth, err := s.LoadUint(5)
		if err != nil {
			return ret, err
		}
		if depth < 1 || depth > 30 {
			return ret, fmt.Errorf("invalid anycast depth %d", depth)
		}
		prefix, err := s.LoadBits(int(depth))
		if err != nil {
			return ret, err
		}
		ret.anycast = &Anycast{Depth: int(depth), Prefix: prefix}
	}
	if tag == addrTagStd {
		wc, err := s.LoadInt(8)
		if err != nil {
			return ret, err
		}
		hash, err := s.LoadBytes(32)
		if err != nil {
			return ret, err
		}
		ret.addr.Workchain = int32(wc)
		copy(ret.addr.Hash[:], hash)
		return ret, nil
	}
	addrLen, err := s.LoadUint(9)
	if err != nil {
		return ret, err
	}
	if addrLen != 256 {
		return ret, fmt.Errorf("unsupported variable address length %d", addrLen)
	}
	wc, err := s.LoadInt(32)
	if err != nil {
		return ret, err
	}
	hash, err := s.LoadBytes(32)
	if err != nil {
		return ret, err
	}
	ret.addr.Workchain = int32(wc)
	copy(ret.addr.Hash[:], hash)
	ret.isVar = true
	return ret, nil
}

func storeMsgAddressInt(b *cell.Builder, a msgAddressInt) {
	if a.isVar {
		b.StoreUint(addrTagVar, 2)
	} else {
		b.StoreUint(addrTagStd, 2)
	}
	if a.anycast != nil {
		b.StoreBit(true).
			StoreUint(uint64(a.anycast.Depth), 5).
			StoreBits(a.anycast.Prefix, a.anycast.Depth)
	} else {
		b.StoreBit(false)
	}
	if a.isVar {
		b.StoreUint(256, 9).StoreInt(int64(a.addr.Workchain), 32)
	} else {
		b.StoreInt(int64(a.addr.Workchain), 8)
	}
	b.StoreBytes(a.addr.Hash[:])
}

// skipMsgAddressExt consumes an external (or empty) source address
func skipMsgAddressExt(s *cell.Slice) error {
	tag, err := s.LoadUint(2)
	if err != nil {
		return err
	}
	switch tag {
	case addrTagNone:
		return nil
	case addrTagExtern:
		bitLen, err := s.LoadUint(9)
		if err != nil {
			return err
		}
		_, err = s.LoadBits(int(bitLen))
		return err
	default:
		return errors.New("expected external source address")
	}
}
