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

// Package address implements standard account addresses in their raw
// ("workchain:hex") and user-friendly (base64 with checksum) forms.
package address

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	tagBounceable    byte = 0x11
	tagNonBounceable byte = 0x51
	tagTestnet       byte = 0x80

	friendlyLen = 36
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is a standard account address. It is comparable and can be used as a map key
type Address struct {
	Workchain int32
	Hash      [32]byte
}

// Flags describes the attributes carried by a user-friendly address
type Flags struct {
	Bounceable bool
	Testnet    bool
}

// New returns an address from its parts
func New(workchain int32, hash [32]byte) Address {
	return Address{Workchain: workchain, Hash: hash}
}

// Parse accepts either a raw or a user-friendly address
func Parse(s string) (Address, error) {
	if strings.Contains(s, ":") {
		return ParseRaw(s)
	}
	addr, _, err := ParseFriendly(s)
	return addr, err
}

// MustParse is like Parse but panics on error. It is intended for constants and tests
func MustParse(s string) Address {
	addr, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// ParseRaw parses an address in "workchain:hex" form
func ParseRaw(s string) (Address, error) {
	wcStr, hashStr, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: missing workchain separator in %q", ErrInvalidAddress, s)
	}
	wc, err := strconv.ParseInt(wcStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: bad workchain %q", ErrInvalidAddress, wcStr)
	}
	if len(hashStr) != 64 {
		return Address{}, fmt.Errorf("%w: account id must be 64 hex characters", ErrInvalidAddress)
	}
	hash, err := hex.DecodeString(hashStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	ret := Address{Workchain: int32(wc)}
	copy(ret.Hash[:], hash)
	return ret, nil
}

// ParseFriendly parses a user-friendly address in either standard or URL-safe base64
func ParseFriendly(s string) (Address, Flags, error) {
	var data []byte
	var err error
	if strings.ContainsAny(s, "-_") {
		data, err = base64.URLEncoding.DecodeString(s)
	} else {
		data, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return Address{}, Flags{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if len(data) != friendlyLen {
		return Address{}, Flags{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, friendlyLen, len(data))
	}
	want := binary.BigEndian.Uint16(data[34:])
	if got := crc16(data[:34]); got != want {
		return Address{}, Flags{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	tag := data[0]
	var flags Flags
	if tag&tagTestnet != 0 {
		flags.Testnet = true
		tag &^= tagTestnet
	}
	switch tag {
	case tagBounceable:
		flags.Bounceable = true
	case tagNonBounceable:
	default:
		return Address{}, Flags{}, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidAddress, data[0])
	}
	ret := Address{Workchain: int32(int8(data[1]))}
	copy(ret.Hash[:], data[2:34])
	return ret, flags, nil
}

// String returns the raw form of the address
func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// Friendly returns the user-friendly form of the address
func (a Address) Friendly(flags Flags, urlSafe bool) string {
	data := make([]byte, 0, friendlyLen)
	tag := tagNonBounceable
	if flags.Bounceable {
		tag = tagBounceable
	}
	if flags.Testnet {
		tag |= tagTestnet
	}
	data = append(data, tag, byte(int8(a.Workchain)))
	data = append(data, a.Hash[:]...)
	data = binary.BigEndian.AppendUint16(data, crc16(data))
	if urlSafe {
		return base64.URLEncoding.EncodeToString(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// IsZero reports whether the address is the zero value
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(data []byte) error {
	tmp, err := Parse(string(data))
	if err != nil {
		return err
	}
	*a = tmp
	return nil
}

// crc16 is CRC-16/XMODEM
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
