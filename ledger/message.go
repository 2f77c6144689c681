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
	"fmt"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/cell"
	"github.com/blinklabs-io/goton/protocol"
)

const (
	sendMessageOp   = "sendMessage"
	extInMsgInfoTag = 0b10
)

// ExternalMessage is an inbound external message ready for submission
type ExternalMessage struct {
	Destination address.Address
	Hash        [32]byte
	Bytes       []byte
}

// ParseExternalMessage checks that data is a serialized inbound external
// message and extracts its destination and hash. Anything else is refused
// with a rejected error so that it is never relayed
func ParseExternalMessage(data []byte) (*ExternalMessage, error) {
	root, err := cell.Deserialize(data)
	if err != nil {
		return nil, protocol.RejectedError(sendMessageOp, "", err)
	}
	s := root.BeginParse()
	tag, err := s.LoadUint(2)
	if err != nil {
		return nil, protocol.RejectedError(sendMessageOp, "", err)
	}
	if tag != extInMsgInfoTag {
		return nil, protocol.RejectedError(
			sendMessageOp,
			"",
			fmt.Errorf("not an inbound external message (tag %02b)", tag),
		)
	}
	if err := skipMsgAddressExt(s); err != nil {
		return nil, protocol.RejectedError(sendMessageOp, "", err)
	}
	dest, err := loadMsgAddressInt(s)
	if err != nil {
		return nil, protocol.RejectedError(sendMessageOp, "", err)
	}
	if _, err := s.LoadCoins(); err != nil {
		return nil, protocol.RejectedError(sendMessageOp, "", err)
	}
	ret := &ExternalMessage{
		Destination: dest.addr,
		Hash:        root.Hash(),
		Bytes:       make([]byte, len(data)),
	}
	copy(ret.Bytes, data)
	return ret, nil
}

// NewExternalMessage builds a serialized inbound external message carrying body
// to dest, with no source address, import fee or state init
func NewExternalMessage(dest address.Address, body *cell.Cell) ([]byte, error) {
	b := cell.NewBuilder().
		StoreUint(extInMsgInfoTag, 2).
		StoreUint(addrTagNone, 2)
	storeMsgAddressInt(b, msgAddressInt{addr: dest})
	b.StoreCoins(nil).
		// No state init
		StoreBit(false)
	if body == nil {
		b.StoreBit(false)
	} else {
		b.StoreBit(true).StoreRef(body)
	}
	root, err := b.EndCell()
	if err != nil {
		return nil, err
	}
	return cell.Serialize(root)
}
