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

package muxer

import (
	"encoding/binary"
	"errors"
)

const (
	MessageKindQuery  uint8 = 1
	MessageKindAnswer uint8 = 2
	MessageKindPush   uint8 = 3
	MessageKindPing   uint8 = 4
	MessageKindPong   uint8 = 5
)

// SegmentHeaderSize is the encoded size of a SegmentHeader
const SegmentHeaderSize = 17

// SegmentHeader prefixes every chunk of a message carried in a frame
type SegmentHeader struct {
	Kind        uint8
	QueryId     uint64
	TotalLength uint32
	Offset      uint32
}

// Segment is one chunk of a message
type Segment struct {
	SegmentHeader
	Payload []byte
}

func (s *Segment) encode() []byte {
	buf := make([]byte, SegmentHeaderSize, SegmentHeaderSize+len(s.Payload))
	buf[0] = s.Kind
	binary.BigEndian.PutUint64(buf[1:9], s.QueryId)
	binary.BigEndian.PutUint32(buf[9:13], s.TotalLength)
	binary.BigEndian.PutUint32(buf[13:17], s.Offset)
	return append(buf, s.Payload...)
}

func decodeSegment(data []byte) (*Segment, error) {
	if len(data) < SegmentHeaderSize {
		return nil, errors.New("segment too short")
	}
	return &Segment{
		SegmentHeader: SegmentHeader{
			Kind:        data[0],
			QueryId:     binary.BigEndian.Uint64(data[1:9]),
			TotalLength: binary.BigEndian.Uint32(data[9:13]),
			Offset:      binary.BigEndian.Uint32(data[13:17]),
		},
		Payload: data[SegmentHeaderSize:],
	}, nil
}
