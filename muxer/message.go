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

// Message is a complete, reassembled message
type Message struct {
	Kind    uint8
	QueryId uint64
	Payload []byte
}

// NewMessage returns a new message
func NewMessage(kind uint8, queryId uint64, payload []byte) *Message {
	return &Message{
		Kind:    kind,
		QueryId: queryId,
		Payload: payload,
	}
}

// IsRequest reports whether the message expects an answer
func (m *Message) IsRequest() bool {
	return m.Kind == MessageKindQuery || m.Kind == MessageKindPing
}

// segments splits the message into chunks carrying at most maxPayload bytes each
func (m *Message) segments(maxPayload int) []*Segment {
	total := len(m.Payload)
	if total == 0 {
		return []*Segment{
			{
				SegmentHeader: SegmentHeader{Kind: m.Kind, QueryId: m.QueryId},
			},
		}
	}
	ret := make([]*Segment, 0, (total+maxPayload-1)/maxPayload)
	for offset := 0; offset < total; offset += maxPayload {
		end := min(offset+maxPayload, total)
		ret = append(
			ret,
			&Segment{
				SegmentHeader: SegmentHeader{
					Kind:        m.Kind,
					QueryId:     m.QueryId,
					TotalLength: uint32(total),
					Offset:      uint32(offset),
				},
				Payload: m.Payload[offset:end],
			},
		)
	}
	return ret
}
