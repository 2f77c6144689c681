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

package cbor_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/goton/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type encodeTestDefinition struct {
	CborHex string
	Object  any
}

var encodeTests = []encodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []any{1, 2, 3},
	},
	// Map keys are sorted
	{
		CborHex: "a2616101616202",
		Object:  map[string]int{"b": 2, "a": 1},
	},
}

func TestEncode(t *testing.T) {
	for _, test := range encodeTests {
		cborData, err := cbor.Encode(test.Object)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

type testMsg struct {
	cbor.StructAsArray
	Type  uint8
	Name  string
	Value []byte
}

func TestStructAsArrayRoundTrip(t *testing.T) {
	msg := testMsg{Type: 3, Name: "abc", Value: []byte{1, 2}}
	data, err := cbor.Encode(&msg)
	require.NoError(t, err)
	assert.Equal(t, "8303636162634201"+"02", hex.EncodeToString(data))
	id, err := cbor.DecodeIdFromList(data)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	var decoded testMsg
	n, err := cbor.Decode(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, msg.Name, decoded.Name)
	assert.Equal(t, msg.Value, decoded.Value)
}

func TestDecodeIdFromList(t *testing.T) {
	testDefs := []struct {
		cborHex string
		id      int
	}{
		{cborHex: "820102", id: 1},
		// First item does not fit in a single byte
		{cborHex: "82181901", id: 25},
	}
	for _, testDef := range testDefs {
		data, _ := hex.DecodeString(testDef.cborHex)
		id, err := cbor.DecodeIdFromList(data)
		require.NoError(t, err)
		assert.Equal(t, testDef.id, id)
	}
	_, err := cbor.DecodeIdFromList([]byte{0x80})
	assert.Error(t, err)
	_, err = cbor.DecodeIdFromList([]byte{0x82, 0x61, 0x61, 0x01})
	assert.Error(t, err)
}
