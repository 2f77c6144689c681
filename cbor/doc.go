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

// Package cbor wraps github.com/fxamacker/cbor/v2 with the options used for
// lite-server wire messages.
//
// Messages are structs encoded as CBOR arrays (embed StructAsArray or use the
// "toarray" struct tag) whose first element is the message type. Use
// DecodeIdFromList to find the type of a received message before decoding it.
//
// Encoding is deterministic: maps are written with sorted keys so that the
// same value always produces the same bytes.
package cbor
