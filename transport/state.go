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

package transport

import (
	"github.com/blinklabs-io/goton/protocol"
)

// MarkReady moves sm to Ready, passing through Connecting from Idle
func MarkReady(sm *protocol.StateMachine) {
	if sm.State() == protocol.StateIdle {
		_ = sm.Transition(protocol.StateConnecting)
	}
	_ = sm.Transition(protocol.StateReady)
}

// MarkDegraded moves sm to Degraded, passing through Connecting from Idle
func MarkDegraded(sm *protocol.StateMachine) {
	if sm.State() == protocol.StateIdle {
		_ = sm.Transition(protocol.StateConnecting)
	}
	_ = sm.Transition(protocol.StateDegraded)
}
