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

package protocol

import (
	"fmt"
	"sync"
)

// ConnState is the connection state of a transport backend
type ConnState uint8

const (
	StateIdle ConnState = iota
	StateConnecting
	StateReady
	StateDegraded
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateReady:
		return "Ready"
	case StateDegraded:
		return "Degraded"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("ConnState(%d)", uint8(s))
	}
}

// StateTransitions lists the allowed target states for each state
var StateTransitions = map[ConnState][]ConnState{
	StateIdle:       {StateConnecting, StateClosed},
	StateConnecting: {StateReady, StateDegraded, StateClosed},
	StateReady:      {StateDegraded, StateClosed},
	StateDegraded:   {StateReady, StateConnecting, StateClosed},
	StateClosed:     {},
}

// StateChangeFunc is called after every state change with the old and new state
type StateChangeFunc func(from ConnState, to ConnState)

// StateMachine tracks a ConnState and enforces the allowed transitions
type StateMachine struct {
	mutex    sync.Mutex
	state    ConnState
	onChange StateChangeFunc
}

// NewStateMachine returns a state machine in the Idle state
func NewStateMachine(onChange StateChangeFunc) *StateMachine {
	return &StateMachine{
		state:    StateIdle,
		onChange: onChange,
	}
}

// State returns the current state
func (m *StateMachine) State() ConnState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

// Transition moves to the target state. A transition to the current state is a
// no-op. Any transition out of Closed returns ErrClosed
func (m *StateMachine) Transition(to ConnState) error {
	m.mutex.Lock()
	from := m.state
	if from == to {
		m.mutex.Unlock()
		return nil
	}
	if from == StateClosed {
		m.mutex.Unlock()
		return ErrClosed
	}
	allowed := false
	for _, tmpState := range StateTransitions[from] {
		if tmpState == to {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mutex.Unlock()
		return fmt.Errorf("invalid state transition from %s to %s", from, to)
	}
	m.state = to
	m.mutex.Unlock()
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Close moves the state machine to Closed. It reports whether this call performed the transition
func (m *StateMachine) Close() bool {
	m.mutex.Lock()
	from := m.state
	if from == StateClosed {
		m.mutex.Unlock()
		return false
	}
	m.state = StateClosed
	m.mutex.Unlock()
	if m.onChange != nil {
		m.onChange(from, StateClosed)
	}
	return true
}
