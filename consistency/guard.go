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

// Package consistency tracks the newest chain snapshot observed for each
// address and flags responses that go back in time.
package consistency

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
)

// Cursor is the newest snapshot observed for an address
type Cursor struct {
	GenLt       uint64
	LastTransLt uint64
}

// RollbackAnomaly reports an observation older than one already seen for the
// same address. It is informational: the observation is still returned to the
// caller, but the tracked cursor is not moved back
type RollbackAnomaly struct {
	Address  address.Address
	Tracked  Cursor
	Observed Cursor
}

func (a *RollbackAnomaly) Error() string {
	return fmt.Sprintf(
		"rollback anomaly for %s: observed genLt %d, already tracked genLt %d",
		a.Address,
		a.Observed.GenLt,
		a.Tracked.GenLt,
	)
}

// Guard holds the per-address cursors. It is safe for concurrent use
type Guard struct {
	mutex   sync.Mutex
	cursors map[address.Address]Cursor
}

// NewGuard returns an empty Guard
func NewGuard() *Guard {
	return &Guard{
		cursors: make(map[address.Address]Cursor),
	}
}

// Observe records a state read for addr. It returns an anomaly when the
// state's genLt is strictly older than the tracked cursor. NotExists states
// carry no timings and are ignored
func (g *Guard) Observe(addr address.Address, state ledger.RawContractState) *RollbackAnomaly {
	if state.Existing == nil {
		return nil
	}
	observed := Cursor{
		GenLt:       state.Existing.Timings.GenLt,
		LastTransLt: state.Existing.Account.LastTransLt,
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()
	tracked, ok := g.cursors[addr]
	if !ok {
		g.cursors[addr] = observed
		return nil
	}
	if observed.GenLt < tracked.GenLt {
		return &RollbackAnomaly{
			Address:  addr,
			Tracked:  tracked,
			Observed: observed,
		}
	}
	next := tracked
	next.GenLt = observed.GenLt
	if observed.LastTransLt > next.LastTransLt {
		next.LastTransLt = observed.LastTransLt
	}
	g.cursors[addr] = next
	return nil
}

// Cursor returns the tracked cursor for addr
func (g *Guard) Cursor(addr address.Address) (Cursor, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	ret, ok := g.cursors[addr]
	return ret, ok
}

// Forget drops the tracked cursor for addr
func (g *Guard) Forget(addr address.Address) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.cursors, addr)
}

// Len returns the number of tracked addresses
func (g *Guard) Len() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.cursors)
}
