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

package consistency_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/consistency"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = address.MustParse("0:" + strings.Repeat("ab", 32))

func existing(genLt uint64, lastTransLt uint64) ledger.RawContractState {
	return ledger.Exists(
		ledger.ExistingContract{
			Account: ledger.AccountRecord{
				Address:     testAddr,
				LastTransLt: lastTransLt,
			},
			Timings: ledger.GenTimings{GenLt: genLt},
		},
	)
}

func TestGuardRollback(t *testing.T) {
	g := consistency.NewGuard()
	assert.Nil(t, g.Observe(testAddr, existing(5000, 4999)))
	anomaly := g.Observe(testAddr, existing(4000, 3999))
	require.NotNil(t, anomaly)
	assert.Equal(t, uint64(5000), anomaly.Tracked.GenLt)
	assert.Equal(t, uint64(4000), anomaly.Observed.GenLt)
	var err error = anomaly
	var target *consistency.RollbackAnomaly
	assert.True(t, errors.As(err, &target))
	cursor, ok := g.Cursor(testAddr)
	require.True(t, ok)
	assert.Equal(t, consistency.Cursor{GenLt: 5000, LastTransLt: 4999}, cursor)
}

func TestGuardAdvances(t *testing.T) {
	g := consistency.NewGuard()
	assert.Nil(t, g.Observe(testAddr, existing(100, 90)))
	// Equal genLt is not a rollback
	assert.Nil(t, g.Observe(testAddr, existing(100, 90)))
	assert.Nil(t, g.Observe(testAddr, existing(200, 80)))
	cursor, _ := g.Cursor(testAddr)
	assert.Equal(t, consistency.Cursor{GenLt: 200, LastTransLt: 90}, cursor)
}

func TestGuardIgnoresNotExists(t *testing.T) {
	g := consistency.NewGuard()
	assert.Nil(t, g.Observe(testAddr, ledger.NotExists()))
	_, ok := g.Cursor(testAddr)
	assert.False(t, ok)
	assert.Nil(t, g.Observe(testAddr, existing(10, 1)))
	assert.Nil(t, g.Observe(testAddr, ledger.NotExists()))
	cursor, _ := g.Cursor(testAddr)
	assert.Equal(t, uint64(10), cursor.GenLt)
	g.Forget(testAddr)
	assert.Equal(t, 0, g.Len())
}

func TestGuardConcurrent(t *testing.T) {
	g := consistency.NewGuard()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(genLt uint64) {
			defer wg.Done()
			g.Observe(testAddr, existing(genLt, genLt-1))
		}(uint64(i))
	}
	wg.Wait()
	cursor, ok := g.Cursor(testAddr)
	require.True(t, ok)
	assert.Equal(t, uint64(50), cursor.GenLt)
	assert.Equal(t, uint64(49), cursor.LastTransLt)
}
