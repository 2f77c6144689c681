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

package utils_test

import (
	"sync"
	"testing"

	"github.com/blinklabs-io/goton/utils"
	"github.com/stretchr/testify/assert"
)

func TestDoneSignal(t *testing.T) {
	sig := utils.NewDoneSignal()
	assert.False(t, sig.IsClosed())
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig.Close()
		}()
	}
	wg.Wait()
	<-sig.GetCh()
	assert.True(t, sig.IsClosed())
}
