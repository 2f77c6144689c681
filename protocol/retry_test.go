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

package protocol_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/goton/protocol"
	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) protocol.RetryPolicy {
	return protocol.RetryPolicy{
		Attempts:        attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return protocol.NetworkError("op", "host", errors.New("unreachable"))
	})
	assert.ErrorIs(t, err, protocol.ErrNetwork)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return protocol.ProtocolError("op", "host", errors.New("bad response"))
	})
	assert.ErrorIs(t, err, protocol.ErrProtocol)
	assert.Equal(t, 1, calls)
}

func TestRetrySucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return protocol.TimeoutError("op", "host", context.DeadlineExceeded)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := protocol.RetryPolicy{
		Attempts:        10,
		InitialInterval: time.Hour,
	}
	calls := 0
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return protocol.NetworkError("op", "host", errors.New("unreachable"))
	})
	assert.ErrorIs(t, err, protocol.ErrNetwork)
	assert.Equal(t, 1, calls)
}
