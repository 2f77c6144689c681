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

package transport_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/goton/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func blockUntilDone(ctx context.Context, emit func(transport.Notification) bool) error {
	if !emit(transport.Notification{}) {
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestLifetimeCloseStopsSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := transport.NewLifetime()
	subs := make([]*transport.Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		sub, ok := l.Subscribe(context.Background(), blockUntilDone)
		require.True(t, ok)
		receive(t, sub)
		subs = append(subs, sub)
	}
	assert.False(t, l.IsClosed())
	l.Close()
	assert.True(t, l.IsClosed())
	for _, sub := range subs {
		select {
		case <-sub.Done():
		default:
			t.Fatal("subscription still running after close")
		}
		assert.NoError(t, sub.Err())
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("done channel not closed")
	}
	_, ok := l.Subscribe(context.Background(), blockUntilDone)
	assert.False(t, ok)
}

func TestLifetimeSubscriptionEndsIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := transport.NewLifetime()
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	sub, ok := l.Subscribe(ctx, blockUntilDone)
	require.True(t, ok)
	receive(t, sub)
	cancel()
	<-sub.Done()

	other, ok := l.Subscribe(context.Background(), blockUntilDone)
	require.True(t, ok)
	receive(t, other)
	require.NoError(t, other.Close())
	assert.False(t, l.IsClosed())
}
