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
	"context"
	"sync"
)

// Lifetime ties background subscriptions to the lifetime of a backend. Close
// stops every subscription started through it and waits for their workers
type Lifetime struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	mutex     sync.Mutex
	closed    bool
}

// NewLifetime returns an open Lifetime
func NewLifetime() *Lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifetime{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Done returns a channel that is closed by Close
func (l *Lifetime) Done() <-chan struct{} {
	return l.ctx.Done()
}

// IsClosed reports whether Close has been called
func (l *Lifetime) IsClosed() bool {
	return l.ctx.Err() != nil
}

// Subscribe starts a subscription that ends when ctx is done, the
// subscription is closed or the Lifetime is closed
func (l *Lifetime) Subscribe(ctx context.Context, run SubscriptionFunc) (*Subscription, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	sub := NewSubscription(ctx, run)
	l.waitGroup.Add(1)
	go func() {
		defer l.waitGroup.Done()
		<-sub.Done()
		stop()
		cancel()
	}()
	return sub, true
}

// Close stops all subscriptions and waits for them to exit
func (l *Lifetime) Close() {
	l.mutex.Lock()
	l.closed = true
	l.mutex.Unlock()
	l.cancel()
	l.waitGroup.Wait()
}
