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
	"errors"
	"sync"
)

// SubscriptionFunc produces notifications by calling emit until ctx is done.
// emit blocks until the notification is received and returns false once the
// subscription is closed
type SubscriptionFunc func(ctx context.Context, emit func(Notification) bool) error

// Subscription delivers account notifications from a background worker
type Subscription struct {
	notifications chan Notification
	cancel        context.CancelFunc
	done          chan struct{}
	errMutex      sync.Mutex
	err           error
	onceClose     sync.Once
}

// NewSubscription starts run on its own goroutine. The worker stops when ctx
// is done or Close is called
func NewSubscription(ctx context.Context, run SubscriptionFunc) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		notifications: make(chan Notification),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.notifications)
		err := run(ctx, func(n Notification) bool {
			select {
			case s.notifications <- n:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.errMutex.Lock()
			s.err = err
			s.errMutex.Unlock()
		}
	}()
	return s
}

// Notifications returns the channel of notifications. It is closed when the worker exits
func (s *Subscription) Notifications() <-chan Notification {
	return s.notifications
}

// Done returns a channel that is closed when the worker has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the subscription, if any
func (s *Subscription) Err() error {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.err
}

// Close stops the worker and waits for it to exit
func (s *Subscription) Close() error {
	s.onceClose.Do(func() {
		s.cancel()
	})
	<-s.done
	return nil
}
