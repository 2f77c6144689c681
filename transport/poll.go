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
	"log/slog"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/metrics"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultPollInterval    = 1 * time.Second
	DefaultMaxPollInterval = 30 * time.Second
)

// StateFunc fetches the current state of an account
type StateFunc func(ctx context.Context, addr address.Address) (ledger.RawContractState, error)

// PollConfig controls a polling subscription
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Logger      *slog.Logger
	// Name is the backend name used for metrics
	Name    string
	Metrics *metrics.Metrics
}

func (c PollConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Interval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultPollInterval
	}
	b.MaxInterval = c.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = max(b.InitialInterval, DefaultMaxPollInterval)
	}
	b.MaxInterval = max(b.MaxInterval, b.InitialInterval)
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// StateChanged reports whether next differs from prev in existence or snapshot
func StateChanged(prev ledger.RawContractState, next ledger.RawContractState) bool {
	if prev.IsExists() != next.IsExists() {
		return true
	}
	if !next.IsExists() {
		return false
	}
	return prev.Existing.Timings.GenLt != next.Existing.Timings.GenLt
}

// PollSubscribe synthesizes a subscription by polling fetch. See Poll
func PollSubscribe(
	ctx context.Context,
	addr address.Address,
	fetch StateFunc,
	cfg PollConfig,
) *Subscription {
	return NewSubscription(ctx, Poll(addr, fetch, cfg))
}

// Poll returns a SubscriptionFunc that polls fetch. The first successful poll
// is delivered as a baseline and later polls only when the state changed. The
// polling interval grows while nothing changes and resets after a change.
// Failed polls are logged and retried
func Poll(addr address.Address, fetch StateFunc, cfg PollConfig) SubscriptionFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "poll", "address", addr.String())
	return func(ctx context.Context, emit func(Notification) bool) error {
		b := cfg.backOff()
		var last *ledger.RawContractState
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
			state, err := fetch(ctx, addr)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, protocol.ErrClosed) {
					return err
				}
				logger.Debug("poll failed", "error", err)
			case last == nil || StateChanged(*last, state):
				cfg.Metrics.Notification(cfg.Name)
				if !emit(Notification{Address: addr, State: state}) {
					return ctx.Err()
				}
				last = &state
				b.Reset()
			}
			timer.Reset(b.NextBackOff())
		}
	}
}
