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
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetryAttempts        = 3
	DefaultRetryInitialInterval = 200 * time.Millisecond
	DefaultRetryMaxInterval     = 5 * time.Second
	DefaultRetryMultiplier      = 2.0
)

// RetryPolicy controls how many times, and how far apart, an operation is attempted
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the first one
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        DefaultRetryAttempts,
		InitialInterval: DefaultRetryInitialInterval,
		MaxInterval:     DefaultRetryMaxInterval,
		Multiplier:      DefaultRetryMultiplier,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// RetryFunc is a single attempt of a retried operation. The attempt number starts at 1
type RetryFunc func(ctx context.Context, attempt int) error

// Do runs op until it succeeds, fails with a non-retryable error, exhausts the
// attempts, or ctx is done. The error from the last attempt is returned
func (p RetryPolicy) Do(ctx context.Context, op RetryFunc) error {
	var lastErr error
	attempt := 0
	err := backoff.Retry(
		func() error {
			attempt++
			err := op(ctx, attempt)
			if err == nil {
				return nil
			}
			lastErr = err
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(p.backOff(), ctx),
	)
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}
