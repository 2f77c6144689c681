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

import "sync"

// DefaultRotateAfter is the number of consecutive failures before moving to the next endpoint
const DefaultRotateAfter = 3

// Rotator cycles through a fixed list of endpoints, moving to the next one
// after a number of consecutive failures on the current one
type Rotator[T any] struct {
	mutex       sync.Mutex
	items       []T
	current     int
	failures    int
	streak      int
	rotateAfter int
}

// NewRotator returns a Rotator over items. A rotateAfter below 1 uses DefaultRotateAfter
func NewRotator[T any](items []T, rotateAfter int) *Rotator[T] {
	if rotateAfter < 1 {
		rotateAfter = DefaultRotateAfter
	}
	tmpItems := make([]T, len(items))
	copy(tmpItems, items)
	return &Rotator[T]{
		items:       tmpItems,
		rotateAfter: rotateAfter,
	}
}

// Len returns the number of endpoints
func (r *Rotator[T]) Len() int {
	return len(r.items)
}

// Current returns the active endpoint and its index
func (r *Rotator[T]) Current() (T, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.items[r.current], r.current
}

// RotateAfter returns the number of consecutive failures that moves the rotator on
func (r *Rotator[T]) RotateAfter() int {
	return r.rotateAfter
}

// Failures returns the number of consecutive failures since the last
// success, counted across rotations
func (r *Rotator[T]) Failures() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.streak
}

// Unhealthy reports whether the consecutive failure count has reached the
// rotation threshold
func (r *Rotator[T]) Unhealthy() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.streak >= r.rotateAfter
}

// Success resets the failure counts if idx is still the active endpoint
func (r *Rotator[T]) Success(idx int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if idx == r.current {
		r.failures = 0
		r.streak = 0
	}
}

// Failure records a failure against idx and reports whether the rotator moved
// to the next endpoint as a result. Failures against an endpoint that is no
// longer active are ignored
func (r *Rotator[T]) Failure(idx int) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if idx != r.current {
		return false
	}
	r.failures++
	r.streak++
	if r.failures < r.rotateAfter {
		return false
	}
	r.rotate()
	return true
}

// Rotate moves to the next endpoint unconditionally
func (r *Rotator[T]) Rotate() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rotate()
}

func (r *Rotator[T]) rotate() {
	r.failures = 0
	r.current = (r.current + 1) % len(r.items)
}
