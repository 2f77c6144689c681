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
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a transport failure
var (
	ErrNetwork  = errors.New("network error")
	ErrTimeout  = errors.New("timeout")
	ErrProtocol = errors.New("protocol error")
	ErrRejected = errors.New("message rejected")
	ErrDecode   = errors.New("decode error")
)

// ErrClosed is returned by any operation on a closed transport
var ErrClosed = errors.New("transport is closed")

// Kind identifies the class of a transport error
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindTimeout
	KindProtocol
	KindRejected
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindRejected:
		return "rejected"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindProtocol:
		return ErrProtocol
	case KindRejected:
		return ErrRejected
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

// Error is a classified transport error
type Error struct {
	Kind     Kind
	Op       string
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, op string, endpoint string, err error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Endpoint: endpoint,
		Err:      err,
	}
}

// NetworkError reports a connectivity failure
func NetworkError(op string, endpoint string, err error) error {
	return newError(KindNetwork, op, endpoint, err)
}

// TimeoutError reports that an operation did not complete in time
func TimeoutError(op string, endpoint string, err error) error {
	return newError(KindTimeout, op, endpoint, err)
}

// ProtocolError reports a malformed or inconsistent response
func ProtocolError(op string, endpoint string, err error) error {
	return newError(KindProtocol, op, endpoint, err)
}

// RejectedError reports that the backend refused a submitted message
func RejectedError(op string, endpoint string, err error) error {
	return newError(KindRejected, op, endpoint, err)
}

// DecodeError reports data that could not be decoded
func DecodeError(op string, endpoint string, err error) error {
	return newError(KindDecode, op, endpoint, err)
}

// KindOf returns the kind of a classified error, or 0 if the error is not classified
func KindOf(err error) Kind {
	var tmpErr *Error
	if errors.As(err, &tmpErr) {
		return tmpErr.Kind
	}
	return 0
}

// IsRetryable reports whether an operation failing with err may succeed if repeated.
// Only network and timeout errors qualify
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
