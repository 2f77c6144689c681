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

// Package muxer implements the encrypted framing of an ADNL channel. It splits
// outgoing messages into frames, reassembles incoming multi-part messages and
// hands complete messages to a handler.
package muxer

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/blinklabs-io/goton/handshake"
	"github.com/blinklabs-io/goton/utils"
)

const (
	// DefaultMaxPayload is the default number of message bytes carried in each frame
	DefaultMaxPayload = 1 << 16
	// DefaultMaxMessageSize is the default limit for a reassembled message
	DefaultMaxMessageSize = 16 << 20

	nonceSize = 32
	hashSize  = 32
)

var ErrFrameChecksum = errors.New("frame checksum mismatch")

// MessageHandlerFunc receives every complete inbound message. It is called
// from the read loop, so it must not block for long or call Stop
type MessageHandlerFunc func(*Message) error

type partialMessage struct {
	kind     uint8
	queryId  uint64
	data     []byte
	received int
}

type partialKey struct {
	kind    uint8
	queryId uint64
}

// Muxer multiplexes messages over an encrypted connection
type Muxer struct {
	conn           net.Conn
	session        *handshake.Session
	logger         *slog.Logger
	sendMutex      sync.Mutex
	doneSignal     *utils.DoneSignal
	readySignal    *utils.DoneSignal
	errorChan      chan error
	handler        MessageHandlerFunc
	maxPayload     int
	maxMessageSize int
	partial        map[partialKey]*partialMessage
	onceStart      sync.Once
	waitGroup      sync.WaitGroup
}

// MuxerOptionFunc is a function that modifies a Muxer
type MuxerOptionFunc func(*Muxer)

// WithMaxPayload sets the number of message bytes carried in each frame
func WithMaxPayload(maxPayload int) MuxerOptionFunc {
	return func(m *Muxer) {
		m.maxPayload = maxPayload
	}
}

// WithMaxMessageSize sets the limit for a reassembled inbound message
func WithMaxMessageSize(maxMessageSize int) MuxerOptionFunc {
	return func(m *Muxer) {
		m.maxMessageSize = maxMessageSize
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) MuxerOptionFunc {
	return func(m *Muxer) {
		m.logger = logger
	}
}

// New returns a Muxer over an established session. Call Start to begin reading
func New(conn net.Conn, session *handshake.Session, options ...MuxerOptionFunc) *Muxer {
	m := &Muxer{
		conn:           conn,
		session:        session,
		doneSignal:     utils.NewDoneSignal(),
		readySignal:    utils.NewDoneSignal(),
		errorChan:      make(chan error, 1),
		maxPayload:     DefaultMaxPayload,
		maxMessageSize: DefaultMaxMessageSize,
		partial:        make(map[partialKey]*partialMessage),
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "muxer")
	if m.maxPayload <= 0 {
		m.maxPayload = DefaultMaxPayload
	}
	return m
}

// Start begins reading from the connection, passing complete messages to handler
func (m *Muxer) Start(handler MessageHandlerFunc) {
	m.onceStart.Do(func() {
		m.handler = handler
		m.waitGroup.Add(1)
		go m.readLoop()
	})
}

// ErrorChan returns a channel that receives the error that stopped the muxer
func (m *Muxer) ErrorChan() <-chan error {
	return m.errorChan
}

// DoneChan returns a channel that is closed when the muxer shuts down
func (m *Muxer) DoneChan() <-chan struct{} {
	return m.doneSignal.GetCh()
}

// ReadyChan returns a channel that is closed when the peer confirms the handshake
func (m *Muxer) ReadyChan() <-chan struct{} {
	return m.readySignal.GetCh()
}

// Stop shuts down the muxer and waits for the read loop to exit
func (m *Muxer) Stop() {
	m.shutdown()
	m.waitGroup.Wait()
}

func (m *Muxer) shutdown() {
	m.doneSignal.Close()
	_ = m.conn.Close()
}

func (m *Muxer) isDone() bool {
	return m.doneSignal.IsClosed()
}

func (m *Muxer) sendError(err error) {
	// Immediately return if we're already shutting down
	if m.isDone() {
		return
	}
	select {
	case m.errorChan <- err:
	default:
	}
	m.shutdown()
}

// SendEmpty sends an empty frame, which confirms a handshake to the peer
func (m *Muxer) SendEmpty() error {
	return m.writeFrame(nil)
}

// Send writes a message, split over as many frames as needed
func (m *Muxer) Send(msg *Message) error {
	// We use a mutex to make sure that the parts of a message are not interleaved with another
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	for _, segment := range msg.segments(m.maxPayload) {
		if err := m.writeFrameLocked(segment.encode()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Muxer) writeFrame(payload []byte) error {
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	return m.writeFrameLocked(payload)
}

func (m *Muxer) writeFrameLocked(payload []byte) error {
	if m.isDone() {
		return net.ErrClosed
	}
	size := nonceSize + len(payload) + hashSize
	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	nonce := buf[4 : 4+nonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	copy(buf[4+nonceSize:], payload)
	h := sha256.New()
	h.Write(nonce)
	h.Write(payload)
	copy(buf[4+nonceSize+len(payload):], h.Sum(nil))
	m.session.Send.XORKeyStream(buf, buf)
	if _, err := m.conn.Write(buf); err != nil {
		return err
	}
	return nil
}

func (m *Muxer) readFrame() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(m.conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	m.session.Recv.XORKeyStream(sizeBuf[:], sizeBuf[:])
	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))
	maxFrame := nonceSize + SegmentHeaderSize + max(m.maxPayload, DefaultMaxPayload) + hashSize
	if size < nonceSize+hashSize || size > maxFrame {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}
	buf := make([]byte, size)
	// We use ReadFull because it guarantees to read the expected number of bytes or
	// return an error
	if _, err := io.ReadFull(m.conn, buf); err != nil {
		return nil, err
	}
	m.session.Recv.XORKeyStream(buf, buf)
	payload := buf[nonceSize : size-hashSize]
	h := sha256.New()
	h.Write(buf[:nonceSize])
	h.Write(payload)
	if !bytes.Equal(h.Sum(nil), buf[size-hashSize:]) {
		return nil, ErrFrameChecksum
	}
	return payload, nil
}

func (m *Muxer) readLoop() {
	defer m.waitGroup.Done()
	for {
		payload, err := m.readFrame()
		if err != nil {
			m.sendError(err)
			return
		}
		if len(payload) == 0 {
			m.readySignal.Close()
			continue
		}
		segment, err := decodeSegment(payload)
		if err != nil {
			m.sendError(err)
			return
		}
		msg, err := m.reassemble(segment)
		if err != nil {
			m.sendError(err)
			return
		}
		if msg == nil {
			continue
		}
		m.logger.Debug(
			"received message",
			"kind", msg.Kind,
			"query_id", msg.QueryId,
			"length", len(msg.Payload),
		)
		if m.handler != nil {
			if err := m.handler(msg); err != nil {
				m.sendError(err)
				return
			}
		}
	}
}

// reassemble collects segments until a message is complete. It returns nil until then
func (m *Muxer) reassemble(segment *Segment) (*Message, error) {
	if segment.TotalLength == 0 {
		if segment.Offset != 0 || len(segment.Payload) != 0 {
			return nil, errors.New("unexpected data in empty message")
		}
		return NewMessage(segment.Kind, segment.QueryId, nil), nil
	}
	if int(segment.TotalLength) > m.maxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds limit %d", segment.TotalLength, m.maxMessageSize)
	}
	key := partialKey{kind: segment.Kind, queryId: segment.QueryId}
	partial, ok := m.partial[key]
	if !ok {
		if segment.Offset != 0 {
			return nil, fmt.Errorf("query %d: first segment at offset %d", segment.QueryId, segment.Offset)
		}
		partial = &partialMessage{
			kind:    segment.Kind,
			queryId: segment.QueryId,
			data:    make([]byte, segment.TotalLength),
		}
		m.partial[key] = partial
	}
	if int(segment.TotalLength) != len(partial.data) {
		return nil, fmt.Errorf("query %d: inconsistent message length", segment.QueryId)
	}
	if int(segment.Offset) != partial.received {
		return nil, fmt.Errorf(
			"query %d: segment at offset %d, expected %d",
			segment.QueryId,
			segment.Offset,
			partial.received,
		)
	}
	if partial.received+len(segment.Payload) > len(partial.data) {
		return nil, fmt.Errorf("query %d: segment overruns message", segment.QueryId)
	}
	copy(partial.data[partial.received:], segment.Payload)
	partial.received += len(segment.Payload)
	if partial.received < len(partial.data) {
		return nil, nil
	}
	delete(m.partial, key)
	return NewMessage(partial.kind, partial.queryId, partial.data), nil
}
