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

package adnl

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/goton/handshake"
	"github.com/blinklabs-io/goton/muxer"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/protocol/liteserver"
)

const connectOp = "connect"

// Peer is a lite server address and its ed25519 identity key
type Peer struct {
	Address   string
	PublicKey ed25519.PublicKey
}

func (p Peer) String() string {
	return p.Address
}

// Connection is an established, encrypted channel to a single lite server
type Connection struct {
	peer      Peer
	conn      net.Conn
	muxer     *muxer.Muxer
	client    *liteserver.Client
	onceClose sync.Once
}

// Dial connects to peer, performs the key exchange and waits for the peer to
// confirm the session
func Dial(
	ctx context.Context,
	peer Peer,
	cfg liteserver.Config,
	logger *slog.Logger,
) (*Connection, error) {
	if len(peer.PublicKey) != ed25519.PublicKeySize {
		return nil, protocol.ProtocolError(
			connectOp,
			peer.Address,
			fmt.Errorf("invalid peer key length %d", len(peer.PublicKey)),
		)
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", peer.Address)
	if err != nil {
		return nil, classifyDialError(ctx, peer, err)
	}
	packet, session, err := handshake.Client(peer.PublicKey, rand.Reader)
	if err != nil {
		_ = conn.Close()
		return nil, protocol.ProtocolError(connectOp, peer.Address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(packet); err != nil {
		_ = conn.Close()
		return nil, classifyDialError(ctx, peer, err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	c := &Connection{
		peer:  peer,
		conn:  conn,
		muxer: muxer.New(conn, session, muxer.WithLogger(logger)),
	}
	c.client = liteserver.NewClient(c.muxer, peer.Address, &cfg)
	c.client.Start()
	// Wait for handshake confirmation or error
	select {
	case <-c.muxer.ReadyChan():
	case <-c.client.DoneChan():
		err := c.client.Err()
		c.Close()
		return nil, protocol.NetworkError(connectOp, peer.Address, err)
	case <-ctx.Done():
		c.Close()
		return nil, classifyDialError(ctx, peer, ctx.Err())
	}
	return c, nil
}

func classifyDialError(ctx context.Context, peer Peer, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return protocol.TimeoutError(connectOp, peer.Address, err)
	}
	return protocol.NetworkError(connectOp, peer.Address, err)
}

// Peer returns the peer of the connection
func (c *Connection) Peer() Peer {
	return c.peer
}

// Client returns the lite-server client for the connection
func (c *Connection) Client() *liteserver.Client {
	return c.client
}

// DoneChan returns a channel that is closed when the connection is gone
func (c *Connection) DoneChan() <-chan struct{} {
	return c.client.DoneChan()
}

// IsClosed reports whether the connection is gone
func (c *Connection) IsClosed() bool {
	select {
	case <-c.client.DoneChan():
		return true
	default:
		return false
	}
}

// Err returns the error that ended the connection, if any
func (c *Connection) Err() error {
	return c.client.Err()
}

// Close shuts down the connection
func (c *Connection) Close() {
	c.onceClose.Do(func() {
		c.client.Stop()
	})
}
