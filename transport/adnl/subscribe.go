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
	"errors"
	"time"

	"github.com/blinklabs-io/goton/address"
	"github.com/blinklabs-io/goton/ledger"
	"github.com/blinklabs-io/goton/protocol"
	"github.com/blinklabs-io/goton/protocol/liteserver"
	"github.com/blinklabs-io/goton/transport"
	"github.com/cenkalti/backoff/v4"
)

// pushBuffer is the number of pushed states held for a slow subscriber
const pushBuffer = 16

type pushSubscriber struct {
	ch chan *liteserver.AccountStateData
}

func (b *Backend) addSubscriber(addr address.Address, sub *pushSubscriber) {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()
	subs, ok := b.subscribers[addr]
	if !ok {
		subs = make(map[*pushSubscriber]struct{})
		b.subscribers[addr] = subs
	}
	subs[sub] = struct{}{}
}

func (b *Backend) removeSubscriber(addr address.Address, sub *pushSubscriber) {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()
	subs := b.subscribers[addr]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, addr)
	}
}

// handlePush runs on the connection read loop, so delivery never blocks
func (b *Backend) handlePush(ctx liteserver.CallbackContext, msg *liteserver.MsgAccountStateChanged) error {
	if len(msg.State.Account.Id) != 32 {
		return protocol.ProtocolError("push", ctx.Endpoint, errors.New("invalid account id in pushed state"))
	}
	var hash [32]byte
	copy(hash[:], msg.State.Account.Id)
	addr := address.New(msg.State.Account.Workchain, hash)
	state := msg.State
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()
	for sub := range b.subscribers[addr] {
		select {
		case sub.ch <- &state:
		default:
			b.logger.Warn(
				"dropping pushed state for slow subscriber",
				"address", addr.String(),
				"gen_lt", state.GenLt,
			)
		}
	}
	return nil
}

// Subscribe subscribes to pushed states of an account. The current state is
// delivered first, and again after every reconnect if it changed meanwhile
func (b *Backend) Subscribe(ctx context.Context, addr address.Address) (*transport.Subscription, error) {
	sub, ok := b.lifetime.Subscribe(ctx, func(ctx context.Context, emit func(transport.Notification) bool) error {
		return b.runSubscription(ctx, addr, emit)
	})
	if !ok {
		return nil, protocol.ErrClosed
	}
	return sub, nil
}

func (b *Backend) runSubscription(
	ctx context.Context,
	addr address.Address,
	emit func(transport.Notification) bool,
) error {
	logger := b.logger.With("address", addr.String())
	sub := &pushSubscriber{ch: make(chan *liteserver.AccountStateData, pushBuffer)}
	b.addSubscriber(addr, sub)
	defer b.removeSubscriber(addr, sub)
	var last *ledger.RawContractState
	deliver := func(state ledger.RawContractState) bool {
		if last != nil && !transport.StateChanged(*last, state) {
			return true
		}
		last = &state
		b.config.Metrics.Notification(Name)
		return emit(transport.Notification{Address: addr, State: state})
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.config.PollInterval
	bo.MaxInterval = max(b.config.MaxPollInterval, b.config.PollInterval)
	bo.MaxElapsedTime = 0
	bo.Reset()
	for {
		conn, subscriptionId, err := b.subscribeOnce(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, protocol.ErrClosed) {
				return err
			}
			logger.Debug("subscribe failed", "error", err)
			if !sleep(ctx, bo.NextBackOff()) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()
		// The baseline is read after the subscription is active so that no change is missed
		state, err := b.GetContractState(ctx, addr)
		if err == nil {
			if !deliver(state) {
				b.unsubscribe(conn, subscriptionId)
				return ctx.Err()
			}
		} else {
			logger.Debug("failed to read baseline state", "error", err)
		}
	loop:
		for {
			select {
			case <-ctx.Done():
				b.unsubscribe(conn, subscriptionId)
				return ctx.Err()
			case <-conn.DoneChan():
				logger.Debug("connection lost, resubscribing")
				break loop
			case data := <-sub.ch:
				state, err := decodeAccountState("push", conn.peer.Address, addr, data)
				if err != nil {
					logger.Warn("ignoring malformed pushed state", "error", err)
					continue
				}
				if !deliver(state) {
					b.unsubscribe(conn, subscriptionId)
					return ctx.Err()
				}
			}
		}
	}
}

func (b *Backend) subscribeOnce(ctx context.Context, addr address.Address) (*Connection, uint64, error) {
	var conn *Connection
	var subscriptionId uint64
	err := b.do(ctx, "subscribeAccount", func(ctx context.Context, c *Connection) error {
		id, err := c.client.SubscribeAccount(ctx, accountId(addr))
		if err != nil {
			return err
		}
		conn = c
		subscriptionId = id
		return nil
	})
	return conn, subscriptionId, err
}

// unsubscribe is best effort, the server drops subscriptions with the connection anyway
func (b *Backend) unsubscribe(conn *Connection, subscriptionId uint64) {
	if conn.IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.config.PingTimeout)
	defer cancel()
	if err := conn.client.Unsubscribe(ctx, subscriptionId); err != nil {
		b.logger.Debug("unsubscribe failed", "subscription_id", subscriptionId, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
