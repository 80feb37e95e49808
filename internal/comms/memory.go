// Copyright (c) 2026, The sn-sub002 Authors. All rights reserved.
//
//  SPDX-License-Identifier: Apache-2.0
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

package comms

import (
	"context"
	"sync"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

// Hub is a process-local registry of in-memory transports, one per
// participant name, used to wire up multi-party tests and simulations
// without a real socket. The comms equivalent of dkground's in-process
// Network used by DKG session tests.
type Hub struct {
	mu        sync.Mutex
	inboxes   map[identifier.Name]chan wire.Envelope
	reachable map[identifier.Name]bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		inboxes:   make(map[identifier.Name]chan wire.Envelope),
		reachable: make(map[identifier.Name]bool),
	}
}

// Join registers name with the hub and returns its Transport, buffered so
// Send never blocks the caller on a slow or absent receiver.
func (h *Hub) Join(name identifier.Name) *MemoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	inbox := make(chan wire.Envelope, 256)
	h.inboxes[name] = inbox
	h.reachable[name] = true
	return &MemoryTransport{hub: h, self: name, inbox: inbox}
}

// SetReachable controls what Dial (and therefore Probe.Reachable) reports
// for name, letting tests simulate a transient partition.
func (h *Hub) SetReachable(name identifier.Name, reachable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reachable[name] = reachable
}

func (h *Hub) isReachable(name identifier.Name) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.inboxes[name]
	return ok && r != nil && h.reachable[name]
}

func (h *Hub) inboxOf(name identifier.Name) (chan wire.Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.inboxes[name]
	return c, ok
}

// MemoryTransport implements Transport over a Hub's in-process channels.
type MemoryTransport struct {
	hub   *Hub
	self  identifier.Name
	inbox chan wire.Envelope
}

var _ Transport = (*MemoryTransport)(nil)

// Send places env on to's inbox, failing with coreerr.ResourceExhaustion
// if the recipient's buffer is full and coreerr.KnowledgeGap if the
// recipient never joined the hub.
func (t *MemoryTransport) Send(ctx context.Context, to peer.Peer, env wire.Envelope) error {
	inbox, ok := t.hub.inboxOf(to.Name)
	if !ok {
		return coreerr.Newf(coreerr.KnowledgeGap, "comms: no such peer %s", to.Name.Hex())
	}
	select {
	case inbox <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return coreerr.Newf(coreerr.ResourceExhaustion, "comms: inbox full for %s", to.Name.Hex())
	}
}

// Serve delivers every envelope received on self's inbox to handle until
// ctx is cancelled.
func (t *MemoryTransport) Serve(ctx context.Context, self peer.Peer, handle func(wire.Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-t.inbox:
			handle(env)
		}
	}
}

// Dial reports whether to is currently marked reachable on the hub.
func (t *MemoryTransport) Dial(ctx context.Context, p peer.Peer) error {
	if !t.hub.isReachable(p.Name) {
		return coreerr.Newf(coreerr.KnowledgeGap, "comms: %s unreachable", p.Name.Hex())
	}
	return nil
}

// Close is a no-op; the hub outlives any single participant's transport.
func (t *MemoryTransport) Close() error { return nil }
