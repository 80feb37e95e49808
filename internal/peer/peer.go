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

// Package peer models a known participant of the overlay (spec §3 "Peer",
// §9 "cyclic references between a peer and its open connection") and the
// per-(name,address) connection cache that backs it.
package peer

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// Peer identifies a participant by (name, address); the connection is
// advisory and owned elsewhere, per spec §9.
type Peer struct {
	Name    identifier.Name
	Address string
}

// Key is the (name, address) identity used by the connection cache.
func (p Peer) Key() string { return fmt.Sprintf("%s@%s", p.Name.Hex(), p.Address) }

func (p Peer) String() string { return fmt.Sprintf("%s@%s", p.Name, p.Address) }

// Equal compares identity only (name, address), never the connection.
func (p Peer) Equal(o Peer) bool { return p.Name == o.Name && p.Address == o.Address }

// Conn is the advisory handle a connection cache holds for a Peer. It is
// intentionally opaque here: spec §1 scopes the transport out as an
// external collaborator; Conn is whatever that collaborator's stream type
// is, accessed only through the Close method the cache needs to purge it.
type Conn interface {
	Close() error
}

// ConnCache is the "per-peer connection cache" of spec §5: keyed by
// (name, address), at most one live outbound connection per key, first
// insertion wins. Backed by an LRU so long-idle entries (peers that have
// left the section, or addresses that were never revisited) are reclaimed
// without an unbounded map, matching the eviction behavior erigon wires an
// LRU for around its own peer/connection bookkeeping.
type ConnCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Conn]
}

// NewConnCache builds a cache bounded at capacity live connections. On
// eviction the displaced connection is closed.
func NewConnCache(capacity int) (*ConnCache, error) {
	cc := &ConnCache{}
	c, err := lru.NewWithEvict(capacity, func(_ string, v Conn) {
		_ = v.Close()
	})
	if err != nil {
		return nil, err
	}
	cc.cache = c
	return cc, nil
}

// GetOrInsert returns the existing connection for p if present (first
// insertion wins); otherwise it builds, stores and returns newConn()'s
// result. The lock is held across newConn so two concurrent dials for the
// same key cannot both win the race.
func (cc *ConnCache) GetOrInsert(p Peer, newConn func() (Conn, error)) (Conn, error) {
	key := p.Key()
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if existing, ok := cc.cache.Get(key); ok {
		return existing, nil
	}
	conn, err := newConn()
	if err != nil {
		return nil, err
	}
	cc.cache.Add(key, conn)
	return conn, nil
}

// Purge drops and closes the connection for p, if any. Called when p is
// removed from the section (spec §4.6 "Nodes removed from the section have
// their counters and tracking state purged").
func (cc *ConnCache) Purge(p Peer) {
	cc.cache.Remove(p.Key())
}

// Len reports the number of live cached connections.
func (cc *ConnCache) Len() int { return cc.cache.Len() }
