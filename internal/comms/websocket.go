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
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

// dialTimeout bounds how long WebSocketTransport waits for a peer's
// handshake before treating it as unreachable.
const dialTimeout = 5 * time.Second

// WebSocketTransport implements Transport over long-lived gorilla/websocket
// connections, one per peer address, framing envelopes with whatever
// wire.Codec the host wires in (spec §6 leaves the concrete byte layout to
// that external collaborator).
type WebSocketTransport struct {
	codec  wire.Codec
	dialer *websocket.Dialer
	log    *zap.SugaredLogger

	mu    sync.Mutex
	conns map[string]*websocket.Conn // keyed by peer.Peer.Key()
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport returns a transport that encodes/decodes envelopes
// with codec over gorilla/websocket connections.
func NewWebSocketTransport(codec wire.Codec, log *zap.SugaredLogger) *WebSocketTransport {
	return &WebSocketTransport{
		codec:  codec,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		log:    log,
		conns:  make(map[string]*websocket.Conn),
	}
}

func (t *WebSocketTransport) connFor(ctx context.Context, p peer.Peer) (*websocket.Conn, error) {
	t.mu.Lock()
	if c, ok := t.conns[p.Key()]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	c, _, err := t.dialer.DialContext(ctx, p.Address, nil)
	if err != nil {
		return nil, coreerr.Newf(coreerr.KnowledgeGap, "comms: dial %s: %v", p.Address, err).WithPeer(p.Name.Hex())
	}
	t.mu.Lock()
	t.conns[p.Key()] = c
	t.mu.Unlock()
	return c, nil
}

// Send encodes env with the configured codec and writes it as one binary
// websocket message to to.
func (t *WebSocketTransport) Send(ctx context.Context, to peer.Peer, env wire.Envelope) error {
	c, err := t.connFor(ctx, to)
	if err != nil {
		return err
	}
	b, err := t.codec.Encode(env)
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, b); err != nil {
		t.mu.Lock()
		delete(t.conns, to.Key())
		t.mu.Unlock()
		return coreerr.Newf(coreerr.KnowledgeGap, "comms: write to %s: %v", to.Address, err).WithPeer(to.Name.Hex())
	}
	return nil
}

// Serve accepts inbound websocket connections on self's address and
// decodes every message received on them, handing each decoded envelope to
// handle. It blocks until ctx is cancelled.
func (t *WebSocketTransport) Serve(ctx context.Context, self peer.Peer, handle func(wire.Envelope)) error {
	var upgrader websocket.Upgrader
	srv := &http.Server{Addr: self.Address}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.log.Warnw("comms: upgrade failed", "err", err)
			return
		}
		go t.readLoop(conn, handle)
	})
	srv.Handler = mux

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return coreerr.New(coreerr.ProtocolViolation, err)
		}
		return nil
	}
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, handle func(wire.Envelope)) {
	defer func() { _ = conn.Close() }()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := t.codec.Decode(b)
		if err != nil {
			t.log.Warnw("comms: decode failed, dropping message", "err", err)
			continue
		}
		handle(env)
	}
}

// Dial establishes (or reuses) a connection to p, reporting reachability
// by whether the handshake succeeds within dialTimeout.
func (t *WebSocketTransport) Dial(ctx context.Context, p peer.Peer) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	_, err := t.connFor(dialCtx, p)
	return err
}

// Close tears down every open connection this transport holds.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for k, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, k)
	}
	return firstErr
}
