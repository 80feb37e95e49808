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

package dkground

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// Hub multiplexes the DKG sessions a node is participating in at once,
// typically one per section it elder-candidates for, plus a transient one
// during a split or handover. Grounded on the same "one map keyed by
// correlation id, pruned on completion or staleness" shape kisdex-mpc-lib's
// parent session registries use to track concurrent signing ceremonies.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zap.SugaredLogger
}

// NewHub returns an empty Hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{sessions: make(map[string]*Session), log: log}
}

// Start registers and returns a new session, rejecting a second Start for
// an id already tracked (spec §4.2: a session id must be unique while
// live).
func (h *Hub) Start(id SessionID, self identifier.Name, candidates []Candidate, net Network, phaseTimeout time.Duration) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := id.key()
	if _, exists := h.sessions[key]; exists {
		return nil, coreerr.Newf(coreerr.ProtocolViolation, "dkground: session %s already running", key)
	}
	sess, err := Start(id, self, candidates, net, h.log, phaseTimeout)
	if err != nil {
		return nil, err
	}
	h.sessions[key] = sess
	return sess, nil
}

// Lookup finds a tracked session by id, for routing an inbound Message.
func (h *Hub) Lookup(id SessionID) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id.key()]
	return s, ok
}

// Finish removes a session once its Outcome has been consumed, whether it
// completed, failed, or was superseded.
func (h *Hub) Finish(id SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id.key())
}

// PruneStale drops every tracked session whose generation is older than
// current for its prefix, per spec §4.2 "a node abandons a DKG session
// once it learns of a newer SAP for the same prefix". Called by the
// dispatcher whenever the section tree advances.
func (h *Hub) PruneStale(prefix identifier.Prefix, currentGeneration uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, s := range h.sessions {
		if s.id.Prefix.Equal(prefix) && s.id.Generation < currentGeneration {
			delete(h.sessions, key)
		}
	}
}

// Len reports how many sessions are currently tracked, for diagnostics.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
