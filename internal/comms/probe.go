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
	"time"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
)

// probeTimeout bounds a single reachability check so a hung dial doesn't
// stall the fault tracker's Offline decision.
const probeTimeout = 3 * time.Second

// TransportProbe implements fault.Probe by issuing a direct Dial over a
// Transport, per SPEC_FULL.md §12's connectivity-probing supplement: a
// reachability check on the prober's own connection before a dysfunction
// score is allowed to escalate to an Offline proposal.
type TransportProbe struct {
	transport Transport
	resolve   func(identifier.Name) (peer.Peer, bool)
}

// NewTransportProbe returns a Probe that dials through transport, resolving
// a bare name to a dialable peer.Peer via resolve (typically a registry
// lookup).
func NewTransportProbe(transport Transport, resolve func(identifier.Name) (peer.Peer, bool)) *TransportProbe {
	return &TransportProbe{transport: transport, resolve: resolve}
}

// Reachable reports whether name answers a direct dial within
// probeTimeout. An unresolvable name is treated as unreachable, since the
// fault tracker should not be blocked from escalating a peer this node has
// already lost track of.
func (p *TransportProbe) Reachable(name identifier.Name) bool {
	target, ok := p.resolve(name)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return p.transport.Dial(ctx, target) == nil
}
