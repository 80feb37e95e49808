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

// Package comms provides the abstract transport seam the dispatcher's
// command executor sends wire envelopes through, plus the reachability
// Probe the fault tracker consults before escalating a peer to Offline
// (spec §9 Open Question ii supplement, see SPEC_FULL.md §12). Neither
// the concrete on-wire byte layout nor any specific transport protocol is
// a spec goal; this package only defines the seam and two adapters.
package comms

import (
	"context"

	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

// Transport is the minimum bidirectional stream contract the dispatcher's
// command executor and the fault tracker's Probe need from whatever
// concrete network stack a host wires in.
type Transport interface {
	// Send delivers env to to. Implementations may dial lazily.
	Send(ctx context.Context, to peer.Peer, env wire.Envelope) error

	// Serve runs until ctx is cancelled, invoking handle for every envelope
	// this transport receives addressed to self.
	Serve(ctx context.Context, self peer.Peer, handle func(wire.Envelope)) error

	// Dial establishes (or reuses) a connection to p without sending
	// anything, returning whether the peer answered. Used by Probe.
	Dial(ctx context.Context, p peer.Peer) error

	Close() error
}

// Handle is the function signature used by Serve implementations to
// deliver a received envelope back into the dispatcher's inbound channel.
type Handle func(wire.Envelope)
