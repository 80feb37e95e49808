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

package peer

import (
	"sort"
	"sync"

	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// MembershipState is the lifecycle state of a NodeState, per spec §3.
type MembershipState int

const (
	Joined MembershipState = iota
	Left
	Relocated
)

func (m MembershipState) String() string {
	switch m {
	case Joined:
		return "Joined"
	case Left:
		return "Left"
	case Relocated:
		return "Relocated"
	default:
		return "Unknown"
	}
}

// NodeState is the authoritative record of a member once signed by a
// section key (spec §3).
type NodeState struct {
	Peer         Peer
	State        MembershipState
	RelocateDst  identifier.Name // valid only when State == Relocated
	PreviousName *identifier.Name
}

// Registry is the in-memory view of a section's current member set: a map
// from name to NodeState plus convenience accessors used throughout
// membership, handover and fault tracking. It is not safe to mutate
// concurrently from outside; the dispatcher is the sole writer (spec §4.7),
// readers should use the accessor methods which take their own read lock.
type Registry struct {
	mu      sync.RWMutex
	members map[identifier.Name]NodeState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[identifier.Name]NodeState)}
}

// Upsert adds or replaces a member's NodeState.
func (r *Registry) Upsert(ns NodeState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[ns.Peer.Name] = ns
}

// Remove deletes a member entirely. The membership engine does not call it:
// a decided Left/Relocated state stays in the registry, and Members()
// excludes it by filtering on State.
func (r *Registry) Remove(name identifier.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, name)
}

// Get returns the NodeState for name, if known.
func (r *Registry) Get(name identifier.Name) (NodeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.members[name]
	return ns, ok
}

// Members returns a snapshot of all members whose state is Joined, in
// (descending age, name) order, the order handover needs (spec §4.4).
func (r *Registry) Members() []NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeState, 0, len(r.members))
	for _, ns := range r.members {
		if ns.State == Joined {
			out = append(out, ns)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Peer.Name.Age(), out[j].Peer.Name.Age()
		if ai != aj {
			return ai > aj
		}
		return !out[i].Peer.Name.Less(out[j].Peer.Name)
	})
	return out
}

// Names returns the Joined member names, in the same order as Members.
func (r *Registry) Names() []identifier.Name {
	ms := r.Members()
	out := make([]identifier.Name, len(ms))
	for i, m := range ms {
		out[i] = m.Peer.Name
	}
	return out
}

// Len returns the number of Joined members.
func (r *Registry) Len() int {
	return len(r.Members())
}

// Elders returns the first n members in the handover ordering, i.e. the
// current (or prospective) elder committee of size n (spec §4.4).
func (r *Registry) Elders(n int) []NodeState {
	ms := r.Members()
	if n > len(ms) {
		n = len(ms)
	}
	return ms[:n]
}

// Clone returns an independent copy of the registry's member map, used by
// handover/split candidates to verify "the union of their member sets
// equals the parent's" without holding the parent's lock (spec §4.4).
func (r *Registry) Clone() map[identifier.Name]NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[identifier.Name]NodeState, len(r.members))
	for k, v := range r.members {
		out[k] = v
	}
	return out
}
