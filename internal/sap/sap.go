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

// Package sap implements the section-authority provider and section tree of
// spec §3/§4.1: the signed record identifying a section's current elders
// and key, and the prefix→SAP index that covers the whole name space.
package sap

import (
	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
	"github.com/maidsafe/sn-sub002/internal/peer"
)

// PublicKeySet is the threshold (t-of-n) public material produced by one
// successful DKG session: the aggregate public key plus the per-candidate
// commitment needed to verify individual signature shares before
// combining them. Kept separate from keychain.PublicKey (which is only the
// aggregate point used as a chain node) because callers that need to
// verify a single elder's partial signature need the full commitment,
// while the chain only ever deals with the aggregate.
type PublicKeySet struct {
	Aggregate  keychain.PublicKey
	Threshold  int
	Commitment [][]byte // per-candidate public commitment, DKG-engine encoding
}

// SAP is the section-authority provider of spec §3: {prefix, public-key-set,
// elder peers, member set, generation}, signed by a section key to become
// authoritative.
type SAP struct {
	Prefix     identifier.Prefix
	Keys       PublicKeySet
	Elders     []peer.Peer
	Members    map[identifier.Name]peer.NodeState
	Generation uint64
}

// Signed is a SAP together with the section-key signature that makes it
// authoritative, and the key it was signed under.
type Signed struct {
	SAP       SAP
	SignedKey keychain.PublicKey
	Signature []byte
}

// ElderNames returns the elder set's names, for quick membership checks.
func (s SAP) ElderNames() map[identifier.Name]struct{} {
	out := make(map[identifier.Name]struct{}, len(s.Elders))
	for _, e := range s.Elders {
		out[e.Name] = struct{}{}
	}
	return out
}

// ValidateInvariants checks the SAP-local invariants of spec §3: every
// elder is a member, every member's name matches the prefix. Generation
// monotonicity and key-chain linkage are checked by the tree on Update,
// since they require comparing against the previous SAP for the prefix.
func (s SAP) ValidateInvariants() error {
	elderNames := s.ElderNames()
	for name := range elderNames {
		if _, ok := s.Members[name]; !ok {
			return coreerr.Newf(coreerr.LocalInvariant, "sap: elder %s is not a member", name)
		}
	}
	for name := range s.Members {
		if !s.Prefix.Matches(name) {
			return coreerr.Newf(coreerr.LocalInvariant, "sap: member %s does not match prefix %s", name, s.Prefix)
		}
	}
	return nil
}
