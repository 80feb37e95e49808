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

// Package keychain implements the section-key chain of spec §3/§4.1: an
// append-only DAG of BLS public keys, each (save genesis) carrying a
// threshold signature of its own bytes under its parent key. Grounded on
// drand/drand's dkg.go (the same BLS12-381/Pedersen-DKG idiom) for the
// choice of suite and signature scheme, generalized from drand's
// single-chain "current group" model to a multi-prefix DAG since every
// section here has its own independent chain, and splits fork one chain
// into two.
package keychain

import (
	"encoding/hex"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bls12381"
	"go.dedis.ch/kyber/v3/sign/bls"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
)

// Suite is the pairing suite used for every BLS operation in the core.
// A single process-wide value, like the logging sink and timer-token
// counter spec §9 allows as the only global state.
var Suite = bls12381.NewBLS12381Suite()

// PublicKey wraps a kyber.Point identifying one elder epoch's aggregate
// BLS public key (spec §3 "each key identifies one elder epoch").
type PublicKey struct {
	point kyber.Point
}

// NewPublicKey wraps a raw kyber point.
func NewPublicKey(p kyber.Point) PublicKey { return PublicKey{point: p} }

// Point exposes the underlying point for verification/signing calls.
func (k PublicKey) Point() kyber.Point { return k.point }

// Bytes is the canonical wire encoding of the key, the message that a
// child key's signature is computed over.
func (k PublicKey) Bytes() ([]byte, error) { return k.point.MarshalBinary() }

// Equal reports whether two public keys are the same point.
func (k PublicKey) Equal(o PublicKey) bool {
	if k.point == nil || o.point == nil {
		return k.point == o.point
	}
	return k.point.Equal(o.point)
}

func (k PublicKey) String() string {
	if k.point == nil {
		return "<nil-key>"
	}
	b, err := k.Bytes()
	if err != nil {
		return "<invalid-key>"
	}
	return hexPrefix(b)
}

func hexPrefix(b []byte) string {
	n := 6
	if len(b) < n {
		n = len(b)
	}
	return hex.EncodeToString(b[:n])
}

// mapKey is the full, collision-free encoding used as a map key; String()
// is truncated for log readability and must never be used for lookups.
func (k PublicKey) mapKey() string {
	b, err := k.Bytes()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// link is one non-root entry in the chain: a key together with the
// threshold signature, under its parent, of its own bytes.
type link struct {
	key       PublicKey
	parent    PublicKey
	signature []byte
}

// Chain is the append-only DAG of spec §3/§4.1. Exactly one root (genesis);
// every non-root key has a unique parent reachable by following `parent`
// pointers; has_key/proof_chain are decidable by walking the map.
type Chain struct {
	genesis      PublicKey
	hasRoot      bool
	byKey        map[string]link // keyed by PublicKey.mapKey() of the child
	lastInserted PublicKey
}

// NewChain returns an empty chain; SetGenesis must be called once before
// Insert.
func NewChain() *Chain {
	return &Chain{byKey: make(map[string]link)}
}

// SetGenesis fixes the chain's root key. Calling it twice with a different
// key is a local-invariant violation.
func (c *Chain) SetGenesis(root PublicKey) error {
	if c.hasRoot && !c.genesis.Equal(root) {
		return coreerr.Newf(coreerr.LocalInvariant, "keychain: genesis already set to a different key")
	}
	c.genesis = root
	c.hasRoot = true
	return nil
}

// HasKey reports whether k is known to the chain (genesis or any inserted
// link).
func (c *Chain) HasKey(k PublicKey) bool {
	if c.hasRoot && c.genesis.Equal(k) {
		return true
	}
	_, ok := c.byKey[k.mapKey()]
	return ok
}

// LastKey returns the most recently inserted key, i.e. the tip of the
// longest path from genesis seen so far. With branching chains (e.g. two
// split children sharing a parent) "last" is whichever insert happened
// last; callers that need a specific section's tip should track it via the
// SAP, not this method; it exists mainly for single-section chains and
// tests.
func (c *Chain) LastKey() (PublicKey, bool) {
	if c.lastInserted.point != nil {
		return c.lastInserted, true
	}
	if c.hasRoot {
		return c.genesis, true
	}
	return PublicKey{}, false
}

// Insert links newKey to parentKey, verifying sig is a valid threshold
// signature of newKey's bytes under parentKey (spec §4.1 insert). Returns
// a *coreerr.Error of kind KnowledgeGap (unknown parent), LocalInvariant
// (bad signature) or ProtocolViolation (malformed key) on rejection; never
// panics.
func (c *Chain) Insert(parentKey, newKey PublicKey, sig []byte) error {
	if !c.HasKey(parentKey) {
		return coreerr.Newf(coreerr.KnowledgeGap, "keychain: unknown parent key %s", parentKey)
	}
	childBytes, err := newKey.Bytes()
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	if err := bls.Verify(Suite, parentKey.Point(), childBytes, sig); err != nil {
		return coreerr.New(coreerr.LocalInvariant, err)
	}
	c.byKey[newKey.mapKey()] = link{key: newKey, parent: parentKey, signature: sig}
	c.lastInserted = newKey
	return nil
}

// ProofChain returns the sequence of links from `from` to `to`, each
// individually verifiable, or ok=false if no path exists. Spec §4.1
// proof_chain(from,to).
func (c *Chain) ProofChain(from, to PublicKey) (links []Link, ok bool) {
	if from.Equal(to) {
		return nil, true
	}
	cur := to
	var path []Link
	for {
		if cur.Equal(from) {
			reverse(path)
			return path, true
		}
		l, found := c.byKey[cur.mapKey()]
		if !found {
			return nil, false
		}
		path = append(path, Link{Key: l.key, ParentKey: l.parent, Signature: l.signature})
		cur = l.parent
		if len(path) > len(c.byKey)+1 {
			// a parent cycle would violate "every key has a unique parent";
			// bail out rather than loop forever if that invariant is ever
			// broken by a bug elsewhere.
			return nil, false
		}
	}
}

// Link is one exported step of a proof chain: a key, its parent, and the
// signature binding them.
type Link struct {
	Key       PublicKey
	ParentKey PublicKey
	Signature []byte
}

// Verify checks every step of a proof chain in order, confirming each
// link's signature and that each link's parent is the previous link's key,
// without re-consulting the Chain's internal state (used to validate a
// SectionTreeUpdate's chain segment before it is trusted, spec §4.1
// predicate (a)). Whether the first parent is known is left to the caller.
func Verify(chain []Link) error {
	for i, l := range chain {
		if i > 0 && !l.ParentKey.Equal(chain[i-1].Key) {
			return coreerr.Newf(coreerr.ProtocolViolation, "keychain: proof chain link %d does not extend link %d", i, i-1)
		}
		childBytes, err := l.Key.Bytes()
		if err != nil {
			return coreerr.New(coreerr.ProtocolViolation, err)
		}
		if err := bls.Verify(Suite, l.ParentKey.Point(), childBytes, l.Signature); err != nil {
			return coreerr.New(coreerr.LocalInvariant, err)
		}
	}
	return nil
}

// VerifySignature checks that sig is a valid BLS signature of msg under
// key. Exposed so other packages (sap's SAP-signature check) never need to
// import go.dedis.ch/kyber/v3/sign/bls directly.
func VerifySignature(key PublicKey, msg, sig []byte) error {
	if err := bls.Verify(Suite, key.Point(), msg, sig); err != nil {
		return coreerr.New(coreerr.LocalInvariant, err)
	}
	return nil
}

func reverse(l []Link) {
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
}
