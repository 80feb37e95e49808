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

package sap

import (
	"sync"

	"github.com/google/btree"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
)

// Update bundles a signed SAP and the chain segment connecting an
// already-known key to the new SAP's key (spec §4.1 SectionTreeUpdate).
type Update struct {
	Signed     Signed
	ChainLinks []keychain.Link
}

// entry is the btree item stored per known prefix, ordered by prefix bits
// and then length; GetSignedSAPByName and AllPrefixes walk the entries in
// that order. btree.Item compares by Less.
type entry struct {
	prefix identifier.Prefix
	signed Signed
}

func (e entry) Less(other btree.Item) bool {
	o := other.(entry)
	ab, ob := e.prefix.Bits(), o.prefix.Bits()
	if ab != ob {
		return lessName(ab, ob)
	}
	return e.prefix.Len < o.prefix.Len
}

func lessName(a, b identifier.Name) bool { return a.Less(b) }

// Tree is the section tree of spec §4.1: prefix → latest signed SAP, plus
// the key chain connecting every known key to genesis. Prefixes are kept
// sorted in a google/btree; GetSignedSAPByName still visits every stored
// entry to find the one matching a name.
type Tree struct {
	mu    sync.RWMutex
	byKey *btree.BTree // of entry, keyed by prefix
	chain *keychain.Chain
}

// NewTree builds an empty tree rooted at genesisKey.
func NewTree(genesisKey keychain.PublicKey) (*Tree, error) {
	chain := keychain.NewChain()
	if err := chain.SetGenesis(genesisKey); err != nil {
		return nil, err
	}
	return &Tree{byKey: btree.New(4), chain: chain}, nil
}

// Chain exposes the underlying key chain for read-only queries (HasKey,
// ProofChain).
func (t *Tree) Chain() *keychain.Chain { return t.chain }

// GetSignedSAPByName returns the authoritative SAP whose prefix matches
// name, spec §4.1 get_signed_sap_by_name.
func (t *Tree) GetSignedSAPByName(name identifier.Name) (Signed, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var found *Signed
	t.byKey.Ascend(func(i btree.Item) bool {
		e := i.(entry)
		if e.prefix.Matches(name) {
			s := e.signed
			found = &s
		}
		return true
	})
	if found == nil {
		return Signed{}, false
	}
	return *found, true
}

// GetSignedSAP returns the stored SAP for an exact prefix, if any.
func (t *Tree) GetSignedSAP(prefix identifier.Prefix) (Signed, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item := t.byKey.Get(entry{prefix: prefix})
	if item == nil {
		return Signed{}, false
	}
	return item.(entry).signed, true
}

// AllPrefixes returns every currently stored prefix, for invariant checks
// and tests (spec §8 property 2: pairwise disjoint, covering the space).
func (t *Tree) AllPrefixes() []identifier.Prefix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []identifier.Prefix
	t.byKey.Ascend(func(i btree.Item) bool {
		out = append(out, i.(entry).prefix)
		return true
	})
	return out
}

// rejectReason names which §4.1 predicate failed, so Update's caller (and
// tests) can report precisely instead of a bare bool.
type rejectReason string

const (
	RejectChainBroken       rejectReason = "chain-segment-did-not-verify"
	RejectSAPUnsigned       rejectReason = "sap-not-signed-under-declared-key"
	RejectPrefixOverlap     rejectReason = "prefix-overlaps-without-strict-split-or-merge"
	RejectGenerationNotNewer rejectReason = "generation-not-strictly-greater"
	RejectInvariant         rejectReason = "sap-local-invariant-violated"
)

// UpdateError reports which predicate of spec §4.1 failed. Never a panic.
type UpdateError struct {
	Reason rejectReason
	cause  error
}

func (e *UpdateError) Error() string {
	if e.cause != nil {
		return string(e.Reason) + ": " + e.cause.Error()
	}
	return string(e.Reason)
}
func (e *UpdateError) Unwrap() error { return e.cause }

// Apply validates and, if accepted, installs u into the tree (spec §4.1
// Update). On accept it either replaces the existing SAP for the prefix;
// or, when u's prefix is a direct child of a stored prefix, removes that
// parent entry and stores the child at once (the sibling child is stored
// when its own update arrives, and until then no SAP covers the sibling's
// half of the parent prefix); or, when stored prefixes extend u's prefix,
// removes them all and stores u as the merge result. All rejections
// return a *UpdateError naming the failed predicate;
// Apply never panics and never partially mutates the tree.
func (t *Tree) Apply(u Update) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// (a) chain segment verifies link-by-link and actually terminates at
	// a key this tree already trusts.
	if err := keychain.Verify(u.ChainLinks); err != nil {
		return &UpdateError{Reason: RejectChainBroken, cause: err}
	}
	if len(u.ChainLinks) > 0 {
		root := u.ChainLinks[0].ParentKey
		if !t.chain.HasKey(root) {
			return &UpdateError{Reason: RejectChainBroken, cause: coreerr.Newf(coreerr.KnowledgeGap, "chain segment does not start from a known key")}
		}
		tip := u.ChainLinks[len(u.ChainLinks)-1].Key
		if !tip.Equal(u.Signed.SignedKey) {
			return &UpdateError{Reason: RejectChainBroken, cause: coreerr.Newf(coreerr.ProtocolViolation, "chain segment does not terminate at the SAP's signed key")}
		}
	} else if !t.chain.HasKey(u.Signed.SignedKey) {
		return &UpdateError{Reason: RejectChainBroken, cause: coreerr.Newf(coreerr.KnowledgeGap, "SAP's key is not already known and no chain segment was supplied")}
	}

	// (b) SAP signed under its declared key.
	sapBytes, err := encodeSAPForSigning(u.Signed.SAP)
	if err != nil {
		return &UpdateError{Reason: RejectSAPUnsigned, cause: err}
	}
	if err := verifySAPSignature(u.Signed.SignedKey, sapBytes, u.Signed.Signature); err != nil {
		return &UpdateError{Reason: RejectSAPUnsigned, cause: err}
	}

	// local SAP invariants (elders are members, members match prefix).
	if err := u.Signed.SAP.ValidateInvariants(); err != nil {
		return &UpdateError{Reason: RejectInvariant, cause: err}
	}

	newPrefix := u.Signed.SAP.Prefix

	// (c) prefix must not partially overlap any other stored prefix.
	var parentEntry, siblingEntry *entry
	conflict := false
	t.byKey.Ascend(func(i btree.Item) bool {
		e := i.(entry)
		if e.prefix.Equal(newPrefix) {
			return true // same-prefix replace, handled below by generation check
		}
		equal, newExtendsStored, storedExtendsNew, disjoint := newPrefix.Overlaps(e.prefix)
		_ = equal
		switch {
		case disjoint:
			return true
		case storedExtendsNew:
			// newPrefix is a merge target: e is one of its (former) children.
			return true
		case newExtendsStored:
			if newPrefix.IsDirectChildOf(e.prefix) {
				p := e
				parentEntry = &p
				return true
			}
			conflict = true
			return false
		default:
			return true
		}
	})
	if conflict {
		return &UpdateError{Reason: RejectPrefixOverlap}
	}

	// (d) generation strictly greater than the previous SAP for this prefix.
	if existing, ok := t.byKey.Get(entry{prefix: newPrefix}).(entry); ok {
		if u.Signed.SAP.Generation <= existing.signed.SAP.Generation {
			return &UpdateError{Reason: RejectGenerationNotNewer}
		}
	}

	// Install the chain links (already verified above).
	for _, l := range u.ChainLinks {
		// Insert re-verifies; harmless, and keeps Chain the single source
		// of truth for HasKey/ProofChain bookkeeping.
		if err := t.chain.Insert(l.ParentKey, l.Key, l.Signature); err != nil {
			if !coreerr.Is(err, coreerr.LocalInvariant) || !t.chain.HasKey(l.Key) {
				return &UpdateError{Reason: RejectChainBroken, cause: err}
			}
		}
	}

	if parentEntry != nil {
		t.byKey.Delete(*parentEntry)
		sibling := newPrefix.Sibling()
		if siblingStored, ok := t.byKey.Get(entry{prefix: sibling}).(entry); ok {
			siblingEntry = &siblingStored
		}
		_ = siblingEntry // both children end up stored individually; no merge of entries needed
	} else {
		// merge: if newPrefix is the strict parent of exactly the two
		// children it replaces, drop them first. Collect matches during the
		// Ascend and delete afterwards; deleting mid-walk is unsafe.
		var toDelete []entry
		t.byKey.Ascend(func(i btree.Item) bool {
			e := i.(entry)
			if e.prefix.IsExtensionOf(newPrefix) {
				toDelete = append(toDelete, e)
			}
			return true
		})
		for _, e := range toDelete {
			t.byKey.Delete(e)
		}
	}
	t.byKey.ReplaceOrInsert(entry{prefix: newPrefix, signed: u.Signed})
	return nil
}

// encodeSAPForSigning produces the deterministic byte message a SAP's
// signature is computed over. Delegated encoding (not a wire format
// decision, spec §6), just enough determinism for the BLS signature to
// verify.
func encodeSAPForSigning(s SAP) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, s.Prefix.Bits()[:]...)
	buf = append(buf, byte(s.Prefix.Len))
	gen := s.Generation
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(gen>>(56-8*i)))
	}
	keyBytes, err := s.Keys.Aggregate.Bytes()
	if err != nil {
		return nil, err
	}
	buf = append(buf, keyBytes...)
	return buf, nil
}

func verifySAPSignature(key keychain.PublicKey, msg, sig []byte) error {
	return keychain.VerifySignature(key, msg, sig)
}
