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

package membership

import (
	"crypto/subtle"

	"golang.org/x/crypto/sha3"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// ResourceProofChallenge is the puzzle an elder issues to a joining infant
// before proposing its NodeState, supplemented from original_source/'s
// resource_proof.rs (SPEC_FULL.md §12) to deter cheap Sybil joins. The
// puzzle is a repeated-hash chain: the candidate must return the value
// reached after Difficulty rounds of Keccak256 starting from Seed (the
// value the challenge also records as Target).
type ResourceProofChallenge struct {
	Seed       [32]byte
	Difficulty int
	Target     [32]byte
}

// NewResourceProofChallenge derives a challenge for a given joining name,
// keyed by the issuing elder's nonce so challenges aren't replayable
// across candidates.
func NewResourceProofChallenge(candidate identifier.Name, elderNonce [32]byte, difficulty int) ResourceProofChallenge {
	seed := keccak256(append(append([]byte{}, candidate[:]...), elderNonce[:]...))
	target := iterateHash(seed, difficulty)
	return ResourceProofChallenge{Seed: seed, Difficulty: difficulty, Target: target}
}

// ResourceProofResponse is the candidate's claimed solution.
type ResourceProofResponse struct {
	Proof [32]byte
}

// Solve computes the response to a challenge; this is what a joining
// candidate runs locally before sending ResourceProofResponse.
func (c ResourceProofChallenge) Solve() ResourceProofResponse {
	return ResourceProofResponse{Proof: iterateHash(c.Seed, c.Difficulty)}
}

// VerifyResourceProof checks a candidate's response against the challenge
// the elder issued. It belongs to the elder's own exchange with a joining
// infant, before that join is proposed; Engine.Propose does not call it.
// Relocated joins carry a relocation proof instead and skip this check
// (mirrors the Rust source's distinction).
func VerifyResourceProof(c ResourceProofChallenge, r ResourceProofResponse) error {
	want := iterateHash(c.Seed, c.Difficulty)
	if subtle.ConstantTimeCompare(want[:], r.Proof[:]) != 1 {
		return coreerr.Newf(coreerr.ProtocolViolation, "membership: resource proof does not match challenge")
	}
	return nil
}

func iterateHash(seed [32]byte, rounds int) [32]byte {
	cur := seed
	for i := 0; i < rounds; i++ {
		cur = keccak256(cur[:])
	}
	return cur
}

func keccak256(b []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
