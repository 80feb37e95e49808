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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
)

func noopSign(msg []byte) ([]byte, error) { return msg, nil }

func mkElder(age byte) peer.NodeState {
	n := identifier.Random().WithAge(age)
	return peer.NodeState{Peer: peer.Peer{Name: n, Address: "a"}, State: peer.Joined}
}

func TestHandleVoteDecidesAtSuperMajority(t *testing.T) {
	reg := peer.NewRegistry()
	elders := []peer.NodeState{mkElder(20), mkElder(21), mkElder(22), mkElder(23), mkElder(24)}
	for _, e := range elders {
		reg.Upsert(e)
	}
	eng := NewEngine(reg, len(elders), 0)

	root := identifier.Root()
	infant := identifier.Random().WithAge(identifier.MinAdultAge)
	change := peer.NodeState{Peer: peer.Peer{Name: infant, Address: "new"}, State: peer.Joined}

	var votes []SignedVote
	for _, e := range elders {
		v, err := eng.Propose(e.Peer.Name, noopSign, change, root)
		require.NoError(t, err)
		votes = append(votes, v)
	}

	// superMajority(5) = 5*2/3+1 = 4: the first 3 votes are passed on
	// (Broadcast) without deciding, the 4th decides; the 5th arrives after
	// the proposal is already decided.
	var decision *Decision
	for i, v := range votes {
		outcome, d := eng.HandleVote(v)
		if d != nil {
			decision = d
		}
		if i < 3 {
			assert.Nil(t, d)
			assert.Equal(t, Broadcast, outcome)
		}
	}
	require.NotNil(t, decision)
	assert.Contains(t, decision.AdultsChanged, infant)

	_, ok := reg.Get(infant)
	assert.True(t, ok)
}

func TestProposeRejectsInfantJoinWithWrongAge(t *testing.T) {
	reg := peer.NewRegistry()
	eng := NewEngine(reg, 3, 0)
	root := identifier.Root()
	badInfant := identifier.Random().WithAge(identifier.MinAdultAge + 3)
	change := peer.NodeState{Peer: peer.Peer{Name: badInfant, Address: "x"}, State: peer.Joined}
	_, err := eng.Propose(identifier.Random(), noopSign, change, root)
	assert.Error(t, err)
}

func TestProposeRejectsJoinsWhenClosed(t *testing.T) {
	reg := peer.NewRegistry()
	eng := NewEngine(reg, 3, 0)
	eng.SetAllowJoins(false)
	root := identifier.Root()
	infant := identifier.Random().WithAge(identifier.MinAdultAge)
	change := peer.NodeState{Peer: peer.Peer{Name: infant, Address: "x"}, State: peer.Joined}
	_, err := eng.Propose(identifier.Random(), noopSign, change, root)
	assert.Error(t, err)
}

func TestIsLeavingSectionRelocatedOutOfPrefix(t *testing.T) {
	zero, one := identifier.Root().Children()
	dst := identifier.Random()
	for !zero.Matches(dst) {
		dst = identifier.Random()
	}
	ns := peer.NodeState{State: peer.Relocated, RelocateDst: dst}
	assert.False(t, IsLeavingSection(ns, zero))
	assert.True(t, IsLeavingSection(ns, one))
}

func TestAntiEntropyReplaysVotesFromAlreadyDecidedGenerations(t *testing.T) {
	reg := peer.NewRegistry()
	elders := []peer.NodeState{mkElder(20), mkElder(21), mkElder(22), mkElder(23), mkElder(24)}
	for _, e := range elders {
		reg.Upsert(e)
	}
	eng := NewEngine(reg, len(elders), 0)

	root := identifier.Root()
	infant := identifier.Random().WithAge(identifier.MinAdultAge)
	change := peer.NodeState{Peer: peer.Peer{Name: infant, Address: "new"}, State: peer.Joined}

	var decidedGeneration uint64
	for _, e := range elders {
		v, err := eng.Propose(e.Peer.Name, noopSign, change, root)
		require.NoError(t, err)
		if _, d := eng.HandleVote(v); d != nil {
			decidedGeneration = d.Generation
		}
	}
	require.NotZero(t, decidedGeneration)

	// A peer that never saw this already-decided generation must still get
	// its votes replayed, not just votes still awaiting quorum.
	catchUp := eng.AntiEntropy(decidedGeneration - 1)
	require.NotEmpty(t, catchUp)
	for _, v := range catchUp {
		assert.Equal(t, decidedGeneration, v.Proposal.Generation)
	}

	// A peer already at or past the decided generation gets nothing back.
	assert.Empty(t, eng.AntiEntropy(decidedGeneration))
}

func TestResourceProofRoundTrip(t *testing.T) {
	candidate := identifier.Random()
	var nonce [32]byte
	nonce[0] = 7
	challenge := NewResourceProofChallenge(candidate, nonce, 100)
	resp := challenge.Solve()
	assert.NoError(t, VerifyResourceProof(challenge, resp))

	bad := resp
	bad.Proof[0] ^= 0xFF
	assert.Error(t, VerifyResourceProof(challenge, bad))
}
