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

package handover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
)

func noopSign(msg []byte) ([]byte, error) { return msg, nil }

func TestSelectElderCommitteeOrdersByAgeThenName(t *testing.T) {
	reg := peer.NewRegistry()
	ages := []byte{10, 30, 20}
	var names []identifier.Name
	for _, a := range ages {
		n := identifier.Random().WithAge(a)
		names = append(names, n)
		reg.Upsert(peer.NodeState{Peer: peer.Peer{Name: n}, State: peer.Joined})
	}
	committee := SelectElderCommittee(reg, 2)
	require.Len(t, committee, 2)
	assert.Equal(t, byte(30), committee[0].Peer.Name.Age())
	assert.Equal(t, byte(20), committee[1].Peer.Name.Age())
}

func TestSplitEligibleRequiresBothChildrenToMeetThresholds(t *testing.T) {
	eng := NewEngine(3, 2)
	root := identifier.Root()
	zero, _ := root.Children()

	var members []peer.NodeState
	// Three in zero-child, none in one-child: not eligible.
	for i := 0; i < 3; i++ {
		n := identifier.Random()
		for !zero.Matches(n) {
			n = identifier.Random()
		}
		members = append(members, peer.NodeState{Peer: peer.Peer{Name: n.WithAge(10)}, State: peer.Joined})
	}
	eligible, _, _ := eng.SplitEligible(root, members, 2)
	assert.False(t, eligible)
}

func TestHandoverDecidesAtSuperMajority(t *testing.T) {
	eng := NewEngine(4, 2)
	root := identifier.Root()
	nextSAP := sap.SAP{Prefix: root, Generation: 2}
	cand := Candidate{Kind: ElderHandover, Sap0: nextSAP, Round: 2}

	voters := []identifier.Name{identifier.Random(), identifier.Random(), identifier.Random(), identifier.Random()}
	var decision *Decision
	for i, voter := range voters {
		v, err := eng.Propose(voter, noopSign, cand)
		require.NoError(t, err)
		decided, d := eng.HandleVote(v)
		if i < 2 {
			assert.False(t, decided)
		}
		if d != nil {
			decision = d
		}
	}
	require.NotNil(t, decision)
	assert.Equal(t, uint64(2), decision.Round)
}

func TestProposeRejectsSplitWithOverlappingMembers(t *testing.T) {
	eng := NewEngine(4, 2)
	root := identifier.Root()
	zero, one := root.Children()
	n := identifier.Random().WithAge(10)
	sap0 := sap.SAP{Prefix: zero, Members: map[identifier.Name]peer.NodeState{n: {Peer: peer.Peer{Name: n}, State: peer.Joined}}}
	sap1 := sap.SAP{Prefix: one, Members: map[identifier.Name]peer.NodeState{n: {Peer: peer.Peer{Name: n}, State: peer.Joined}}}
	cand := Candidate{Kind: SectionSplit, Sap0: sap0, Sap1: sap1, Round: 5}
	_, err := eng.Propose(identifier.Random(), noopSign, cand)
	assert.Error(t, err)
}
