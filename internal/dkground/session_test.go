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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/identifier"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l.Sugar()
}

type noopNetwork struct{}

func (noopNetwork) Send(identifier.Name, Message) error { return nil }

func TestThresholdMatchesCeilTwoThirdsMinusOne(t *testing.T) {
	cases := map[int]int{1: 1, 3: 1, 4: 2, 7: 4, 10: 6}
	for n, want := range cases {
		assert.Equal(t, want, Threshold(n), "n=%d", n)
	}
}

func TestSessionIDHashDeterministicUnderElderOrdering(t *testing.T) {
	a := identifier.Random()
	b := identifier.Random()
	id1 := SessionID{
		Prefix:      identifier.Root(),
		Elders:      map[identifier.Name]string{a: "addr-a", b: "addr-b"},
		ChainLength: 2,
		Generation:  3,
	}
	id2 := SessionID{
		Prefix:      identifier.Root(),
		Elders:      map[identifier.Name]string{b: "addr-b", a: "addr-a"},
		ChainLength: 2,
		Generation:  3,
	}
	assert.Equal(t, id1.Hash(), id2.Hash())

	id3 := id2
	id3.Generation = 4
	assert.NotEqual(t, id1.Hash(), id3.Hash())
}

func TestStartSoloCandidateCompletesImmediately(t *testing.T) {
	self := identifier.Random().WithAge(identifier.MinAdultAge)
	sess, err := Start(SessionID{Prefix: identifier.Root(), Generation: 1}, self,
		[]Candidate{{Name: self, Address: "a"}}, noopNetwork{}, testLogger(t), time.Second)
	require.NoError(t, err)

	select {
	case out := <-sess.Done():
		assert.Nil(t, out.Failure)
		assert.NotNil(t, out.SoloPrivateKey)
		assert.Equal(t, 1, out.Threshold)
	default:
		t.Fatal("expected solo session to complete synchronously")
	}
}

func TestObserveFailureReachesQuorumAmongThreeCandidates(t *testing.T) {
	names := []identifier.Name{identifier.Random(), identifier.Random(), identifier.Random()}
	cands := make([]Candidate, len(names))
	for i, n := range names {
		cands[i] = Candidate{Name: n, Address: "a"}
	}

	sessions := make([]*Session, len(names))
	for i, n := range names {
		s, err := Start(SessionID{Prefix: identifier.Root(), Generation: 1, Elders: map[identifier.Name]string{
			names[0]: "a", names[1]: "b", names[2]: "c",
		}}, n, cands, noopNetwork{}, testLogger(t), time.Second)
		require.NoError(t, err)
		sessions[i] = s
	}

	sign := func(msg []byte) ([]byte, error) { return msg, nil }
	// 2>3*2/3 is false, so all three candidates must sign the identical
	// vote before the super-majority bound is cleared.
	for _, s := range sessions {
		require.NoError(t, s.ObserveFailure([]identifier.Name{names[2]}, sign))
	}

	for _, s := range sessions {
		for _, other := range sessions {
			if other == s {
				continue
			}
			_ = s.HandleMessage(Message{
				Kind:    KindFailureVote,
				From:    other.self,
				Failure: &FailureSet{Unresponsive: []identifier.Name{names[2]}},
			})
		}
	}

	select {
	case out := <-sessions[0].Done():
		require.NotNil(t, out.Failure)
		assert.Equal(t, []identifier.Name{names[2]}, out.Failure.Unresponsive)
	default:
		t.Fatal("expected failure quorum to resolve session 0")
	}
}
