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

// Package handover implements the handover engine of spec §4.4: selecting
// the next SAP for a section, or, on split, the two child SAPs, via a
// second voting instance layered on top of the membership engine's
// decisions.
//
// Grounded on the membership engine's own vote-and-decide shape (itself
// grounded on kisdex-mpc-lib's round-based accumulate-then-decide idiom),
// generalized to a two-candidate-shape ballot (ElderHandover vs
// SectionSplit) instead of a single NodeState change.
package handover

import (
	"sync"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
)

// CandidateKind tags which of the two §4.4 candidate shapes a Candidate
// carries.
type CandidateKind int

const (
	ElderHandover CandidateKind = iota
	SectionSplit
)

// Candidate is one handover ballot: either a single next SAP (same
// prefix) or a pair of split-child SAPs.
type Candidate struct {
	Kind  CandidateKind
	Sap0  sap.SAP // ElderHandover's sole SAP, or the split's zero-child
	Sap1  sap.SAP // only meaningful when Kind == SectionSplit
	Round uint64  // matches the membership generation this ballot decides for
}

func (c Candidate) key() string {
	if c.Kind == ElderHandover {
		return "E/" + c.Sap0.Prefix.String()
	}
	return "S/" + c.Sap0.Prefix.String() + "/" + c.Sap1.Prefix.String()
}

// Vote is one elder's endorsement of a Candidate.
type Vote struct {
	Candidate Candidate
	Voter     identifier.Name
	Sig       []byte
}

// Decision is the decided candidate for one round, handed to the DKG
// engine to generate its key.
type Decision struct {
	Round     uint64
	Candidate Candidate
}

// Engine runs one section's handover ballot.
type Engine struct {
	mu sync.Mutex

	elderCount int
	votes      map[string]map[identifier.Name]Vote
	decided    map[uint64]Decision // by round; blocks further proposals at the same round once set

	recommendedSectionSize int
}

// NewEngine returns an idle handover engine.
func NewEngine(elderCount, recommendedSectionSize int) *Engine {
	return &Engine{
		elderCount:             elderCount,
		votes:                  make(map[string]map[identifier.Name]Vote),
		decided:                make(map[uint64]Decision),
		recommendedSectionSize: recommendedSectionSize,
	}
}

// SelectElderCommittee implements spec §4.4's selection rule: the first
// elder_size members of the registry's (descending age, name) ordering.
// Registry.Elders already returns exactly that ordering.
func SelectElderCommittee(registry *peer.Registry, elderSize int) []peer.NodeState {
	return registry.Elders(elderSize)
}

// SplitEligible implements §4.4's split-proposal rule: with the current
// prefix extended by one bit, each child must have at least
// recommendedSectionSize members and at least elderSize eligible elders.
func (e *Engine) SplitEligible(current identifier.Prefix, members []peer.NodeState, elderSize int) (eligible bool, zeroMembers, oneMembers []peer.NodeState) {
	zero, one := current.Children()
	for _, m := range members {
		if zero.Matches(m.Peer.Name) {
			zeroMembers = append(zeroMembers, m)
		} else if one.Matches(m.Peer.Name) {
			oneMembers = append(oneMembers, m)
		}
	}
	eligible = len(zeroMembers) >= e.recommendedSectionSize &&
		len(oneMembers) >= e.recommendedSectionSize &&
		len(zeroMembers) >= elderSize &&
		len(oneMembers) >= elderSize
	return eligible, zeroMembers, oneMembers
}

// Propose casts self's own vote for a candidate at a round, rejecting a
// second distinct candidate once this round is already decided (the
// blocking discipline of §4.4: "while handover is undecided, new SAP
// proposals for the same generation are buffered; only the decided
// candidates are accepted").
func (e *Engine) Propose(self identifier.Name, sign func([]byte) ([]byte, error), cand Candidate) (Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.decided[cand.Round]; ok && d.Candidate.key() != cand.key() {
		return Vote{}, coreerr.Newf(coreerr.ProtocolViolation, "handover: round %d already decided for a different candidate", cand.Round)
	}
	if cand.Kind == SectionSplit {
		if err := verifySplitMemberUnion(cand); err != nil {
			return Vote{}, err
		}
	}
	sig, err := sign(encodeCandidate(cand))
	if err != nil {
		return Vote{}, coreerr.New(coreerr.ProtocolViolation, err)
	}
	return Vote{Candidate: cand, Voter: self, Sig: sig}, nil
}

// verifySplitMemberUnion enforces "split candidates must agree that the
// union of their member sets equals the parent's member set" by checking
// internal consistency of the candidate's two SAPs (no member repeated,
// none dropped relative to what each SAP declares); the caller is
// responsible for comparing the union against the actual parent registry
// before calling Propose, since this engine has no registry reference.
func verifySplitMemberUnion(cand Candidate) error {
	seen := make(map[identifier.Name]struct{}, len(cand.Sap0.Members)+len(cand.Sap1.Members))
	for n := range cand.Sap0.Members {
		seen[n] = struct{}{}
	}
	for n := range cand.Sap1.Members {
		if _, dup := seen[n]; dup {
			return coreerr.Newf(coreerr.LocalInvariant, "handover: split candidate lists %s in both children", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// HandleVote folds one Vote into its candidate's tally, deciding once a
// super-majority of the elder committee agrees (mirrors membership's
// quorum rule).
func (e *Engine) HandleVote(v Vote) (decided bool, d *Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.decided[v.Candidate.Round]; ok {
		return true, &existing
	}
	k := v.Candidate.key()
	votes, ok := e.votes[k]
	if !ok {
		votes = make(map[identifier.Name]Vote)
		e.votes[k] = votes
	}
	votes[v.Voter] = v

	quorum := (e.elderCount*2)/3 + 1
	if quorum > e.elderCount {
		quorum = e.elderCount
	}
	if len(votes) < quorum {
		return false, nil
	}
	dec := Decision{Round: v.Candidate.Round, Candidate: v.Candidate}
	e.decided[v.Candidate.Round] = dec
	delete(e.votes, k)
	return true, &dec
}

// Decision returns the decided candidate for a round, if any.
func (e *Engine) Decision(round uint64) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decided[round]
	return d, ok
}

func encodeCandidate(c Candidate) []byte {
	buf := []byte{byte(c.Kind)}
	bits0 := c.Sap0.Prefix.Bits()
	buf = append(buf, bits0[:]...)
	buf = append(buf, byte(c.Sap0.Prefix.Len))
	if c.Kind == SectionSplit {
		bits1 := c.Sap1.Prefix.Bits()
		buf = append(buf, bits1[:]...)
		buf = append(buf, byte(c.Sap1.Prefix.Len))
	}
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(c.Round>>(56-8*i)))
	}
	return buf
}
