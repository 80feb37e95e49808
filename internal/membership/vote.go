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

// Package membership implements the membership engine of spec §4.3: one
// logical BFT vote-and-decide instance per section, producing an ordered
// sequence of decisions (generation → accepted NodeState changes).
//
// Grounded on kisdex-mpc-lib's round-machine idiom (Start/accumulate/decide
// once a threshold of participants has been heard from) generalized from a
// fixed N-of-N MPC round to an open-ended, fault-tolerant super-majority
// vote; the resource-proof gate and relocation-proof check are supplemented
// from `original_source/`'s Rust join-handling (see SPEC_FULL.md §12).
package membership

import (
	"sync"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/peer"
)

// Proposal is one candidate membership change awaiting votes.
type Proposal struct {
	Generation uint64
	Prefix     identifier.Prefix
	Change     peer.NodeState
}

func (p Proposal) key() string {
	return p.Prefix.String() + "/" + p.Change.Peer.Name.Hex() + "/" + p.Change.State.String()
}

// SignedVote is one voter's endorsement of a Proposal.
type SignedVote struct {
	Proposal Proposal
	Voter    identifier.Name
	Sig      []byte
}

// VoteOutcome is handle_vote's result: Broadcast when the vote was new to
// this engine's tally (whether or not it completed a decision) and should
// be passed on to the rest of the section; WaitingForMoreVotes when it
// added nothing (a repeat from the same voter, or a vote for a proposal
// already decided).
type VoteOutcome int

const (
	WaitingForMoreVotes VoteOutcome = iota
	Broadcast
)

// Decision is one accepted generation's worth of membership changes.
type Decision struct {
	Generation uint64
	Changes    []peer.NodeState
	// AdultsChanged is the set-difference of adult names before/after this
	// decision (supplemented per SPEC_FULL.md §12, since the adult subset
	// can change independent of any elder change).
	AdultsChanged []identifier.Name
}

// Engine runs the vote-and-decide protocol for one section.
type Engine struct {
	mu sync.Mutex

	elderCount int
	registry   *peer.Registry

	votesByProposal map[string]map[identifier.Name]SignedVote
	decided         map[string]bool
	decidedVotes    map[uint64][]SignedVote // generation -> the votes that decided it, kept for AntiEntropy catch-up
	decisions       []Decision
	generation      uint64

	allowJoins bool
}

// NewEngine returns an engine seeded with the section's current member
// registry and starting generation.
func NewEngine(registry *peer.Registry, elderCount int, startGeneration uint64) *Engine {
	return &Engine{
		elderCount:      elderCount,
		registry:        registry,
		votesByProposal: make(map[string]map[identifier.Name]SignedVote),
		decided:         make(map[string]bool),
		decidedVotes:    make(map[uint64][]SignedVote),
		generation:      startGeneration,
		allowJoins:      true,
	}
}

// SetAllowJoins toggles whether `propose` admits new infant joins (a
// section closes joins, e.g. mid-split or mid-handover).
func (e *Engine) SetAllowJoins(allow bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowJoins = allow
}

// Propose validates and wraps one candidate NodeState change as this
// node's own SignedVote (spec §4.3 propose(NodeState, prefix) → SignedVote).
func (e *Engine) Propose(self identifier.Name, sign func([]byte) ([]byte, error), change peer.NodeState, prefix identifier.Prefix) (SignedVote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validateChange(change, prefix); err != nil {
		return SignedVote{}, err
	}
	p := Proposal{Generation: e.generation + 1, Prefix: prefix, Change: change}
	msg := encodeProposal(p)
	sig, err := sign(msg)
	if err != nil {
		return SignedVote{}, coreerr.New(coreerr.ProtocolViolation, err)
	}
	return SignedVote{Proposal: p, Voter: self, Sig: sig}, nil
}

// validateChange enforces spec §4.3's join-admission invariants: the
// infant age gate and the relocation age-continuity gate. The
// resource-proof gate supplemented from original_source/ (see
// ResourceProofChallenge/VerifyResourceProof) runs one step earlier, as
// its own message exchange between the elder and the joining candidate.
// By the time a candidate reaches Propose its proof has already been
// checked, so this function does not call VerifyResourceProof itself.
func (e *Engine) validateChange(change peer.NodeState, prefix identifier.Prefix) error {
	if change.State != peer.Joined {
		return nil
	}
	if change.PreviousName == nil {
		// Infant join.
		if !e.allowJoins {
			return coreerr.Newf(coreerr.ProtocolViolation, "membership: section is not currently admitting joins")
		}
		if change.Peer.Name.Age() != identifier.MinAdultAge {
			return coreerr.Newf(coreerr.ProtocolViolation, "membership: infant join must have age=%d, got %d", identifier.MinAdultAge, change.Peer.Name.Age())
		}
		return nil
	}
	// Relocated join: previous age must be new age minus one, or 255 (genesis/elder-retirement boundary).
	prevAge := change.PreviousName.Age()
	newAge := change.Peer.Name.Age()
	if prevAge != identifier.GenesisAge && prevAge+1 != newAge {
		return coreerr.Newf(coreerr.ProtocolViolation, "membership: relocated node age continuity violated (prev=%d new=%d)", prevAge, newAge)
	}
	return nil
}

// HandleVote folds one SignedVote into the tally for its proposal and
// reports Broadcast for a vote new to the tally, WaitingForMoreVotes for a
// repeated vote or one for an already decided proposal.
// Once a super-majority of the current elder count has voted for the same
// proposal, the change is appended to the decision log and removed from
// the pending tally (spec §4.3 handle_vote).
func (e *Engine) HandleVote(v SignedVote) (VoteOutcome, *Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := v.Proposal.key()
	if e.decided[k] {
		return WaitingForMoreVotes, nil
	}
	votes, ok := e.votesByProposal[k]
	if !ok {
		votes = make(map[identifier.Name]SignedVote)
		e.votesByProposal[k] = votes
	}
	if _, already := votes[v.Voter]; already {
		return WaitingForMoreVotes, nil
	}
	votes[v.Voter] = v

	quorum := superMajority(e.elderCount)
	if len(votes) < quorum {
		return Broadcast, nil
	}

	e.decided[k] = true
	decidedVotes := make([]SignedVote, 0, len(votes))
	for _, dv := range votes {
		decidedVotes = append(decidedVotes, dv)
	}
	e.decidedVotes[v.Proposal.Generation] = append(e.decidedVotes[v.Proposal.Generation], decidedVotes...)
	delete(e.votesByProposal, k)
	if v.Proposal.Generation > e.generation {
		e.generation = v.Proposal.Generation
	}

	beforeAdults := e.adultNames()
	e.applyChange(v.Proposal.Change)
	afterAdults := e.adultNames()

	d := Decision{
		Generation:    v.Proposal.Generation,
		Changes:       []peer.NodeState{v.Proposal.Change},
		AdultsChanged: setDifference(beforeAdults, afterAdults),
	}
	e.decisions = append(e.decisions, d)
	return Broadcast, &d
}

// superMajority mirrors the 2n/3 quorum used throughout the core (dkground
// Threshold, checkFailureQuorum): more than two-thirds of the elder set.
func superMajority(elderCount int) int {
	if elderCount <= 0 {
		return 1
	}
	q := (elderCount*2)/3 + 1
	if q > elderCount {
		q = elderCount
	}
	return q
}

// applyChange installs a decided NodeState. Left/Relocated members are kept
// in the registry with their terminal state rather than deleted outright.
// §4.3's removal requirement is about exclusion from Members()/the active
// set, which Registry.Members() already enforces by filtering on State.
func (e *Engine) applyChange(ns peer.NodeState) {
	e.registry.Upsert(ns)
}

func (e *Engine) adultNames() map[identifier.Name]struct{} {
	out := make(map[identifier.Name]struct{})
	for _, m := range e.registry.Members() {
		if m.Peer.Name.Age() >= identifier.MinAdultAge {
			out[m.Peer.Name] = struct{}{}
		}
	}
	return out
}

func setDifference(before, after map[identifier.Name]struct{}) []identifier.Name {
	var out []identifier.Name
	for n := range after {
		if _, ok := before[n]; !ok {
			out = append(out, n)
		}
	}
	for n := range before {
		if _, ok := after[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// MostRecentDecision returns the latest decided generation's Decision, if
// any (spec §4.3 most_recent_decision).
func (e *Engine) MostRecentDecision() (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.decisions) == 0 {
		return Decision{}, false
	}
	return e.decisions[len(e.decisions)-1], true
}

// IsLeavingSection reports whether a NodeState names its peer as Left or
// Relocated out of prefix, spec §4.3 is_leaving_section(state, prefix).
func IsLeavingSection(state peer.NodeState, prefix identifier.Prefix) bool {
	if state.State == peer.Left {
		return true
	}
	if state.State == peer.Relocated {
		return !prefix.Matches(state.RelocateDst)
	}
	return false
}

// AntiEntropy returns every vote this engine has accumulated for
// generations after peerGeneration, letting a lagging peer catch up (spec
// §4.3 anti_entropy(peer_generation)). This covers both votes still
// awaiting quorum and votes for generations already decided, since a peer
// lagging behind an old decision needs those replayed too, not just the
// in-flight ones.
func (e *Engine) AntiEntropy(peerGeneration uint64) []SignedVote {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []SignedVote
	for _, votes := range e.votesByProposal {
		for _, v := range votes {
			if v.Proposal.Generation > peerGeneration {
				out = append(out, v)
			}
		}
	}
	for gen, votes := range e.decidedVotes {
		if gen > peerGeneration {
			out = append(out, votes...)
		}
	}
	return out
}

func encodeProposal(p Proposal) []byte {
	buf := make([]byte, 0, 48)
	bits := p.Prefix.Bits()
	buf = append(buf, bits[:]...)
	buf = append(buf, byte(p.Prefix.Len))
	buf = append(buf, p.Change.Peer.Name[:]...)
	buf = append(buf, byte(p.Change.State))
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(p.Generation>>(56-8*i)))
	}
	return buf
}
