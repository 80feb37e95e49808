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

// Package fault implements the fault tracker of spec §4.6: per-peer
// liveness counters scored relative to XOR neighbours, with a
// reachability probe (supplemented from original_source/, SPEC_FULL.md
// §12) gating the final escalation to Offline.
//
// Grounded on hashicorp/golang-lru/v2's expirable cache for the
// time-windowed counter decay (kisdex-mpc-lib has no liveness-tracking
// code of its own; this is enrichment from the rest of the corpus, same
// as the connection cache in internal/peer).
package fault

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// Kind names which rule a failure counts against (spec §4.6: "per-peer
// counters for: communication failures, pending-request timeouts,
// knowledge gaps, DKG non-participation").
type Kind int

const (
	CommFailure Kind = iota
	Timeout
	KnowledgeGap
	DkgNonParticipation
)

// MinPendingOps is the minimum number of tracked operations against a peer
// before it can be flagged at all (spec §4.6 "never flagged from a single
// failing request").
const MinPendingOps = 10

// ToleranceRatio is the factor a peer's counter must exceed its
// neighbourhood's mean counter by before being flagged (spec §4.6, "e.g.
// 10x").
const ToleranceRatio = 10

// DefaultDecayWindow bounds how long a counter entry survives before it
// decays out of the tracker on its own.
const DefaultDecayWindow = 10 * time.Minute

type counters struct {
	commFailures int
	timeouts     int
	knowledge    int
	dkgMisses    int
	pendingOps   int
}

func (c counters) total() int {
	return c.commFailures + c.timeouts + c.knowledge + c.dkgMisses
}

// Probe is consulted before escalating a dysfunctional score to an Offline
// proposal, so a transient partition on the prober's own side doesn't
// unilaterally evict a healthy peer (supplemented per SPEC_FULL.md §12).
type Probe interface {
	Reachable(name identifier.Name) bool
}

// Tracker maintains the liveness counters for one section's member set.
//
// suspiciousRatio is spec §4.6's tolerance ratio (default ToleranceRatio,
// "e.g. 10x"), the factor a peer's counter must exceed its neighbourhood's
// mean by before it is flagged suspicious at all. dysfunctionalRatio is a
// stricter second gate on top of that (must be >= suspiciousRatio) before
// the node escalates towards an Offline proposal.
type Tracker struct {
	mu    sync.Mutex
	byKey *expirable.LRU[identifier.Name, *counters]
	probe Probe

	suspiciousRatio    float64
	dysfunctionalRatio float64
}

// NewTracker returns an empty tracker. probe may be nil in tests that
// don't exercise the Offline-escalation path.
func NewTracker(probe Probe, window time.Duration, suspiciousRatio, dysfunctionalRatio float64) *Tracker {
	if window <= 0 {
		window = DefaultDecayWindow
	}
	if suspiciousRatio <= 0 {
		suspiciousRatio = ToleranceRatio
	}
	if dysfunctionalRatio < suspiciousRatio {
		dysfunctionalRatio = suspiciousRatio * 3
	}
	return &Tracker{
		byKey:              expirable.NewLRU[identifier.Name, *counters](4096, nil, window),
		probe:              probe,
		suspiciousRatio:    suspiciousRatio,
		dysfunctionalRatio: dysfunctionalRatio,
	}
}

func (t *Tracker) entry(name identifier.Name) *counters {
	if c, ok := t.byKey.Get(name); ok {
		return c
	}
	c := &counters{}
	t.byKey.Add(name, c)
	return c
}

// RecordFailure increments the appropriate counter for one observed
// failure against name.
func (t *Tracker) RecordFailure(name identifier.Name, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.entry(name)
	c.pendingOps++
	switch kind {
	case CommFailure:
		c.commFailures++
	case Timeout:
		c.timeouts++
	case KnowledgeGap:
		c.knowledge++
	case DkgNonParticipation:
		c.dkgMisses++
	}
}

// RecordSuccess decays name's counters on a successful interaction (spec
// §4.6 "counters decay on successful interactions").
func (t *Tracker) RecordSuccess(name identifier.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.entry(name)
	c.pendingOps++
	if c.commFailures > 0 {
		c.commFailures--
	}
	if c.timeouts > 0 {
		c.timeouts--
	}
}

// Purge removes all tracking state for name, per spec §4.6 "nodes removed
// from the section have their counters and tracking state purged".
func (t *Tracker) Purge(name identifier.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey.Remove(name)
}

// Verdict is the outcome of scoring one peer against its neighbourhood.
type Verdict int

const (
	Healthy Verdict = iota
	Suspicious
	Dysfunctional
)

// Score evaluates name's counters against the supplied `neighbours` (the
// caller chooses the XOR neighbourhood; every listed name that has
// counters is averaged), per spec §4.6's two gates:
// minimum pending-ops count, then tolerance-ratio comparison against the
// neighbourhood's mean counter.
func (t *Tracker) Score(name identifier.Name, neighbours []identifier.Name) Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byKey.Get(name)
	if !ok || c.pendingOps < MinPendingOps {
		return Healthy
	}

	neighbourSum, neighbourCount := 0, 0
	for _, n := range neighbours {
		if n == name {
			continue
		}
		nc, ok := t.byKey.Get(n)
		if !ok {
			continue
		}
		neighbourSum += nc.total()
		neighbourCount++
	}

	total := float64(c.total())
	base := 0.0
	if neighbourCount > 0 {
		base = float64(neighbourSum) / float64(neighbourCount)
	}
	if base == 0 {
		base = MinPendingOps // no peers to compare against: fall back to the absolute floor
	}
	suspiciousAt := base * t.suspiciousRatio
	dysfunctionalAt := base * t.dysfunctionalRatio

	switch {
	case total >= dysfunctionalAt:
		return Dysfunctional
	case total >= suspiciousAt:
		return Suspicious
	default:
		return Healthy
	}
}

// ShouldProposeOffline combines a Dysfunctional verdict with a direct
// reachability probe before a node escalates to an Offline proposal
// through the membership engine (SPEC_FULL.md §12): a peer is only
// proposed Offline if it scores Dysfunctional AND this node independently
// fails to reach it.
func (t *Tracker) ShouldProposeOffline(name identifier.Name, neighbours []identifier.Name) bool {
	if t.Score(name, neighbours) != Dysfunctional {
		return false
	}
	if t.probe == nil {
		return true
	}
	return !t.probe.Reachable(name)
}
