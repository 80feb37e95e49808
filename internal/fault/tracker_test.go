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

package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maidsafe/sn-sub002/internal/identifier"
)

type fakeProbe struct{ reachable map[identifier.Name]bool }

func (f fakeProbe) Reachable(n identifier.Name) bool { return f.reachable[n] }

func TestScoreHealthyBelowMinPendingOps(t *testing.T) {
	tr := NewTracker(nil, 0, 10, 30)
	bad := identifier.Random()
	for i := 0; i < MinPendingOps-1; i++ {
		tr.RecordFailure(bad, CommFailure)
	}
	assert.Equal(t, Healthy, tr.Score(bad, nil))
}

func TestScoreFlagsDysfunctionalOutlier(t *testing.T) {
	tr := NewTracker(nil, 0, 10, 30)
	good := identifier.Random()
	bad := identifier.Random()
	for i := 0; i < 2; i++ {
		tr.RecordFailure(good, CommFailure)
	}
	for i := 0; i < 100; i++ {
		tr.RecordFailure(bad, CommFailure)
	}
	assert.Equal(t, Dysfunctional, tr.Score(bad, []identifier.Name{good}))
	assert.Equal(t, Healthy, tr.Score(good, []identifier.Name{bad}))
}

func TestShouldProposeOfflineRequiresFailedProbe(t *testing.T) {
	bad := identifier.Random()
	good := identifier.Random()
	probe := fakeProbe{reachable: map[identifier.Name]bool{bad: true}}
	tr := NewTracker(probe, 0, 10, 30)
	for i := 0; i < 100; i++ {
		tr.RecordFailure(bad, Timeout)
	}
	// Probe says bad is actually reachable: must not escalate.
	assert.False(t, tr.ShouldProposeOffline(bad, []identifier.Name{good}))

	probe2 := fakeProbe{reachable: map[identifier.Name]bool{}}
	tr2 := NewTracker(probe2, 0, 10, 30)
	for i := 0; i < 100; i++ {
		tr2.RecordFailure(bad, Timeout)
	}
	assert.True(t, tr2.ShouldProposeOffline(bad, []identifier.Name{good}))
}

func TestPurgeRemovesTrackingState(t *testing.T) {
	tr := NewTracker(nil, 0, 10, 30)
	n := identifier.Random()
	for i := 0; i < MinPendingOps; i++ {
		tr.RecordFailure(n, CommFailure)
	}
	tr.Purge(n)
	assert.Equal(t, Healthy, tr.Score(n, nil))
}
