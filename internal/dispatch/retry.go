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

package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// DefaultRetryBudget is spec §4.5's example retry budget: ⌈timeout /
// attempt-timeout⌉.
const DefaultRetryBudget = 30

// HolderRotation picks the next candidate holder for a retried request by
// incrementing the adult index modulo the data-copy count, so a faulty
// peer isn't retried against indefinitely (spec §4.5 "Each retry selects
// the next candidate holder... to avoid pinning a faulty peer").
type HolderRotation struct {
	holders []identifier.Name
	next    int
}

// NewHolderRotation starts rotation at the first holder.
func NewHolderRotation(holders []identifier.Name) *HolderRotation {
	return &HolderRotation{holders: holders}
}

// Current returns today's holder without advancing.
func (r *HolderRotation) Current() (identifier.Name, bool) {
	if len(r.holders) == 0 {
		return identifier.Name{}, false
	}
	return r.holders[r.next%len(r.holders)], true
}

// Advance moves to the next holder in rotation, wrapping modulo the
// data-copy count.
func (r *HolderRotation) Advance() {
	if len(r.holders) == 0 {
		return
	}
	r.next = (r.next + 1) % len(r.holders)
}

// RetryBackoff builds the exponential backoff schedule an in-flight
// request's retry loop uses between attempts, capped at budget attempts
// (spec §4.5). Grounded on cenkalti/backoff/v4's WithMaxRetries wrapper,
// the same idiom the rest of the corpus uses for bounded retry loops.
func RetryBackoff(attemptTimeout time.Duration, budget int) backoff.BackOff {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = attemptTimeout
	b.MaxInterval = attemptTimeout * 4
	b.MaxElapsedTime = attemptTimeout * time.Duration(budget)
	return backoff.WithMaxRetries(b, uint64(budget))
}

// ExhaustedErr reports that a request's retry budget ran out without a
// successful delivery (spec §7 Resource-exhaustion: "peer unreachable...
// surface to originator with a retry-with-backoff envelope").
func ExhaustedErr(dest identifier.Name) error {
	return coreerr.Newf(coreerr.ResourceExhaustion, "dispatch: retry budget exhausted for destination %s", dest).WithPeer(dest.Hex())
}
