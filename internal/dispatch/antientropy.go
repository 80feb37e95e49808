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

// Package dispatch implements the dispatcher of spec §4.7: the single
// writer over membership, handover, DKG, section-tree and fault-tracker
// state, applying anti-entropy (§4.5) to every inbound envelope before
// any command executes.
//
// Grounded on kisdex-mpc-lib's session-driver loop (a single goroutine
// reading a parent's inbound channel, routing by message type, writing
// results to an outbound channel) generalized from one MPC ceremony to
// the whole node's command/event pipeline.
package dispatch

import (
	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/sap"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

// AeOutcome is the receiver-side classification of spec §4.5.
type AeOutcome int

const (
	AeUpToDate AeOutcome = iota
	AeNeedsRetryReply
	AeNeedsRedirectReply
	AeNeedsUpdateThenDeliver
)

// ApplyAntiEntropy implements spec §4.5's four-way receiver classification:
// compare the envelope's destination section-key against the local tree's
// current key for that prefix.
//
//   - UpToDate: destination key equals the local current key for the
//     prefix owning `dest.Name` → deliver.
//   - Retry: destination key is an older key on the local chain → reply
//     AeRetry, don't deliver.
//   - Redirect: no known SAP covers `dest.Name`, or the destination key
//     is neither an ancestor nor a descendant of the local key on the
//     chain → reply AeRedirect with the SAP the tree holds for
//     `dest.Name`. `dest.Name` is not compared with this node's own
//     prefix: a destination in another section whose current key the
//     sender already holds is classified UpToDate.
//   - Update: the local key is the older one → pull the section tree
//     forward then deliver. This is detected here only when the chain
//     already holds the newer key.
func ApplyAntiEntropy(tree *sap.Tree, dest wire.Destination) (AeOutcome, sap.Signed, error) {
	local, ok := tree.GetSignedSAPByName(dest.Name)
	if !ok {
		return AeNeedsRedirectReply, sap.Signed{}, coreerr.Newf(coreerr.KnowledgeGap, "dispatch: no known SAP covers %s", dest.Name)
	}

	if local.SAP.Keys.Aggregate.Equal(dest.SectionKey) {
		return AeUpToDate, local, nil
	}

	// Is dest.SectionKey reachable by walking forward from the local key
	// (local is older), or backward (dest is older, i.e. stale)?
	if _, ok := tree.Chain().ProofChain(local.SAP.Keys.Aggregate, dest.SectionKey); ok {
		// dest.SectionKey is a descendant of the local key: the sender
		// knows a newer key than this node does.
		return AeNeedsUpdateThenDeliver, local, nil
	}
	if _, ok := tree.Chain().ProofChain(dest.SectionKey, local.SAP.Keys.Aggregate); ok {
		// local is a descendant of dest.SectionKey: the sender is behind.
		return AeNeedsRetryReply, local, nil
	}

	// Neither is an ancestor of the other on the local chain: point the
	// sender at the SAP this tree holds for dest.Name.
	return AeNeedsRedirectReply, local, nil
}
