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

// Package coreerr defines the error taxonomy of spec §7: a small set of
// kinds, not types, so callers can branch on behavior (drop, retry, log,
// rejoin) without a fragile switch over many concrete error types.
package coreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error by the policy it demands, per spec §7.
type Kind int

const (
	// ProtocolViolation covers malformed messages, bad signatures, broken
	// SAP chains, relocation-proof age mismatches. Policy: drop silently,
	// penalize the sender's communication-failure counter.
	ProtocolViolation Kind = iota
	// KnowledgeGap covers AE mismatches, unknown section keys, unknown
	// destination prefixes. Policy: answer with the matching AE reply.
	KnowledgeGap
	// ResourceExhaustion covers full channels, lock contention past a
	// timeout, unreachable peers. Policy: surface a retry-with-backoff
	// envelope to the caller.
	ResourceExhaustion
	// LocalInvariant covers a decision that would contradict an invariant
	// (e.g. two SAPs at one generation). Policy: refuse the update, do not
	// mutate state, log at error severity.
	LocalInvariant
	// RejoinRequired covers the node being decided Left/Relocated, or a
	// join timeout. Policy: signal the rejoin channel.
	RejoinRequired
)

func (k Kind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol-violation"
	case KnowledgeGap:
		return "knowledge-gap"
	case ResourceExhaustion:
		return "resource-exhaustion"
	case LocalInvariant:
		return "local-invariant"
	case RejoinRequired:
		return "rejoin-required"
	default:
		return "unknown"
	}
}

// Error is the core's one error type. Peer is the name (hex string, to
// avoid an import cycle on identifier.Name) of the peer implicated, if any.
type Error struct {
	Kind  Kind
	Peer  string
	cause error
}

func (e *Error) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s (peer %s): %s", e.Kind, e.Peer, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New wraps cause as a core error of the given kind, with no implicated peer.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// WithPeer attaches the peer name implicated in the failure.
func (e *Error) WithPeer(peer string) *Error {
	return &Error{Kind: e.Kind, Peer: peer, cause: e.cause}
}

// Is reports whether err is a *Error of the given kind, looking through
// wrapping the way errors.Is would.
func Is(err error, kind Kind) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}
