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

// Package wire implements the message envelope of spec §6: the
// conceptual {message_id, kind, destination, payload} shape every message
// carries, plus the three anti-entropy reply kinds. The concrete byte
// layout is explicitly delegated to an external framing codec (spec §6
// "not a goal of this spec"); this package only defines the Go-level
// values and a Codec seam a concrete adapter implements.
package wire

import (
	"github.com/google/uuid"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
	"github.com/maidsafe/sn-sub002/internal/sap"
)

// MessageID is the 128-bit nonce identifying one message, used to
// correlate AE replies back to their originals (spec §4.5 "AE replies are
// correlated back by message-id").
type MessageID = uuid.UUID

// NewMessageID mints a fresh message id.
func NewMessageID() MessageID { return uuid.New() }

// Kind tags which of spec §6's message shapes a payload carries.
type Kind int

const (
	KindClient Kind = iota
	KindNode
	KindClientDataResponse
	KindNodeDataResponse
	KindSectionInfoQuery
	KindAeRetry
	KindAeRedirect
	KindAeUpdate
)

// Destination is where the sender believes name currently lives, and
// under which section key, the AE comparison target (spec §4.5).
type Destination struct {
	Name       identifier.Name
	SectionKey keychain.PublicKey
}

// ClientAuth is the client-side credential attached to a Client-kind
// message; opaque here since its shape belongs to the client protocol,
// not this core.
type ClientAuth struct {
	Blob []byte
}

// Envelope is the conceptual message of spec §6. Payload is opaque and
// length-prefixed by the concrete Codec, deserialised by the recipient
// only after AE passes.
type Envelope struct {
	MessageID   MessageID
	Kind        Kind
	Destination Destination
	Source      identifier.Name
	Signature   []byte
	Auth        *ClientAuth // set only when Kind == KindClient
	Payload     []byte

	// SenderUpdate is set by a sender that knows it holds a newer section
	// key than the receiver: the chain segment and SAP the receiver needs
	// to pull its own tree forward to destination.section_key before this
	// message can be delivered (spec §4.5 Update outcome).
	SenderUpdate *sap.Update
}

// AeRetry is returned when the destination key the sender used is older
// than the receiver's current key for that prefix: the sender is behind
// and must retry once it has caught up (spec §4.5 Retry outcome).
type AeRetry struct {
	InReplyTo MessageID
	Current   sap.Signed
	ProofTail []keychain.Link
}

// AeRedirect is returned when the destination prefix isn't the
// receiver's: it points the sender at a closer known SAP (spec §4.5
// Redirect outcome).
type AeRedirect struct {
	InReplyTo MessageID
	Closer    sap.Signed
	ProofTail []keychain.Link
}

// AeUpdate is returned when the receiver accepted delivery but is telling
// the sender about a section-tree update it should apply anyway (used for
// the Update outcome, where the receiver's key is the older one and it
// pulls itself up to date before delivering; included here so a receiver
// can also push its own newer knowledge opportunistically).
type AeUpdate struct {
	InReplyTo MessageID
	Update    sap.Update
}

// Codec is the seam a concrete framing implementation fills in; this core
// never encodes/decodes bytes itself (spec §6 "delegated to the framing
// codec").
type Codec interface {
	Encode(Envelope) ([]byte, error)
	Decode([]byte) (Envelope, error)
}
