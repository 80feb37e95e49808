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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/sap"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

// Event is one of the event-channel values of spec §6: MemberJoined,
// MemberLeft, EldersChanged, SectionSplit, RelocationStarted, Relocated,
// AdultsChanged, RestartRequired.
type Event struct {
	Kind    EventKind
	Payload any
}

// EventKind enumerates spec §6's event-channel values.
type EventKind int

const (
	EventMemberJoined EventKind = iota
	EventMemberLeft
	EventEldersChanged
	EventSectionSplit
	EventRelocationStarted
	EventRelocated
	EventAdultsChanged
	EventRestartRequired
	// EventAntiEntropyReply is not one of spec §6's user-facing events; it
	// carries an AeRetry/AeRedirect the host's comms layer must send back
	// to the original sender, routed through the same event channel so the
	// dispatcher doesn't need its own comms dependency.
	EventAntiEntropyReply
)

// Command is one unit of work the dispatcher executes or re-queues.
// Commands may yield further commands (spec §4.7: "send message, schedule
// timeout, propose membership change, start DKG, persist SAP, emit an
// event"), each carrying the id of the inbound message that produced it as
// a breadcrumb for log correlation.
type Command struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Kind     CommandKind
	Payload  any
}

// CommandKind enumerates the kinds of follow-on work a handler can yield.
type CommandKind int

const (
	CommandSendMessage CommandKind = iota
	CommandScheduleTimeout
	CommandProposeMembershipChange
	CommandStartDKG
	CommandPersistSAP
	CommandEmitEvent
)

// DefaultQueueDepth bounds the dispatcher's child-command channel, so a
// runaway fan-out cannot grow memory without limit. When the queue is
// full, enqueue drops the command and logs a warning; nothing is reported
// back to the handler that yielded it.
const DefaultQueueDepth = 1024

// Dispatcher owns the single write lock spec §4.7 requires over
// membership, handover, DKG, section-tree and fault-tracker state. It
// reads inbound envelopes from In, classifies and runs AE, executes the
// resulting command, and drains any child commands the handler yields
// onto its own bounded queue before moving to the next inbound envelope.
// The same one-goroutine-owns-the-state shape kisdex-mpc-lib's round
// drivers use for a single MPC party, generalized to the whole node.
type Dispatcher struct {
	tree *sap.Tree
	log  *zap.SugaredLogger

	in       <-chan wire.Envelope
	commands chan Command
	events   chan Event

	handlers map[wire.Kind]Handler
}

// Handler executes one classified envelope kind and returns any follow-on
// commands to queue.
type Handler func(d *Dispatcher, env wire.Envelope) ([]Command, error)

// NewDispatcher wires a dispatcher over tree, reading from in.
func NewDispatcher(tree *sap.Tree, in <-chan wire.Envelope, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		tree:     tree,
		log:      log,
		in:       in,
		commands: make(chan Command, DefaultQueueDepth),
		events:   make(chan Event, DefaultQueueDepth),
		handlers: make(map[wire.Kind]Handler),
	}
}

// RegisterHandler installs the command executor for one envelope kind.
func (d *Dispatcher) RegisterHandler(kind wire.Kind, h Handler) {
	d.handlers[kind] = h
}

// Events exposes the outbound event channel to the host (spec §6's event
// channel out).
func (d *Dispatcher) Events() <-chan Event { return d.events }

// Run drives the dispatcher loop until in is closed or stop fires. It is
// meant to be the only goroutine that calls into membership, handover,
// DKG, section-tree or fault-tracker mutators; everything else reaches
// those through read accessors or through commands this loop executes.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case env, ok := <-d.in:
			if !ok {
				return
			}
			d.handleOne(env)
		}
	}
}

func (d *Dispatcher) handleOne(env wire.Envelope) {
	outcome, local, err := ApplyAntiEntropy(d.tree, env.Destination)
	if err != nil && !coreerr.Is(err, coreerr.KnowledgeGap) {
		d.log.Warnw("dispatch: AE failed", "err", err)
		return
	}

	// A sender that is ahead can carry an update for a key this node's
	// chain does not hold yet; ApplyAntiEntropy sees such a key as
	// unrelated, so treat it as the Update outcome.
	if outcome == AeNeedsRedirectReply && env.SenderUpdate != nil && env.SenderUpdate.Signed.SignedKey.Equal(env.Destination.SectionKey) {
		outcome = AeNeedsUpdateThenDeliver
	}

	switch outcome {
	case AeNeedsRetryReply:
		d.emitEvent(EventAntiEntropyReply, ae{kind: wire.KindAeRetry, env: env, local: local})
		return
	case AeNeedsRedirectReply:
		d.emitEvent(EventAntiEntropyReply, ae{kind: wire.KindAeRedirect, env: env, local: local})
		return
	case AeNeedsUpdateThenDeliver:
		if env.SenderUpdate == nil {
			d.log.Warnw("dispatch: sender is ahead but carried no update, dropping", "dest", env.Destination.Name)
			return
		}
		if err := d.tree.Apply(*env.SenderUpdate); err != nil {
			d.log.Warnw("dispatch: failed to apply sender's section-tree update", "err", err)
			return
		}
		// Re-classify now that the tree has moved: §8 property 4 requires
		// destination.section_key to equal the receiver's current key at
		// delivery time, so confirm the update actually caught us up.
		outcome, local, err = ApplyAntiEntropy(d.tree, env.Destination)
		if err != nil || outcome != AeUpToDate {
			d.log.Warnw("dispatch: still not up to date after applying sender's update, dropping", "dest", env.Destination.Name)
			return
		}
		d.log.Debugw("dispatch: pulled section tree forward before delivery", "dest", env.Destination.Name)
	case AeUpToDate:
	}

	handler, ok := d.handlers[env.Kind]
	if !ok {
		d.log.Debugw("dispatch: no handler registered", "kind", env.Kind)
		return
	}
	children, err := handler(d, env)
	if err != nil {
		d.log.Warnw("dispatch: handler failed", "kind", env.Kind, "err", err)
		return
	}
	d.enqueue(env.MessageID, children)
}

// ae is the payload carried by an AE-reply event; the host's comms layer
// is responsible for actually encoding and sending AeRetry/AeRedirect
// back to the original sender.
type ae struct {
	kind  wire.Kind
	env   wire.Envelope
	local sap.Signed
}

func (d *Dispatcher) emitEvent(kind EventKind, payload any) {
	select {
	case d.events <- Event{Kind: kind, Payload: payload}:
	default:
		d.log.Warnw("dispatch: event channel full, dropping event")
	}
}

func (d *Dispatcher) enqueue(parent uuid.UUID, cmds []Command) {
	for _, c := range cmds {
		c.ParentID = parent
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		select {
		case d.commands <- c:
		default:
			d.log.Warnw("dispatch: command queue full, dropping command", "kind", c.Kind)
		}
	}
}

// DrainCommands runs the dispatcher's own command queue, executing
// whatever each Command implies (left to the host's command executor,
// since the shape of "send message" depends on the concrete comms
// adapter). Exposed so cmd/sectionnode can wire its own executor without
// this package needing to import comms.
func (d *Dispatcher) DrainCommands(execute func(Command)) {
	for c := range d.commands {
		execute(c)
	}
}
