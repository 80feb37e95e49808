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
	"testing"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	require.NoError(t, logging.SetLogLevel("dispatch", "debug"))
	cfg := zap.NewDevelopmentConfig()
	l, err := cfg.Build()
	require.NoError(t, err)
	return l.Sugar().With("test", t.Name())
}

func TestRunDispatchesRegisteredHandler(t *testing.T) {
	tree, member, key := buildTreeWithOneSection(t)
	in := make(chan wire.Envelope, 1)
	d := NewDispatcher(tree, in, testLogger(t))

	handled := make(chan wire.Envelope, 1)
	d.RegisterHandler(wire.KindNode, func(d *Dispatcher, env wire.Envelope) ([]Command, error) {
		handled <- env
		return []Command{{Kind: CommandEmitEvent, Payload: "ok"}}, nil
	})

	stop := make(chan struct{})
	go d.Run(stop)
	defer close(stop)

	env := wire.Envelope{
		MessageID:   wire.NewMessageID(),
		Kind:        wire.KindNode,
		Destination: wire.Destination{Name: member, SectionKey: key},
	}
	in <- env

	select {
	case got := <-handled:
		assert.Equal(t, env.MessageID, got.MessageID)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	select {
	case cmd := <-d.commands:
		assert.Equal(t, CommandEmitEvent, cmd.Kind)
		assert.NotEqual(t, uuid.Nil, cmd.ID)
	case <-time.After(time.Second):
		t.Fatal("child command was never enqueued")
	}
}

func TestRunEmitsAntiEntropyReplyInsteadOfDispatching(t *testing.T) {
	tree, member, _ := buildTreeWithOneSection(t)
	staleKey, _ := genKey(t)
	in := make(chan wire.Envelope, 1)
	d := NewDispatcher(tree, in, testLogger(t))

	called := false
	d.RegisterHandler(wire.KindNode, func(d *Dispatcher, env wire.Envelope) ([]Command, error) {
		called = true
		return nil, nil
	})

	stop := make(chan struct{})
	go d.Run(stop)
	defer close(stop)

	in <- wire.Envelope{
		MessageID:   wire.NewMessageID(),
		Kind:        wire.KindNode,
		Destination: wire.Destination{Name: member, SectionKey: staleKey},
	}

	select {
	case ev := <-d.Events():
		assert.Equal(t, EventAntiEntropyReply, ev.Kind)
		payload, ok := ev.Payload.(ae)
		require.True(t, ok)
		assert.Equal(t, wire.KindAeRedirect, payload.kind)
	case <-time.After(time.Second):
		t.Fatal("no anti-entropy reply event emitted")
	}
	assert.False(t, called, "handler must not run when AE says the sender needs a reply first")
}

func TestRunPullsTreeForwardThenDeliversOnUpdateOutcome(t *testing.T) {
	genesisKey, genesisSign := genKey(t)
	tree, err := sap.NewTree(genesisKey)
	require.NoError(t, err)

	root := identifier.Root()
	member := identifier.Random().WithAge(identifier.MinAdultAge)
	genesisSAP := sap.SAP{
		Prefix:     root,
		Keys:       sap.PublicKeySet{Aggregate: genesisKey, Threshold: 1},
		Elders:     []peer.Peer{{Name: member, Address: "a"}},
		Members:    map[identifier.Name]peer.NodeState{member: {Peer: peer.Peer{Name: member}, State: peer.Joined}},
		Generation: 1,
	}
	genesisSigned := sap.Signed{SAP: genesisSAP, SignedKey: genesisKey, Signature: genesisSign(encodeForTest(t, genesisSAP))}
	require.NoError(t, tree.Apply(sap.Update{Signed: genesisSigned}))

	// The sender already knows a newer (child) key; the receiver's tree is
	// still on genesis. Attach the chain segment and newer SAP to the
	// envelope so the dispatcher can pull its own tree forward.
	childKey, childSign := genKey(t)
	childBytes, err := childKey.Bytes()
	require.NoError(t, err)
	linkSig := genesisSign(childBytes)

	childSAP := genesisSAP
	childSAP.Keys = sap.PublicKeySet{Aggregate: childKey, Threshold: 1}
	childSAP.Generation = 2
	childSigned := sap.Signed{SAP: childSAP, SignedKey: childKey, Signature: childSign(encodeForTest(t, childSAP))}
	update := sap.Update{
		Signed:     childSigned,
		ChainLinks: []keychain.Link{{ParentKey: genesisKey, Key: childKey, Signature: linkSig}},
	}

	in := make(chan wire.Envelope, 1)
	d := NewDispatcher(tree, in, testLogger(t))

	handled := make(chan wire.Envelope, 1)
	d.RegisterHandler(wire.KindNode, func(d *Dispatcher, env wire.Envelope) ([]Command, error) {
		handled <- env
		return nil, nil
	})

	stop := make(chan struct{})
	go d.Run(stop)
	defer close(stop)

	in <- wire.Envelope{
		MessageID:    wire.NewMessageID(),
		Kind:         wire.KindNode,
		Destination:  wire.Destination{Name: member, SectionKey: childKey},
		SenderUpdate: &update,
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked after the tree was pulled forward")
	}

	local, ok := tree.GetSignedSAPByName(member)
	require.True(t, ok)
	assert.True(t, local.SAP.Keys.Aggregate.Equal(childKey), "tree should have been pulled forward to the sender's key before delivery")
}

func TestDrainCommandsExecutesEveryQueuedCommand(t *testing.T) {
	tree, _, _ := buildTreeWithOneSection(t)
	in := make(chan wire.Envelope)
	d := NewDispatcher(tree, in, testLogger(t))

	d.enqueue(uuid.Nil, []Command{{Kind: CommandPersistSAP}, {Kind: CommandScheduleTimeout}})
	close(d.commands)

	var executed []CommandKind
	d.DrainCommands(func(c Command) { executed = append(executed, c.Kind) })

	assert.ElementsMatch(t, []CommandKind{CommandPersistSAP, CommandScheduleTimeout}, executed)
}
