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

package adminrpc

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
)

type fakeSource struct {
	self peer.Peer
	tree *sap.Tree
}

func (f fakeSource) Self() peer.Peer { return f.self }
func (f fakeSource) Tree() *sap.Tree { return f.tree }

func buildTestSource(t *testing.T) fakeSource {
	t.Helper()
	priv, pub := bls.NewKeyPair(keychain.Suite, keychain.Suite.RandomStream())
	genesisKey := keychain.NewPublicKey(pub)
	tree, err := sap.NewTree(genesisKey)
	require.NoError(t, err)

	self := peer.Peer{Name: identifier.Random(), Address: "127.0.0.1:9000"}
	root := identifier.Root()
	genesisSAP := sap.SAP{
		Prefix:     root,
		Keys:       sap.PublicKeySet{Aggregate: genesisKey, Threshold: 1},
		Elders:     []peer.Peer{self},
		Members:    map[identifier.Name]peer.NodeState{self.Name: {Peer: self, State: peer.Joined}},
		Generation: 1,
	}
	msg := encodeForTest(t, genesisSAP)
	sig, err := bls.Sign(keychain.Suite, priv, msg)
	require.NoError(t, err)
	signed := sap.Signed{SAP: genesisSAP, SignedKey: genesisKey, Signature: sig}
	require.NoError(t, tree.Apply(sap.Update{Signed: signed}))

	return fakeSource{self: self, tree: tree}
}

// encodeForTest mirrors sap's unexported encodeSAPForSigning so this
// package's test can sign a SAP without reaching into sap's internals.
func encodeForTest(t *testing.T, s sap.SAP) []byte {
	t.Helper()
	buf := make([]byte, 0, 64)
	bits := s.Prefix.Bits()
	buf = append(buf, bits[:]...)
	buf = append(buf, byte(s.Prefix.Len))
	gen := s.Generation
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(gen>>(56-8*i)))
	}
	keyBytes, err := s.Keys.Aggregate.Bytes()
	require.NoError(t, err)
	buf = append(buf, keyBytes...)
	return buf
}

func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l.Sugar()
}

func TestHandleInfoReturnsSelfIdentity(t *testing.T) {
	src := buildTestSource(t)
	srv := NewServer("", src, newTestLogger(t))

	req := httptest.NewRequest("GET", "/info", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	var info NodeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, src.self.Name.Hex(), info.Name)
	assert.Equal(t, src.self.Address, info.Address)
}

func TestHandleSectionTreeListsGenesisSection(t *testing.T) {
	src := buildTestSource(t)
	srv := NewServer("", src, newTestLogger(t))

	req := httptest.NewRequest("GET", "/section-tree", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	var dump SectionTreeDump
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dump))
	require.Len(t, dump.Sections, 1)
	assert.EqualValues(t, 1, dump.Sections[0].Generation)
}
