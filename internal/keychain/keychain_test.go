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

package keychain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.dedis.ch/kyber/v3/sign/bls"
)

func genKeyPair() (PublicKey, func([]byte) ([]byte, error)) {
	priv, pub := bls.NewKeyPair(Suite, Suite.RandomStream())
	pk := NewPublicKey(pub)
	sign := func(msg []byte) ([]byte, error) {
		return bls.Sign(Suite, priv, msg)
	}
	return pk, sign
}

func TestChainInsertAndProofChain(t *testing.T) {
	c := NewChain()
	genesisKey, genesisSign := genKeyPair()
	require.NoError(t, c.SetGenesis(genesisKey))

	childKey, _ := genKeyPair()
	childBytes, err := childKey.Bytes()
	require.NoError(t, err)
	sig, err := genesisSign(childBytes)
	require.NoError(t, err)

	require.NoError(t, c.Insert(genesisKey, childKey, sig))
	assert.True(t, c.HasKey(childKey))

	chain, ok := c.ProofChain(genesisKey, childKey)
	require.True(t, ok)
	require.Len(t, chain, 1)
	assert.NoError(t, Verify(chain))
}

func TestChainInsertRejectsBadSignature(t *testing.T) {
	c := NewChain()
	genesisKey, _ := genKeyPair()
	require.NoError(t, c.SetGenesis(genesisKey))

	childKey, _ := genKeyPair()
	err := c.Insert(genesisKey, childKey, []byte("not a signature"))
	assert.Error(t, err)
	assert.False(t, c.HasKey(childKey))
}

func TestChainInsertRejectsUnknownParent(t *testing.T) {
	c := NewChain()
	genesisKey, _ := genKeyPair()
	require.NoError(t, c.SetGenesis(genesisKey))

	unknownParent, unknownSign := genKeyPair()
	childKey, _ := genKeyPair()
	childBytes, _ := childKey.Bytes()
	sig, err := unknownSign(childBytes)
	require.NoError(t, err)

	err = c.Insert(unknownParent, childKey, sig)
	assert.Error(t, err)
}
