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

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetSectionTreeMissingReturnsNotOk(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetSectionTree()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutGetSectionTreeRoundTrips(t *testing.T) {
	s := openTestStore(t)
	want := []byte("snapshot-bytes")
	require.NoError(t, s.PutSectionTree(want))

	got, ok, err := s.GetSectionTree()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestPutGetKeyPairRoundTrips(t *testing.T) {
	s := openTestStore(t)
	want := []byte{1, 2, 3, 4}
	require.NoError(t, s.PutKeyPair(KeyIdentity, want))

	got, ok, err := s.GetKeyPair(KeyIdentity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = s.GetKeyPair(KeyReward)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenPersistsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutSectionTree([]byte("persisted")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, ok, err := reopened.GetSectionTree()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
}
