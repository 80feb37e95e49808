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

package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixMatches(t *testing.T) {
	n := Random()
	p := NewPrefix(n, 10)
	assert.True(t, p.Matches(n))

	other := n
	other[0] ^= 0xFF // flips the leading byte, breaking any 10-bit prefix match
	assert.False(t, p.Matches(other))
}

func TestPrefixParentSiblingChildren(t *testing.T) {
	root := Root()
	zero, one := root.Children()
	require.True(t, zero.IsDirectChildOf(root))
	require.True(t, one.IsDirectChildOf(root))
	assert.True(t, zero.Sibling().Equal(one))
	assert.True(t, one.Sibling().Equal(zero))
	assert.True(t, zero.Parent().Equal(root))
}

func TestPrefixOverlapsNeverPartial(t *testing.T) {
	n := Random()
	p8 := NewPrefix(n, 8)
	p4 := NewPrefix(n, 4)
	equal, pExt, oExt, disjoint := p8.Overlaps(p4)
	assert.False(t, equal)
	assert.True(t, pExt)
	assert.False(t, oExt)
	assert.False(t, disjoint)

	sib := p4.Sibling()
	equal, pExt, oExt, disjoint = p8.Overlaps(sib)
	assert.False(t, equal)
	assert.False(t, pExt)
	assert.False(t, oExt)
	assert.True(t, disjoint)
}

func TestCommonLeadingBits(t *testing.T) {
	var a, b Name
	a[0] = 0b11110000
	b[0] = 0b11111111
	assert.Equal(t, 4, CommonLeadingBits(a, b))
}

func TestSortByDistanceDeterministic(t *testing.T) {
	target := Random()
	names := []Name{Random(), Random(), Random(), target}
	s1 := SortByDistance(target, names)
	s2 := SortByDistance(target, names)
	assert.Equal(t, s1, s2)
	assert.Equal(t, target, s1[0]) // distance 0 to itself sorts first
}
