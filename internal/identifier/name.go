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

// Package identifier implements the 256-bit name space and binary prefix
// tree of spec §2/§3: names, ages, prefixes, and the XOR metric that
// everything else (section membership, holder selection, handover ordering)
// is built on.
package identifier

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"math/bits"
	"sort"
)

// NameLen is the width of the identifier space in bytes (256 bits).
const NameLen = 32

// MinAdultAge is the minimum age a joining (infant) node may claim, per
// spec §3.
const MinAdultAge = 5

// GenesisAge is the age of the first node in the network.
const GenesisAge = 255

// Name is a 256-bit value in the identifier space.
type Name [NameLen]byte

// Age is the last byte of a Name.
func (n Name) Age() byte { return n[NameLen-1] }

// String renders the name as lowercase hex, truncated for log friendliness.
func (n Name) String() string {
	s := hex.EncodeToString(n[:])
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-6:]
}

// Hex renders the full name as hex, for persistence and exact comparisons
// in logs.
func (n Name) Hex() string { return hex.EncodeToString(n[:]) }

// Equal reports whether two names are identical.
func (n Name) Equal(o Name) bool { return n == o }

// Random draws a uniformly random name. Used for test fixtures and for
// address generation before a join assigns an age-bearing name.
func Random() Name {
	var n Name
	if _, err := rand.Read(n[:]); err != nil {
		panic(err) // crypto/rand failing is not a recoverable condition
	}
	return n
}

// WithAge returns a copy of n with its age byte (last byte) replaced.
func (n Name) WithAge(age byte) Name {
	out := n
	out[NameLen-1] = age
	return out
}

// Xor returns the bitwise XOR of two names, the basis of the XOR metric.
func Xor(a, b Name) Name {
	var out Name
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Less reports whether a is closer to nothing (i.e. numerically smaller)
// than b; used to break distance ties deterministically.
func (n Name) Less(o Name) bool { return bytes.Compare(n[:], o[:]) < 0 }

// CloserTo reports whether a is strictly closer to target than b, under the
// XOR metric (the metric used for holder selection, §4.6).
func CloserTo(target, a, b Name) bool {
	da, db := Xor(target, a), Xor(target, b)
	return bytes.Compare(da[:], db[:]) < 0
}

// CommonLeadingBits returns the number of leading bits shared between a and
// b (the XOR distance's bit-length complement); used by the prefix tree to
// decide split eligibility and by handover to find nearer peers.
func CommonLeadingBits(a, b Name) int {
	x := Xor(a, b)
	total := 0
	for _, byt := range x {
		if byt == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(byt)
		return total
	}
	return total
}

// SortByDistance returns a copy of names ordered by increasing XOR distance
// to target, breaking ties by raw name ordering for determinism.
func SortByDistance(target Name, names []Name) []Name {
	out := make([]Name, len(names))
	copy(out, names)
	sort.Slice(out, func(i, j int) bool {
		if out[i] == out[j] {
			return false
		}
		if CloserTo(target, out[i], out[j]) {
			return true
		}
		if CloserTo(target, out[j], out[i]) {
			return false
		}
		return out[i].Less(out[j])
	})
	return out
}
