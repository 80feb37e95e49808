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

// Package store implements spec §6's persistent node-local state: the
// section-tree file and the long-lived identity key-pair file, as two
// buckets in one go.etcd.io/bbolt database. Concrete on-disk layout of
// anything beyond "a bbolt file" (spec §6 non-goal) isn't specified
// further than what this package needs to round-trip its own writes.
//
// Grounded on drand/drand's use of bbolt for its beacon store (the same
// open-a-db, one-bucket-per-concern shape), enrichment from the rest of
// the corpus since the teacher (kisdex-mpc-lib) has no persistence layer
// of its own.
package store

import (
	"time"

	"go.etcd.io/bbolt"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
)

var (
	sectionTreeBucket = []byte("section_tree")
	keyPairBucket     = []byte("key_pairs")
)

// Key names within keyPairBucket.
const (
	KeyIdentity = "identity"
	KeyReward   = "reward"
)

// Store wraps one bbolt database file holding every piece of spec §6
// persistent state this core owns directly.
type Store struct {
	db *bbolt.DB
}

// Open creates (if needed) and opens the database at path, establishing
// both buckets up front so later writes never need a read-then-create
// round trip.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, coreerr.New(coreerr.ResourceExhaustion, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sectionTreeBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(keyPairBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, coreerr.New(coreerr.LocalInvariant, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// PutSectionTree persists the serialised section tree as of the most
// recent update. Serialisation format is the caller's concern (typically
// whatever Codec the host wires in); this package only moves bytes.
func (s *Store) PutSectionTree(snapshot []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sectionTreeBucket).Put([]byte("latest"), snapshot)
	})
}

// GetSectionTree returns the last persisted section-tree snapshot, or
// ok=false if none has been written yet.
func (s *Store) GetSectionTree() (snapshot []byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(sectionTreeBucket).Get([]byte("latest"))
		if v != nil {
			snapshot = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return snapshot, ok, err
}

// PutKeyPair persists one named key pair's serialised bytes (identity or
// reward, spec §6). Encoding, e.g. a kyber scalar's MarshalBinary, is
// the caller's concern.
func (s *Store) PutKeyPair(name string, serialized []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(keyPairBucket).Put([]byte(name), serialized)
	})
}

// GetKeyPair returns a previously persisted key pair's bytes.
func (s *Store) GetKeyPair(name string) (serialized []byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(keyPairBucket).Get([]byte(name))
		if v != nil {
			serialized = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return serialized, ok, err
}
