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

// Command sectionnode is the minimal host binary that wires
// config+store+comms+dispatcher into a running section participant. It
// owns process lifetime only; every protocol decision lives in the
// internal packages it wires together. CLI flag parsing and keypair/
// config file format are explicitly out of scope (spec §1); everything
// here is driven by CORE_* environment overrides on top of
// internal/config's defaults.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/adminrpc"
	"github.com/maidsafe/sn-sub002/internal/comms"
	"github.com/maidsafe/sn-sub002/internal/config"
	"github.com/maidsafe/sn-sub002/internal/dispatch"
	"github.com/maidsafe/sn-sub002/internal/fault"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
	"github.com/maidsafe/sn-sub002/internal/store"
	"github.com/maidsafe/sn-sub002/internal/wire"
)

const (
	dbPathEnv      = "CORE_DB_PATH"
	addressEnv     = "CORE_ADDRESS"
	adminAddrEnv   = "CORE_ADMIN_ADDRESS"
	defaultDBPath  = "sectionnode.db"
	defaultAddress = "127.0.0.1:9000"
	defaultAdmin   = "127.0.0.1:9001"
)

func main() {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatalw("sectionnode exited with error", "err", err)
	}
}

func newLogger() *zap.SugaredLogger {
	_ = logging.SetLogLevel("sectionnode", "info")
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func run(log *zap.SugaredLogger) error {
	cfg, err := config.Load(os.Getenv("CORE_CONFIG_PATH"))
	if err != nil {
		return err
	}

	db, err := store.Open(envOr(dbPathEnv, defaultDBPath))
	if err != nil {
		return err
	}

	self, tree, err := bootstrap(db)
	if err != nil {
		_ = db.Close()
		return err
	}

	registry := peer.NewRegistry()
	registry.Upsert(peer.NodeState{Peer: self, State: peer.Joined})

	probeHub := comms.NewHub()
	selfTransport := probeHub.Join(self.Name)
	probe := comms.NewTransportProbe(selfTransport, func(n identifier.Name) (peer.Peer, bool) {
		ns, ok := registry.Get(n)
		if !ok {
			return peer.Peer{}, false
		}
		return ns.Peer, true
	})
	tracker := fault.NewTracker(probe, fault.DefaultDecayWindow, fault.ToleranceRatio, fault.ToleranceRatio*3)

	inbound := make(chan wire.Envelope, dispatch.DefaultQueueDepth)
	d := dispatch.NewDispatcher(tree, inbound, log)
	d.RegisterHandler(wire.KindNode, func(d *dispatch.Dispatcher, env wire.Envelope) ([]dispatch.Command, error) {
		tracker.RecordSuccess(env.Source)
		return nil, nil
	})

	admin := adminrpc.NewServer(envOr(adminAddrEnv, defaultAdmin), nodeSource{self: self, tree: tree}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := admin.Serve(ctx); err != nil {
			log.Warnw("adminrpc server stopped", "err", err)
		}
	}()

	stop := make(chan struct{})
	go d.Run(stop)
	go d.DrainCommands(func(c dispatch.Command) {
		log.Debugw("executing command", "kind", c.Kind)
	})

	log.Infow("sectionnode started",
		"name", self.Name.Hex(), "address", self.Address,
		"elder_size", cfg.ElderSize, "min_adult_age", cfg.MinAdultAge,
	)

	waitForShutdown()

	close(stop)
	cancel()
	return shutdown(db)
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func shutdown(db *store.Store) error {
	var result *multierror.Error
	if err := db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// bootstrap loads the persisted identity key, or generates and persists
// one on the node's first run, and builds a fresh section tree rooted at
// that key's public half. It does not restore a persisted section tree and
// installs no SAP; the node's name is drawn at random on every run.
func bootstrap(db *store.Store) (peer.Peer, *sap.Tree, error) {
	priv, pub := bls.NewKeyPair(keychain.Suite, keychain.Suite.RandomStream())
	if raw, ok, err := db.GetKeyPair(store.KeyIdentity); err != nil {
		return peer.Peer{}, nil, err
	} else if ok {
		if err := priv.UnmarshalBinary(raw); err != nil {
			return peer.Peer{}, nil, err
		}
		pub = keychain.Suite.G2().Point().Mul(priv, nil)
	} else {
		raw, err := priv.MarshalBinary()
		if err != nil {
			return peer.Peer{}, nil, err
		}
		if err := db.PutKeyPair(store.KeyIdentity, raw); err != nil {
			return peer.Peer{}, nil, err
		}
	}

	genesisKey := keychain.NewPublicKey(pub)
	tree, err := sap.NewTree(genesisKey)
	if err != nil {
		return peer.Peer{}, nil, err
	}

	self := peer.Peer{Name: identifier.Random(), Address: envOr(addressEnv, defaultAddress)}
	return self, tree, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type nodeSource struct {
	self peer.Peer
	tree *sap.Tree
}

func (n nodeSource) Self() peer.Peer { return n.self }
func (n nodeSource) Tree() *sap.Tree { return n.tree }
