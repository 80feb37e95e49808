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

// Package adminrpc is the minimal read-only introspection surface
// supplemented from original_source/'s sn_node/src/bin/safenode/rpc.rs
// (SPEC_FULL.md §12): node info and a section-tree dump, with no mutating
// calls and no CLI/config-file parsing (spec §1 non-goal). No RPC
// framework appears anywhere in the example pack, so this is plain JSON
// over net/http, the same http.Server shape internal/comms's websocket
// listener already uses.
package adminrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/maidsafe/sn-sub002/internal/peer"
	"github.com/maidsafe/sn-sub002/internal/sap"
)

// NodeInfo is the read-only snapshot returned by GET /info.
type NodeInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Prefix      string `json:"prefix"`
	Generation  uint64 `json:"generation"`
	MemberCount int    `json:"member_count"`
}

// SectionTreeDump is the read-only snapshot returned by GET /section-tree.
type SectionTreeDump struct {
	Sections []SectionEntry `json:"sections"`
}

// SectionEntry describes one authoritative SAP known to this node's tree.
type SectionEntry struct {
	Prefix     string `json:"prefix"`
	Generation uint64 `json:"generation"`
	ElderCount int    `json:"elder_count"`
}

// Source supplies the read-only state adminrpc reports. Implemented by the
// host's dispatcher wrapper so this package never needs its own lock over
// section state (spec §4.7: the dispatcher is the sole writer).
type Source interface {
	Self() peer.Peer
	Tree() *sap.Tree
}

// Server exposes Source over HTTP. It never mutates state: every handler
// only reads through Source.
type Server struct {
	src  Source
	log  *zap.SugaredLogger
	http *http.Server
}

// NewServer binds an adminrpc server to addr, serving from src.
func NewServer(addr string, src Source, log *zap.SugaredLogger) *Server {
	s := &Server{src: src, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/section-tree", s.handleSectionTree)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return s.http.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	self := s.src.Self()
	tree := s.src.Tree()

	info := NodeInfo{Name: self.Name.Hex(), Address: self.Address}
	if signed, ok := tree.GetSignedSAPByName(self.Name); ok {
		info.Prefix = signed.SAP.Prefix.String()
		info.Generation = signed.SAP.Generation
		info.MemberCount = len(signed.SAP.Members)
	}
	writeJSON(w, s.log, info)
}

func (s *Server) handleSectionTree(w http.ResponseWriter, r *http.Request) {
	tree := s.src.Tree()
	dump := SectionTreeDump{}
	for _, prefix := range tree.AllPrefixes() {
		signed, ok := tree.GetSignedSAP(prefix)
		if !ok {
			continue
		}
		dump.Sections = append(dump.Sections, SectionEntry{
			Prefix:     signed.SAP.Prefix.String(),
			Generation: signed.SAP.Generation,
			ElderCount: len(signed.SAP.Elders),
		})
	}
	writeJSON(w, s.log, dump)
}

func writeJSON(w http.ResponseWriter, log *zap.SugaredLogger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnw("adminrpc: encode failed", "err", err)
	}
}
