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

package dkground

import (
	"go.dedis.ch/kyber/v3"
	pedersen "go.dedis.ch/kyber/v3/share/dkg/pedersen"

	"github.com/maidsafe/sn-sub002/internal/coreerr"
	"github.com/maidsafe/sn-sub002/internal/identifier"
	"github.com/maidsafe/sn-sub002/internal/keychain"
)

// dkgGroup is the kyber group the Pedersen DKG runs over. drand/drand runs
// its DKG over the pairing suite's G2 (dkg/dkg.go), with signatures later
// produced on G1; this core follows the same split.
func dkgGroup() kyber.Group { return keychain.Suite.G2() }

// Begin runs the |E|>1 path: builds the DistKeyGenerator from this
// candidate's longterm keypair and every candidate's longterm public key
// (indexed the same way Start assigned), then broadcasts deals. Grounded
// on drand/drand's dkg.go Handler.init + Handler.sendDeals.
func (s *Session) Begin(longtermPub map[identifier.Name]kyber.Point, longtermPriv kyber.Scalar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pubs := make([]kyber.Point, len(s.candidates))
	for _, c := range s.candidates {
		p, ok := longtermPub[c.Name]
		if !ok {
			return coreerr.Newf(coreerr.ProtocolViolation, "dkground: missing longterm key for candidate %s", c.Name)
		}
		pubs[c.Index] = p
	}

	gen, err := pedersen.NewDistKeyGenerator(dkgGroup(), longtermPriv, pubs, s.threshold)
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	s.state = gen

	deals, err := gen.Deals()
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	for idx, deal := range deals {
		to := s.candidates[idx].Name
		if to == s.self {
			continue // our own deal never needs a network hop
		}
		s.dealsByIndex[uint32(idx)] = deal
		if err := s.net.Send(to, Message{Session: s.id, Kind: KindDeal, From: s.self, Deal: deal}); err != nil {
			s.log.Warnw("dkground: failed to send deal", "to", to, "err", err)
		}
	}
	s.sentDeals = true
	return nil
}

// HandleMessage implements spec §4.2's handle_message: feed one inbound
// protocol message into the session's pedersen state machine and check for
// completion. Safe to call concurrently with Start/HandleTimeout.
func (s *Session) HandleMessage(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	if msg.Kind == KindFailureVote {
		s.failureVotes[msg.From] = *msg.Failure
		s.checkFailureQuorum()
		return nil
	}
	if s.state == nil {
		return nil
	}

	switch msg.Kind {
	case KindDeal:
		resp, err := s.state.ProcessDeal(msg.Deal)
		if err != nil {
			return coreerr.New(coreerr.ProtocolViolation, err)
		}
		for _, c := range s.candidates {
			if c.Name == s.self {
				continue
			}
			if err := s.net.Send(c.Name, Message{Session: s.id, Kind: KindResponse, From: s.self, Resp: resp}); err != nil {
				s.log.Warnw("dkground: failed to send response", "to", c.Name, "err", err)
			}
		}
	case KindResponse:
		just, err := s.state.ProcessResponse(msg.Resp)
		if err != nil {
			return coreerr.New(coreerr.ProtocolViolation, err)
		}
		if just != nil {
			for _, c := range s.candidates {
				if c.Name == s.self {
					continue
				}
				if err := s.net.Send(c.Name, Message{Session: s.id, Kind: KindJustification, From: s.self, Just: just}); err != nil {
					s.log.Warnw("dkground: failed to send justification", "to", c.Name, "err", err)
				}
			}
		}
	case KindJustification:
		if err := s.state.ProcessJustification(msg.Just); err != nil {
			return coreerr.New(coreerr.ProtocolViolation, err)
		}
	}

	s.checkCertified()
	return nil
}

// checkCertified finalizes the session once threshold-certified, delivering
// the DistKeyShare and aggregate public key on doneCh.
func (s *Session) checkCertified() {
	if s.done || s.state == nil {
		return
	}
	if !s.state.ThresholdCertified() {
		return
	}
	share, err := s.state.DistKeyShare()
	if err != nil {
		s.log.Warnw("dkground: ThresholdCertified but DistKeyShare failed", "err", err)
		return
	}
	s.done = true
	s.doneCh <- Outcome{
		Share:     share,
		Public:    publicKeyFromShare(share),
		Threshold: s.threshold,
	}
}

// HandleTimeout implements handle_timeout: re-broadcast every cached deal
// to its recipient. It does not track which recipients have responded and
// never gives up on its own; failing the session is left to the caller,
// through ObserveFailure.
func (s *Session) HandleTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.state == nil {
		return
	}
	for idx, deal := range s.dealsByIndex {
		to := s.candidates[idx].Name
		if err := s.net.Send(to, Message{Session: s.id, Kind: KindDeal, From: s.self, Deal: deal}); err != nil {
			s.log.Warnw("dkground: re-send deal failed", "to", to, "err", err)
		}
	}
}

// ObserveFailure implements observe_failure: self reports the set of
// candidates that have not produced any message before the phase deadline,
// signs the FailureSet under self's longterm identity key, and broadcasts
// a failure vote. super-majority agreement fails the session.
func (s *Session) ObserveFailure(unresponsive []identifier.Name, sign func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	fs := FailureSet{Unresponsive: unresponsive, Signers: []identifier.Name{s.self}}
	s.failureVotes[s.self] = fs
	msg, err := encodeFailureSet(fs)
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	sig, err := sign(msg)
	if err != nil {
		return coreerr.New(coreerr.ProtocolViolation, err)
	}
	for _, c := range s.candidates {
		if c.Name == s.self {
			continue
		}
		if err := s.net.Send(c.Name, Message{Session: s.id, Kind: KindFailureVote, From: s.self, Failure: &fs, FailSig: sig}); err != nil {
			s.log.Warnw("dkground: failed to send failure vote", "to", c.Name, "err", err)
		}
	}
	s.checkFailureQuorum()
	return nil
}

// checkFailureQuorum fails the session once a super-majority of candidates
// (more than len(candidates)*2/3 of them, in integer arithmetic) have
// signed the same unresponsive set.
func (s *Session) checkFailureQuorum() {
	if s.done {
		return
	}
	counts := make(map[string]int)
	var winningSet *FailureSet
	for _, fs := range s.failureVotes {
		key := failureSetKey(fs)
		counts[key]++
		if counts[key] > len(s.candidates)*2/3 {
			f := fs
			winningSet = &f
		}
	}
	if winningSet == nil {
		return
	}
	s.done = true
	s.doneCh <- Outcome{Failure: winningSet}
}

func failureSetKey(fs FailureSet) string {
	var out []byte
	for _, n := range fs.Unresponsive {
		out = append(out, n[:]...)
	}
	return string(out)
}

func encodeFailureSet(fs FailureSet) ([]byte, error) {
	var out []byte
	for _, n := range fs.Unresponsive {
		out = append(out, n[:]...)
	}
	return out, nil
}

// publicKeyFromShare extracts the section's new aggregate public key: the
// zeroth commitment of a certified DistKeyShare is the shared secret's
// public counterpart (go.dedis.ch/kyber/v3/share.PubPoly convention, used
// the same way in drand/drand's dkg.go).
func publicKeyFromShare(share *pedersen.DistKeyShare) keychain.PublicKey {
	return keychain.NewPublicKey(share.Public())
}
