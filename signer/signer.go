// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package signer

import (
	"encoding/base64"
	"sync"

	"golang.org/x/crypto/ed25519"

	"github.com/aitbc-network/coordinator/model"
)

// Key is one named Ed25519 keypair the signer can sign (current) or
// verify with (current or retired), per the design key rotation model.
type Key struct {
	ID        string
	Public    ed25519.PublicKey
	Private   ed25519.PrivateKey // nil for verify-only retired keys loaded without the private half
}

// Signer produces and verifies Receipt signatures over the canonical form
// of canonical.go, by design.
type Signer struct {
	mu      sync.RWMutex
	current *Key
	retired map[string]*Key
}

// New builds a Signer with no active key; SetCurrentKey must be called
// before Seal succeeds — Seal fails with SignerUnavailable otherwise.
func New() *Signer {
	return &Signer{retired: make(map[string]*Key)}
}

// SetCurrentKey rotates in a new signing key atomically. The previously
// current key, if any, moves to the retired set (verify-only); in-flight
// receipts already sealed keep the key_id they were signed with, so
// rotation never invalidates a past signature.
func (s *Signer) SetCurrentKey(k *Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.retired[s.current.ID] = s.current
	}
	s.current = k
}

// AddRetiredKey registers a verify-only key (e.g. loaded from a prior
// rotation's public half) without making it the active signer.
func (s *Signer) AddRetiredKey(k *Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired[k.ID] = k
}

// HasActiveKey reports readiness for the Observability health check
// (readiness requires "Signer has active key").
func (s *Signer) HasActiveKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Seal computes the canonical signing bytes for r, signs them with the
// current key, and fills in r.Signature and r.KeyID. r must already have
// every other field populated; ReceiptID/Signature/KeyID need not be set
// on entry (Signature/KeyID are overwritten).
func (s *Signer) Seal(r *model.Receipt) error {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil {
		return model.NewError(model.ErrSignerUnavailable, "no active signing key configured")
	}

	msg, err := Canonicalize(r)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(cur.Private, msg)
	r.Signature = base64.RawURLEncoding.EncodeToString(sig)
	r.KeyID = cur.ID
	return nil
}

// Verify re-derives the canonical bytes for r and checks r.Signature
// against the key identified by r.KeyID, whether current or retired.
func (s *Signer) Verify(r *model.Receipt) (bool, error) {
	s.mu.RLock()
	key := s.keyByIDLocked(r.KeyID)
	s.mu.RUnlock()
	if key == nil {
		return false, model.NewError(model.ErrSignerUnavailable, "unknown signing key: "+r.KeyID)
	}

	msg, err := Canonicalize(r)
	if err != nil {
		return false, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(r.Signature)
	if err != nil {
		return false, model.WrapError(model.ErrInvalidRequest, "malformed signature encoding", err)
	}
	return ed25519.Verify(key.Public, msg, sig), nil
}

func (s *Signer) keyByIDLocked(id string) *Key {
	if s.current != nil && s.current.ID == id {
		return s.current
	}
	if k, ok := s.retired[id]; ok {
		return k
	}
	return nil
}

// GenerateKey is a convenience for tests and first-run bootstrap: creates
// a fresh Ed25519 keypair under the given key id.
func GenerateKey(id string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Public: pub, Private: priv}, nil
}
