// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package minerregistry is the authoritative directory of miners and
// their live status: registration, heartbeat/liveness,
// drain/resume, and capability search. Its in-memory indexes are
// derivable from Store and are rebuilt lazily on first access after
// restart; they never hold state Store does not also have.
package minerregistry

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/ed25519"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store"
)

var logger = log.NewModuleLogger("minerregistry")

// LostJobNotifier is the narrow interface Lifecycle implements so the
// liveness sweep can hand off lost jobs without minerregistry importing
// lifecycle, keeping the dependency graph acyclic.
type LostJobNotifier interface {
	OnMinerLost(jobID string)
}

// searchCacheSize bounds the capability-search memoization cache; a
// miss just recomputes from Store, so this is purely an optimization,
// not a correctness dependency (teacher's common/cache.go Cache
// interface is the same shape: Add/Get/Purge over an LRU).
const searchCacheSize = 4096

// tokenCacheSize bounds the in-memory session-token cache. Tokens are
// never persisted: a coordinator restart invalidates every miner's
// session and forces re-registration, which is acceptable because
// register() is idempotent on (public_key, tenant).
const tokenCacheSize = 16384

// Registry is the concrete MinerRegistry.
type Registry struct {
	st    store.Store
	clk   clock.Clock
	idGen clock.IDGen

	livenessTimeoutMs int64

	mu       sync.Mutex
	notifier LostJobNotifier

	searchCache *lru.Cache
	tokens      *lru.Cache
}

type tokenEntry struct {
	token     string
	expiresMs int64
}

// New builds a Registry. livenessTimeoutMs is miner_liveness_timeout_ms
// from the configuration surface.
func New(st store.Store, clk clock.Clock, idGen clock.IDGen, livenessTimeoutMs int64) *Registry {
	searchCache, _ := lru.New(searchCacheSize)
	tokens, _ := lru.New(tokenCacheSize)
	return &Registry{
		st:                st,
		clk:               clk,
		idGen:             idGen,
		livenessTimeoutMs: livenessTimeoutMs,
		searchCache:       searchCache,
		tokens:            tokens,
	}
}

// SetLostJobNotifier wires the Lifecycle handler invoked by the liveness
// sweep; called once during startup wiring (coordinator package).
func (r *Registry) SetLostJobNotifier(n LostJobNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// Register inserts or refreshes a miner. Idempotent on (public_key,
// tenant): a re-registration updates the capability set and resets the
// heartbeat, rather than creating a second row, by design.
func (r *Registry) Register(tenantID string, publicKey []byte, capabilities []model.Capability, pricePerUnit int64, maxConcurrency int) (minerID string, sessionToken string, err error) {
	now := r.clk.NowMs()

	existing, lookupErr := r.st.GetMinerByPublicKey(tenantID, publicKey)
	if lookupErr == nil && existing != nil {
		existing.Capabilities = capabilities
		existing.PricePerUnit = pricePerUnit
		existing.MaxConcurrency = maxConcurrency
		existing.LastHeartbeatMs = now
		existing.Status = model.MinerActive
		if err := r.reregister(existing); err != nil {
			return "", "", err
		}
		r.searchCache.Purge()
		tok, err := r.issueToken(existing.ID)
		if err != nil {
			return "", "", err
		}
		return existing.ID, tok, nil
	}

	id := clock.MustNewID(r.idGen)
	m := &model.Miner{
		ID:              id,
		TenantID:        tenantID,
		PublicKey:       publicKey,
		Capabilities:    capabilities,
		PricePerUnit:    pricePerUnit,
		Status:          model.MinerActive,
		RegisteredMs:    now,
		LastHeartbeatMs: now,
		InFlightJobs:    map[string]struct{}{},
		MaxConcurrency:  maxConcurrency,
	}
	if err := r.st.RegisterMiner(m); err != nil {
		return "", "", err
	}
	r.searchCache.Purge()
	tok, err := r.issueToken(id)
	if err != nil {
		return "", "", err
	}
	logger.Info("miner registered", "miner_id", id, "tenant_id", tenantID)
	return id, tok, nil
}

// reregister is a placeholder for the store update path used by
// Register's idempotent branch; kvstore and sqlstore both re-run
// RegisterMiner (an upsert) rather than needing a dedicated update verb.
func (r *Registry) reregister(m *model.Miner) error {
	return r.st.RegisterMiner(m)
}

func (r *Registry) issueToken(minerID string) (string, error) {
	tok := clock.MustNewID(r.idGen)
	r.tokens.Add(minerID, tokenEntry{token: tok, expiresMs: r.clk.NowMs() + r.livenessTimeoutMs})
	return tok, nil
}

// ValidateSessionToken reports whether tok is the current, unexpired
// session token for minerID.
func (r *Registry) ValidateSessionToken(minerID, tok string) bool {
	v, ok := r.tokens.Get(minerID)
	if !ok {
		return false
	}
	entry := v.(tokenEntry)
	if entry.token != tok {
		return false
	}
	return entry.expiresMs > r.clk.NowMs()
}

// Heartbeat verifies signedNonce against the miner's registered public
// key and refreshes last_heartbeat_ms. Fails AuthFailed, UnknownMiner, or
// MinerNotActive by design.
func (r *Registry) Heartbeat(minerID string, nonce, signedNonce []byte) (expiresAtMs int64, err error) {
	m, err := r.st.GetMiner(minerID)
	if err != nil {
		return 0, err
	}
	if m.Status == model.MinerOffline {
		return 0, model.NewError(model.ErrMinerNotActive, "miner is offline")
	}
	if !ed25519.Verify(ed25519.PublicKey(m.PublicKey), nonce, signedNonce) {
		return 0, model.NewError(model.ErrAuthFailed, "nonce signature invalid")
	}
	now := r.clk.NowMs()
	if err := r.st.TouchMinerHeartbeat(minerID, now); err != nil {
		return 0, err
	}
	return now + r.livenessTimeoutMs, nil
}

// Drain marks an ACTIVE miner DRAINING: it stops receiving new jobs but
// may finish in-flight ones.
func (r *Registry) Drain(minerID string) error {
	if err := r.st.SetMinerStatus(minerID, model.MinerDraining, model.MinerActive); err != nil {
		return err
	}
	r.searchCache.Purge()
	logger.Info("miner drained", "miner_id", minerID)
	return nil
}

// Resume reverses Drain.
func (r *Registry) Resume(minerID string) error {
	if err := r.st.SetMinerStatus(minerID, model.MinerActive, model.MinerDraining); err != nil {
		return err
	}
	r.searchCache.Purge()
	logger.Info("miner resumed", "miner_id", minerID)
	return nil
}
