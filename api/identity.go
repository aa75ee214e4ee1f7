// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

package api

import (
	"net/http"
	"sync"

	"github.com/aitbc-network/coordinator/model"
)

// CallerKind is the caller class an API key authenticates as: client,
// miner, or operator. Rate limits and route access are both keyed off it.
type CallerKind string

const (
	CallerClient   CallerKind = "client"
	CallerMiner    CallerKind = "miner"
	CallerOperator CallerKind = "operator"
)

// TenantContext is what IdentityProvider.Authenticate attaches to a
// request: the authenticated tenant and the class of caller the key
// belongs to.
type TenantContext struct {
	TenantID string
	Kind     CallerKind
	KeyID    string
}

// IdentityProvider authenticates the API-key header and resolves a
// TenantContext, "Authenticates via IdentityProvider".
// Stateless by contract: implementations may cache but must not require
// server-side session state to authenticate a given key.
type IdentityProvider interface {
	Authenticate(r *http.Request) (*TenantContext, error)
}

// StaticKeyProvider is the embedded/dev-profile IdentityProvider: a
// fixed table of API keys configured at startup, mirroring the
// teacher's habit of a simple in-memory table for anything that isn't
// itself the subject of the design (account/keystore management here is
// out of scope; only requires *some* conforming
// IdentityProvider).
type StaticKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]TenantContext
}

func NewStaticKeyProvider() *StaticKeyProvider {
	return &StaticKeyProvider{keys: make(map[string]TenantContext)}
}

// AddKey registers an API key's TenantContext.
func (p *StaticKeyProvider) AddKey(apiKey string, ctx TenantContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx.KeyID = apiKey
	p.keys[apiKey] = ctx
}

const apiKeyHeader = "Authorization"

func (p *StaticKeyProvider) Authenticate(r *http.Request) (*TenantContext, error) {
	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		return nil, model.NewError(model.ErrAuthRequired, "missing "+apiKeyHeader+" header")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	ctx, ok := p.keys[key]
	if !ok {
		return nil, model.NewError(model.ErrAuthFailed, "unrecognized API key")
	}
	out := ctx
	return &out, nil
}
