// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package api is the coordinator's HTTP surface: routes for
// clients, miners, and operators, each authenticated via an
// IdentityProvider, rate-limited per endpoint class, and translated to
// the stable error envelope of on failure.
package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/aitbc-network/coordinator/api/ratelimit"
	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/config"
	"github.com/aitbc-network/coordinator/jobqueue"
	"github.com/aitbc-network/coordinator/lifecycle"
	"github.com/aitbc-network/coordinator/minerregistry"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/signer"
	"github.com/aitbc-network/coordinator/store"
)

// ReadinessChecker reports whether the process is ready to serve
// traffic ("Store reachable, Signer has active key").
type ReadinessChecker interface {
	Ready() (bool, string)
}

// Server wires every coordinator component into the HTTP surface.
type Server struct {
	store             store.Store
	clk               clock.Clock
	queue             *jobqueue.Queue
	registry          *minerregistry.Registry
	life              *lifecycle.Lifecycle
	signer            *signer.Signer
	identity          IdentityProvider
	limiter           ratelimit.Limiter
	limits            map[string]config.RateLimit
	pollLongWaitMsMax int64
}

func New(
	st store.Store,
	clk clock.Clock,
	queue *jobqueue.Queue,
	registry *minerregistry.Registry,
	life *lifecycle.Lifecycle,
	sg *signer.Signer,
	identity IdentityProvider,
	limiter ratelimit.Limiter,
	limits map[string]config.RateLimit,
	pollLongWaitMsMax int64,
) *Server {
	return &Server{
		store: st, clk: clk, queue: queue, registry: registry, life: life,
		signer: sg, identity: identity, limiter: limiter, limits: limits,
		pollLongWaitMsMax: pollLongWaitMsMax,
	}
}

// Handler builds the full middleware-wrapped HTTP handler: CORS, then
// routing, with auth and rate-limiting applied per route via wrap().
func (s *Server) Handler(corsOrigins []string) http.Handler {
	router := httprouter.New()

	router.POST("/v1/jobs", s.wrap(CallerClient, "client", s.handleSubmitJob))
	router.GET("/v1/jobs/:job_id", s.wrap(CallerClient, "client", s.handleGetJob))
	router.POST("/v1/jobs/:job_id/cancel", s.wrap(CallerClient, "client", s.handleCancelJob))
	router.GET("/v1/receipts", s.wrap(CallerClient, "client", s.handleListReceipts))

	router.POST("/v1/miners", s.wrap(CallerMiner, "miner", s.handleRegisterMiner))
	router.POST("/v1/miners/:miner_id/heartbeat", s.wrap(CallerMiner, "miner", s.handleMinerHeartbeat))
	router.POST("/v1/miners/:miner_id/poll", s.wrap(CallerMiner, "miner", s.handlePoll))
	router.POST("/v1/jobs/:job_id/heartbeat", s.wrap(CallerMiner, "miner", s.handleJobHeartbeat))
	router.POST("/v1/jobs/:job_id/result", s.wrap(CallerMiner, "miner", s.handleSubmitResult))
	router.POST("/v1/jobs/:job_id/error", s.wrap(CallerMiner, "miner", s.handleSubmitError))

	router.POST("/v1/admin/miners/:miner_id/drain", s.wrap(CallerOperator, "admin", s.handleDrainMiner))
	router.POST("/v1/admin/miners/:miner_id/resume", s.wrap(CallerOperator, "admin", s.handleResumeMiner))
	router.GET("/v1/admin/stats", s.wrap(CallerOperator, "admin", s.handleGetStats))
	router.GET("/v1/admin/jobs/:job_id/history", s.wrap(CallerOperator, "admin", s.handleGetJobHistory))

	router.GET("/healthz", s.handleLiveness)
	router.GET("/readyz", s.handleReadiness)

	c := cors.New(cors.Options{AllowedOrigins: corsOrigins})
	return c.Handler(router)
}

// handlerFunc is a route body that already has an authenticated
// TenantContext of the expected CallerKind.
type handlerFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params, tc *TenantContext)

// wrap enforces authentication, caller-kind, and the rate limit for
// rateClass before invoking fn (API layer responsibilities).
func (s *Server) wrap(kind CallerKind, rateClass string, fn handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		tc, err := s.identity.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if tc.Kind != kind {
			writeError(w, model.NewError(model.ErrForbidden, "API key is not authorized for this caller class"))
			return
		}
		if limit, ok := s.limits[rateClass]; ok && s.limiter != nil {
			allowed, retryAfter, err := s.limiter.Allow(tc.KeyID+":"+rateClass, limit.Tokens, limit.RefillPerSec)
			if err != nil {
				logger.Warn("rate limiter error, failing open", "err", err)
			} else if !allowed {
				w.Header().Set("Retry-After", retryAfter.String())
				writeError(w, model.NewError(model.ErrRateLimited, "rate limit exceeded for "+rateClass))
				return
			}
		}
		fn(w, r, p, tc)
	}
}
