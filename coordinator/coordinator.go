// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package coordinator wires every component of the service together at
// startup: one concrete Store, PaymentEngine, ReceiptService, JobQueue,
// MinerRegistry and Lifecycle, chosen once here and never switched on at
// runtime, per the design Design Notes on avoiding dynamic dispatch.
package coordinator

import (
	"fmt"

	"github.com/aitbc-network/coordinator/api"
	"github.com/aitbc-network/coordinator/api/ratelimit"
	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/config"
	"github.com/aitbc-network/coordinator/jobqueue"
	"github.com/aitbc-network/coordinator/lifecycle"
	"github.com/aitbc-network/coordinator/log"
	"github.com/aitbc-network/coordinator/minerregistry"
	"github.com/aitbc-network/coordinator/payment"
	"github.com/aitbc-network/coordinator/payment/kafkasink"
	"github.com/aitbc-network/coordinator/payment/noopsink"
	"github.com/aitbc-network/coordinator/receipt"
	"github.com/aitbc-network/coordinator/signer"
	"github.com/aitbc-network/coordinator/store"
	"github.com/aitbc-network/coordinator/store/kvstore"
	"github.com/aitbc-network/coordinator/store/sqlstore"
)

var logger = log.NewModuleLogger("coordinator")

// Context holds every wired component plus the sweep intervals a caller
// (cmd/coordinator, or a test) needs to start the background loops.
type Context struct {
	Config   *config.Config
	Store    store.Store
	Clock    clock.Clock
	Payments *payment.Engine
	Receipts *receipt.Service
	Queue    *jobqueue.Queue
	Registry *minerregistry.Registry
	Lifecycle *lifecycle.Lifecycle
	Signer   *signer.Signer
	Server   *api.Server
}

// Build constructs every component from cfg, wiring Lifecycle in as the
// MinerRegistry's LostJobNotifier (a lost miner's in-flight
// jobs are retried or failed the same way any other loss is). identity
// is supplied by the caller because its concrete choice
// (StaticKeyProvider vs. a real account system) is an operational
// decision cmd/coordinator makes. The rate limiter is chosen here from
// cfg.HTTP: InProcess when RedisAddr is empty, Redis otherwise.
func Build(cfg *config.Config, identity api.IdentityProvider) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("coordinator: building store: %w", err)
	}

	sink, err := buildLedgerSink(cfg.LedgerSink)
	if err != nil {
		return nil, fmt.Errorf("coordinator: building ledger sink: %w", err)
	}

	sg, err := buildSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("coordinator: loading signing key: %w", err)
	}

	clk := clock.NewSystem()
	idGen := clock.NewRandomIDGen()

	payments := payment.New(st, clk, idGen, sink)
	receipts := receipt.New(st, sg, clk, cfg.Policy.FailOnPriceClamp)
	queue := jobqueue.New(st, clk, idGen, payments, cfg.MaxJobPayloadBytes, cfg.TenantOpenJobsMax, cfg.MinerLivenessTimeoutMs)
	registry := minerregistry.New(st, clk, idGen, cfg.MinerLivenessTimeoutMs)
	life := lifecycle.New(st, clk, payments, receipts, cfg.MaxAttempts, cfg.AttemptTimeoutMs)
	registry.SetLostJobNotifier(life)

	limiter := buildLimiter(cfg.HTTP)
	server := api.New(st, clk, queue, registry, life, sg, identity, limiter, cfg.RateLimits, cfg.PollLongWaitMsMax)

	return &Context{
		Config: cfg, Store: st, Clock: clk, Payments: payments, Receipts: receipts,
		Queue: queue, Registry: registry, Lifecycle: life, Signer: sg, Server: server,
	}, nil
}

func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "kv":
		return kvstore.Open(cfg.KVDir)
	case "sql":
		dsn := sqlstore.DSN(cfg.SQLUser, cfg.SQLPassword, cfg.SQLHost, cfg.SQLPort, cfg.SQLDatabase)
		return sqlstore.Open(dsn, cfg.SQLMaxOpenConns, cfg.SQLMaxIdleConns)
	default:
		return nil, fmt.Errorf("coordinator: unknown store backend %q", cfg.Backend)
	}
}

func buildLedgerSink(cfg config.LedgerSinkConfig) (payment.LedgerSink, error) {
	switch cfg.Backend {
	case "", "noop":
		return noopsink.New(), nil
	case "kafka":
		return kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("coordinator: unknown ledger sink backend %q", cfg.Backend)
	}
}

func buildSigner(cfg *config.Config) (*signer.Signer, error) {
	key, err := signer.LoadKeyFromFile(cfg.SigningKeyPath, cfg.SigningKeyID)
	if err != nil {
		return nil, err
	}
	sg := signer.New()
	sg.SetCurrentKey(key)
	return sg, nil
}

func buildLimiter(cfg config.HTTPConfig) ratelimit.Limiter {
	if cfg.RedisAddr == "" {
		logger.Info("rate limiter: using in-process token buckets (HTTP.RedisAddr unset)")
		return ratelimit.NewInProcess()
	}
	logger.Info("rate limiter: using Redis token buckets", "addr", cfg.RedisAddr)
	return ratelimit.NewRedis(cfg.RedisAddr)
}

// Close releases the underlying Store's resources.
func (c *Context) Close() error {
	return c.Store.Close()
}
