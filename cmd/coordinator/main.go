// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/aitbc-network/coordinator/api"
	"github.com/aitbc-network/coordinator/config"
	"github.com/aitbc-network/coordinator/coordinator"
	"github.com/aitbc-network/coordinator/log"
)

var logger = log.NewModuleLogger("main")

var app = &cli.App{
	Name:   "coordinator",
	Usage:  "decentralized compute coordinator service",
	Flags:  config.Flags,
	Action: runServe,
	Commands: []cli.Command{
		dumpConfigCommand,
	},
}

var dumpConfigCommand = cli.Command{
	Name:  "dumpconfig",
	Usage: "print the effective configuration as TOML and exit",
	Flags: config.Flags,
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		out, err := config.Dump(*cfg)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var cfg config.Config
	if path := ctx.GlobalString(config.ConfigFileFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig
	}
	config.ApplyFlags(ctx, &cfg)
	return &cfg, nil
}

func runServe(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	identity := api.NewStaticKeyProvider()
	seedDevKeys(identity)

	cctx, err := coordinator.Build(cfg, identity)
	if err != nil {
		return err
	}
	defer cctx.Close()

	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cctx.RunBackgroundLoops(bgCtx)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":9090", metricsMux); err != nil {
			logger.Error("metrics listener failed", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: cctx.Server.Handler(cfg.HTTP.CORSOrigins),
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// seedDevKeys registers a handful of fixed API keys so the service is
// usable out of the box without a separate key-issuance flow; real
// deployments should swap in an IdentityProvider backed by their own
// account system.
func seedDevKeys(p *api.StaticKeyProvider) {
	p.AddKey("dev-client", api.TenantContext{TenantID: "dev-tenant", Kind: api.CallerClient})
	p.AddKey("dev-miner", api.TenantContext{TenantID: "dev-tenant", Kind: api.CallerMiner})
	p.AddKey("dev-admin", api.TenantContext{TenantID: "dev-tenant", Kind: api.CallerOperator})
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
