// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.
//
// The aitbc-coordinator library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// Package config is the coordinator's configuration surface:
// a hand-written Config struct loaded from TOML with CLI flag overrides,
// the same file-plus-flags layering as node/cn/gen_config.go and
// cmd/kcn/main.go, without the gencodec machinery (this config is
// hand-written, not generated).
package config

// RateLimit is one endpoint class's token-bucket budget.
type RateLimit struct {
	Tokens       int     `toml:"Tokens"`
	RefillPerSec float64 `toml:"RefillPerSec"`
}

// StoreConfig selects and configures the Store backend: the
// embedded/dev profile (KVStore over goleveldb) or the production
// profile (SQLStore over MySQL via gorm).
type StoreConfig struct {
	Backend string `toml:"Backend"` // "kv" or "sql"

	KVDir string `toml:"KVDir"`

	SQLHost         string `toml:"SQLHost"`
	SQLPort         int    `toml:"SQLPort"`
	SQLUser         string `toml:"SQLUser"`
	SQLPassword     string `toml:"SQLPassword"`
	SQLDatabase     string `toml:"SQLDatabase"`
	SQLMaxOpenConns int    `toml:"SQLMaxOpenConns"`
	SQLMaxIdleConns int    `toml:"SQLMaxIdleConns"`
}

// LedgerSinkConfig selects the PaymentEngine's outbox delivery target.
type LedgerSinkConfig struct {
	Backend      string   `toml:"Backend"` // "noop" or "kafka"
	KafkaBrokers []string `toml:"KafkaBrokers"`
	KafkaTopic   string   `toml:"KafkaTopic"`
}

// Policy carries the Open-Question decisions leaves to the
// implementation.
type Policy struct {
	// FailOnPriceClamp, when true, fails an attempt with
	// InsufficientFunds instead of clamping amount_charged to
	// job.max_price ( Open Question 1). Default false (clamp).
	FailOnPriceClamp bool `toml:"FailOnPriceClamp"`
}

// HTTPConfig configures the API surface's listener.
type HTTPConfig struct {
	ListenAddr     string `toml:"ListenAddr"`
	CORSOrigins    []string `toml:"CORSOrigins"`
	RedisAddr      string `toml:"RedisAddr"` // empty: in-process rate limiter fallback
}

// Config is the coordinator's complete configuration surface. Every
// field in enumerated Configuration Surface is present with
// the listed default (see DefaultConfig).
type Config struct {
	MinerLivenessTimeoutMs  int64 `toml:"MinerLivenessTimeoutMs"`
	HeartbeatScanIntervalMs int64 `toml:"HeartbeatScanIntervalMs"`
	TimerScanIntervalMs     int64 `toml:"TimerScanIntervalMs"`
	TimerBatchMax           int   `toml:"TimerBatchMax"`
	AttemptTimeoutMs        int64 `toml:"AttemptTimeoutMs"`
	JobDefaultTTLMs         int64 `toml:"JobDefaultTTLMs"`
	MaxAttempts             int   `toml:"MaxAttempts"`
	PollLongWaitMsMax       int64 `toml:"PollLongWaitMsMax"`
	MaxJobPayloadBytes      int   `toml:"MaxJobPayloadBytes"`
	TenantOpenJobsMax       int   `toml:"TenantOpenJobsMax"`

	SigningKeyPath string `toml:"SigningKeyPath"`
	SigningKeyID   string `toml:"SigningKeyID"`

	StoreRetryMax int `toml:"StoreRetryMax"`

	RateLimits map[string]RateLimit `toml:"RateLimits"`

	Store      StoreConfig      `toml:"Store"`
	LedgerSink LedgerSinkConfig `toml:"LedgerSink"`
	HTTP       HTTPConfig       `toml:"HTTP"`
	Policy     Policy           `toml:"Policy"`
}

// DefaultConfig holds every value of Configuration Surface at
// its documented default, the base that Load and cmd/coordinator's
// loadConfig layer a TOML file and flags on top of (cmd/kcn/main.go's
// makeConfigNode pattern).
var DefaultConfig = Config{
	MinerLivenessTimeoutMs:  30000,
	HeartbeatScanIntervalMs: 5000,
	TimerScanIntervalMs:     1000,
	TimerBatchMax:           500,
	AttemptTimeoutMs:        120000,
	JobDefaultTTLMs:         900000,
	MaxAttempts:             3,
	PollLongWaitMsMax:       10000,
	MaxJobPayloadBytes:      65536,
	TenantOpenJobsMax:       1000,
	StoreRetryMax:           3,
	RateLimits: map[string]RateLimit{
		"client": {Tokens: 50, RefillPerSec: 10},
		"miner":  {Tokens: 200, RefillPerSec: 50},
		"admin":  {Tokens: 20, RefillPerSec: 5},
	},
	Store: StoreConfig{
		Backend:         "kv",
		KVDir:           "./coordinator-data",
		SQLMaxOpenConns: 20,
		SQLMaxIdleConns: 5,
	},
	LedgerSink: LedgerSinkConfig{
		Backend: "noop",
	},
	HTTP: HTTPConfig{
		ListenAddr: ":8080",
	},
}

// Validate enforces the startup-fails-without-them fields of:
// SigningKeyPath/SigningKeyID are required.
func (c *Config) Validate() error {
	if c.SigningKeyPath == "" || c.SigningKeyID == "" {
		return errMissingSigningKey
	}
	return nil
}
