// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package config

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate_RequiresSigningKey(t *testing.T) {
	cfg := DefaultConfig
	assert.Error(t, cfg.Validate())

	cfg.SigningKeyPath = "/tmp/key.json"
	cfg.SigningKeyID = "key-1"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_DumpThenLoadRoundTrips(t *testing.T) {
	cfg := DefaultConfig
	cfg.SigningKeyPath = "/tmp/key.json"
	cfg.SigningKeyID = "key-1"
	cfg.MaxAttempts = 7

	text, err := Dump(cfg)
	assert.NoError(t, err)
	assert.Contains(t, text, "MaxAttempts")

	f, err := ioutil.TempFile("", "coordinator-config-test-*.toml")
	assert.NoError(t, err)
	defer os.Remove(f.Name())
	_, err = f.WriteString(text)
	assert.NoError(t, err)
	f.Close()

	loaded, err := Load(f.Name())
	assert.NoError(t, err)
	assert.Equal(t, 7, loaded.MaxAttempts)
	assert.Equal(t, "key-1", loaded.SigningKeyID)
}

func TestConfig_DefaultsMatchSpec(t *testing.T) {
	assert.Equal(t, int64(30000), DefaultConfig.MinerLivenessTimeoutMs)
	assert.Equal(t, int64(5000), DefaultConfig.HeartbeatScanIntervalMs)
	assert.Equal(t, int64(1000), DefaultConfig.TimerScanIntervalMs)
	assert.Equal(t, 500, DefaultConfig.TimerBatchMax)
	assert.Equal(t, int64(120000), DefaultConfig.AttemptTimeoutMs)
	assert.Equal(t, int64(900000), DefaultConfig.JobDefaultTTLMs)
	assert.Equal(t, 3, DefaultConfig.MaxAttempts)
	assert.Equal(t, int64(10000), DefaultConfig.PollLongWaitMsMax)
	assert.Equal(t, 65536, DefaultConfig.MaxJobPayloadBytes)
	assert.Equal(t, 1000, DefaultConfig.TenantOpenJobsMax)
}
