// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package minerregistry

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ed25519"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

func newTestRegistry(t *testing.T) (*Registry, func()) {
	dir, err := ioutil.TempDir("", "coordinator-minerregistry-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	clk := clock.NewManual(1_000_000)
	reg := New(st, clk, clock.NewRandomIDGen(), 30000)
	return reg, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func TestRegistry_Register_IdempotentOnPublicKeyAndTenant(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	pub, _, _ := ed25519.GenerateKey(nil)
	caps := []model.Capability{{Model: "m1", MemBytes: 2_000_000_000}}

	id1, tok1, err := reg.Register("tenant-a", pub, caps, 10, 1)
	assert.NoError(t, err)
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, tok1)

	id2, tok2, err := reg.Register("tenant-a", pub, caps, 20, 2)
	assert.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, tok2)

	m, err := reg.st.GetMiner(id1)
	assert.NoError(t, err)
	assert.Equal(t, int64(20), m.PricePerUnit)
	assert.Equal(t, 2, m.MaxConcurrency)
}

func TestRegistry_Heartbeat_VerifiesSignature(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	pub, priv, _ := ed25519.GenerateKey(nil)
	id, _, err := reg.Register("tenant-a", pub, nil, 1, 1)
	assert.NoError(t, err)

	nonce := []byte("nonce-1")
	sig := ed25519.Sign(priv, nonce)

	expiresAt, err := reg.Heartbeat(id, nonce, sig)
	assert.NoError(t, err)
	assert.Greater(t, expiresAt, int64(0))

	_, err = reg.Heartbeat(id, nonce, []byte("bad-sig"))
	assert.Error(t, err)
	assert.Equal(t, model.ErrAuthFailed, model.CodeOf(err))
}

func TestRegistry_DrainResume(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	pub, _, _ := ed25519.GenerateKey(nil)
	id, _, err := reg.Register("tenant-a", pub, nil, 1, 1)
	assert.NoError(t, err)

	assert.NoError(t, reg.Drain(id))
	m, _ := reg.st.GetMiner(id)
	assert.Equal(t, model.MinerDraining, m.Status)

	assert.NoError(t, reg.Resume(id))
	m, _ = reg.st.GetMiner(id)
	assert.Equal(t, model.MinerActive, m.Status)
}

func TestRegistry_Search_OrdersByPriceThenHeartbeatAge(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1", MinMemBytes: 1_000_000}
	caps := []model.Capability{{Model: "m1", MemBytes: 2_000_000}}

	pubA, _, _ := ed25519.GenerateKey(nil)
	pubB, _, _ := ed25519.GenerateKey(nil)
	idA, _, _ := reg.Register("tenant-a", pubA, caps, 20, 1)
	idB, _, _ := reg.Register("tenant-a", pubB, caps, 10, 1)

	ids, err := reg.Search(req, nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, []string{idB, idA}, ids)
}

func TestRegistry_Search_ExcludesDrainingAndExcludeSet(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	req := model.CapabilityRequirement{Model: "m1", MinMemBytes: 1_000_000}
	caps := []model.Capability{{Model: "m1", MemBytes: 2_000_000}}

	pubA, _, _ := ed25519.GenerateKey(nil)
	pubB, _, _ := ed25519.GenerateKey(nil)
	idA, _, _ := reg.Register("tenant-a", pubA, caps, 20, 1)
	idB, _, _ := reg.Register("tenant-a", pubB, caps, 10, 1)
	assert.NoError(t, reg.Drain(idB))

	ids, err := reg.Search(req, nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, []string{idA}, ids)

	ids, err = reg.Search(req, []string{idA}, 10)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

type fakeNotifier struct {
	lost []string
}

func (f *fakeNotifier) OnMinerLost(jobID string) {
	f.lost = append(f.lost, jobID)
}

func TestRegistry_LivenessSweep_MarksOfflineAndNotifies(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	pub, _, _ := ed25519.GenerateKey(nil)
	id, _, err := reg.Register("tenant-a", pub, nil, 1, 2)
	assert.NoError(t, err)

	m, _ := reg.st.GetMiner(id)
	m.InFlightJobs["job-1"] = struct{}{}
	assert.NoError(t, reg.st.RegisterMiner(m))

	notifier := &fakeNotifier{}
	reg.SetLostJobNotifier(notifier)

	assert.NoError(t, reg.LivenessSweep(1_000_000 + 31000))

	m, _ = reg.st.GetMiner(id)
	assert.Equal(t, model.MinerOffline, m.Status)
	assert.Equal(t, []string{"job-1"}, notifier.lost)
}
