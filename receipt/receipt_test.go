// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package receipt

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ed25519"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/signer"
	"github.com/aitbc-network/coordinator/store"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

func newTestService(t *testing.T, failOnPriceClamp bool) (*Service, store.Store, func()) {
	dir, err := ioutil.TempDir("", "coordinator-receipt-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	pub, priv, _ := ed25519.GenerateKey(nil)
	sg := signer.New()
	sg.SetCurrentKey(&signer.Key{ID: "key-1", Public: pub, Private: priv})
	clk := clock.NewManual(1_000_000)
	s := New(st, sg, clk, failOnPriceClamp)
	return s, st, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func testJobAndMiner() (*model.Job, *model.Miner) {
	job := &model.Job{
		ID:                    "job-1",
		TenantID:              "tenant-1",
		SubmitterID:           "submitter-1",
		AttemptCount:          1,
		MaxPrice:              1000,
		CapabilityRequirement: model.CapabilityRequirement{Model: "llama-7b"},
	}
	miner := &model.Miner{ID: "miner-1", PricePerUnit: 100}
	return job, miner
}

func TestService_BuildAndSeal_ComputesHashAndCharge(t *testing.T) {
	s, _, cleanup := newTestService(t, false)
	defer cleanup()

	job, miner := testJobAndMiner()
	r, kind, err := s.BuildAndSeal(job, miner, 900_000, 5, []byte("result-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, model.ErrorKindNone, kind)
	assert.Equal(t, int64(0), r.AmountCharged) // 5*100/1000 == 0 (floor division)
	assert.NotEmpty(t, r.ResultHash)
	assert.NotEmpty(t, r.Signature)
	assert.NotEmpty(t, r.KeyID)
}

func TestService_BuildAndSeal_ClampsToMaxPriceByDefault(t *testing.T) {
	s, _, cleanup := newTestService(t, false)
	defer cleanup()

	job, miner := testJobAndMiner()
	r, kind, err := s.BuildAndSeal(job, miner, 900_000, 50_000, []byte("big-result"))
	assert.NoError(t, err)
	assert.Equal(t, model.ErrorKindPriceClamped, kind)
	assert.Equal(t, job.MaxPrice, r.AmountCharged)
}

func TestService_BuildAndSeal_FailsWhenClampPolicyDisabled(t *testing.T) {
	s, _, cleanup := newTestService(t, true)
	defer cleanup()

	job, miner := testJobAndMiner()
	_, _, err := s.BuildAndSeal(job, miner, 900_000, 50_000, []byte("big-result"))
	assert.Error(t, err)
	cerr, ok := err.(*model.CoordError)
	assert.True(t, ok)
	assert.Equal(t, model.ErrInsufficientFunds, cerr.Code)
}

func TestService_BuildAndSeal_IsIdempotentOnJobAndAttempt(t *testing.T) {
	s, _, cleanup := newTestService(t, false)
	defer cleanup()

	job, miner := testJobAndMiner()
	first, _, err := s.BuildAndSeal(job, miner, 900_000, 5, []byte("result-bytes"))
	assert.NoError(t, err)

	second, _, err := s.BuildAndSeal(job, miner, 900_000, 5, []byte("result-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, first.ReceiptID, second.ReceiptID)
	assert.Equal(t, first.Signature, second.Signature)
}
