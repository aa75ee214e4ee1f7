// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package api

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ed25519"

	"github.com/aitbc-network/coordinator/clock"
	"github.com/aitbc-network/coordinator/jobqueue"
	"github.com/aitbc-network/coordinator/lifecycle"
	"github.com/aitbc-network/coordinator/minerregistry"
	"github.com/aitbc-network/coordinator/model"
	"github.com/aitbc-network/coordinator/payment"
	"github.com/aitbc-network/coordinator/receipt"
	"github.com/aitbc-network/coordinator/signer"
	"github.com/aitbc-network/coordinator/store/kvstore"
)

type noopSink struct{}

func (noopSink) Record(e *model.PaymentEvent) error { return nil }

func newTestServer(t *testing.T) (*Server, *StaticKeyProvider, func()) {
	dir, err := ioutil.TempDir("", "coordinator-api-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	st, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("cannot open kvstore: %v", err)
	}
	clk := clock.NewManual(1_000_000)
	idGen := clock.NewRandomIDGen()

	payments := payment.New(st, clk, idGen, noopSink{})
	queue := jobqueue.New(st, clk, idGen, payments, 65536, 1000, 30_000)
	registry := minerregistry.New(st, clk, idGen, 30_000)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("cannot generate key: %v", err)
	}
	sg := signer.New()
	sg.SetCurrentKey(&signer.Key{ID: "key-1", Public: pub, Private: priv})
	receipts := receipt.New(st, sg, clk, false)
	life := lifecycle.New(st, clk, payments, receipts, 3, 60_000)

	identity := NewStaticKeyProvider()
	identity.AddKey("client-key", TenantContext{TenantID: "tenant-1", Kind: CallerClient})
	identity.AddKey("miner-key", TenantContext{TenantID: "tenant-1", Kind: CallerMiner})
	identity.AddKey("admin-key", TenantContext{TenantID: "tenant-1", Kind: CallerOperator})

	s := New(st, clk, queue, registry, life, sg, identity, nil, nil, 0)
	return s, identity, func() {
		st.Close()
		os.RemoveAll(dir)
	}
}

func TestServer_SubmitJob_RequiresAuth(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	h := s.Handler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SubmitJob_ThenGetJob(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	h := s.Handler(nil)

	body, _ := json.Marshal(submitJobRequest{
		CapabilityRequirement: model.CapabilityRequirement{Model: "gpu-a100", MinMemBytes: 1024},
		Payload:               []byte("hello"),
		MaxPrice:              1000,
		TTLMs:                 60_000,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Authorization", "client-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var submitted submitJobResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.NotEmpty(t, submitted.JobID)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+submitted.JobID, nil)
	getReq.Header.Set("Authorization", "client-key")
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)

	var job model.Job
	assert.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &job))
	assert.Equal(t, model.JobQueued, job.State)
}

func TestServer_SubmitJob_WrongCallerKindForbidden(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	h := s.Handler(nil)
	body, _ := json.Marshal(submitJobRequest{MaxPrice: 1000, TTLMs: 60_000})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Authorization", "miner-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_Readiness_OK(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	h := s.Handler(nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RegisterMiner_ThenDrain(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	h := s.Handler(nil)
	pub, _, err := ed25519.GenerateKey(nil)
	assert.NoError(t, err)

	body, _ := json.Marshal(registerMinerRequest{
		PublicKey:      pub,
		Capabilities:   []model.Capability{{Model: "gpu-a100", MemBytes: 2048}},
		PricePerUnit:   10,
		MaxConcurrency: 2,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/miners", bytes.NewReader(body))
	req.Header.Set("Authorization", "miner-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var reg registerMinerResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.NotEmpty(t, reg.MinerID)

	drainReq := httptest.NewRequest(http.MethodPost, "/v1/admin/miners/"+reg.MinerID+"/drain", nil)
	drainReq.Header.Set("Authorization", "admin-key")
	drainRec := httptest.NewRecorder()
	h.ServeHTTP(drainRec, drainReq)
	assert.Equal(t, http.StatusNoContent, drainRec.Code)
}
